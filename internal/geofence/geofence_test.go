package geofence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefops/internal/model"
)

func circleZone(id string, kind string, radiusM int) model.Geofence {
	return model.Geofence{
		ID:       id,
		TenantID: "t1",
		Kind:     kind,
		RadiusM:  radiusM,
		Center:   &model.GeoPoint{Lat: 29.7604, Lng: -95.3698},
		Active:   true,
	}
}

func TestContainsCircleBoundaryIsInside(t *testing.T) {
	z := circleZone("g1", model.GeofenceStaging, 1000)
	assert.True(t, Contains(z, 29.7604, -95.3698))
	// ~1000m north of center, on the boundary within float tolerance.
	assert.True(t, Contains(z, 29.7604+999.0/111132.0, -95.3698))
	assert.False(t, Contains(z, 29.7604+1200.0/111132.0, -95.3698))
}

func TestContainsPolygon(t *testing.T) {
	z := model.Geofence{
		ID: "g2", TenantID: "t1", Kind: model.GeofenceHazard, Active: true,
		Polygon: []model.GeoPoint{
			{Lat: 29.75, Lng: -95.38},
			{Lat: 29.77, Lng: -95.38},
			{Lat: 29.77, Lng: -95.36},
			{Lat: 29.75, Lng: -95.36},
		},
	}
	assert.True(t, Contains(z, 29.76, -95.37))
	assert.False(t, Contains(z, 29.78, -95.37))
}

func TestTrackerEmitsEnterThenExitOnce(t *testing.T) {
	tr := NewTracker()
	z := []model.Geofence{circleZone("g1", model.GeofenceStaging, 500)}
	ts := time.Now()

	got := tr.Observe("t1", "u1", 29.7604, -95.3698, ts, z)
	require.Len(t, got, 1)
	assert.Equal(t, EventEnter, got[0].Event)

	// Still inside: no duplicate enter.
	got = tr.Observe("t1", "u1", 29.7605, -95.3698, ts, z)
	assert.Empty(t, got)

	got = tr.Observe("t1", "u1", 29.8, -95.3698, ts, z)
	require.Len(t, got, 1)
	assert.Equal(t, EventExit, got[0].Event)

	// Still outside: no duplicate exit.
	got = tr.Observe("t1", "u1", 29.8, -95.3698, ts, z)
	assert.Empty(t, got)
}

func TestTrackerHazardEnterIsCritical(t *testing.T) {
	tr := NewTracker()
	z := []model.Geofence{circleZone("g1", model.GeofenceHazard, 500)}
	got := tr.Observe("t1", "u1", 29.7604, -95.3698, time.Now(), z)
	require.Len(t, got, 1)
	assert.Equal(t, "critical", got[0].Severity)
}

func TestTrackerIgnoresInactiveZones(t *testing.T) {
	tr := NewTracker()
	z := circleZone("g1", model.GeofenceStaging, 500)
	z.Active = false
	got := tr.Observe("t1", "u1", 29.7604, -95.3698, time.Now(), []model.Geofence{z})
	assert.Empty(t, got)
}

func TestTrackerForgetResetsState(t *testing.T) {
	tr := NewTracker()
	z := []model.Geofence{circleZone("g1", model.GeofenceStaging, 500)}
	_ = tr.Observe("t1", "u1", 29.7604, -95.3698, time.Now(), z)
	tr.Forget("t1", "g1")
	got := tr.Observe("t1", "u1", 29.7604, -95.3698, time.Now(), z)
	require.Len(t, got, 1)
	assert.Equal(t, EventEnter, got[0].Event)
}
