package geofence

import (
	"sync"
	"time"

	"reliefops/internal/geo"
	"reliefops/internal/model"
)

// Transition is an enter or exit crossing for one unit and one zone.
type Transition struct {
	GeofenceID string    `json:"geofenceId"`
	Kind       string    `json:"kind"` // geofence kind, e.g. hazard
	UnitID     string    `json:"unitId"`
	Event      string    `json:"event"` // enter | exit
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	TS         time.Time `json:"ts"`
	Severity   string    `json:"severity"` // info | critical
}

const (
	EventEnter = "enter"
	EventExit  = "exit"
)

// Contains reports whether the point falls inside the zone. Circle
// boundaries count as inside.
func Contains(g model.Geofence, lat, lng float64) bool {
	if len(g.Polygon) >= 3 {
		poly := make([][2]float64, len(g.Polygon))
		for i, p := range g.Polygon {
			poly[i] = [2]float64{p.Lat, p.Lng}
		}
		return geo.PointInPolygon(lat, lng, poly)
	}
	if g.RadiusM <= 0 || g.Center == nil {
		return false
	}
	return geo.HaversineM(g.Center.Lat, g.Center.Lng, lat, lng) <= float64(g.RadiusM)
}

type stateKey struct {
	tenantID   string
	unitID     string
	geofenceID string
}

// Tracker holds per-unit containment state and emits transitions only on
// actual crossings. Repeated fixes inside a zone produce a single enter.
type Tracker struct {
	mu     sync.Mutex
	inside map[stateKey]bool
}

func NewTracker() *Tracker {
	return &Tracker{inside: map[stateKey]bool{}}
}

// Observe evaluates a fix against the tenant's zones and returns the
// transitions it caused.
func (t *Tracker) Observe(tenantID, unitID string, lat, lng float64, ts time.Time, zones []model.Geofence) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Transition
	for _, z := range zones {
		if !z.Active {
			continue
		}
		key := stateKey{tenantID, unitID, z.ID}
		now := Contains(z, lat, lng)
		was := t.inside[key]
		if now == was {
			continue
		}
		t.inside[key] = now
		event := EventExit
		if now {
			event = EventEnter
		}
		sev := "info"
		if z.Kind == model.GeofenceHazard && event == EventEnter {
			sev = "critical"
		}
		if z.Kind == model.GeofenceRestricted && event == EventEnter {
			sev = "critical"
		}
		out = append(out, Transition{
			GeofenceID: z.ID,
			Kind:       z.Kind,
			UnitID:     unitID,
			Event:      event,
			Lat:        lat,
			Lng:        lng,
			TS:         ts,
			Severity:   sev,
		})
	}
	return out
}

// Forget drops a zone's state, used when the zone is deleted so a
// re-created zone starts clean.
func (t *Tracker) Forget(tenantID, geofenceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.inside {
		if k.tenantID == tenantID && k.geofenceID == geofenceID {
			delete(t.inside, k)
		}
	}
}
