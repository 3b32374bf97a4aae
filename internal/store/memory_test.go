package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefops/internal/model"
)

func TestCreateNeedsDedupesByExternalRef(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, created, skipped, err := m.CreateNeeds(ctx, "t1", []model.NeedReportIn{
		{ExternalRef: "r-1", Category: "water", Severity: 3},
		{ExternalRef: "r-2", Category: "food", Severity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 0, skipped)

	_, created, skipped, err = m.CreateNeeds(ctx, "t1", []model.NeedReportIn{
		{ExternalRef: "r-1", Category: "water", Severity: 3},
		{ExternalRef: "r-3", Category: "medical", Severity: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, skipped)
}

func TestCreateNeedsClampsSeverity(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _, _, err := m.CreateNeeds(ctx, "t1", []model.NeedReportIn{
		{Category: "water", Severity: 9},
		{Category: "food", Severity: 0},
	})
	require.NoError(t, err)
	items, _, err := m.ListNeeds(ctx, "t1", "", "", "", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 5, items[0].Severity)
	assert.Equal(t, 1, items[1].Severity)
}

func TestListNeedsFiltersAndPaginates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _, _, err := m.CreateNeeds(ctx, "t1", []model.NeedReportIn{
		{Category: "water", Severity: 3},
		{Category: "food", Severity: 2},
		{Category: "water", Severity: 4},
	})
	require.NoError(t, err)

	water, _, err := m.ListNeeds(ctx, "t1", "", "water", "", 10)
	require.NoError(t, err)
	assert.Len(t, water, 2)

	page1, next, err := m.ListNeeds(ctx, "t1", "", "", "", 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, next)
	page2, _, err := m.ListNeeds(ctx, "t1", "", "", next, 2)
	require.NoError(t, err)
	assert.Len(t, page2, 1)
}

func TestAdvanceMissionWalksTasks(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ms := model.Mission{
		ID: "m1", Version: 1, Status: "active",
		Tasks: []model.Task{
			{ID: "tk1", Seq: 1, Status: "en_route"},
			{ID: "tk2", Seq: 2, Status: "pending"},
		},
	}
	require.NoError(t, m.SaveMissions(ctx, "t1", []model.Mission{ms}))

	resp, err := m.AdvanceMission(ctx, "t1", "m1", model.AdvanceRequest{Reason: "depart"})
	require.NoError(t, err)
	assert.True(t, resp.Result.Changed)
	assert.Equal(t, "tk1", resp.Result.FromTaskID)
	assert.Equal(t, "tk2", resp.Result.ToTaskID)

	resp, err = m.AdvanceMission(ctx, "t1", "m1", model.AdvanceRequest{Reason: "depart"})
	require.NoError(t, err)
	assert.True(t, resp.Result.Changed)
	assert.Equal(t, "completed", resp.Mission.Status)
}

func TestAdvanceMissionHonorsPolicyTrigger(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ms := model.Mission{
		ID: "m1", Version: 1, Status: "active",
		AutoAdvance: &model.AutoAdvancePolicy{Enabled: true, Trigger: "geofence_arrive"},
		Tasks:       []model.Task{{ID: "tk1", Seq: 1, Status: "en_route"}},
	}
	require.NoError(t, m.SaveMissions(ctx, "t1", []model.Mission{ms}))

	resp, err := m.AdvanceMission(ctx, "t1", "m1", model.AdvanceRequest{Reason: "depart"})
	require.NoError(t, err)
	assert.False(t, resp.Result.Changed)

	// "arrive" normalizes to the geofence trigger.
	resp, err = m.AdvanceMission(ctx, "t1", "m1", model.AdvanceRequest{Reason: "arrive"})
	require.NoError(t, err)
	assert.True(t, resp.Result.Changed)
}

func TestAdvanceMissionRequireCheckinAlerts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ms := model.Mission{
		ID: "m1", Status: "active",
		AutoAdvance: &model.AutoAdvancePolicy{Enabled: true, RequireCheckin: true},
		Tasks:       []model.Task{{ID: "tk1", Seq: 1, Status: "en_route"}},
	}
	require.NoError(t, m.SaveMissions(ctx, "t1", []model.Mission{ms}))

	resp, err := m.AdvanceMission(ctx, "t1", "m1", model.AdvanceRequest{Reason: "depart"})
	require.NoError(t, err)
	assert.False(t, resp.Result.Changed)
	require.Len(t, resp.Alerts, 1)

	resp, err = m.AdvanceMission(ctx, "t1", "m1", model.AdvanceRequest{Reason: "checkin"})
	require.NoError(t, err)
	assert.True(t, resp.Result.Changed)
}

func TestMissionsAreTenantScoped(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ms := model.Mission{
		ID: "m_2026-08-28_team-a_0", Status: "planned",
		Tasks: []model.Task{{ID: "tk1", Seq: 1, Status: "pending"}},
	}
	require.NoError(t, m.SaveMissions(ctx, "tenant-a", []model.Mission{ms}))

	_, err := m.GetMission(ctx, "tenant-b", ms.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.AssignMission(ctx, "tenant-b", ms.ID, model.AssignmentRequest{TeamID: "team-x"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.PatchMission(ctx, "tenant-b", ms.ID, model.MissionPatch{Status: "cancelled"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.AdvanceMission(ctx, "tenant-b", ms.ID, model.AdvanceRequest{Force: true})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := m.GetMission(ctx, "tenant-a", ms.ID)
	require.NoError(t, err)
	assert.Equal(t, "planned", got.Status)
}

func TestAdvanceMissionEnforcesMinDwell(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ms := model.Mission{
		ID: "m1", Status: "active",
		AutoAdvance: &model.AutoAdvancePolicy{Enabled: true, MinDwellSec: 600},
		Tasks: []model.Task{
			{ID: "tk1", Seq: 1, Status: "en_route", StartedAt: time.Now().UTC().Format(time.RFC3339)},
			{ID: "tk2", Seq: 2, Status: "pending"},
		},
	}
	require.NoError(t, m.SaveMissions(ctx, "t1", []model.Mission{ms}))

	resp, err := m.AdvanceMission(ctx, "t1", "m1", model.AdvanceRequest{Reason: "arrive"})
	require.NoError(t, err)
	assert.False(t, resp.Result.Changed)
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, "min dwell not met", resp.Alerts[0].Reason)

	// Dwelt long enough: the advance goes through and stamps the next task.
	ms.Tasks[0].StartedAt = time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	require.NoError(t, m.SaveMissions(ctx, "t1", []model.Mission{ms}))
	resp, err = m.AdvanceMission(ctx, "t1", "m1", model.AdvanceRequest{Reason: "arrive"})
	require.NoError(t, err)
	assert.True(t, resp.Result.Changed)
	assert.NotEmpty(t, resp.Mission.Tasks[1].StartedAt)
}

func TestPatchNeedStatusTransitions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _, _, err := m.CreateNeeds(ctx, "t1", []model.NeedReportIn{{Category: "water", Severity: 3}})
	require.NoError(t, err)
	needs, _, err := m.ListNeeds(ctx, "t1", "", "", "", 1)
	require.NoError(t, err)
	id := needs[0].ID

	_, err = m.PatchNeed(ctx, "t1", id, model.NeedPatch{Status: "resolved"})
	require.NoError(t, err)

	_, err = m.PatchNeed(ctx, "t1", id, model.NeedPatch{Status: "pending"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	n, err := m.PatchNeed(ctx, "t1", id, model.NeedPatch{Status: "pending", AllowReopen: true})
	require.NoError(t, err)
	assert.Equal(t, "pending", n.Status)

	_, err = m.PatchNeed(ctx, "t1", id, model.NeedPatch{Status: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListInventoryItemsBelowReorder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	low, err := m.CreateInventoryItem(ctx, "t1", model.InventoryItemIn{DepotID: "d1", SKU: "WTR-1L", Name: "Water", Qty: 3, ReorderLevel: 5})
	require.NoError(t, err)
	_, err = m.CreateInventoryItem(ctx, "t1", model.InventoryItemIn{DepotID: "d1", SKU: "MRE", Name: "Rations", Qty: 50, ReorderLevel: 5})
	require.NoError(t, err)
	_, err = m.CreateInventoryItem(ctx, "t1", model.InventoryItemIn{DepotID: "d1", SKU: "TARP", Name: "Tarps", Qty: 0})
	require.NoError(t, err)

	items, _, err := m.ListInventoryItems(ctx, "t1", "", "", true, "", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, low.ID, items[0].ID)
}

func TestAdvanceMissionForceBypassesPolicy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ms := model.Mission{
		ID: "m1", Status: "active",
		AutoAdvance: &model.AutoAdvancePolicy{Enabled: false},
		Tasks:       []model.Task{{ID: "tk1", Seq: 1, Status: "en_route"}},
	}
	require.NoError(t, m.SaveMissions(ctx, "t1", []model.Mission{ms}))

	resp, err := m.AdvanceMission(ctx, "t1", "m1", model.AdvanceRequest{Force: true})
	require.NoError(t, err)
	assert.True(t, resp.Result.Changed)
}

func TestApplyStockMovementKeepsQtyNonNegative(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	it, err := m.CreateInventoryItem(ctx, "t1", model.InventoryItemIn{DepotID: "d1", SKU: "WATER-1L", Name: "Bottled water", Qty: 10})
	require.NoError(t, err)

	got, mv, err := m.ApplyStockMovement(ctx, "t1", it.ID, -4, "issue", "m1", "coordinator")
	require.NoError(t, err)
	assert.Equal(t, 6.0, got.Qty)
	assert.Equal(t, -4.0, mv.Delta)

	_, _, err = m.ApplyStockMovement(ctx, "t1", it.ID, -7, "issue", "", "")
	assert.ErrorIs(t, err, ErrInsufficientStock)

	got, err = m.GetInventoryItem(ctx, "t1", it.ID)
	require.NoError(t, err)
	assert.Equal(t, 6.0, got.Qty)

	moves, _, err := m.ListStockMovements(ctx, "t1", it.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, moves, 1)
}

func TestStockMovementUnknownItem(t *testing.T) {
	m := NewMemory()
	_, _, err := m.ApplyStockMovement(context.Background(), "t1", "missing", 1, "receipt", "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubscriptionsMatchEventOrWildcard(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://a", Events: []string{"need.created"}, Secret: "s"})
	require.NoError(t, err)
	_, err = m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://b", Events: []string{"*"}, Secret: "s"})
	require.NoError(t, err)

	subs, err := m.GetSubscriptionsForEvent(ctx, "t1", "need.created")
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	subs, err = m.GetSubscriptionsForEvent(ctx, "t1", "pattern.detected")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestWebhookDeliveryLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.EnqueueWebhook(ctx, "t1", "sub1", "need.created", "https://hooks", "secret", []byte(`{}`))
	require.NoError(t, err)

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)

	require.NoError(t, m.FailWebhookDelivery(ctx, id, "boom", 500, 12))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	dlq, _, err := m.ListWebhookDLQ(ctx, "t1", "", "", 10)
	require.NoError(t, err)
	require.Len(t, dlq, 1)

	require.NoError(t, m.RequeueWebhookDLQ(ctx, "t1", id))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestGeofenceCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	gf, err := m.CreateGeofence(ctx, "t1", model.GeofenceInput{
		Name: "flood zone", Kind: model.GeofenceHazard,
		RadiusM: 800, Center: &model.GeoPoint{Lat: 29.76, Lng: -95.37},
	})
	require.NoError(t, err)
	assert.True(t, gf.Active)

	got, err := m.GetGeofence(ctx, "t1", gf.ID)
	require.NoError(t, err)
	assert.Equal(t, "flood zone", got.Name)

	_, err = m.GetGeofence(ctx, "t2", gf.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.DeleteGeofence(ctx, "t1", gf.ID))
	_, err = m.GetGeofence(ctx, "t1", gf.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
