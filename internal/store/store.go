package store

import (
	"context"
	"errors"
	"time"

	"reliefops/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Needs
	CreateNeeds(ctx context.Context, tenantID string, needs []model.NeedReportIn) (batchID string, created, skipped int, err error)
	ListNeeds(ctx context.Context, tenantID, status, category, cursor string, limit int) (items []model.NeedReport, nextCursor string, err error)
	GetNeed(ctx context.Context, tenantID, id string) (model.NeedReport, error)
	PatchNeed(ctx context.Context, tenantID, id string, patch model.NeedPatch) (model.NeedReport, error)

	// Teams
	UpsertTeam(ctx context.Context, team model.Team) (model.Team, error)
	ListTeams(ctx context.Context, tenantID, cursor string, limit int) ([]model.Team, string, error)
	GetTeam(ctx context.Context, tenantID, id string) (model.Team, error)

	// Missions
	SaveMissions(ctx context.Context, tenantID string, missions []model.Mission) error
	GetMission(ctx context.Context, tenantID, missionID string) (model.Mission, error)
	ListMissions(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Mission, string, error)
	AssignMission(ctx context.Context, tenantID, missionID string, req model.AssignmentRequest) (model.Mission, error)
	PatchMission(ctx context.Context, tenantID, missionID string, patch model.MissionPatch) (model.Mission, error)
	AdvanceMission(ctx context.Context, tenantID, missionID string, req model.AdvanceRequest) (model.AdvanceResponse, error)
	ListActiveMissionsForUnit(ctx context.Context, tenantID, unitID string) ([]string, error)
	MarkNeedsAssigned(ctx context.Context, tenantID string, needIDs []string) error

	// Field events
	InsertFieldEvents(ctx context.Context, tenantID string, events []model.FieldEvent) (accepted int, err error)

	// Inventory
	CreateInventoryItem(ctx context.Context, tenantID string, in model.InventoryItemIn) (model.InventoryItem, error)
	ListInventoryItems(ctx context.Context, tenantID, depotID, category string, belowReorder bool, cursor string, limit int) ([]model.InventoryItem, string, error)
	GetInventoryItem(ctx context.Context, tenantID, id string) (model.InventoryItem, error)
	PatchInventoryItem(ctx context.Context, tenantID, id string, patch model.InventoryItemPatch) (model.InventoryItem, error)
	ApplyStockMovement(ctx context.Context, tenantID, itemID string, delta float64, reason, missionID, actor string) (model.InventoryItem, model.StockMovement, error)
	ListStockMovements(ctx context.Context, tenantID, itemID, cursor string, limit int) ([]model.StockMovement, string, error)

	// Geofences
	CreateGeofence(ctx context.Context, tenantID string, in model.GeofenceInput) (model.Geofence, error)
	ListGeofences(ctx context.Context, tenantID, cursor string, limit int) ([]model.Geofence, string, error)
	GetGeofence(ctx context.Context, tenantID, id string) (model.Geofence, error)
	PatchGeofence(ctx context.Context, tenantID, id string, in model.GeofenceInput) (model.Geofence, error)
	DeleteGeofence(ctx context.Context, tenantID, id string) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

	// Dead-letter queue
	ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error)
	RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error

	// Plan metrics
	SavePlanMetrics(ctx context.Context, tenantID, planDate, algo string, metrics map[string]any) error
	ListPlanMetrics(ctx context.Context, tenantID, planDate, algo string) ([]map[string]any, error)
	MissionStats(ctx context.Context, tenantID, planDate string) (map[string]any, error)
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
)

var needStatusRank = map[string]int{
	"pending":   0,
	"triaged":   1,
	"assigned":  2,
	"resolved":  3,
	"cancelled": 4,
}

// validNeedTransition allows forward moves through the need lifecycle.
// Moving backwards is a reopen, which only admins may request.
func validNeedTransition(from, to string, allowReopen bool) bool {
	fr, okFrom := needStatusRank[from]
	tr, okTo := needStatusRank[to]
	if !okFrom || !okTo {
		return false
	}
	return tr >= fr || allowReopen
}
