package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"reliefops/internal/store"
)

// Publisher fans an event out to every matching subscription by enqueueing
// one delivery per subscriber. The worker drains the queue asynchronously.
type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues the event for all subscriptions on the tenant and type.
// The event id is unique per emission, so receivers can dedupe retries of
// the same delivery against distinct occurrences of the same alert.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":       "evt_" + uuid.NewString(),
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"source":   "reliefops",
		"data":     data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body)
	}
}
