package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"reliefops/internal/model"
	"reliefops/internal/store"
)

// knownEvents is the emitted event catalog; subscriptions may also use
// the "*" wildcard.
var knownEvents = map[string]struct{}{
	"need.created":        {},
	"mission.planned":     {},
	"task.advanced":       {},
	"geofence.entered":    {},
	"geofence.exited":     {},
	"pattern.detected":    {},
	"anomaly.detected":    {},
	"inventory.low_stock": {},
}

func (s *Server) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	var req model.SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.URL == "" || !strings.HasPrefix(req.URL, "http") {
		writeProblem(w, http.StatusBadRequest, "Invalid URL", "an http(s) endpoint is required", r.URL.Path)
		return
	}
	if req.Secret == "" {
		writeProblem(w, http.StatusBadRequest, "Missing secret", "a signing secret is required", r.URL.Path)
		return
	}
	if len(req.Events) == 0 {
		writeProblem(w, http.StatusBadRequest, "Missing events", "subscribe to at least one event type or *", r.URL.Path)
		return
	}
	for _, ev := range req.Events {
		if ev == "*" {
			continue
		}
		if _, ok := knownEvents[ev]; !ok {
			writeProblem(w, http.StatusBadRequest, "Unknown event type", ev, r.URL.Path)
			return
		}
	}
	req.TenantID = p.Tenant
	sub, err := s.Store.CreateSubscription(r.Context(), req)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
		return
	}
	sub.Secret = ""
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
		return
	}
	for i := range items {
		items[i].Secret = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, chi.URLParam(r, "id")); err != nil {
		writeProblem(w, http.StatusNotFound, "Subscription not found", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	p := s.getPrincipal(r)
	if p.Role != "admin" {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return false
	}
	return true
}

func (s *Server) ListWebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	p := s.getPrincipal(r)
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, r.URL.Query().Get("status"), r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RetryWebhookDeliveryHandler resets a delivery so the worker picks it up
// on its next poll.
func (s *Server) RetryWebhookDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	p := s.getPrincipal(r)
	err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Delivery not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Retry failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) ListWebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	p := s.getPrincipal(r)
	items, next, err := s.Store.ListWebhookDLQ(r.Context(), p.Tenant, r.URL.Query().Get("eventType"), r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List DLQ failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) RequeueWebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	p := s.getPrincipal(r)
	err := s.Store.RequeueWebhookDLQ(r.Context(), p.Tenant, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "DLQ entry not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Requeue failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) ListPlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	p := s.getPrincipal(r)
	q := r.URL.Query()
	items, err := s.Store.ListPlanMetrics(r.Context(), p.Tenant, q.Get("planDate"), q.Get("algo"))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List metrics failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) MissionStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	p := s.getPrincipal(r)
	stats, err := s.Store.MissionStats(r.Context(), p.Tenant, r.URL.Query().Get("planDate"))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Mission stats failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
