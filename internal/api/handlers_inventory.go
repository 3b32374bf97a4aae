package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reliefops/internal/model"
	"reliefops/internal/store"
)

func (s *Server) CreateInventoryItemHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	var in model.InventoryItemIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if in.DepotID == "" || in.SKU == "" {
		writeProblem(w, http.StatusBadRequest, "Missing fields", "depotId and sku are required", r.URL.Path)
		return
	}
	if in.Qty < 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid qty", "qty must be >= 0", r.URL.Path)
		return
	}
	item, err := s.Store.CreateInventoryItem(r.Context(), p.Tenant, in)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create item failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) ListInventoryItemsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	q := r.URL.Query()
	items, next, err := s.Store.ListInventoryItems(r.Context(), p.Tenant, q.Get("depotId"), q.Get("category"), q.Get("belowReorder") == "true", q.Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List items failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) GetInventoryItemHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	item, err := s.Store.GetInventoryItem(r.Context(), p.Tenant, chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Item not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) PatchInventoryItemHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	var patch model.InventoryItemPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	item, err := s.Store.PatchInventoryItem(r.Context(), p.Tenant, chi.URLParam(r, "id"), patch)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Item not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Patch failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// StockMovementHandler handles POST /v1/inventory/items/{id}/movements.
// A movement that would drive qty negative is rejected with 409.
func (s *Server) StockMovementHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	var req struct {
		Delta     float64 `json:"delta"`
		Reason    string  `json:"reason"`
		MissionID string  `json:"missionId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.Delta == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid delta", "delta must be non-zero", r.URL.Path)
		return
	}
	if req.Reason == "" {
		req.Reason = "adjust"
	}
	id := chi.URLParam(r, "id")
	item, mv, err := s.Store.ApplyStockMovement(r.Context(), p.Tenant, id, req.Delta, req.Reason, req.MissionID, actorOf(p))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Item not found", "", r.URL.Path)
		return
	case errors.Is(err, store.ErrInsufficientStock):
		writeProblem(w, http.StatusConflict, "Insufficient stock", "movement would drive quantity below zero", r.URL.Path)
		return
	case err != nil:
		writeProblem(w, http.StatusInternalServerError, "Movement failed", err.Error(), r.URL.Path)
		return
	}
	if item.ReorderLevel > 0 && item.Qty <= item.ReorderLevel {
		s.Pub.Emit(r.Context(), p.Tenant, "inventory.low_stock", map[string]any{
			"itemId": item.ID, "sku": item.SKU, "depotId": item.DepotID,
			"qty": item.Qty, "reorderLevel": item.ReorderLevel,
		})
		s.Broker.Publish(opsTopic(p.Tenant), SSEEvent{Type: "inventory.low_stock", Data: map[string]any{"itemId": item.ID, "qty": item.Qty}})
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item, "movement": mv})
}

func (s *Server) ListStockMovementsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	items, next, err := s.Store.ListStockMovements(r.Context(), p.Tenant, chi.URLParam(r, "id"), r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List movements failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}
