package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"reliefops/internal/model"
	"reliefops/internal/store"
)

func queryLimit(r *http.Request) int {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return limit
}

// CreateNeedsHandler handles POST /v1/needs. Reports are accepted in bulk
// and deduplicated on externalRef.
func (s *Server) CreateNeedsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	var req struct {
		Reports []model.NeedReportIn `json:"reports"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if len(req.Reports) == 0 {
		writeProblem(w, http.StatusBadRequest, "Empty batch", "at least one report required", r.URL.Path)
		return
	}
	for i, n := range req.Reports {
		if n.Location == nil {
			writeProblem(w, http.StatusBadRequest, "Missing location", "reports["+strconv.Itoa(i)+"] has no location", r.URL.Path)
			return
		}
	}
	batchID, created, skipped, err := s.Store.CreateNeeds(r.Context(), p.Tenant, req.Reports)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create needs failed", err.Error(), r.URL.Path)
		return
	}
	if created > 0 {
		s.Pub.Emit(r.Context(), p.Tenant, "need.created", map[string]any{"batchId": batchID, "created": created})
		s.Broker.Publish(opsTopic(p.Tenant), SSEEvent{Type: "need.created", Data: map[string]any{"batchId": batchID, "created": created}})
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"batchId": batchID, "created": created, "skipped": skipped})
}

// ListNeedsHandler handles GET /v1/needs with status/category/minSeverity
// filters.
func (s *Server) ListNeedsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	q := r.URL.Query()
	items, next, err := s.Store.ListNeeds(r.Context(), p.Tenant, q.Get("status"), q.Get("category"), q.Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List needs failed", err.Error(), r.URL.Path)
		return
	}
	if v := q.Get("minSeverity"); v != "" {
		if min, err := strconv.Atoi(v); err == nil {
			kept := items[:0]
			for _, n := range items {
				if n.Severity >= min {
					kept = append(kept, n)
				}
			}
			items = kept
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) GetNeedHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	n, err := s.Store.GetNeed(r.Context(), p.Tenant, chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Need not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) PatchNeedHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	var patch model.NeedPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	patch.AllowReopen = p.Role == "admin"
	n, err := s.Store.PatchNeed(r.Context(), p.Tenant, chi.URLParam(r, "id"), patch)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Need not found", "", r.URL.Path)
		return
	}
	if errors.Is(err, store.ErrInvalidTransition) {
		writeProblem(w, http.StatusConflict, "Invalid status transition", err.Error(), r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Patch failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// UpsertTeamHandler handles POST /v1/teams.
func (s *Server) UpsertTeamHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	var team model.Team
	if err := json.NewDecoder(r.Body).Decode(&team); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	team.TenantID = p.Tenant
	out, err := s.Store.UpsertTeam(r.Context(), team)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Upsert team failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) ListTeamsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	items, next, err := s.Store.ListTeams(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List teams failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}
