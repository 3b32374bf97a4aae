package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reliefops/internal/model"
	"reliefops/internal/store"
)

func validGeofenceKind(kind string) bool {
	switch kind {
	case "", model.GeofenceHazard, model.GeofenceStaging, model.GeofenceDistribution, model.GeofenceRestricted:
		return true
	}
	return false
}

func (s *Server) CreateGeofenceHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	var in model.GeofenceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if !validGeofenceKind(in.Kind) {
		writeProblem(w, http.StatusBadRequest, "Invalid kind", "kind must be hazard, staging, distribution, or restricted", r.URL.Path)
		return
	}
	if len(in.Polygon) == 0 && (in.Center == nil || in.RadiusM <= 0) {
		writeProblem(w, http.StatusBadRequest, "Invalid geometry", "a polygon or a center with radiusM is required", r.URL.Path)
		return
	}
	if len(in.Polygon) > 0 && len(in.Polygon) < 3 {
		writeProblem(w, http.StatusBadRequest, "Invalid geometry", "polygon needs at least 3 vertices", r.URL.Path)
		return
	}
	gf, err := s.Store.CreateGeofence(r.Context(), p.Tenant, in)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create geofence failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, gf)
}

func (s *Server) ListGeofencesHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	items, next, err := s.Store.ListGeofences(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List geofences failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) GetGeofenceHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	gf, err := s.Store.GetGeofence(r.Context(), p.Tenant, chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Geofence not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, gf)
}

func (s *Server) PatchGeofenceHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	var in model.GeofenceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if !validGeofenceKind(in.Kind) {
		writeProblem(w, http.StatusBadRequest, "Invalid kind", "kind must be hazard, staging, distribution, or restricted", r.URL.Path)
		return
	}
	gf, err := s.Store.PatchGeofence(r.Context(), p.Tenant, chi.URLParam(r, "id"), in)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Geofence not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Patch failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, gf)
}

func (s *Server) DeleteGeofenceHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteGeofence(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, http.StatusNotFound, "Geofence not found", err.Error(), r.URL.Path)
		return
	}
	// Drop tracked inside state so a recreated zone starts clean.
	s.Tracker.Forget(p.Tenant, id)
	w.WriteHeader(http.StatusNoContent)
}
