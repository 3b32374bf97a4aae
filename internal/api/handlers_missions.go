package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"reliefops/internal/metrics"
	"reliefops/internal/model"
	"reliefops/internal/store"
)

func (s *Server) ListMissionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	items, next, err := s.Store.ListMissions(r.Context(), p.Tenant, r.URL.Query().Get("status"), r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List missions failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) GetMissionHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	ms, err := s.Store.GetMission(r.Context(), p.Tenant, chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Mission not found", err.Error(), r.URL.Path)
		return
	}
	if r.URL.Query().Get("includeRests") == "false" {
		kept := make([]model.Task, 0, len(ms.Tasks))
		for _, t := range ms.Tasks {
			if t.Kind != "rest" {
				kept = append(kept, t)
			}
		}
		ms.Tasks = kept
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) PatchMissionHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	var patch model.MissionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	ms, err := s.Store.PatchMission(r.Context(), p.Tenant, chi.URLParam(r, "id"), patch)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Mission not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Patch failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) AssignMissionHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "coordinator or admin required", r.URL.Path)
		return
	}
	var req model.AssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.TeamID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing teamId", "", r.URL.Path)
		return
	}
	id := chi.URLParam(r, "id")
	ms, err := s.Store.AssignMission(r.Context(), p.Tenant, id, req)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Mission not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Assign failed", err.Error(), r.URL.Path)
		return
	}
	s.Broker.Publish(id, SSEEvent{Type: "mission.assigned", Data: map[string]any{"missionId": id, "teamId": req.TeamID}})
	writeJSON(w, http.StatusOK, ms)
}

// AdvanceMissionHandler handles POST /v1/missions/{id}/advance. The store
// enforces the auto-advance policy; policy refusals come back as alerts
// with the mission unchanged.
func (s *Server) AdvanceMissionHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	var req model.AdvanceRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
	}
	if req.Force && !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "force requires coordinator or admin", r.URL.Path)
		return
	}
	id := chi.URLParam(r, "id")
	resp, err := s.Store.AdvanceMission(r.Context(), p.Tenant, id, req)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Mission not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Advance failed", err.Error(), r.URL.Path)
		return
	}
	if resp.Result.Changed {
		s.Pub.Emit(r.Context(), p.Tenant, "task.advanced", resp.Result)
		s.Broker.Publish(id, SSEEvent{Type: "task.advanced", Data: resp.Result})
	}
	writeJSON(w, http.StatusOK, resp)
}

// MissionEventsStreamHandler streams mission events over SSE with a
// periodic heartbeat comment to keep intermediaries from timing out.
func (s *Server) MissionEventsStreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	id := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	fmt.Fprintf(w, ": connected %s\n\n", id)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case evt := <-ch:
			data, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		}
	}
}

// FieldEventsHandler handles POST /v1/field-events. Position events feed
// the analytics engine and the geofence tracker; arrive and checkin
// events drive mission auto-advance.
func (s *Server) FieldEventsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	var req struct {
		Events []model.FieldEvent `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if len(req.Events) == 0 {
		writeProblem(w, http.StatusBadRequest, "Empty batch", "at least one event required", r.URL.Path)
		return
	}
	for i := range req.Events {
		if req.Events[i].UnitID == "" {
			req.Events[i].UnitID = p.UnitID
		}
	}
	accepted, err := s.Store.InsertFieldEvents(r.Context(), p.Tenant, req.Events)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Insert events failed", err.Error(), r.URL.Path)
		return
	}

	advanced := 0
	for _, evt := range req.Events {
		if evt.Location != nil {
			s.observePosition(r, p.Tenant, evt.UnitID, evt.Location.Lat, evt.Location.Lng, parseTS(evt.TS))
		}
		switch evt.Type {
		case "arrive", "checkin", "depart":
			advanced += s.autoAdvance(r, p.Tenant, evt)
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted, "advanced": advanced})
}

// autoAdvance applies one field event to the unit's active missions.
func (s *Server) autoAdvance(r *http.Request, tenant string, evt model.FieldEvent) int {
	ids := []string{}
	if evt.MissionID != "" {
		ids = append(ids, evt.MissionID)
	} else if evt.UnitID != "" {
		var err error
		ids, err = s.Store.ListActiveMissionsForUnit(r.Context(), tenant, evt.UnitID)
		if err != nil {
			s.Log.Warn("list active missions failed", zap.Error(err))
			return 0
		}
	}
	advanced := 0
	for _, id := range ids {
		resp, err := s.Store.AdvanceMission(r.Context(), tenant, id, model.AdvanceRequest{Reason: evt.Type})
		if err != nil {
			continue
		}
		if resp.Result.Changed {
			advanced++
			s.Pub.Emit(r.Context(), tenant, "task.advanced", resp.Result)
			s.Broker.Publish(id, SSEEvent{Type: "task.advanced", Data: resp.Result})
		}
	}
	return advanced
}

// observePosition runs one position sample through the geofence tracker
// and the inline anomaly check, emitting alerts for anything that fires.
func (s *Server) observePosition(r *http.Request, tenant, unit string, lat, lng float64, ts time.Time) {
	zones, _, err := s.Store.ListGeofences(r.Context(), tenant, "", 500)
	if err == nil {
		for _, tr := range s.Tracker.Observe(tenant, unit, lat, lng, ts, zones) {
			metrics.GeofenceTransitions.WithLabelValues(tr.Kind, tr.Event).Inc()
			evtType := "geofence.entered"
			if tr.Event == "exit" {
				evtType = "geofence.exited"
			}
			s.Pub.Emit(r.Context(), tenant, evtType, tr)
			s.Broker.Publish(opsTopic(tenant), SSEEvent{Type: evtType, Data: tr})
		}
	}
}

func parseTS(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}
