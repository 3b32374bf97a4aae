package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"reliefops/internal/analytics"
	"reliefops/internal/metrics"
	"reliefops/internal/model"
)

// IngestFixesHandler handles POST /v1/analytics/fixes. Batches over the
// per-tenant rate budget are rejected whole with 429 rather than
// partially applied.
func (s *Server) IngestFixesHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	var req struct {
		Fixes []model.Fix `json:"fixes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if len(req.Fixes) == 0 {
		writeProblem(w, http.StatusBadRequest, "Empty batch", "at least one fix required", r.URL.Path)
		return
	}
	if !s.ingestLimiter(p.Tenant).AllowN(time.Now(), len(req.Fixes)) {
		writeProblem(w, http.StatusTooManyRequests, "Rate limit exceeded", "fix ingest budget exhausted, retry later", r.URL.Path)
		return
	}

	accepted := 0
	for _, fx := range req.Fixes {
		unit := fx.UnitID
		if unit == "" {
			unit = p.UnitID
		}
		if unit == "" {
			continue
		}
		ts := parseTS(fx.TS)
		pt := analytics.TrackPoint{Lat: fx.Lat, Lng: fx.Lng, T: ts, AccuracyM: fx.AccuracyM}
		for _, pat := range s.Engine.Ingest(p.Tenant, unit, pt) {
			s.emitPattern(r, p.Tenant, pat)
		}
		s.observePosition(r, p.Tenant, unit, fx.Lat, fx.Lng, ts)
		accepted++
	}
	metrics.FixesIngested.WithLabelValues(p.Tenant).Add(float64(accepted))
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted})
}

func (s *Server) emitPattern(r *http.Request, tenant string, pat analytics.Pattern) {
	metrics.PatternsDetected.WithLabelValues(string(pat.Type)).Inc()
	evtType := "pattern.detected"
	if pat.Type == analytics.PatternAnomaly {
		evtType = "anomaly.detected"
	}
	s.Pub.Emit(r.Context(), tenant, evtType, pat)
	s.Broker.Publish(opsTopic(tenant), SSEEvent{Type: evtType, Data: pat})
}

// sinceParam resolves the analysis window: sinceMinutes relative to now,
// or an absolute RFC3339 since. Zero means the whole retained history.
func sinceParam(r *http.Request) time.Time {
	if v := r.URL.Query().Get("sinceMinutes"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Now().UTC().Add(-time.Duration(n) * time.Minute)
		}
	}
	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// PatternsHandler handles GET /v1/analytics/patterns: fleet-wide
// detection over the in-memory track history.
func (s *Server) PatternsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	byUnit := s.Engine.AnalyzeAll(p.Tenant, sinceParam(r))
	writeJSON(w, http.StatusOK, map[string]any{"units": byUnit})
}

// UnitPatternsHandler handles GET /v1/analytics/units/{unitId}/patterns.
func (s *Server) UnitPatternsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	unit := chi.URLParam(r, "unitId")
	pats := s.Engine.AnalyzeUnit(p.Tenant, unit, sinceParam(r))
	for _, pat := range pats {
		metrics.PatternsDetected.WithLabelValues(string(pat.Type)).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"unitId": unit, "patterns": pats})
}

// UnitSuggestionsHandler handles GET /v1/analytics/units/{unitId}/suggestions.
func (s *Server) UnitSuggestionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	unit := chi.URLParam(r, "unitId")
	writeJSON(w, http.StatusOK, map[string]any{"unitId": unit, "suggestions": s.Engine.Suggest(p.Tenant, unit, sinceParam(r))})
}

// AnalyticsSummaryHandler handles GET /v1/analytics/summary.
func (s *Server) AnalyticsSummaryHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	writeJSON(w, http.StatusOK, s.Engine.Summarize(p.Tenant, sinceParam(r)))
}
