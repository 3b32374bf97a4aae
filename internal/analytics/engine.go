package analytics

import (
	"sort"
	"sync"
	"time"
)

// Summary aggregates detection output over a tenant's fleet.
type Summary struct {
	Units          int                 `json:"units"`
	Fixes          int                 `json:"fixes"`
	PatternCounts  map[PatternType]int `json:"patternCounts"`
	Anomalies      int                 `json:"anomalies"`
	MeanConfidence float64             `json:"meanConfidence"`
	ProjectedGain  float64             `json:"projectedGain"` // summed over open suggestions
	GeneratedAt    time.Time           `json:"generatedAt"`
}

// Engine owns the fix history and the detector set. Detectors are pure
// functions over track snapshots, so analysis never blocks ingest.
type Engine struct {
	cfg     Config
	history *History

	mu        sync.RWMutex
	detectors []Detector
	routes    map[string]*RouteDetector // keyed by route id
}

func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:     cfg,
		history: NewHistory(cfg.MaxFixesPerUnit),
		routes:  map[string]*RouteDetector{},
	}
	e.detectors = []Detector{
		NewStationaryDetector(cfg),
		NewLinearDetector(cfg),
		NewCircularDetector(cfg),
		NewSearchGridDetector(cfg),
		NewAnomalyDetector(cfg),
	}
	return e
}

func (e *Engine) History() *History { return e.history }

// RegisterRoute installs a corridor the route detector matches tracks
// against. Re-registering an id replaces the corridor.
func (e *Engine) RegisterRoute(id string, waypoints []Waypoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes[id] = NewRouteDetector(e.cfg, id, waypoints)
}

// Ingest records a fix and returns any anomaly found against the unit's
// previous fix, so callers can alert inline without a full analysis pass.
func (e *Engine) Ingest(tenantID, unitID string, p TrackPoint) []Pattern {
	prev, ok := e.history.Last(tenantID, unitID)
	e.history.Add(tenantID, unitID, p)
	if !ok || !p.T.After(prev.T) {
		return nil
	}
	det := NewAnomalyDetector(e.cfg)
	return det.Detect(Track{TenantID: tenantID, UnitID: unitID, Points: []TrackPoint{prev, p}})
}

// AnalyzeUnit runs every detector over the unit's track since the cutoff.
func (e *Engine) AnalyzeUnit(tenantID, unitID string, since time.Time) []Pattern {
	track := e.history.Snapshot(tenantID, unitID, since)
	if len(track.Points) == 0 {
		return nil
	}
	e.mu.RLock()
	dets := make([]Detector, len(e.detectors), len(e.detectors)+len(e.routes))
	copy(dets, e.detectors)
	for _, rd := range e.routes {
		dets = append(dets, rd)
	}
	e.mu.RUnlock()

	var out []Pattern
	for _, d := range dets {
		out = append(out, d.Detect(track)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// AnalyzeAll runs detection across every unit with recorded fixes.
func (e *Engine) AnalyzeAll(tenantID string, since time.Time) map[string][]Pattern {
	out := map[string][]Pattern{}
	for _, unit := range e.history.Units(tenantID) {
		if ps := e.AnalyzeUnit(tenantID, unit, since); len(ps) > 0 {
			out[unit] = ps
		}
	}
	return out
}

// Summarize reports fleet-level counts for the operations dashboard.
func (e *Engine) Summarize(tenantID string, since time.Time) Summary {
	s := Summary{
		PatternCounts: map[PatternType]int{},
		GeneratedAt:   time.Now().UTC(),
	}
	confSum := 0.0
	confN := 0
	for _, unit := range e.history.Units(tenantID) {
		track := e.history.Snapshot(tenantID, unit, since)
		if len(track.Points) == 0 {
			continue
		}
		s.Units++
		s.Fixes += len(track.Points)
		for _, p := range e.AnalyzeUnit(tenantID, unit, since) {
			s.PatternCounts[p.Type]++
			confSum += p.Confidence
			confN++
			if p.Type == PatternAnomaly {
				s.Anomalies++
			}
		}
		for _, sg := range e.Suggest(tenantID, unit, since) {
			s.ProjectedGain += sg.ProjectedGain
		}
	}
	if confN > 0 {
		s.MeanConfidence = confSum / float64(confN)
	}
	return s
}
