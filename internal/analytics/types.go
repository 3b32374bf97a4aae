// Package analytics ingests raw positional fixes from field units and
// segments their recent tracks into movement patterns: stationary, linear,
// circular, route-following, search-grid sweeps, and anomalies. Detected
// patterns feed optimization suggestions with projected efficiency gains.
package analytics

import "time"

// PatternType classifies a detected movement pattern.
type PatternType string

const (
	PatternStationary PatternType = "stationary"
	PatternLinear     PatternType = "linear"
	PatternCircular   PatternType = "circular"
	PatternRoute      PatternType = "route"
	PatternSearchGrid PatternType = "search_grid"
	PatternAnomaly    PatternType = "anomaly"
)

// TrackPoint is one positional fix after parsing and ordering.
type TrackPoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	T         time.Time `json:"ts"`
	AccuracyM float64   `json:"accuracyM,omitempty"`
}

// Track is an immutable, time-ordered snapshot of a unit's recent fixes.
// Detectors operate only on this snapshot; they never reach back into
// shared state, which keeps detection pure and trivially testable.
type Track struct {
	TenantID string
	UnitID   string
	Points   []TrackPoint
}

// Pattern is a classified window of a unit's track.
type Pattern struct {
	Type        PatternType        `json:"type"`
	UnitID      string             `json:"unitId"`
	Start       time.Time          `json:"start"`
	End         time.Time          `json:"end"`
	Confidence  float64            `json:"confidence"` // [0,1]
	CentroidLat float64            `json:"centroidLat"`
	CentroidLng float64            `json:"centroidLng"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Detail      string             `json:"detail,omitempty"`
}

// Duration is the pattern's time span.
func (p Pattern) Duration() time.Duration { return p.End.Sub(p.Start) }

// Suggestion is an optimization hint derived from a pattern, with the
// projected fractional efficiency gain if adopted.
type Suggestion struct {
	PatternType   PatternType        `json:"patternType"`
	UnitID        string             `json:"unitId"`
	Kind          string             `json:"kind"` // respace_sweep, reorder_route, reposition, stage_anchor
	Detail        string             `json:"detail"`
	ProjectedGain float64            `json:"projectedGain"` // [0,1): fraction of effort saved
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}

// Detector is one pattern classifier. Implementations must be pure over
// the given track snapshot.
type Detector interface {
	Type() PatternType
	Detect(track Track) []Pattern
}

// Waypoint is an ordered mission stop used by the route detector.
type Waypoint struct {
	Lat float64
	Lng float64
}

// Config tunes the detector thresholds. Zero values select defaults.
type Config struct {
	MaxFixesPerUnit   int
	StationaryRadiusM float64
	MinDwell          time.Duration
	MinPatternPoints  int
	MaxSpeedKph       float64
	RouteCorridorM    float64
	SweepDetectWidthM float64
}

func (c Config) withDefaults() Config {
	if c.MaxFixesPerUnit <= 0 {
		c.MaxFixesPerUnit = 2048
	}
	if c.StationaryRadiusM <= 0 {
		c.StationaryRadiusM = 30
	}
	if c.MinDwell <= 0 {
		c.MinDwell = 5 * time.Minute
	}
	if c.MinPatternPoints <= 0 {
		c.MinPatternPoints = 6
	}
	if c.MaxSpeedKph <= 0 {
		c.MaxSpeedKph = 160
	}
	if c.RouteCorridorM <= 0 {
		c.RouteCorridorM = 120
	}
	if c.SweepDetectWidthM <= 0 {
		c.SweepDetectWidthM = 60
	}
	return c
}
