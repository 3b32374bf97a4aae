package analytics

import "fmt"

// StationaryDetector finds dwell episodes: stretches where the unit stayed
// within a small radius for at least the minimum dwell duration.
type StationaryDetector struct {
	cfg Config
}

func NewStationaryDetector(cfg Config) *StationaryDetector {
	return &StationaryDetector{cfg: cfg.withDefaults()}
}

func (d *StationaryDetector) Type() PatternType { return PatternStationary }

func (d *StationaryDetector) Detect(t Track) []Pattern {
	pts := t.Points
	if len(pts) < 2 {
		return nil
	}
	var out []Pattern
	i := 0
	for i < len(pts)-1 {
		j := i + 1
		// Grow the window while every point stays within the dwell radius
		// of the window centroid.
		for j < len(pts) && maxRadiusM(pts[i:j+1]) <= d.cfg.StationaryRadiusM {
			j++
		}
		win := pts[i:j]
		dur := win[len(win)-1].T.Sub(win[0].T)
		if dur >= d.cfg.MinDwell {
			cLat, cLng := centroidOf(win)
			mean, _ := radiusStats(win)
			out = append(out, Pattern{
				Type:        PatternStationary,
				UnitID:      t.UnitID,
				Start:       win[0].T,
				End:         win[len(win)-1].T,
				Confidence:  clamp01(1 - mean/d.cfg.StationaryRadiusM*0.5),
				CentroidLat: cLat,
				CentroidLng: cLng,
				Metrics: map[string]float64{
					"dwellSec":    dur.Seconds(),
					"meanRadiusM": mean,
					"points":      float64(len(win)),
				},
				Detail: fmt.Sprintf("stationary for %s within %.0fm", dur.Truncate(1e9), d.cfg.StationaryRadiusM),
			})
			i = j
			continue
		}
		i++
	}
	return out
}
