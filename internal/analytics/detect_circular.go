package analytics

import (
	"fmt"
	"math"

	"reliefops/internal/geo"
)

// CircularDetector finds loops and orbits: the heading sweeps through at
// least a near-full turn while the distance to a fixed center stays steady.
type CircularDetector struct {
	cfg Config
}

func NewCircularDetector(cfg Config) *CircularDetector {
	return &CircularDetector{cfg: cfg.withDefaults()}
}

func (d *CircularDetector) Type() PatternType { return PatternCircular }

const (
	circularMinSweepDeg = 330.0
	circularMaxRadiusCV = 0.35
)

func (d *CircularDetector) Detect(t Track) []Pattern {
	pts := t.Points
	if len(pts) < d.cfg.MinPatternPoints {
		return nil
	}
	var out []Pattern
	i := 0
	for i <= len(pts)-d.cfg.MinPatternPoints {
		end, sweep := sweepWindow(pts, i)
		if end < 0 {
			i++
			continue
		}
		win := pts[i : end+1]
		mean, cv := radiusStats(win)
		if cv > circularMaxRadiusCV || mean < 10 {
			i++
			continue
		}
		cLat, cLng := centroidOf(win)
		out = append(out, Pattern{
			Type:        PatternCircular,
			UnitID:      t.UnitID,
			Start:       win[0].T,
			End:         win[len(win)-1].T,
			Confidence:  clamp01(1-cv/circularMaxRadiusCV)*0.6 + clamp01(math.Abs(sweep)/360)*0.4,
			CentroidLat: cLat,
			CentroidLng: cLng,
			Metrics: map[string]float64{
				"radiusM":  mean,
				"radiusCV": cv,
				"sweepDeg": math.Abs(sweep),
			},
			Detail: fmt.Sprintf("circular pattern, radius %.0fm, sweep %.0f deg", mean, math.Abs(sweep)),
		})
		i = end + 1
	}
	return out
}

// sweepWindow accumulates signed heading change from index start until the
// total sweep reaches a near-full turn. Returns the end index, or -1 when
// the track runs out first.
func sweepWindow(pts []TrackPoint, start int) (int, float64) {
	var prev float64
	havePrev := false
	total := 0.0
	for i := start + 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		if geo.HaversineM(a.Lat, a.Lng, b.Lat, b.Lng) < 2 {
			continue
		}
		h := geo.BearingDeg(a.Lat, a.Lng, b.Lat, b.Lng)
		if havePrev {
			total += geo.AngleDiffDeg(prev, h)
			if math.Abs(total) >= circularMinSweepDeg {
				return i, total
			}
		}
		prev, havePrev = h, true
	}
	return -1, total
}
