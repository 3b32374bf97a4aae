package analytics

import "fmt"

// LinearDetector finds near-straight transits: low sinuosity and a tight
// heading spread over a run of consecutive fixes.
type LinearDetector struct {
	cfg Config
}

func NewLinearDetector(cfg Config) *LinearDetector {
	return &LinearDetector{cfg: cfg.withDefaults()}
}

func (d *LinearDetector) Type() PatternType { return PatternLinear }

const (
	linearMaxSinuosity  = 1.15
	linearMaxHeadingStd = 20.0 // degrees
	linearMinLengthM    = 200.0
)

func (d *LinearDetector) Detect(t Track) []Pattern {
	pts := t.Points
	if len(pts) < d.cfg.MinPatternPoints {
		return nil
	}
	var out []Pattern
	i := 0
	for i <= len(pts)-d.cfg.MinPatternPoints {
		j := i + d.cfg.MinPatternPoints
		if !isLinear(pts[i:j]) {
			i++
			continue
		}
		for j < len(pts) && isLinear(pts[i:j+1]) {
			j++
		}
		win := pts[i:j]
		if path := pathLenM(win); path >= linearMinLengthM {
			disp := displacementM(win)
			sin := path / disp
			hs := circularStd(headings(win, 5))
			cLat, cLng := centroidOf(win)
			out = append(out, Pattern{
				Type:        PatternLinear,
				UnitID:      t.UnitID,
				Start:       win[0].T,
				End:         win[len(win)-1].T,
				Confidence:  clamp01((linearMaxSinuosity-sin)/(linearMaxSinuosity-1))*0.5 + clamp01(1-hs/linearMaxHeadingStd)*0.5,
				CentroidLat: cLat,
				CentroidLng: cLng,
				Metrics: map[string]float64{
					"pathM":         path,
					"displacementM": disp,
					"sinuosity":     sin,
					"headingStdDeg": hs,
				},
				Detail: fmt.Sprintf("straight transit of %.0fm, sinuosity %.2f", path, sin),
			})
		}
		i = j
	}
	return out
}

func isLinear(win []TrackPoint) bool {
	disp := displacementM(win)
	if disp < 1 {
		return false
	}
	if pathLenM(win)/disp > linearMaxSinuosity {
		return false
	}
	return circularStd(headings(win, 5)) <= linearMaxHeadingStd
}
