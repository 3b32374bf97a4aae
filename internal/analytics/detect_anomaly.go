package analytics

import "fmt"

// AnomalyDetector flags impossible travel: consecutive fixes whose implied
// speed exceeds what any relief unit can plausibly move at. These usually
// mean a spoofed or badly corrupted position feed.
type AnomalyDetector struct {
	cfg Config
}

func NewAnomalyDetector(cfg Config) *AnomalyDetector {
	return &AnomalyDetector{cfg: cfg.withDefaults()}
}

func (d *AnomalyDetector) Type() PatternType { return PatternAnomaly }

func (d *AnomalyDetector) Detect(t Track) []Pattern {
	pts := t.Points
	var out []Pattern
	for i := 1; i < len(pts); i++ {
		v := speedKph(pts[i-1], pts[i])
		if v < 0 || v <= d.cfg.MaxSpeedKph {
			continue
		}
		out = append(out, Pattern{
			Type:        PatternAnomaly,
			UnitID:      t.UnitID,
			Start:       pts[i-1].T,
			End:         pts[i].T,
			Confidence:  clamp01(v / (d.cfg.MaxSpeedKph * 3)),
			CentroidLat: pts[i].Lat,
			CentroidLng: pts[i].Lng,
			Metrics: map[string]float64{
				"speedKph":    v,
				"maxSpeedKph": d.cfg.MaxSpeedKph,
			},
			Detail: fmt.Sprintf("implied speed %.0f km/h exceeds %.0f km/h limit", v, d.cfg.MaxSpeedKph),
		})
	}
	return out
}
