package analytics

import (
	"fmt"
	"time"

	"reliefops/internal/opt"
)

// Suggestion kinds.
const (
	SuggestRespaceSweep = "respace_sweep"
	SuggestReorderRoute = "reorder_route"
	SuggestReposition   = "reposition"
	SuggestStageAnchor  = "stage_anchor"
)

const (
	suggestMinGain      = 0.02
	stageAnchorMinDwell = 30 * time.Minute
)

// Suggest turns detected patterns into operational advice with a projected
// gain. Gains are fractions of the observed effort that the change removes.
func (e *Engine) Suggest(tenantID, unitID string, since time.Time) []Suggestion {
	track := e.history.Snapshot(tenantID, unitID, since)
	if len(track.Points) == 0 {
		return nil
	}
	patterns := e.AnalyzeUnit(tenantID, unitID, since)

	var out []Suggestion
	var dwells []Pattern
	for _, p := range patterns {
		switch p.Type {
		case PatternSearchGrid:
			if s, ok := e.suggestRespace(track, p); ok {
				out = append(out, s)
			}
		case PatternStationary:
			dwells = append(dwells, p)
			if p.Duration() >= stageAnchorMinDwell {
				out = append(out, Suggestion{
					PatternType: PatternStationary,
					UnitID:      unitID,
					Kind:        SuggestStageAnchor,
					Detail:      fmt.Sprintf("unit dwelt %s here, candidate staging anchor", p.Duration().Truncate(time.Minute)),
					Metrics: map[string]float64{
						"dwellSec": p.Duration().Seconds(),
						"lat":      p.CentroidLat,
						"lng":      p.CentroidLng,
					},
				})
			}
		case PatternAnomaly:
			out = append(out, Suggestion{
				PatternType: PatternAnomaly,
				UnitID:      unitID,
				Kind:        SuggestReposition,
				Detail:      "position feed unreliable, verify unit location before tasking",
				Metrics:     p.Metrics,
			})
		}
	}
	if s, ok := suggestReorder(unitID, dwells); ok {
		out = append(out, s)
	}
	return out
}

// suggestRespace compares the observed sweep against an even boustrophedon
// plan over the same area at the configured detection width.
func (e *Engine) suggestRespace(track Track, p Pattern) (Suggestion, bool) {
	observed := p.Metrics["observedPathM"]
	if observed <= 0 {
		return Suggestion{}, false
	}
	minLat, minLng, maxLat, maxLng := trackBounds(track.Points)
	plan := opt.PlanCoverage(minLat, minLng, maxLat, maxLng, e.cfg.SweepDetectWidthM)
	if plan.PathLenM <= 0 || plan.PathLenM >= observed {
		return Suggestion{}, false
	}
	gain := 1 - plan.PathLenM/observed
	if gain < suggestMinGain {
		return Suggestion{}, false
	}
	return Suggestion{
		PatternType:   PatternSearchGrid,
		UnitID:        track.UnitID,
		Kind:          SuggestRespaceSweep,
		Detail:        fmt.Sprintf("even %.0fm lanes cover the same area with %.0f%% less walking", plan.SpacingM, gain*100),
		ProjectedGain: gain,
		Metrics: map[string]float64{
			"observedPathM": observed,
			"plannedPathM":  plan.PathLenM,
			"spacingM":      plan.SpacingM,
			"lanes":         float64(len(plan.Lanes)),
		},
	}, true
}

// suggestReorder checks whether visiting the dwell sites in a different
// order would shorten the leg distance between them.
func suggestReorder(unitID string, dwells []Pattern) (Suggestion, bool) {
	if len(dwells) < 4 {
		return Suggestion{}, false
	}
	points := make([]opt.PathPoint, len(dwells))
	order := make([]int, len(dwells))
	for i, d := range dwells {
		points[i] = opt.PathPoint{Lat: d.CentroidLat, Lng: d.CentroidLng}
		order[i] = i
	}
	_, beforeM, afterM := opt.ImprovePath2Opt(points, order, 200)
	if beforeM <= 0 || afterM >= beforeM {
		return Suggestion{}, false
	}
	gain := (beforeM - afterM) / beforeM
	if gain < suggestMinGain {
		return Suggestion{}, false
	}
	return Suggestion{
		PatternType:   PatternRoute,
		UnitID:        unitID,
		Kind:          SuggestReorderRoute,
		Detail:        fmt.Sprintf("reordering %d stops saves %.0fm of travel", len(dwells), beforeM-afterM),
		ProjectedGain: gain,
		Metrics: map[string]float64{
			"observedM": beforeM,
			"plannedM":  afterM,
			"stops":     float64(len(dwells)),
		},
	}, true
}

func trackBounds(pts []TrackPoint) (minLat, minLng, maxLat, maxLng float64) {
	minLat, minLng = pts[0].Lat, pts[0].Lng
	maxLat, maxLng = minLat, minLng
	for _, p := range pts[1:] {
		if p.Lat < minLat {
			minLat = p.Lat
		}
		if p.Lat > maxLat {
			maxLat = p.Lat
		}
		if p.Lng < minLng {
			minLng = p.Lng
		}
		if p.Lng > maxLng {
			maxLng = p.Lng
		}
	}
	return
}
