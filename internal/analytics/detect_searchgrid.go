package analytics

import (
	"fmt"
	"math"

	"reliefops/internal/geo"
)

// SearchGridDetector recognizes systematic sweep searches: parallel legs
// walked in alternating directions with roughly even spacing, the pattern
// a ground team produces when covering an area lane by lane.
type SearchGridDetector struct {
	cfg Config
}

func NewSearchGridDetector(cfg Config) *SearchGridDetector {
	return &SearchGridDetector{cfg: cfg.withDefaults()}
}

func (d *SearchGridDetector) Type() PatternType { return PatternSearchGrid }

const (
	gridMinLegs       = 3
	gridReversalDeg   = 120.0
	gridHeadingTolDeg = 30.0
	gridMaxLegLenCV   = 0.5
	gridMaxSpacingCV  = 0.5
	gridMinLegLengthM = 30.0
	gridLegSmoothSegM = 5.0
)

type legSpan struct {
	start, end int // indexes into the track
	heading    float64
	lengthM    float64
}

func (d *SearchGridDetector) Detect(t Track) []Pattern {
	pts := t.Points
	if len(pts) < d.cfg.MinPatternPoints {
		return nil
	}
	legs := splitLegs(pts)
	if len(legs) < gridMinLegs {
		return nil
	}
	// Find the longest run of legs where each leg reverses the previous one.
	bestStart, bestLen := 0, 1
	runStart := 0
	for i := 1; i < len(legs); i++ {
		diff := math.Abs(geo.AngleDiffDeg(legs[i-1].heading, legs[i].heading))
		if math.Abs(diff-180) > gridHeadingTolDeg {
			runStart = i
			continue
		}
		if i-runStart+1 > bestLen {
			bestStart, bestLen = runStart, i-runStart+1
		}
	}
	if bestLen < gridMinLegs {
		return nil
	}
	run := legs[bestStart : bestStart+bestLen]
	lenCV := legLengthCV(run)
	spacing, spacingCV := legSpacing(pts, run)
	if lenCV > gridMaxLegLenCV || spacingCV > gridMaxSpacingCV || spacing <= 0 {
		return nil
	}
	win := pts[run[0].start : run[len(run)-1].end+1]
	cLat, cLng := centroidOf(win)
	return []Pattern{{
		Type:        PatternSearchGrid,
		UnitID:      t.UnitID,
		Start:       win[0].T,
		End:         win[len(win)-1].T,
		Confidence:  clamp01(1-lenCV/gridMaxLegLenCV)*0.5 + clamp01(1-spacingCV/gridMaxSpacingCV)*0.5,
		CentroidLat: cLat,
		CentroidLng: cLng,
		Metrics: map[string]float64{
			"legs":          float64(len(run)),
			"meanSpacingM":  spacing,
			"spacingCV":     spacingCV,
			"legLengthCV":   lenCV,
			"observedPathM": pathLenM(win),
		},
		Detail: fmt.Sprintf("search sweep of %d legs at ~%.0fm spacing", len(run), spacing),
	}}
}

// splitLegs cuts the track at heading reversals into straight-ish legs.
func splitLegs(pts []TrackPoint) []legSpan {
	var legs []legSpan
	start := 0
	var prevH float64
	haveH := false
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		if geo.HaversineM(a.Lat, a.Lng, b.Lat, b.Lng) < gridLegSmoothSegM {
			continue
		}
		h := geo.BearingDeg(a.Lat, a.Lng, b.Lat, b.Lng)
		if haveH && math.Abs(geo.AngleDiffDeg(prevH, h)) > gridReversalDeg {
			appendLeg(&legs, pts, start, i-1)
			start = i - 1
		}
		prevH, haveH = h, true
	}
	appendLeg(&legs, pts, start, len(pts)-1)
	return legs
}

func appendLeg(legs *[]legSpan, pts []TrackPoint, start, end int) {
	if end <= start {
		return
	}
	length := displacementM(pts[start : end+1])
	if length < gridMinLegLengthM {
		return
	}
	a, b := pts[start], pts[end]
	*legs = append(*legs, legSpan{
		start:   start,
		end:     end,
		heading: geo.BearingDeg(a.Lat, a.Lng, b.Lat, b.Lng),
		lengthM: length,
	})
}

func legLengthCV(legs []legSpan) float64 {
	var sum float64
	for _, l := range legs {
		sum += l.lengthM
	}
	mean := sum / float64(len(legs))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, l := range legs {
		sq += (l.lengthM - mean) * (l.lengthM - mean)
	}
	return math.Sqrt(sq/float64(len(legs))) / mean
}

// legSpacing estimates lane spacing from the cross-track offset of each
// leg's midpoint relative to the previous leg.
func legSpacing(pts []TrackPoint, legs []legSpan) (mean, cv float64) {
	var gaps []float64
	for i := 1; i < len(legs); i++ {
		prev, cur := legs[i-1], legs[i]
		mid := pts[(cur.start+cur.end)/2]
		a, b := pts[prev.start], pts[prev.end]
		gaps = append(gaps, geo.CrossTrackM(mid.Lat, mid.Lng, a.Lat, a.Lng, b.Lat, b.Lng))
	}
	if len(gaps) == 0 {
		return 0, 0
	}
	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean = sum / float64(len(gaps))
	if mean == 0 {
		return 0, 0
	}
	var sq float64
	for _, g := range gaps {
		sq += (g - mean) * (g - mean)
	}
	cv = math.Sqrt(sq/float64(len(gaps))) / mean
	return mean, cv
}
