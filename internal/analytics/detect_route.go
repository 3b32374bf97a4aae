package analytics

import (
	"fmt"

	"reliefops/internal/geo"
)

// RouteDetector matches a track against a known corridor of waypoints,
// such as a supply run between staging areas. A match requires the fixes
// to stay inside the corridor and to progress forward along it.
type RouteDetector struct {
	cfg       Config
	routeID   string
	waypoints []Waypoint
}

func NewRouteDetector(cfg Config, routeID string, waypoints []Waypoint) *RouteDetector {
	return &RouteDetector{cfg: cfg.withDefaults(), routeID: routeID, waypoints: waypoints}
}

func (d *RouteDetector) Type() PatternType { return PatternRoute }

const (
	routeMinInsideFrac  = 0.8
	routeMinForwardFrac = 0.7
)

func (d *RouteDetector) Detect(t Track) []Pattern {
	pts := t.Points
	if len(pts) < d.cfg.MinPatternPoints || len(d.waypoints) < 2 {
		return nil
	}
	inside := 0
	forward, steps := 0, 0
	prevSeg := -1
	var sumDev float64
	for _, p := range pts {
		seg, dev := nearestSegment(d.waypoints, p.Lat, p.Lng)
		sumDev += dev
		if dev <= d.cfg.RouteCorridorM {
			inside++
		}
		if prevSeg >= 0 {
			steps++
			if seg >= prevSeg {
				forward++
			}
		}
		prevSeg = seg
	}
	insideFrac := float64(inside) / float64(len(pts))
	forwardFrac := 1.0
	if steps > 0 {
		forwardFrac = float64(forward) / float64(steps)
	}
	if insideFrac < routeMinInsideFrac || forwardFrac < routeMinForwardFrac {
		return nil
	}
	cLat, cLng := centroidOf(pts)
	return []Pattern{{
		Type:        PatternRoute,
		UnitID:      t.UnitID,
		Start:       pts[0].T,
		End:         pts[len(pts)-1].T,
		Confidence:  insideFrac*0.6 + forwardFrac*0.4,
		CentroidLat: cLat,
		CentroidLng: cLng,
		Metrics: map[string]float64{
			"insideFrac":     insideFrac,
			"forwardFrac":    forwardFrac,
			"meanDeviationM": sumDev / float64(len(pts)),
			"observedPathM":  pathLenM(pts),
			"corridorPathM":  waypointPathM(d.waypoints),
		},
		Detail: fmt.Sprintf("following route %s, %.0f%% inside corridor", d.routeID, insideFrac*100),
	}}
}

// nearestSegment returns the index of the corridor segment closest to the
// point, and the cross-track distance to it.
func nearestSegment(wps []Waypoint, lat, lng float64) (int, float64) {
	best, bestD := 0, -1.0
	for i := 1; i < len(wps); i++ {
		d := geo.CrossTrackM(lat, lng, wps[i-1].Lat, wps[i-1].Lng, wps[i].Lat, wps[i].Lng)
		if bestD < 0 || d < bestD {
			best, bestD = i-1, d
		}
	}
	return best, bestD
}

func waypointPathM(wps []Waypoint) float64 {
	total := 0.0
	for i := 1; i < len(wps); i++ {
		total += geo.HaversineM(wps[i-1].Lat, wps[i-1].Lng, wps[i].Lat, wps[i].Lng)
	}
	return total
}
