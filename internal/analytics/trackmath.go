package analytics

import (
	"math"

	"reliefops/internal/geo"
)

// pathLenM sums the great-circle distances along consecutive points.
func pathLenM(pts []TrackPoint) float64 {
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += geo.HaversineM(pts[i-1].Lat, pts[i-1].Lng, pts[i].Lat, pts[i].Lng)
	}
	return total
}

// displacementM is the straight-line distance between first and last point.
func displacementM(pts []TrackPoint) float64 {
	if len(pts) < 2 {
		return 0
	}
	a, b := pts[0], pts[len(pts)-1]
	return geo.HaversineM(a.Lat, a.Lng, b.Lat, b.Lng)
}

// headings returns the bearing of each consecutive segment, skipping
// segments shorter than minSegM which carry no directional signal.
func headings(pts []TrackPoint, minSegM float64) []float64 {
	var out []float64
	for i := 1; i < len(pts); i++ {
		if geo.HaversineM(pts[i-1].Lat, pts[i-1].Lng, pts[i].Lat, pts[i].Lng) < minSegM {
			continue
		}
		out = append(out, geo.BearingDeg(pts[i-1].Lat, pts[i-1].Lng, pts[i].Lat, pts[i].Lng))
	}
	return out
}

// circularStd returns the circular standard deviation of headings, degrees.
func circularStd(degs []float64) float64 {
	if len(degs) == 0 {
		return 0
	}
	var sx, sy float64
	for _, d := range degs {
		r := d * math.Pi / 180
		sx += math.Cos(r)
		sy += math.Sin(r)
	}
	n := float64(len(degs))
	rr := math.Sqrt(sx*sx+sy*sy) / n
	if rr >= 1 {
		return 0
	}
	return math.Sqrt(-2*math.Log(rr)) * 180 / math.Pi
}

// centroidOf returns the centroid of the window.
func centroidOf(pts []TrackPoint) (float64, float64) {
	lats := make([]float64, len(pts))
	lngs := make([]float64, len(pts))
	for i, p := range pts {
		lats[i], lngs[i] = p.Lat, p.Lng
	}
	return geo.Centroid(lats, lngs)
}

// radiusStats returns the mean distance from centroid and its coefficient
// of variation (std/mean) over the window.
func radiusStats(pts []TrackPoint) (mean, cv float64) {
	if len(pts) == 0 {
		return 0, 0
	}
	cLat, cLng := centroidOf(pts)
	ds := make([]float64, len(pts))
	var sum float64
	for i, p := range pts {
		ds[i] = geo.HaversineM(cLat, cLng, p.Lat, p.Lng)
		sum += ds[i]
	}
	mean = sum / float64(len(ds))
	if mean == 0 {
		return 0, 0
	}
	var sq float64
	for _, d := range ds {
		sq += (d - mean) * (d - mean)
	}
	cv = math.Sqrt(sq/float64(len(ds))) / mean
	return mean, cv
}

// maxRadiusM is the largest distance from the window centroid.
func maxRadiusM(pts []TrackPoint) float64 {
	cLat, cLng := centroidOf(pts)
	maxD := 0.0
	for _, p := range pts {
		if d := geo.HaversineM(cLat, cLng, p.Lat, p.Lng); d > maxD {
			maxD = d
		}
	}
	return maxD
}

// speedKph returns the speed between two fixes, or -1 when dt <= 0.
func speedKph(a, b TrackPoint) float64 {
	dt := b.T.Sub(a.T).Seconds()
	if dt <= 0 {
		return -1
	}
	return geo.HaversineM(a.Lat, a.Lng, b.Lat, b.Lng) / dt * 3.6
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
