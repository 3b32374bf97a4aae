// Package geo holds the spherical-earth math shared by the optimizer,
// the analytics detectors, and geofence containment checks.
package geo

import "math"

const earthRadiusM = 6371000.0

// HaversineM returns the great-circle distance in meters.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// BearingDeg returns the initial bearing from point 1 to point 2 in [0,360).
func BearingDeg(lat1, lng1, lat2, lng2 float64) float64 {
	f1 := lat1 * math.Pi / 180
	f2 := lat2 * math.Pi / 180
	dl := (lng2 - lng1) * math.Pi / 180
	y := math.Sin(dl) * math.Cos(f2)
	x := math.Cos(f1)*math.Sin(f2) - math.Sin(f1)*math.Cos(f2)*math.Cos(dl)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// AngleDiffDeg returns the signed smallest difference b-a in (-180,180].
func AngleDiffDeg(a, b float64) float64 {
	d := math.Mod(b-a, 360)
	if d > 180 {
		d -= 360
	}
	if d <= -180 {
		d += 360
	}
	return d
}

// CrossTrackM returns the perpendicular distance in meters from point p to
// the great-circle segment (a, b), clamped to the segment endpoints.
func CrossTrackM(pLat, pLng, aLat, aLng, bLat, bLng float64) float64 {
	segLen := HaversineM(aLat, aLng, bLat, bLng)
	if segLen < 1e-6 {
		return HaversineM(pLat, pLng, aLat, aLng)
	}
	d13 := HaversineM(aLat, aLng, pLat, pLng) / earthRadiusM
	t13 := BearingDeg(aLat, aLng, pLat, pLng) * math.Pi / 180
	t12 := BearingDeg(aLat, aLng, bLat, bLng) * math.Pi / 180
	xt := math.Asin(math.Sin(d13) * math.Sin(t13-t12))
	// along-track distance decides whether the foot falls inside the segment
	at := math.Acos(math.Cos(d13)/math.Cos(xt)) * earthRadiusM
	if at < 0 {
		return HaversineM(pLat, pLng, aLat, aLng)
	}
	if at > segLen {
		return HaversineM(pLat, pLng, bLat, bLng)
	}
	return math.Abs(xt) * earthRadiusM
}

// Centroid returns the arithmetic centroid of the points. Adequate for
// the small extents handled here; no antimeridian handling.
func Centroid(lats, lngs []float64) (float64, float64) {
	if len(lats) == 0 {
		return 0, 0
	}
	var sLat, sLng float64
	for i := range lats {
		sLat += lats[i]
		sLng += lngs[i]
	}
	n := float64(len(lats))
	return sLat / n, sLng / n
}

// PointInPolygon reports whether (lat,lng) lies inside the polygon using
// even-odd ray casting in lat/lng space. Vertices need not be closed.
func PointInPolygon(lat, lng float64, poly [][2]float64) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		yi, xi := poly[i][0], poly[i][1]
		yj, xj := poly[j][0], poly[j][1]
		if (yi > lat) != (yj > lat) &&
			lng < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// MetersPerDegree returns approximate meter lengths of one degree of
// latitude and longitude at the given latitude.
func MetersPerDegree(lat float64) (mLat, mLng float64) {
	mLat = 111132.0
	mLng = 111320.0 * math.Cos(lat*math.Pi/180)
	return
}
