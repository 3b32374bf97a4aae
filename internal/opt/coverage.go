package opt

import "reliefops/internal/geo"

// CoverageLane is one sweep leg of a boustrophedon search plan.
type CoverageLane struct {
	StartLat, StartLng float64
	EndLat, EndLng     float64
}

// CoveragePlan is a lawn-mower sweep over a bounding box.
type CoveragePlan struct {
	Lanes       []CoverageLane
	SpacingM    float64
	PathLenM    float64
	SweptAreaM2 float64
}

// PlanCoverage generates north-south boustrophedon lanes over the bounding
// box with the given lateral spacing. Lanes alternate direction so the path
// is continuous. spacingM below 1m is clamped.
func PlanCoverage(minLat, minLng, maxLat, maxLng, spacingM float64) CoveragePlan {
	if spacingM < 1 {
		spacingM = 1
	}
	if maxLat < minLat {
		minLat, maxLat = maxLat, minLat
	}
	if maxLng < minLng {
		minLng, maxLng = maxLng, minLng
	}
	midLat := (minLat + maxLat) / 2
	_, mPerDegLng := geo.MetersPerDegree(midLat)
	widthM := (maxLng - minLng) * mPerDegLng
	laneCount := int(widthM/spacingM) + 1

	plan := CoveragePlan{SpacingM: spacingM}
	laneLen := geo.HaversineM(minLat, minLng, maxLat, minLng)
	southToNorth := true
	for i := 0; i < laneCount; i++ {
		lng := minLng + (float64(i)*spacingM)/mPerDegLng
		if lng > maxLng {
			lng = maxLng
		}
		lane := CoverageLane{StartLat: minLat, StartLng: lng, EndLat: maxLat, EndLng: lng}
		if !southToNorth {
			lane.StartLat, lane.EndLat = maxLat, minLat
		}
		plan.Lanes = append(plan.Lanes, lane)
		plan.PathLenM += laneLen
		if i > 0 {
			plan.PathLenM += spacingM // transit between adjacent lanes
		}
		southToNorth = !southToNorth
	}
	plan.SweptAreaM2 = plan.PathLenM * spacingM
	return plan
}
