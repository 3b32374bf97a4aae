package opt

import "reliefops/internal/geo"

// PathPoint is a bare coordinate for standalone path improvement, used by
// the analytics suggestion builder on observed tracks.
type PathPoint struct {
	Lat float64
	Lng float64
}

// ImprovePath2Opt applies 2-opt to an open path and returns the improved
// visit order (indices into points) together with before/after distances.
func ImprovePath2Opt(points []PathPoint, order []int, iterations int) ([]int, float64, float64) {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), order...)
	before := pathLenM(points, best)
	bestDist := before
	n := len(order)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-2; i++ {
			for k := i + 1; k < n-1; k++ {
				cand := reverseSegment(best, i, k)
				if d := pathLenM(points, cand); d+1e-3 < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best, before, bestDist
}

func reverseSegment(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

func pathLenM(points []PathPoint, order []int) float64 {
	total := 0.0
	for i := 0; i < len(order)-1; i++ {
		a := points[order[i]]
		b := points[order[i+1]]
		total += geo.HaversineM(a.Lat, a.Lng, b.Lat, b.Lng)
	}
	return total
}
