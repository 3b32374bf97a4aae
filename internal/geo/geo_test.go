package geo

import (
	"math"
	"testing"
)

func TestHaversineKnownDistance(t *testing.T) {
	// Paris -> London is roughly 344 km
	d := HaversineM(48.8566, 2.3522, 51.5074, -0.1278)
	if d < 330000 || d > 350000 {
		t.Fatalf("paris-london: got %.0f m", d)
	}
	if HaversineM(10, 20, 10, 20) != 0 {
		t.Fatalf("identical points must be 0")
	}
}

func TestBearingCardinal(t *testing.T) {
	if b := BearingDeg(0, 0, 1, 0); math.Abs(b-0) > 0.5 {
		t.Fatalf("north: got %f", b)
	}
	if b := BearingDeg(0, 0, 0, 1); math.Abs(b-90) > 0.5 {
		t.Fatalf("east: got %f", b)
	}
	if b := BearingDeg(1, 0, 0, 0); math.Abs(b-180) > 0.5 {
		t.Fatalf("south: got %f", b)
	}
}

func TestAngleDiff(t *testing.T) {
	if d := AngleDiffDeg(350, 10); math.Abs(d-20) > 1e-9 {
		t.Fatalf("wraparound: got %f", d)
	}
	if d := AngleDiffDeg(10, 350); math.Abs(d+20) > 1e-9 {
		t.Fatalf("negative wraparound: got %f", d)
	}
}

func TestCrossTrack(t *testing.T) {
	// point due east of a north-south segment through the origin
	d := CrossTrackM(0.5, 0.1, 0, 0, 1, 0)
	mpd := 111320.0 * 0.1
	if math.Abs(d-mpd) > mpd*0.02 {
		t.Fatalf("cross-track: got %.0f want about %.0f", d, mpd)
	}
	// point beyond the segment end clamps to endpoint distance
	d2 := CrossTrackM(2, 0, 0, 0, 1, 0)
	want := HaversineM(2, 0, 1, 0)
	if math.Abs(d2-want) > want*0.02 {
		t.Fatalf("clamp: got %.0f want %.0f", d2, want)
	}
}

func TestPointInPolygon(t *testing.T) {
	square := [][2]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}}
	if !PointInPolygon(0.5, 0.5, square) {
		t.Fatalf("center should be inside")
	}
	if PointInPolygon(1.5, 0.5, square) {
		t.Fatalf("outside point reported inside")
	}
	if PointInPolygon(0.5, 0.5, square[:2]) {
		t.Fatalf("degenerate polygon should be false")
	}
}
