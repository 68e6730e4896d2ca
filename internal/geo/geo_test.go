package geo

import (
	"math"
	"testing"
)

func TestDistanceZero(t *testing.T) {
	if d := Distance(12.9716, 77.5946, 12.9716, 77.5946); d != 0 {
		t.Fatalf("distance to self = %f, want 0", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := Distance(12.9716, 77.5946, 13.0827, 80.2707)
	b := Distance(13.0827, 80.2707, 12.9716, 77.5946)
	if math.Abs(a-b) > 1e-6 {
		t.Fatalf("asymmetric distance: %f vs %f", a, b)
	}
}

func TestDistanceOneDegreeAtEquator(t *testing.T) {
	// 1 degree of longitude along the equator is ~111.32 km.
	d := Distance(0, 0, 0, 1)
	want := 111320.0
	if math.Abs(d-want)/want > 0.005 {
		t.Fatalf("1 degree at equator = %f m, want %f m within 0.5%%", d, want)
	}
}

func TestDistanceJustOutsideClassroomRadius(t *testing.T) {
	// 0.0009 degrees of longitude at the equator is ~100.2 m, just past a
	// 100 m geofence.
	d := Distance(0, 0, 0, 0.0009)
	if d <= 100 {
		t.Fatalf("distance = %f m, want > 100 m", d)
	}
	if d > 101 {
		t.Fatalf("distance = %f m, want ~100.2 m", d)
	}
}

func TestValidCoordinate(t *testing.T) {
	cases := []struct {
		lat, lng float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{90.01, 0, false},
		{0, -180.5, false},
	}
	for _, tc := range cases {
		if got := ValidCoordinate(tc.lat, tc.lng); got != tc.want {
			t.Fatalf("ValidCoordinate(%f, %f) = %v, want %v", tc.lat, tc.lng, got, tc.want)
		}
	}
}
