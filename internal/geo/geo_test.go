package geo

import (
	"math"
	"testing"
)

// TestDistanceMeters_KnownDistance verifies haversine distance against a
// surveyed reference distance (Seattle downtown to Space Needle, ~2 km scale).
func TestDistanceMeters_KnownDistance(t *testing.T) {
	a := Point{Lat: 47.6062, Lng: -122.3321}
	b := Point{Lat: 47.6205, Lng: -122.3493}

	got := DistanceMeters(a, b)

	// Reference value ~2050 m; allow 1% tolerance for radius choice.
	if got < 2000 || got > 2100 {
		t.Errorf("DistanceMeters = %.1f, want ~2050", got)
	}
}

// TestDistanceMeters_ZeroForSamePoint verifies that the distance from a point
// to itself is zero.
func TestDistanceMeters_ZeroForSamePoint(t *testing.T) {
	p := Point{Lat: 47.6062, Lng: -122.3321}
	if got := DistanceMeters(p, p); got != 0 {
		t.Errorf("DistanceMeters(p, p) = %f, want 0", got)
	}
}

// TestDistanceMeters_Symmetric verifies distance is direction-independent.
func TestDistanceMeters_Symmetric(t *testing.T) {
	a := Point{Lat: 47.6062, Lng: -122.3321}
	b := Point{Lat: 47.6100, Lng: -122.3400}

	ab := DistanceMeters(a, b)
	ba := DistanceMeters(b, a)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", ab, ba)
	}
}

// TestDistanceMeters_SmallDisplacement verifies meter-scale accuracy: 0.001
// degrees of latitude is ~111 m everywhere.
func TestDistanceMeters_SmallDisplacement(t *testing.T) {
	a := Point{Lat: 47.6062, Lng: -122.3321}
	b := Point{Lat: 47.6072, Lng: -122.3321}

	got := DistanceMeters(a, b)
	if got < 109 || got > 113 {
		t.Errorf("DistanceMeters = %.2f, want ~111", got)
	}
}

func TestBearingDirection(t *testing.T) {
	origin := Point{Lat: 47.6062, Lng: -122.3321}

	tests := []struct {
		name string
		to   Point
		want Direction
	}{
		{name: "due north", to: Point{Lat: 47.6162, Lng: -122.3321}, want: North},
		{name: "due south", to: Point{Lat: 47.5962, Lng: -122.3321}, want: South},
		{name: "due east", to: Point{Lat: 47.6062, Lng: -122.3221}, want: East},
		{name: "due west", to: Point{Lat: 47.6062, Lng: -122.3421}, want: West},
		{name: "northeast", to: Point{Lat: 47.6132, Lng: -122.3217}, want: Northeast},
		{name: "southwest", to: Point{Lat: 47.5992, Lng: -122.3425}, want: Southwest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BearingDirection(origin, tt.to); got != tt.want {
				t.Errorf("BearingDirection = %s, want %s (bearing %.1f)",
					got, tt.want, BearingDegrees(origin, tt.to))
			}
		})
	}
}

// TestBearingDirection_NorthWraparound verifies that bearings just west of
// north (e.g. 350 degrees) round back to north rather than an invalid octant.
func TestBearingDirection_NorthWraparound(t *testing.T) {
	origin := Point{Lat: 47.6062, Lng: -122.3321}
	// Slightly west of due north: bearing ~350 degrees.
	to := Point{Lat: 47.6162, Lng: -122.3347}

	if got := BearingDirection(origin, to); got != North {
		t.Errorf("BearingDirection = %s, want N (bearing %.1f)", got, BearingDegrees(origin, to))
	}
}

func TestBoundsFromPoints(t *testing.T) {
	points := []Point{
		{Lat: 47.60, Lng: -122.34},
		{Lat: 47.62, Lng: -122.30},
		{Lat: 47.61, Lng: -122.32},
	}

	b := BoundsFromPoints(points)

	if b.North != 47.62 || b.South != 47.60 {
		t.Errorf("lat envelope = [%f, %f], want [47.60, 47.62]", b.South, b.North)
	}
	if b.East != -122.30 || b.West != -122.34 {
		t.Errorf("lng envelope = [%f, %f], want [-122.34, -122.30]", b.West, b.East)
	}
	if math.Abs(b.Center.Lat-47.61) > 1e-9 || math.Abs(b.Center.Lng-(-122.32)) > 1e-9 {
		t.Errorf("center = %+v, want (47.61, -122.32)", b.Center)
	}
}

// TestBoundsFromPoints_Empty verifies the zero value is returned for no input.
func TestBoundsFromPoints_Empty(t *testing.T) {
	if b := BoundsFromPoints(nil); b != (Bounds{}) {
		t.Errorf("BoundsFromPoints(nil) = %+v, want zero", b)
	}
}

func TestBoundsOverlaps(t *testing.T) {
	base := Bounds{North: 47.62, South: 47.60, East: -122.30, West: -122.34}

	tests := []struct {
		name  string
		other Bounds
		want  bool
	}{
		{name: "self overlap", other: base, want: true},
		{
			name:  "partial overlap",
			other: Bounds{North: 47.63, South: 47.61, East: -122.29, West: -122.32},
			want:  true,
		},
		{
			name:  "contained",
			other: Bounds{North: 47.615, South: 47.605, East: -122.31, West: -122.33},
			want:  true,
		},
		{
			name:  "disjoint east",
			other: Bounds{North: 47.62, South: 47.60, East: -122.20, West: -122.25},
			want:  false,
		},
		{
			name:  "disjoint north",
			other: Bounds{North: 47.70, South: 47.65, East: -122.30, West: -122.34},
			want:  false,
		},
		{
			// Touching edges count as overlap (inclusive boundary rule).
			name:  "shared edge",
			other: Bounds{North: 47.62, South: 47.60, East: -122.26, West: -122.30},
			want:  true,
		},
		{
			name:  "shared corner",
			other: Bounds{North: 47.64, South: 47.62, East: -122.26, West: -122.30},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Overlaps(tt.other); got != tt.want {
				t.Errorf("Overlaps = %t, want %t", got, tt.want)
			}
			// Overlap must be symmetric.
			if got := tt.other.Overlaps(base); got != tt.want {
				t.Errorf("reverse Overlaps = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestBoundsContains(t *testing.T) {
	b := Bounds{North: 47.62, South: 47.60, East: -122.30, West: -122.34}

	if !b.Contains(Point{Lat: 47.61, Lng: -122.32}) {
		t.Error("interior point not contained")
	}
	if !b.Contains(Point{Lat: 47.62, Lng: -122.30}) {
		t.Error("corner point not contained (edges are inclusive)")
	}
	if b.Contains(Point{Lat: 47.63, Lng: -122.32}) {
		t.Error("exterior point contained")
	}
}
