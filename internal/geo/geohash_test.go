package geo

import "testing"

// TestEncodeGeohash_KnownValues verifies the encoder against independently
// computed geohashes.
func TestEncodeGeohash_KnownValues(t *testing.T) {
	tests := []struct {
		name      string
		lat, lng  float64
		precision int
		want      string
	}{
		{name: "seattle downtown", lat: 47.6062, lng: -122.3321, precision: 7, want: "c23nb62"},
		{name: "greenwich", lat: 51.4779, lng: 0.0015, precision: 6, want: "u10hb5"},
		{name: "origin", lat: 0, lng: 0, precision: 5, want: "7zzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeGeohash(tt.lat, tt.lng, tt.precision); got != tt.want {
				t.Errorf("EncodeGeohash(%f, %f, %d) = %q, want %q",
					tt.lat, tt.lng, tt.precision, got, tt.want)
			}
		})
	}
}

// TestEncodeGeohash_PrecisionFallback verifies that a non-positive precision
// falls back to KeyPrecision.
func TestEncodeGeohash_PrecisionFallback(t *testing.T) {
	got := EncodeGeohash(47.6062, -122.3321, 0)
	if len(got) != KeyPrecision {
		t.Errorf("fallback key length = %d, want %d", len(got), KeyPrecision)
	}
}

// TestUniquenessKey_Deterministic verifies that the key depends only on the
// center coordinate: the same center always produces the same key.
func TestUniquenessKey_Deterministic(t *testing.T) {
	center := Point{Lat: 47.6062, Lng: -122.3321}

	first := UniquenessKey(center)
	second := UniquenessKey(center)

	if first != second {
		t.Errorf("keys differ for identical center: %q vs %q", first, second)
	}
	if len(first) != KeyPrecision {
		t.Errorf("key length = %d, want %d", len(first), KeyPrecision)
	}
	if !ValidKey(first) {
		t.Errorf("key %q is not a valid geohash", first)
	}
}

// TestUniquenessKey_NearbyCentersShareKey verifies that centers a few meters
// apart (jitter between attempts at the same loop) land in the same cell.
func TestUniquenessKey_NearbyCentersShareKey(t *testing.T) {
	a := UniquenessKey(Point{Lat: 47.60620, Lng: -122.33210})
	b := UniquenessKey(Point{Lat: 47.60622, Lng: -122.33212})

	if a != b {
		t.Errorf("nearby centers produced distinct keys: %q vs %q", a, b)
	}
}

// TestUniquenessKey_DistantCentersDiffer verifies that clearly separate
// locations never share a key.
func TestUniquenessKey_DistantCentersDiffer(t *testing.T) {
	a := UniquenessKey(Point{Lat: 47.6062, Lng: -122.3321})
	b := UniquenessKey(Point{Lat: 47.6262, Lng: -122.3021})

	if a == b {
		t.Errorf("distant centers share key %q", a)
	}
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "valid lowercase", input: "c23nb62", want: true},
		{name: "valid uppercase normalized", input: "C23NB62", want: true},
		{name: "empty", input: "", want: false},
		{name: "excluded letter a", input: "c23ab62", want: false},
		{name: "excluded letter i", input: "ci3nb62", want: false},
		{name: "punctuation", input: "c23-b62", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidKey(tt.input); got != tt.want {
				t.Errorf("ValidKey(%q) = %t, want %t", tt.input, got, tt.want)
			}
		})
	}
}
