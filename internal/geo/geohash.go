package geo

import "strings"

// KeyPrecision is the geohash precision used for territory uniqueness keys.
// A precision of 7 characters identifies a cell of roughly 153x153 meters,
// coarse enough that repeated attempts at the same loop land in the same
// cell, fine enough that neighboring loops do not collide.
const KeyPrecision = 7

// keyAlphabet is the geohash base32 alphabet (excludes 'a', 'i', 'l', 'o').
const keyAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// validKeyChars is a lookup set for characters that may appear in a key.
var validKeyChars = func() map[rune]bool {
	m := make(map[rune]bool, len(keyAlphabet))
	for _, c := range keyAlphabet {
		m[c] = true
	}
	return m
}()

// UniquenessKey derives the deduplication key for a territory from its bounds
// center. The key depends only on the rounded coordinate, never on wall-clock
// time, so two attempts at the same loop produce the same key and collide in
// the uniqueness check.
func UniquenessKey(center Point) string {
	return EncodeGeohash(center.Lat, center.Lng, KeyPrecision)
}

// EncodeGeohash encodes latitude and longitude into a geohash string with the
// given precision, using the standard interleaved base32 algorithm. A
// precision below 1 falls back to KeyPrecision.
func EncodeGeohash(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = KeyPrecision
	}

	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	var hash strings.Builder
	hash.Grow(precision)

	bits := 0
	var ch uint

	even := true
	for hash.Len() < precision {
		if even {
			// Longitude
			mid := (lngRange[0] + lngRange[1]) / 2
			if lng > mid {
				ch |= (1 << (4 - bits))
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			// Latitude
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= (1 << (4 - bits))
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}

		even = !even
		bits++

		if bits == 5 {
			hash.WriteByte(keyAlphabet[ch])
			bits = 0
			ch = 0
		}
	}

	return hash.String()
}

// ValidKey reports whether s is a well-formed uniqueness key: non-empty and
// composed only of geohash base32 characters. Input is lowercased before
// validation.
func ValidKey(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range strings.ToLower(s) {
		if !validKeyChars[c] {
			return false
		}
	}
	return true
}
