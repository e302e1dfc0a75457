// Package geo provides geospatial primitives for session paths and
// territories: great-circle distance, compass direction, and axis-aligned
// bounding boxes with an overlap test.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used for haversine distance.
const earthRadiusMeters = 6371000.0

// Point represents a geographic coordinate with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMeters returns the great-circle distance between two points in
// meters, computed with the haversine formula.
func DistanceMeters(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Direction is one of the 8 compass octants.
type Direction string

// Compass octants in clockwise order starting at north.
const (
	North     Direction = "N"
	Northeast Direction = "NE"
	East      Direction = "E"
	Southeast Direction = "SE"
	South     Direction = "S"
	Southwest Direction = "SW"
	West      Direction = "W"
	Northwest Direction = "NW"
)

// octants indexes compass directions by round(bearing/45) mod 8.
var octants = [8]Direction{North, Northeast, East, Southeast, South, Southwest, West, Northwest}

// BearingDegrees returns the initial bearing from one point to another in
// degrees, normalized to [0, 360).
func BearingDegrees(from, to Point) float64 {
	latA := from.Lat * math.Pi / 180
	latB := to.Lat * math.Pi / 180
	dLng := (to.Lng - from.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(latB)
	x := math.Cos(latA)*math.Sin(latB) - math.Sin(latA)*math.Cos(latB)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// BearingDirection returns the compass octant from one point to another.
// The bearing is rounded to the nearest 45-degree octant; negative angles
// wrap around through the modulo.
func BearingDirection(from, to Point) Direction {
	bearing := BearingDegrees(from, to)
	idx := int(math.Round(bearing/45)) % 8
	if idx < 0 {
		idx += 8
	}
	return octants[idx]
}

// Bounds is the axis-aligned envelope of a set of points.
type Bounds struct {
	North  float64 `json:"north"`
	South  float64 `json:"south"`
	East   float64 `json:"east"`
	West   float64 `json:"west"`
	Center Point   `json:"center"`
}

// BoundsFromPoints computes the envelope and centroid of the given points.
// Returns the zero Bounds when points is empty.
func BoundsFromPoints(points []Point) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}

	b := Bounds{
		North: points[0].Lat,
		South: points[0].Lat,
		East:  points[0].Lng,
		West:  points[0].Lng,
	}
	var sumLat, sumLng float64
	for _, p := range points {
		b.North = math.Max(b.North, p.Lat)
		b.South = math.Min(b.South, p.Lat)
		b.East = math.Max(b.East, p.Lng)
		b.West = math.Min(b.West, p.Lng)
		sumLat += p.Lat
		sumLng += p.Lng
	}
	b.Center = Point{
		Lat: sumLat / float64(len(points)),
		Lng: sumLng / float64(len(points)),
	}
	return b
}

// Overlaps reports whether two bounding boxes intersect. Boundaries are
// inclusive: boxes that merely touch along an edge count as overlapping.
// The inclusive rule errs toward conflict when two territories abut, which
// is the safe direction for uniqueness checks.
func (b Bounds) Overlaps(other Bounds) bool {
	if b.East < other.West || other.East < b.West {
		return false
	}
	if b.North < other.South || other.North < b.South {
		return false
	}
	return true
}

// Contains reports whether the point lies inside the bounds, edges inclusive.
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.South && p.Lat <= b.North && p.Lng >= b.West && p.Lng <= b.East
}
