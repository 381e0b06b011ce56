// Package geo provides the great-circle helpers used by the position
// providers: bounding boxes, distances, bearings and dead reckoning.
package geo

import (
	"fmt"
	"math"
)

const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the Earth's radius in kilometers (WGS84 mean radius)
	EarthRadiusKm = 6371.0

	// KmPerNauticalMile is the length of one nautical mile in kilometers
	KmPerNauticalMile = 1.852
)

// Point is a position on Earth's surface in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the point lies within the legal coordinate ranges.
func (p Point) Valid() bool {
	return ValidLatitude(p.Latitude) && ValidLongitude(p.Longitude)
}

// ValidLatitude reports whether lat is finite and within [-90, 90].
func ValidLatitude(lat float64) bool {
	return !math.IsNaN(lat) && lat >= -90 && lat <= 90
}

// ValidLongitude reports whether lon is finite and within [-180, 180].
func ValidLongitude(lon float64) bool {
	return !math.IsNaN(lon) && lon >= -180 && lon <= 180
}

// Bounds is a geographic bounding box. Boxes that cross the antimeridian
// are not supported; West must be less than or equal to East.
type Bounds struct {
	North float64
	South float64
	West  float64
	East  float64
}

// Validate checks the box for inverted or out-of-range edges.
func (b Bounds) Validate() error {
	if !ValidLatitude(b.North) || !ValidLatitude(b.South) {
		return fmt.Errorf("bounds latitude out of range: north=%v south=%v", b.North, b.South)
	}
	if !ValidLongitude(b.West) || !ValidLongitude(b.East) {
		return fmt.Errorf("bounds longitude out of range: west=%v east=%v", b.West, b.East)
	}
	if b.North < b.South {
		return fmt.Errorf("bounds north (%v) is below south (%v)", b.North, b.South)
	}
	if b.East < b.West {
		return fmt.Errorf("bounds east (%v) is west of west (%v)", b.East, b.West)
	}
	return nil
}

// Contains reports whether p lies inside the box, edges included.
func (b Bounds) Contains(p Point) bool {
	return p.Latitude <= b.North && p.Latitude >= b.South &&
		p.Longitude >= b.West && p.Longitude <= b.East
}

// String encodes the box the way providers expect it: "N,S,W,E".
func (b Bounds) String() string {
	return fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", b.North, b.South, b.West, b.East)
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Point {
	return Point{
		Latitude:  (b.North + b.South) / 2,
		Longitude: (b.West + b.East) / 2,
	}
}

// RadiusNM returns the distance from the center to the farthest corner,
// the smallest circle around the center that covers the whole box.
func (b Bounds) RadiusNM() float64 {
	c := b.Center()
	corners := []Point{
		{b.North, b.West}, {b.North, b.East},
		{b.South, b.West}, {b.South, b.East},
	}
	var r float64
	for _, p := range corners {
		if d := DistanceNauticalMiles(c, p); d > r {
			r = d
		}
	}
	return r
}

// NormalizeHeading maps any angle into [0, 360).
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360.0)
	if h < 0 {
		h += 360.0
	}
	// math.Mod(-0.0000001, 360) + 360 rounds to 360
	if h >= 360.0 {
		h = 0
	}
	return h
}

// Bearing calculates the initial great-circle bearing from one point to
// another, in degrees within [0, 360).
func Bearing(from, to Point) float64 {
	lat1 := from.Latitude * DegreesToRadians
	lon1 := from.Longitude * DegreesToRadians
	lat2 := to.Latitude * DegreesToRadians
	lon2 := to.Longitude * DegreesToRadians

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return NormalizeHeading(math.Atan2(y, x) * RadiansToDegrees)
}

// DistanceNauticalMiles calculates the great-circle distance between two
// points using the Haversine formula.
func DistanceNauticalMiles(from, to Point) float64 {
	lat1 := from.Latitude * DegreesToRadians
	lon1 := from.Longitude * DegreesToRadians
	lat2 := to.Latitude * DegreesToRadians
	lon2 := to.Longitude * DegreesToRadians

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c / KmPerNauticalMile
}

// Destination returns the point reached by travelling distanceNM along
// the great circle starting at from with the given initial bearing.
func Destination(from Point, bearingDeg, distanceNM float64) Point {
	lat := from.Latitude * DegreesToRadians
	lon := from.Longitude * DegreesToRadians
	brg := bearingDeg * DegreesToRadians
	d := distanceNM * KmPerNauticalMile / EarthRadiusKm

	// lat2 = asin(sin(lat1)*cos(d) + cos(lat1)*sin(d)*cos(brg))
	lat2 := math.Asin(math.Sin(lat)*math.Cos(d) + math.Cos(lat)*math.Sin(d)*math.Cos(brg))
	// lon2 = lon1 + atan2(sin(brg)*sin(d)*cos(lat1), cos(d)-sin(lat1)*sin(lat2))
	lon2 := lon + math.Atan2(
		math.Sin(brg)*math.Sin(d)*math.Cos(lat),
		math.Cos(d)-math.Sin(lat)*math.Sin(lat2),
	)

	out := Point{Latitude: lat2 * RadiansToDegrees, Longitude: lon2 * RadiansToDegrees}
	if out.Longitude > 180.0 {
		out.Longitude -= 360.0
	} else if out.Longitude < -180.0 {
		out.Longitude += 360.0
	}
	return out
}

// Interpolate returns the point a fraction f of the way from a to b along
// the great circle. f is clamped to [0, 1].
func Interpolate(a, b Point, f float64) Point {
	if f <= 0 {
		return a
	}
	if f >= 1 {
		return b
	}
	total := DistanceNauticalMiles(a, b)
	if total == 0 {
		return a
	}
	return Destination(a, Bearing(a, b), total*f)
}
