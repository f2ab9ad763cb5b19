// Package geofence classifies captured coordinates against a registered
// site. Evaluate is a pure function: the client may run it for an advisory
// preview and the server runs it for the authoritative classification,
// with identical results for identical inputs.
package geofence

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6_371_000.0

// toleranceMeters absorbs floating-point noise at the boundary, so a point
// computed to lie exactly on the radius is still inside.
const toleranceMeters = 1e-6

// Classification is the trust level assigned to a log entry.
type Classification string

const (
	Verified     Classification = "verified"
	Flagged      Classification = "flagged"
	Unverifiable Classification = "unverifiable"
)

// Valid reports whether c is one of the known classifications.
func (c Classification) Valid() bool {
	switch c {
	case Verified, Flagged, Unverifiable:
		return true
	}
	return false
}

// Point is a coordinate in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Site is a circular geofence around a registered location.
type Site struct {
	ID              string
	CenterLatitude  float64
	CenterLongitude float64
	RadiusMeters    float64
}

// Center returns the site's center as a Point.
func (s Site) Center() Point {
	return Point{Latitude: s.CenterLatitude, Longitude: s.CenterLongitude}
}

// WithTolerance returns a copy of s with its radius widened by meters.
// Negative values are ignored.
func (s Site) WithTolerance(meters float64) Site {
	if meters > 0 {
		s.RadiusMeters += meters
	}
	return s
}

// Result is the outcome of Evaluate. DistanceMeters is meaningful only when
// HasDistance is true.
type Result struct {
	Classification Classification
	DistanceMeters float64
	HasDistance    bool
}

// RoundedMeters returns the distance rounded to whole meters for display.
func (r Result) RoundedMeters() int64 {
	return int64(math.Round(r.DistanceMeters))
}

// Distance returns a pointer to the distance, or nil when it is undefined.
// Convenient for nullable storage columns.
func (r Result) Distance() *float64 {
	if !r.HasDistance {
		return nil
	}
	d := r.DistanceMeters
	return &d
}

// Describe renders a short human-readable explanation of the result.
func (r Result) Describe(radiusMeters float64) string {
	switch r.Classification {
	case Verified:
		return fmt.Sprintf("within geofence (%dm from center)", r.RoundedMeters())
	case Flagged:
		return fmt.Sprintf("outside geofence (%dm beyond boundary)", int64(math.Round(r.DistanceMeters-radiusMeters)))
	default:
		return "location unavailable"
	}
}

// Evaluate classifies point against site. A nil point means the location
// could not be captured and yields Unverifiable with no distance.
func Evaluate(point *Point, site Site) Result {
	if point == nil {
		return Result{Classification: Unverifiable}
	}

	d := Distance(*point, site.Center())
	res := Result{DistanceMeters: d, HasDistance: true, Classification: Flagged}
	if d <= site.RadiusMeters+toleranceMeters {
		res.Classification = Verified
	}
	return res
}

// Distance returns the haversine great-circle distance between a and b in
// meters.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Min(1, math.Sqrt(h)))

	return EarthRadiusMeters * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ValidPoint reports whether lat/lon are inside the WGS84 ranges.
func ValidPoint(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 &&
		!math.IsNaN(lat) && !math.IsNaN(lon)
}

// PointFrom builds a Point from nullable coordinates. It returns nil unless
// both are present.
func PointFrom(lat, lon *float64) *Point {
	if lat == nil || lon == nil {
		return nil
	}
	return &Point{Latitude: *lat, Longitude: *lon}
}
