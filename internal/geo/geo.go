// Package geo implements great-circle distance math for capture
// coordinates. All inputs are WGS84 degrees, all distances meters.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean spherical Earth radius.
const EarthRadiusMeters = 6371000.0

// ErrInvalidCoordinate reports an out-of-range latitude or longitude.
type ErrInvalidCoordinate struct {
	Lat float64
	Lon float64
}

func (e *ErrInvalidCoordinate) Error() string {
	return fmt.Sprintf("invalid coordinate: lat=%v lon=%v", e.Lat, e.Lon)
}

// Validate rejects coordinates outside the valid WGS84 range or NaN.
func Validate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) ||
		lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return &ErrInvalidCoordinate{Lat: lat, Lon: lon}
	}
	return nil
}

// DistanceMeters returns the haversine distance between two points.
// Symmetric, non-negative, and zero for identical coordinates.
func DistanceMeters(latA, lonA, latB, lonB float64) float64 {
	phiA := radians(latA)
	phiB := radians(latB)
	dPhi := radians(latB - latA)
	dLambda := radians(lonB - lonA)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phiA)*math.Cos(phiB)*sinLambda*sinLambda

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(a))
}

// WithinRadius reports whether a distance falls inside the proximity
// radius. The boundary itself counts as inside.
func WithinRadius(distanceMeters, radiusMeters float64) bool {
	return distanceMeters <= radiusMeters
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
