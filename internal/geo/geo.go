// Package geo provides the distance and travel-time estimator used by the
// route optimizer and the scheduling assistant.
package geo

import (
	"math"
	"time"
)

// EarthRadiusMiles is the sphere radius used by the haversine computation.
const EarthRadiusMiles = 3956.0

// DefaultSpeedMPH models urban driving conditions.
const DefaultSpeedMPH = 35.0

// Distance returns the great-circle distance in miles between two WGS84
// points given in degrees. Out-of-range inputs are not validated; callers
// are expected to check coordinate ranges before calling.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Asin(math.Sqrt(a))
	return EarthRadiusMiles * c
}

// TravelTime estimates drive time for a distance at the given average speed.
// Non-positive speeds fall back to DefaultSpeedMPH.
func TravelTime(miles, avgSpeedMPH float64) time.Duration {
	if avgSpeedMPH <= 0 {
		avgSpeedMPH = DefaultSpeedMPH
	}
	return time.Duration(miles / avgSpeedMPH * float64(time.Hour))
}
