// Package geo provides great-circle distance, bearing and driving-time
// estimates plus postcode helpers and a memoising geocoder.
package geo

import (
	"math"

	"github.com/kilianp07/fieldalloc/core/model"
)

const (
	earthRadiusKm = 6371.0

	// AverageSpeedKmh is the assumed urban driving speed.
	AverageSpeedKmh = 40.0
	// RoadFactor converts straight-line distance into road distance.
	RoadFactor = 1.3
)

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(a, b model.Coordinates) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// DrivingMinutes estimates drive time for a straight-line distance.
func DrivingMinutes(km float64) int {
	if km <= 0 {
		return 0
	}
	return int(math.Ceil(km / AverageSpeedKmh * 60 * RoadFactor))
}

// Bearing returns the initial bearing from a to b in degrees [0,360).
func Bearing(a, b model.Coordinates) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	return math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
}

// BearingDiff returns the smallest angle between two bearings, in [0,180].
func BearingDiff(b1, b2 float64) float64 {
	d := math.Abs(math.Mod(b1-b2, 360))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Alignment maps a bearing difference to [0,1], 1 meaning same direction.
func Alignment(b1, b2 float64) float64 {
	return 1 - BearingDiff(b1, b2)/180
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
