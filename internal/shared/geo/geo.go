package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371

// WalkingSpeedKmh is the assumed pace for ETA estimates.
const WalkingSpeedKmh = 5.0

// Coordinate is a WGS84 point. Compared only by numeric proximity.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// DistanceKm returns the great-circle distance between a and b in km.
func DistanceKm(a, b Coordinate) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// PathDistanceKm sums consecutive pairwise distances along path.
func PathDistanceKm(path []Coordinate) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += DistanceKm(path[i-1], path[i])
	}
	return total
}

// WalkingETAMinutes estimates minutes to cover distanceKm on foot.
func WalkingETAMinutes(distanceKm float64) int {
	return int(math.Round(distanceKm / WalkingSpeedKmh * 60))
}

// FormatETA renders minutes as "45m" or "1h 30m" once an hour is reached.
func FormatETA(minutes int) string {
	if minutes >= 60 {
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}

// SpeedKmh converts metres per second to km/h.
func SpeedKmh(metersPerSec float64) float64 {
	return metersPerSec * 3.6
}
