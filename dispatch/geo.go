package dispatch

import (
	"math"

	"civicdispatch-be/models"
)

const earthRadiusMeters = 6371000.0

// haversineMeters returns the great-circle distance between two points.
func haversineMeters(a, b models.GeoPoint) float64 {
	lat1 := a.Latitude() * math.Pi / 180
	lat2 := b.Latitude() * math.Pi / 180
	dLat := (b.Latitude() - a.Latitude()) * math.Pi / 180
	dLng := (b.Longitude() - a.Longitude()) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// priorityWeight orders issues urgent-first in the priority work-queue view.
func priorityWeight(p models.IssuePriority) int {
	switch p {
	case models.PriorityUrgent:
		return 4
	case models.PriorityHigh:
		return 3
	case models.PriorityNormal:
		return 2
	default:
		return 0
	}
}
