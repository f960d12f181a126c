package core

import (
	"math"

	"github.com/signalworks/corridor-simulator/model"
)

// EarthRadiusKm is the mean Earth radius used for all display-geometry
// calculations (kilometres).
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(a, b model.Coordinate) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180.0
	dLon := (b.Lon - a.Lon) * math.Pi / 180.0

	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// PolylineLengthKm sums the haversine lengths of a polyline's hops.
func PolylineLengthKm(coords []model.Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(coords); i++ {
		total += HaversineKm(coords[i-1], coords[i])
	}
	return total
}

// InterpolateAlong returns the coordinate at progress ∈ [0,1] along the
// polyline, measured by arc length. Progress is clamped, so callers can feed
// slight overshoot from the mover without special-casing.
//
// Used only for display snapshots; optimization never sees geometry.
func InterpolateAlong(coords []model.Coordinate, progress float64) model.Coordinate {
	if len(coords) == 0 {
		return model.Coordinate{}
	}
	if progress <= 0 || len(coords) == 1 {
		return coords[0]
	}
	if progress >= 1 {
		return coords[len(coords)-1]
	}

	target := progress * PolylineLengthKm(coords)
	travelled := 0.0
	for i := 1; i < len(coords); i++ {
		hop := HaversineKm(coords[i-1], coords[i])
		if hop == 0 {
			continue
		}
		if travelled+hop >= target {
			frac := (target - travelled) / hop
			return model.Coordinate{
				Lat: coords[i-1].Lat + (coords[i].Lat-coords[i-1].Lat)*frac,
				Lon: coords[i-1].Lon + (coords[i].Lon-coords[i-1].Lon)*frac,
			}
		}
		travelled += hop
	}
	return coords[len(coords)-1]
}
