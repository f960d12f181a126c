package core

import (
	"math"
	"testing"

	"github.com/signalworks/corridor-simulator/model"
)

var testLine = []model.Coordinate{
	{Lat: 12.9774, Lon: 77.5708},
	{Lat: 12.9077, Lon: 77.4827},
	{Lat: 12.5242, Lon: 76.8958},
}

func TestPolylineLengthKm_Plausible(t *testing.T) {
	length := PolylineLengthKm(testLine)
	if length <= 0 || length > 200 {
		t.Fatalf("implausible corridor length %.2f km", length)
	}
}

func TestInterpolateAlong_Endpoints(t *testing.T) {
	if got := InterpolateAlong(testLine, 0); got != testLine[0] {
		t.Fatalf("progress 0 = %+v, want first vertex", got)
	}
	if got := InterpolateAlong(testLine, 1); got != testLine[len(testLine)-1] {
		t.Fatalf("progress 1 = %+v, want last vertex", got)
	}
	// Clamping: the mover may overshoot slightly on the final tick.
	if got := InterpolateAlong(testLine, 1.05); got != testLine[len(testLine)-1] {
		t.Fatalf("progress > 1 should clamp to last vertex, got %+v", got)
	}
	if got := InterpolateAlong(testLine, -0.5); got != testLine[0] {
		t.Fatalf("progress < 0 should clamp to first vertex, got %+v", got)
	}
}

func TestInterpolateAlong_MidpointSplitsArcLength(t *testing.T) {
	mid := InterpolateAlong(testLine, 0.5)
	total := PolylineLengthKm(testLine)

	// The midpoint lies on the second hop for this polyline, so distance from
	// the start along the line is start->v1 plus v1->mid.
	along := HaversineKm(testLine[0], testLine[1]) + HaversineKm(testLine[1], mid)
	if math.Abs(along-total/2) > 0.5 {
		t.Fatalf("midpoint at %.2f km along, want %.2f +/- 0.5", along, total/2)
	}
}

func TestInterpolateAlong_Degenerate(t *testing.T) {
	if got := InterpolateAlong(nil, 0.5); got != (model.Coordinate{}) {
		t.Fatalf("empty polyline should yield zero coordinate, got %+v", got)
	}
	single := []model.Coordinate{{Lat: 1, Lon: 2}}
	if got := InterpolateAlong(single, 0.9); got != single[0] {
		t.Fatalf("single-vertex polyline should return its vertex, got %+v", got)
	}
}
