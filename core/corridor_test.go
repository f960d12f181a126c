package core

import (
	"testing"

	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

// buildCorridor assembles the three-segment test corridor used across the
// core tests: SBC -> KGI -> MYA -> MYS, single main track everywhere plus a
// passing siding between KGI and MYA.
func buildCorridor(t *testing.T) *kb.InfrastructureBase {
	t.Helper()
	b := kb.NewInfrastructureBase()

	stations := []*model.Station{
		{Code: "SBC", Name: "Bengaluru City Jn", Platforms: 10, Major: true, DwellMinutes: 2,
			Position: model.Coordinate{Lat: 12.9774, Lon: 77.5708}},
		{Code: "KGI", Name: "Kengeri", Platforms: 3, DwellMinutes: 1,
			Position: model.Coordinate{Lat: 12.9077, Lon: 77.4827}},
		{Code: "MYA", Name: "Mandya", Platforms: 4, DwellMinutes: 2,
			Position: model.Coordinate{Lat: 12.5242, Lon: 76.8958}},
		{Code: "MYS", Name: "Mysuru Jn", Platforms: 6, Major: true, DwellMinutes: 2,
			Position: model.Coordinate{Lat: 12.3072, Lon: 76.6497}},
	}
	for _, s := range stations {
		if err := b.AddStation(s); err != nil {
			t.Fatalf("AddStation %s: %v", s.Code, err)
		}
	}

	segments := []*model.Segment{
		{ID: "SBC-KGI", From: "SBC", To: "KGI", LengthKm: 12, NominalMinutes: 15},
		{ID: "KGI-MYA", From: "KGI", To: "MYA", LengthKm: 60, NominalMinutes: 45},
		{ID: "MYA-MYS", From: "MYA", To: "MYS", LengthKm: 20, NominalMinutes: 20},
	}
	for _, s := range segments {
		if err := b.AddSegment(s); err != nil {
			t.Fatalf("AddSegment %s: %v", s.ID, err)
		}
	}

	tracks := []*model.Track{
		{ID: "SBC-KGI-main", SegmentID: "SBC-KGI", Kind: model.TrackMain, Capacity: 1,
			TraversalMinutes: 15, ServesStations: true},
		{ID: "KGI-MYA-main", SegmentID: "KGI-MYA", Kind: model.TrackMain, Capacity: 1,
			TraversalMinutes: 45, ServesStations: true},
		{ID: "KGI-MYA-siding", SegmentID: "KGI-MYA", Kind: model.TrackSiding, Capacity: 1,
			TraversalMinutes: 55, ServesStations: true},
		{ID: "MYA-MYS-main", SegmentID: "MYA-MYS", Kind: model.TrackMain, Capacity: 1,
			TraversalMinutes: 20, ServesStations: true},
	}
	for _, tr := range tracks {
		if err := b.AddTrack(tr); err != nil {
			t.Fatalf("AddTrack %s: %v", tr.ID, err)
		}
	}

	if err := b.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return b
}

// expressTrain is a through train calling at every station.
func expressTrain(id string, depMinute float64) *model.Train {
	return &model.Train{
		ID:       id,
		Type:     model.TrainPassenger,
		Priority: 1,
		SpeedKmh: 60,
		Status:   model.StatusWaiting,
		Stops: []model.Stop{
			{Station: "SBC", Arrival: depMinute, Departure: depMinute, Mandatory: true},
			{Station: "KGI", Arrival: depMinute + 15, Departure: depMinute + 16},
			{Station: "MYA", Arrival: depMinute + 61, Departure: depMinute + 63, Mandatory: true},
			{Station: "MYS", Arrival: depMinute + 83, Departure: depMinute + 83, Mandatory: true},
		},
	}
}
