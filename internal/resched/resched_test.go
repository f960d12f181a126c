package resched

import (
	"testing"

	"github.com/signalworks/corridor-simulator/core"
	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

// buildCorridor assembles the SBC -> KGI -> MYA -> MYS test corridor with a
// passing siding between KGI and MYA. Extra tracks let individual tests add
// alternatives before the base is sealed.
func buildCorridor(t *testing.T, extra ...*model.Track) *kb.InfrastructureBase {
	t.Helper()
	b := kb.NewInfrastructureBase()

	stations := []*model.Station{
		{Code: "SBC", Name: "Bengaluru City Jn", Platforms: 10, Major: true, DwellMinutes: 2},
		{Code: "KGI", Name: "Kengeri", Platforms: 3, DwellMinutes: 1},
		{Code: "MYA", Name: "Mandya", Platforms: 4, DwellMinutes: 2},
		{Code: "MYS", Name: "Mysuru Jn", Platforms: 6, Major: true, DwellMinutes: 2},
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
	tracks = append(tracks, extra...)
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

// expressTrain runs SBC to MYS calling everywhere; KGI is a discretionary stop.
func expressTrain(id string, dep float64) *model.Train {
	return &model.Train{
		ID:       id,
		Type:     model.TrainPassenger,
		Priority: 1,
		SpeedKmh: 60,
		Status:   model.StatusWaiting,
		Stops: []model.Stop{
			{Station: "SBC", Arrival: dep, Departure: dep, Mandatory: true},
			{Station: "KGI", Arrival: dep + 15, Departure: dep + 16},
			{Station: "MYA", Arrival: dep + 61, Departure: dep + 63, Mandatory: true},
			{Station: "MYS", Arrival: dep + 83, Departure: dep + 83, Mandatory: true},
		},
	}
}

// freightTrain mirrors the express path at lower priority; every call is
// mandatory.
func freightTrain(id string, dep float64) *model.Train {
	return &model.Train{
		ID:       id,
		Type:     model.TrainFreight,
		Priority: 3,
		SpeedKmh: 45,
		Status:   model.StatusWaiting,
		Stops: []model.Stop{
			{Station: "SBC", Arrival: dep, Departure: dep, Mandatory: true},
			{Station: "KGI", Arrival: dep + 15, Departure: dep + 16, Mandatory: true},
			{Station: "MYA", Arrival: dep + 61, Departure: dep + 63, Mandatory: true},
			{Station: "MYS", Arrival: dep + 83, Departure: dep + 83, Mandatory: true},
		},
	}
}

// shortHaul runs SBC to MYA only. The MYA call is discretionary unless a test
// flips it.
func shortHaul(id string, dep float64) *model.Train {
	return &model.Train{
		ID:       id,
		Type:     model.TrainPassenger,
		Priority: 2,
		SpeedKmh: 60,
		Status:   model.StatusWaiting,
		Stops: []model.Stop{
			{Station: "SBC", Arrival: dep, Departure: dep, Mandatory: true},
			{Station: "KGI", Arrival: dep + 15, Departure: dep + 16},
			{Station: "MYA", Arrival: dep + 61, Departure: dep + 61},
		},
	}
}

func addTrain(t *testing.T, infra *kb.InfrastructureBase, store *core.TrainStore, tr *model.Train) {
	t.Helper()
	legs, err := core.BuildRoute(infra, tr)
	if err != nil {
		t.Fatalf("BuildRoute %s: %v", tr.ID, err)
	}
	tr.Route = legs
	if err := store.Add(tr); err != nil {
		t.Fatalf("Add %s: %v", tr.ID, err)
	}
}

func disrupt(t *testing.T, infra *kb.InfrastructureBase, store *core.TrainStore, trainID, segmentID string, minutes float64) {
	t.Helper()
	err := core.ApplyDisruption(infra, store, model.Disruption{
		TrainID: trainID, SegmentID: segmentID, DelayMinutes: minutes,
	})
	if err != nil {
		t.Fatalf("ApplyDisruption: %v", err)
	}
}

func findEntry(t *testing.T, plan *model.ReschedulePlan, trainID, segmentID string) model.PlanEntry {
	t.Helper()
	for _, e := range plan.Entries {
		if e.TrainID == trainID && e.SegmentID == segmentID {
			return e
		}
	}
	t.Fatalf("plan has no entry for train %q on segment %q", trainID, segmentID)
	return model.PlanEntry{}
}
