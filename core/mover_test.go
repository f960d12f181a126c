package core

import (
	"errors"
	"testing"

	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

func advanceMinutes(t *testing.T, e *Engine, minutes int) map[string]TrainSnapshot {
	t.Helper()
	var snaps map[string]TrainSnapshot
	var err error
	for i := 0; i < minutes; i++ {
		snaps, err = e.Advance(1.0)
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	return snaps
}

func TestMover_DepartsRunsAndDwells(t *testing.T) {
	infra := buildCorridor(t)
	e := NewEngine(infra, NewTrainStore())

	train := expressTrain("12614", 0)
	if err := e.AddTrain(train); err != nil {
		t.Fatalf("AddTrain: %v", err)
	}

	snaps := advanceMinutes(t, e, 1)
	snap, ok := snaps["12614"]
	if !ok {
		t.Fatal("expected a snapshot for 12614")
	}
	if snap.Status != "running" {
		t.Fatalf("after departure, status = %s, want running", snap.Status)
	}
	if snap.SegmentID != "SBC-KGI" {
		t.Fatalf("segment = %s, want SBC-KGI", snap.SegmentID)
	}
	if snap.NextStation != "KGI" {
		t.Fatalf("next station = %s, want KGI", snap.NextStation)
	}

	// 12 km at 60 km/h: the first segment ends after 12 minutes of running.
	snaps = advanceMinutes(t, e, 12)
	if got := snaps["12614"].Status; got != "dwelling" {
		t.Fatalf("at KGI, status = %s, want dwelling", got)
	}
}

func TestMover_CompletesAtTerminus(t *testing.T) {
	infra := buildCorridor(t)
	e := NewEngine(infra, NewTrainStore())

	train := expressTrain("16022", 0)
	if err := e.AddTrain(train); err != nil {
		t.Fatalf("AddTrain: %v", err)
	}

	// Generous horizon: 92 km of running plus dwells and schedule holds.
	advanceMinutes(t, e, 180)

	got, err := e.Trains.Get("16022")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}

	// Completed trains drop out of the snapshot map.
	snaps, err := e.Advance(1.0)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, ok := snaps["16022"]; ok {
		t.Fatal("completed train should not appear in snapshots")
	}
}

func TestMover_HoldsUntilPlannedEntry(t *testing.T) {
	infra := buildCorridor(t)
	e := NewEngine(infra, NewTrainStore())

	train := expressTrain("12008", 0)
	if err := e.AddTrain(train); err != nil {
		t.Fatalf("AddTrain: %v", err)
	}
	// Push the departure out to minute 5, as a reschedule would.
	train.Route[0].PlannedEntry = 5
	e.Mover.Wake(train.ID, 5)

	snaps := advanceMinutes(t, e, 3)
	if got := snaps["12008"].Status; got != "waiting" {
		t.Fatalf("before planned entry, status = %s, want waiting", got)
	}

	snaps = advanceMinutes(t, e, 3)
	if got := snaps["12008"].Status; got != "running" {
		t.Fatalf("after planned entry, status = %s, want running", got)
	}
}

func TestMover_UnknownTrackFailsFast(t *testing.T) {
	infra := buildCorridor(t)
	e := NewEngine(infra, NewTrainStore())

	train := expressTrain("99999", 0)
	if err := e.AddTrain(train); err != nil {
		t.Fatalf("AddTrain: %v", err)
	}
	train.Route[0].TrackID = "no-such-track"

	_, err := e.Advance(1.0)
	if !errors.Is(err, kb.ErrBadInfrastructure) {
		t.Fatalf("expected ErrBadInfrastructure, got %v", err)
	}
}

func TestMover_SnapshotInterpolatesPosition(t *testing.T) {
	infra := kb.NewInfrastructureBase()
	if err := infra.AddStation(&model.Station{Code: "A", Position: model.Coordinate{Lat: 12.9, Lon: 77.5}}); err != nil {
		t.Fatalf("AddStation: %v", err)
	}
	if err := infra.AddStation(&model.Station{Code: "B", Position: model.Coordinate{Lat: 12.5, Lon: 76.9}}); err != nil {
		t.Fatalf("AddStation: %v", err)
	}
	if err := infra.AddSegment(&model.Segment{ID: "A-B", From: "A", To: "B", LengthKm: 80, NominalMinutes: 60}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if err := infra.AddTrack(&model.Track{
		ID: "A-B-main", SegmentID: "A-B", Kind: model.TrackMain, Capacity: 1,
		TraversalMinutes: 60, ServesStations: true,
		Geometry: []model.Coordinate{{Lat: 12.9, Lon: 77.5}, {Lat: 12.5, Lon: 76.9}},
	}); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if err := infra.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	e := NewEngine(infra, NewTrainStore())
	train := &model.Train{
		ID: "T1", SpeedKmh: 60, Status: model.StatusWaiting,
		Stops: []model.Stop{
			{Station: "A", Departure: 0, Mandatory: true},
			{Station: "B", Arrival: 60, Mandatory: true},
		},
	}
	if err := e.AddTrain(train); err != nil {
		t.Fatalf("AddTrain: %v", err)
	}

	snaps := advanceMinutes(t, e, 10)
	snap := snaps["T1"]
	if snap.Lat == 0 && snap.Lon == 0 {
		t.Fatal("expected an interpolated position, got the zero coordinate")
	}
	// Ten minutes in, the train must be strictly between the endpoints.
	if snap.Lat >= 12.9 || snap.Lat <= 12.5 {
		t.Fatalf("lat %.4f not strictly between endpoints", snap.Lat)
	}
}
