package kb

import (
	"errors"
	"testing"

	"github.com/signalworks/corridor-simulator/model"
)

func twoStationBase(t *testing.T) *InfrastructureBase {
	t.Helper()
	b := NewInfrastructureBase()
	if err := b.AddStation(&model.Station{Code: "SBC", Name: "Bengaluru City Jn", Platforms: 10, Major: true}); err != nil {
		t.Fatalf("AddStation SBC: %v", err)
	}
	if err := b.AddStation(&model.Station{Code: "KGI", Name: "Kengeri", Platforms: 3}); err != nil {
		t.Fatalf("AddStation KGI: %v", err)
	}
	return b
}

func TestAddStation_Duplicate(t *testing.T) {
	b := twoStationBase(t)
	err := b.AddStation(&model.Station{Code: "SBC"})
	if !errors.Is(err, ErrStationExists) {
		t.Fatalf("expected ErrStationExists, got %v", err)
	}
}

func TestAddSegment_UnknownStationIsFatal(t *testing.T) {
	b := twoStationBase(t)
	err := b.AddSegment(&model.Segment{ID: "SBC-MYA", From: "SBC", To: "MYA"})
	if !errors.Is(err, ErrBadInfrastructure) {
		t.Fatalf("expected ErrBadInfrastructure, got %v", err)
	}
}

func TestAddTrack_UnknownSegmentIsFatal(t *testing.T) {
	b := twoStationBase(t)
	err := b.AddTrack(&model.Track{ID: "ghost", SegmentID: "nope", Capacity: 1})
	if !errors.Is(err, ErrBadInfrastructure) {
		t.Fatalf("expected ErrBadInfrastructure, got %v", err)
	}
}

func TestSeal_RequiresMainTrack(t *testing.T) {
	b := twoStationBase(t)
	if err := b.AddSegment(&model.Segment{ID: "SBC-KGI", From: "SBC", To: "KGI", LengthKm: 12}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if err := b.AddTrack(&model.Track{ID: "SBC-KGI-loop", SegmentID: "SBC-KGI", Kind: model.TrackSiding, Capacity: 1, ServesStations: true}); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}

	if err := b.Seal(); !errors.Is(err, ErrBadInfrastructure) {
		t.Fatalf("expected seal to fail without a main track, got %v", err)
	}
}

func TestSeal_MakesBaseReadOnly(t *testing.T) {
	b := twoStationBase(t)
	if err := b.AddSegment(&model.Segment{ID: "SBC-KGI", From: "SBC", To: "KGI", LengthKm: 12, NominalMinutes: 15}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if err := b.AddTrack(&model.Track{ID: "SBC-KGI-main", SegmentID: "SBC-KGI", Kind: model.TrackMain, Capacity: 1, ServesStations: true}); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if err := b.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !b.Sealed() {
		t.Fatal("expected base to report sealed")
	}

	if err := b.AddStation(&model.Station{Code: "MYA"}); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed, got %v", err)
	}
}

func TestTracksForSegment_MainFirst(t *testing.T) {
	b := twoStationBase(t)
	if err := b.AddSegment(&model.Segment{ID: "SBC-KGI", From: "SBC", To: "KGI"}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	// Insert the siding first to make the ordering do real work.
	if err := b.AddTrack(&model.Track{ID: "loop", SegmentID: "SBC-KGI", Kind: model.TrackSiding, Capacity: 1, ServesStations: true}); err != nil {
		t.Fatalf("AddTrack loop: %v", err)
	}
	if err := b.AddTrack(&model.Track{ID: "main", SegmentID: "SBC-KGI", Kind: model.TrackMain, Capacity: 1, ServesStations: true}); err != nil {
		t.Fatalf("AddTrack main: %v", err)
	}

	tracks := b.TracksForSegment("SBC-KGI")
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].Kind != model.TrackMain {
		t.Fatalf("expected main track first, got %s", tracks[0].Kind)
	}
	if got := b.MainTrack("SBC-KGI"); got == nil || got.ID != "main" {
		t.Fatalf("MainTrack = %+v, want main", got)
	}
}
