package resched

import (
	"errors"
	"testing"

	"github.com/signalworks/corridor-simulator/core"
	"github.com/signalworks/corridor-simulator/model"
)

func TestBuildWindow_IncludesOverlappingTrains(t *testing.T) {
	infra := buildCorridor(t)
	store := core.NewTrainStore()

	addTrain(t, infra, store, freightTrain("56232", 0))
	addTrain(t, infra, store, expressTrain("12614", 10))
	// Well beyond the lookahead horizon.
	addTrain(t, infra, store, expressTrain("16022", 300))

	w, err := BuildWindow(store, "56232", 10, DefaultParams())
	if err != nil {
		t.Fatalf("BuildWindow: %v", err)
	}

	if len(w.SegmentIDs) != 3 {
		t.Fatalf("window segments = %v, want the full remaining route", w.SegmentIDs)
	}
	ids := make([]string, 0, len(w.Trains))
	for _, tr := range w.Trains {
		ids = append(ids, tr.ID)
	}
	if len(ids) != 2 || ids[0] != "12614" || ids[1] != "56232" {
		t.Fatalf("window trains = %v, want [12614 56232]", ids)
	}
}

func TestBuildWindow_LookaheadStopsCapsSegments(t *testing.T) {
	infra := buildCorridor(t)
	store := core.NewTrainStore()
	addTrain(t, infra, store, freightTrain("56232", 0))
	addTrain(t, infra, store, expressTrain("12614", 10))

	p := DefaultParams()
	p.LookaheadStops = 1
	w, err := BuildWindow(store, "56232", 0, p)
	if err != nil {
		t.Fatalf("BuildWindow: %v", err)
	}
	if len(w.SegmentIDs) != 1 || w.SegmentIDs[0] != "SBC-KGI" {
		t.Fatalf("window segments = %v, want just SBC-KGI", w.SegmentIDs)
	}
}

func TestBuildWindow_UnknownTrain(t *testing.T) {
	store := core.NewTrainStore()
	_, err := BuildWindow(store, "ghost", 0, DefaultParams())
	if !errors.Is(err, core.ErrTrainNotFound) {
		t.Fatalf("expected ErrTrainNotFound, got %v", err)
	}
}

func TestBuildWindow_CompletedTrainRejected(t *testing.T) {
	infra := buildCorridor(t)
	store := core.NewTrainStore()
	tr := expressTrain("12614", 0)
	addTrain(t, infra, store, tr)
	tr.Status = model.StatusCompleted

	_, err := BuildWindow(store, "12614", 0, DefaultParams())
	if !errors.Is(err, core.ErrTrainCompleted) {
		t.Fatalf("expected ErrTrainCompleted, got %v", err)
	}
}
