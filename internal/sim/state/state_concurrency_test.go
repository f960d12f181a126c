package state

import (
	"context"
	"sync"
	"testing"

	"github.com/signalworks/corridor-simulator/model"
)

// Ticks and disruption injections race against background solves; the coarse
// lock plus the snapshot windows must keep everything coherent.
func TestSimulationState_ConcurrentTicksAndDisruptions(t *testing.T) {
	s := newState(t)
	for _, id := range []string{"12614", "16022", "56232"} {
		if err := s.AddTrain(expressTrain(id, 0)); err != nil {
			t.Fatalf("AddTrain %s: %v", id, err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := s.AdvanceTick(context.Background(), 0.5); err != nil {
				t.Errorf("AdvanceTick: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			_, err := s.InjectDisruption(context.Background(), model.Disruption{
				TrainID: "56232", SegmentID: "KGI-MYA", DelayMinutes: 5,
			})
			if err != nil {
				t.Errorf("InjectDisruption: %v", err)
				return
			}
		}
	}()
	wg.Wait()
	s.WaitForSolves()

	stats := s.Stats()
	if stats.Disruptions != 5 {
		t.Fatalf("disruptions = %d, want 5", stats.Disruptions)
	}
	if stats.PlansApplied == 0 {
		t.Fatal("expected at least one plan to be applied")
	}
	if stats.SolveInFlight {
		t.Fatal("no solve should be in flight after WaitForSolves")
	}
	// Delays only accumulate: five 5-minute hits plus whatever yielding the
	// optimizer added.
	if stats.TotalDelayMinutes < 25 {
		t.Fatalf("total delay = %.1f, want >= 25", stats.TotalDelayMinutes)
	}
}

// A solve queued while another is in flight must still be processed.
func TestSimulationState_QueuedSolvesAllApply(t *testing.T) {
	s := newState(t)
	if err := s.AddTrain(expressTrain("12614", 0)); err != nil {
		t.Fatalf("AddTrain: %v", err)
	}
	if err := s.AddTrain(expressTrain("16022", 20)); err != nil {
		t.Fatalf("AddTrain: %v", err)
	}

	for _, id := range []string{"12614", "16022"} {
		if err := s.TriggerOptimization(context.Background(), id); err != nil {
			t.Fatalf("TriggerOptimization %s: %v", id, err)
		}
	}
	s.WaitForSolves()

	stats := s.Stats()
	if stats.PlansApplied != 2 {
		t.Fatalf("plans applied = %d, want 2 (queued request must run)", stats.PlansApplied)
	}
}

// A reset orphans any in-flight solve; its late result must not resurrect
// pre-reset state.
func TestSimulationState_ResetOrphansInFlightSolve(t *testing.T) {
	s := newState(t)
	if err := s.AddTrain(expressTrain("12614", 0)); err != nil {
		t.Fatalf("AddTrain: %v", err)
	}
	if err := s.TriggerOptimization(context.Background(), "12614"); err != nil {
		t.Fatalf("TriggerOptimization: %v", err)
	}

	s.Reset(context.Background())
	s.WaitForSolves()

	stats := s.Stats()
	if stats.PlansApplied != 0 {
		t.Fatalf("plans applied = %d, want 0 after reset", stats.PlansApplied)
	}
	if stats.TotalTrains != 1 {
		t.Fatalf("trains = %d, want the restored timetable", stats.TotalTrains)
	}
	tr, err := s.Train("12614")
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if tr.DelayMinutes != 0 {
		t.Fatalf("delay = %.1f, want a pristine schedule after reset", tr.DelayMinutes)
	}
}
