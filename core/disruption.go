package core

import (
	"fmt"

	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

// ApplyDisruption pushes an injected delay into the train's effective
// schedule: every stop and remaining route leg from the disrupted segment
// onward shifts by the delay, cumulative delay grows, and the train reports
// delayed. The disruption record itself is ephemeral; this mutation is its
// only lasting effect.
func ApplyDisruption(infra *kb.InfrastructureBase, store *TrainStore, d model.Disruption) error {
	if d.DelayMinutes <= 0 {
		return fmt.Errorf("non-positive delay %v for train %q", d.DelayMinutes, d.TrainID)
	}

	t, err := store.Get(d.TrainID)
	if err != nil {
		return err
	}
	if t.Status == model.StatusCompleted {
		return fmt.Errorf("%w: %q", ErrTrainCompleted, d.TrainID)
	}

	// Locate the disrupted leg; an unknown or already-passed segment shifts
	// the whole remainder of the journey.
	from := t.LegIndex
	for i := t.LegIndex; i < len(t.Route); i++ {
		if t.Route[i].SegmentID == d.SegmentID {
			from = i
			break
		}
	}

	for i := from; i < len(t.Route); i++ {
		t.Route[i].PlannedEntry += d.DelayMinutes
		t.Route[i].PlannedExit += d.DelayMinutes
	}

	// Stops from the disrupted segment's arrival station onward shift too.
	if from < len(t.Route) {
		if seg := infra.Segment(t.Route[from].SegmentID); seg != nil {
			shifting := false
			for i := range t.Stops {
				if t.Stops[i].Station == seg.To {
					shifting = true
				}
				if shifting {
					t.Stops[i].Arrival += d.DelayMinutes
					t.Stops[i].Departure += d.DelayMinutes
				}
			}
		}
	}

	if err := store.AddDelay(t.ID, d.DelayMinutes); err != nil {
		return err
	}
	if t.Status != model.StatusDwelling {
		t.Status = model.StatusDelayed
	}
	return nil
}
