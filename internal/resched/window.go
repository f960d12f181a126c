package resched

import (
	"fmt"
	"sort"

	"github.com/signalworks/corridor-simulator/core"
	"github.com/signalworks/corridor-simulator/model"
)

// Window is the slice of the corridor an optimization run looks at: the
// disrupted train's upcoming segments and every train competing for them.
type Window struct {
	// TrainID is the train the window was cut around.
	TrainID string

	// SegmentIDs are the window segments in the focal train's travel order.
	SegmentIDs []string

	// Trains holds deep copies of the focal train plus all overlapping
	// trains, sorted by ID. Copies keep the solver race-free against the
	// ticking mover.
	Trains []*model.Train

	// OpenedAt is the simulation minute the window was cut.
	OpenedAt float64
}

// Contains reports whether a segment is part of the window.
func (w *Window) Contains(segmentID string) bool {
	for _, id := range w.SegmentIDs {
		if id == segmentID {
			return true
		}
	}
	return false
}

// BuildWindow cuts an optimization window around trainID at minute now.
// The window spans the train's next LookaheadStops segments; any other active
// train due on one of those segments within LookaheadMinutes joins it.
func BuildWindow(store *core.TrainStore, trainID string, now float64, p Params) (*Window, error) {
	focal, err := store.Get(trainID)
	if err != nil {
		return nil, err
	}
	if focal.Status == model.StatusCompleted {
		return nil, fmt.Errorf("%w: %q", core.ErrTrainCompleted, trainID)
	}

	w := &Window{TrainID: trainID, OpenedAt: now}
	for i, leg := range focal.RemainingLegs() {
		if p.LookaheadStops > 0 && i >= p.LookaheadStops {
			break
		}
		w.SegmentIDs = append(w.SegmentIDs, leg.SegmentID)
	}
	if len(w.SegmentIDs) == 0 {
		return nil, fmt.Errorf("train %q has no remaining route to optimize", trainID)
	}

	horizon := now + p.LookaheadMinutes
	for _, t := range store.Active() {
		if t.ID == trainID {
			continue
		}
		for _, leg := range t.RemainingLegs() {
			if w.Contains(leg.SegmentID) && leg.PlannedEntry <= horizon {
				w.Trains = append(w.Trains, t.Clone())
				break
			}
		}
	}
	w.Trains = append(w.Trains, focal.Clone())
	sort.Slice(w.Trains, func(i, j int) bool { return w.Trains[i].ID < w.Trains[j].ID })
	return w, nil
}
