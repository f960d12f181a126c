package resched

import (
	"errors"
	"fmt"
	"sort"

	"github.com/signalworks/corridor-simulator/core"
	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

var (
	ErrPlanMalformed = errors.New("malformed plan")
	ErrPlanConflict  = errors.New("plan violates track exclusivity")
)

// ValidatePlan checks a plan against the infrastructure: tracks must belong
// to their segments, every entry must be internally consistent, and no two
// occupancies of a capacity-one track may come closer than the headway.
func ValidatePlan(infra *kb.InfrastructureBase, plan *model.ReschedulePlan, headwayMinutes float64) error {
	type key struct{ seg, track string }
	occupancies := make(map[key][]model.PlanEntry)

	for _, e := range plan.Entries {
		track := infra.Track(e.TrackID)
		if track == nil {
			return fmt.Errorf("%w: unknown track %q", ErrPlanMalformed, e.TrackID)
		}
		if track.SegmentID != e.SegmentID {
			return fmt.Errorf("%w: track %q does not belong to segment %q", ErrPlanMalformed, e.TrackID, e.SegmentID)
		}
		if e.ExitMinute <= e.EntryMinute {
			return fmt.Errorf("%w: train %q exits segment %q before entering", ErrPlanMalformed, e.TrainID, e.SegmentID)
		}
		if track.Capacity <= 1 {
			k := key{e.SegmentID, e.TrackID}
			occupancies[k] = append(occupancies[k], e)
		}
	}

	const eps = 1e-6
	for k, occ := range occupancies {
		sort.Slice(occ, func(i, j int) bool { return occ[i].EntryMinute < occ[j].EntryMinute })
		for i := 1; i < len(occ); i++ {
			gap := occ[i].EntryMinute - occ[i-1].ExitMinute
			if gap < headwayMinutes-eps {
				return fmt.Errorf("%w: trains %q and %q on track %q separated by %.1f min, need %.1f",
					ErrPlanConflict, occ[i-1].TrainID, occ[i].TrainID, k.track, gap, headwayMinutes)
			}
		}
	}
	return nil
}

// Waker is the mover hook the applier uses to re-arm held trains.
type Waker interface {
	Wake(trainID string, at float64)
}

// ApplyPlan writes a plan back onto the trains: track assignments, leg
// timings and downstream stop times. Entries for legs a train has already
// committed to, or for trains that finished meanwhile, are skipped. It
// returns the number of trains updated.
func ApplyPlan(infra *kb.InfrastructureBase, store *core.TrainStore, wake Waker, plan *model.ReschedulePlan) int {
	updated := 0
	byTrain := make(map[string][]model.PlanEntry)
	var order []string
	for _, e := range plan.Entries {
		if _, seen := byTrain[e.TrainID]; !seen {
			order = append(order, e.TrainID)
		}
		byTrain[e.TrainID] = append(byTrain[e.TrainID], e)
	}

	for _, id := range order {
		t, err := store.Get(id)
		if err != nil || t.Status == model.StatusCompleted {
			continue
		}
		if applyToTrain(infra, store, wake, t, byTrain[id]) {
			updated++
		}
	}
	return updated
}

func applyToTrain(infra *kb.InfrastructureBase, store *core.TrainStore, wake Waker, t *model.Train, entries []model.PlanEntry) bool {
	first := t.LegIndex
	if t.OffsetKm > 0 || t.SpeedNow > 0 {
		first++
	}

	changed := false
	wakeAt := -1.0
	var lastShift float64
	cursor := first
	for _, e := range entries {
		idx := -1
		for i := cursor; i < len(t.Route); i++ {
			if t.Route[i].SegmentID == e.SegmentID {
				idx = i
				break
			}
		}
		if idx < 0 {
			// The train moved past this leg while the solver ran.
			continue
		}
		cursor = idx + 1

		leg := &t.Route[idx]
		lastShift = e.ExitMinute - leg.PlannedExit
		leg.TrackID = e.TrackID
		leg.PlannedEntry = e.EntryMinute
		leg.PlannedExit = e.ExitMinute
		changed = true
		if wakeAt < 0 || e.EntryMinute < wakeAt {
			wakeAt = e.EntryMinute
		}

		if leg.StopAfter {
			if seg := infra.Segment(leg.SegmentID); seg != nil {
				if stop := t.StopAt(seg.To); stop != nil {
					stop.Arrival = e.ExitMinute
					if idx == len(t.Route)-1 {
						stop.Departure = stop.Arrival
					} else {
						stop.Departure = stop.Arrival + leg.DwellMinutes
					}
				}
			}
		}
	}

	if !changed {
		return false
	}
	// Timing pushed further out than the train already carried counts as
	// optimizer-added delay. Recovered time never reduces the counter.
	if lastShift > 0 {
		_ = store.AddDelay(t.ID, lastShift)
	}
	if wake != nil && wakeAt >= 0 {
		wake.Wake(t.ID, wakeAt)
	}
	return true
}
