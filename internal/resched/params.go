// Package resched turns a disrupted corridor state into a conflict-free
// reschedule plan: it cuts an optimization window around the disruption,
// formulates track assignment and ordering as a MILP, and falls back to an
// identity plan when the solver cannot deliver in time.
package resched

import "time"

// Params are the operational tunables of the optimizer.
type Params struct {
	// HeadwayMinutes is the minimum separation between two trains entering
	// the same track.
	HeadwayMinutes float64

	// MaxDelayMinutes bounds how far any event may slip past its already
	// delayed schedule.
	MaxDelayMinutes float64

	// ReroutePenalty is the objective cost of assigning a non-nominal track.
	// It is waived when the alternative is at least RerouteSavingsMinutes
	// faster than the nominal track.
	ReroutePenalty        float64
	RerouteSavingsMinutes float64

	// DelayWeight scales the per-train delay term of the objective.
	DelayWeight float64

	// MaxSwaps bounds how many nominal precedence pairs one plan may invert.
	MaxSwaps int

	// SolveBudget bounds wall-clock time spent in the solver.
	SolveBudget time.Duration

	// LookaheadStops and LookaheadMinutes bound the optimization window
	// around the disrupted train.
	LookaheadStops   int
	LookaheadMinutes float64
}

func DefaultParams() Params {
	return Params{
		HeadwayMinutes:        5,
		MaxDelayMinutes:       120,
		ReroutePenalty:        50,
		RerouteSavingsMinutes: 5,
		DelayWeight:           1,
		MaxSwaps:              3,
		SolveBudget:           30 * time.Second,
		LookaheadStops:        4,
		LookaheadMinutes:      180,
	}
}
