package model

// Disruption is an operator-injected delay event. It is consumed by one
// optimization run; its lasting effect is the mutated train schedule.
type Disruption struct {
	TrainID      string
	SegmentID    string
	DelayMinutes float64
	Reason       string
	// Timestamp is the simulation minute the disruption was injected.
	Timestamp float64
}

// PlanEntry is the optimizer's decision for one (train, segment) event.
type PlanEntry struct {
	TrainID   string
	SegmentID string
	TrackID   string

	EntryMinute float64
	ExitMinute  float64

	// Order ranks this train among the window's occupants of the same
	// track; lower enters first.
	Order int
}

// ReschedulePlan covers exactly the events of one optimization window.
// Trains outside the window keep their existing plan. A plan is superseded
// wholesale by the next one, never merged.
type ReschedulePlan struct {
	Entries []PlanEntry

	// ReroutedTrainIDs lists trains assigned a non-main track anywhere in
	// the window.
	ReroutedTrainIDs []string

	// Identity marks a fallback plan: raw delay propagated, no reroute.
	Identity bool

	TotalDelayMinutes float64
	Objective         float64
}

// EntriesFor returns the plan entries for one train in window order.
func (p *ReschedulePlan) EntriesFor(trainID string) []PlanEntry {
	var out []PlanEntry
	for _, e := range p.Entries {
		if e.TrainID == trainID {
			out = append(out, e)
		}
	}
	return out
}
