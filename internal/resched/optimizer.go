package resched

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/signalworks/corridor-simulator/internal/logging"
	"github.com/signalworks/corridor-simulator/internal/resched/milp"
	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

// Outcome classifies how a plan was produced.
type Outcome int

const (
	// OutcomeOptimal means the solver proved optimality within budget.
	OutcomeOptimal Outcome = iota
	// OutcomeFeasible means the solver delivered an unproven incumbent.
	OutcomeFeasible
	// OutcomeFallback means the identity plan was used: the solver found
	// nothing usable, or there was nothing to solve.
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOptimal:
		return "optimal"
	case OutcomeFeasible:
		return "feasible"
	case OutcomeFallback:
		return "fallback"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is one optimization run's output. Plan is never nil.
type Result struct {
	Plan      *model.ReschedulePlan
	Outcome   Outcome
	Status    milp.Status
	SolveTime time.Duration
	Events    int
	Nodes     int
}

// Optimizer formulates reschedule MILPs over an optimization window.
type Optimizer struct {
	infra  *kb.InfrastructureBase
	params Params
	log    logging.Logger
}

func NewOptimizer(infra *kb.InfrastructureBase, params Params, log logging.Logger) *Optimizer {
	if log == nil {
		log = logging.Noop()
	}
	return &Optimizer{infra: infra, params: params, log: log}
}

// event is one (train, upcoming leg) decision point inside the window.
type event struct {
	train  *model.Train
	legIdx int

	floorEntry, floorExit float64

	entry, exit milp.Var
	tracks      []*model.Track
	trackVars   []milp.Var

	last  bool // train's final window event
	fixed bool // committed traversal; times and track pinned
}

func (e *event) leg() *model.RouteLeg { return &e.train.Route[e.legIdx] }

// Optimize solves the window and always returns a usable plan: the solver's
// when it delivers, the identity plan otherwise.
func (o *Optimizer) Optimize(ctx context.Context, w *Window) *Result {
	events := o.collectEvents(w)
	if len(events) == 0 {
		return &Result{Plan: o.identityPlan(w), Outcome: OutcomeFallback}
	}

	m := milp.NewModel()
	if err := o.buildModel(m, events); err != nil {
		o.log.Error(ctx, "reschedule model build failed, using identity plan",
			logging.String("train_id", w.TrainID), logging.Any("error", err))
		return &Result{Plan: o.identityPlan(w), Outcome: OutcomeFallback, Events: len(events)}
	}

	solveCtx := ctx
	if o.params.SolveBudget > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, o.params.SolveBudget)
		defer cancel()
	}

	start := time.Now()
	sol, err := milp.Solve(solveCtx, m)
	elapsed := time.Since(start)
	if err != nil {
		o.log.Error(ctx, "reschedule solve failed, using identity plan",
			logging.String("train_id", w.TrainID), logging.Any("error", err))
		return &Result{Plan: o.identityPlan(w), Outcome: OutcomeFallback, SolveTime: elapsed, Events: len(events)}
	}

	res := &Result{Status: sol.Status, SolveTime: elapsed, Events: len(events), Nodes: sol.Nodes}
	switch sol.Status {
	case milp.StatusOptimal:
		res.Outcome = OutcomeOptimal
	case milp.StatusFeasible:
		res.Outcome = OutcomeFeasible
	default:
		o.log.Warn(ctx, "reschedule solver delivered no plan, using identity plan",
			logging.String("train_id", w.TrainID),
			logging.String("status", sol.Status.String()),
			logging.Int("nodes", sol.Nodes))
		res.Outcome = OutcomeFallback
		res.Plan = o.identityPlan(w)
		return res
	}

	res.Plan = o.extractPlan(events, sol)
	o.log.Info(ctx, "reschedule plan ready",
		logging.String("train_id", w.TrainID),
		logging.String("outcome", res.Outcome.String()),
		logging.Int("events", len(events)),
		logging.Any("objective", res.Plan.Objective),
		logging.Any("solve_ms", elapsed.Milliseconds()))
	return res
}

// collectEvents gathers every not-yet-entered window leg of every window
// train. A leg the train is already moving on keeps its track and times but
// enters the model as a fixed event, so its occupancy still excludes
// competitors from the track.
func (o *Optimizer) collectEvents(w *Window) []*event {
	var events []*event
	for _, t := range w.Trains {
		first := t.LegIndex
		committed := -1
		if t.OffsetKm > 0 || t.SpeedNow > 0 {
			committed = first
			first++
		}
		var own []*event
		if committed >= 0 && committed < len(t.Route) && w.Contains(t.Route[committed].SegmentID) {
			own = append(own, &event{
				train:      t,
				legIdx:     committed,
				floorEntry: t.Route[committed].PlannedEntry,
				floorExit:  t.Route[committed].PlannedExit,
				fixed:      true,
			})
		}
		for i := first; i < len(t.Route); i++ {
			if !w.Contains(t.Route[i].SegmentID) {
				continue
			}
			own = append(own, &event{
				train:      t,
				legIdx:     i,
				floorEntry: t.Route[i].PlannedEntry,
				floorExit:  t.Route[i].PlannedExit,
			})
		}
		if len(own) > 0 {
			own[len(own)-1].last = true
		}
		events = append(events, own...)
	}
	return events
}

// candidateTracks returns the tracks an event may use. A mandatory stop at the
// leg's end station restricts the choice to station-serving tracks.
func (o *Optimizer) candidateTracks(e *event) []*model.Track {
	leg := e.leg()
	all := o.infra.TracksForSegment(leg.SegmentID)

	if !leg.StopAfter {
		return all
	}
	seg := o.infra.Segment(leg.SegmentID)
	if seg == nil {
		return all
	}
	stop := e.train.StopAt(seg.To)
	if stop == nil || !stop.Mandatory {
		return all
	}

	var serving []*model.Track
	for _, tr := range all {
		if tr.ServesStations {
			serving = append(serving, tr)
		}
	}
	if len(serving) == 0 {
		// Degenerate infrastructure; keep the nominal assignment.
		if tr := o.infra.Track(leg.TrackID); tr != nil {
			return []*model.Track{tr}
		}
	}
	return serving
}

func traversalMinutes(tr *model.Track, seg *model.Segment) float64 {
	if tr.TraversalMinutes > 0 {
		return tr.TraversalMinutes
	}
	return seg.NominalMinutes
}

func priorityFactor(t *model.Train) float64 {
	p := t.Priority
	if p < 1 {
		p = 1
	}
	if p > 4 {
		p = 4
	}
	return float64(5 - p)
}

// anchorWeight gently pulls entry variables toward their floors so the solver
// does not park trains arbitrarily late inside their slack. Exits carry the
// full delay weight and need no anchor.
const anchorWeight = 1e-3

func (o *Optimizer) buildModel(m *milp.Model, events []*event) error {
	p := o.params

	bigM := p.HeadwayMinutes + 10
	for _, e := range events {
		if ub := e.floorExit + p.MaxDelayMinutes; ub > bigM {
			bigM = ub + p.HeadwayMinutes + 10
		}
	}

	for _, e := range events {
		leg := e.leg()
		seg := o.infra.Segment(leg.SegmentID)
		if seg == nil {
			return fmt.Errorf("%w: segment %q", kb.ErrSegmentNotFound, leg.SegmentID)
		}
		tag := fmt.Sprintf("%s@%s", e.train.ID, leg.SegmentID)

		if e.fixed {
			tr := o.infra.Track(leg.TrackID)
			if tr == nil {
				return fmt.Errorf("unknown track %q on committed leg of train %q", leg.TrackID, e.train.ID)
			}
			e.tracks = []*model.Track{tr}
			e.entry = m.Continuous("entry:"+tag, e.floorEntry, e.floorEntry)
			e.exit = m.Continuous("exit:"+tag, e.floorExit, e.floorExit)
			y := m.Binary(fmt.Sprintf("use:%s:%s", tag, tr.ID))
			e.trackVars = append(e.trackVars, y)
			m.AddConstraint([]milp.Term{{Var: y, Coeff: 1}}, milp.EQ, 1, "assign:"+tag)
			continue
		}

		e.tracks = o.candidateTracks(e)
		if len(e.tracks) == 0 {
			return fmt.Errorf("no candidate tracks for train %q on segment %q", e.train.ID, leg.SegmentID)
		}

		// Entries never run ahead of the (already delayed) schedule. Exits
		// may beat it when a faster alternative track can recover time.
		minTrav := math.Inf(1)
		for _, tr := range e.tracks {
			if trav := traversalMinutes(tr, seg); trav < minTrav {
				minTrav = trav
			}
		}
		exitLB := e.floorEntry + minTrav
		if e.floorExit < exitLB {
			exitLB = e.floorExit
		}

		e.entry = m.Continuous("entry:"+tag, e.floorEntry, e.floorEntry+p.MaxDelayMinutes)
		e.exit = m.Continuous("exit:"+tag, exitLB, e.floorExit+p.MaxDelayMinutes)

		m.ObjectiveTerm(e.entry, anchorWeight)
		m.ObjectiveTerm(e.exit, p.DelayWeight*priorityFactor(e.train))

		assign := make([]milp.Term, 0, len(e.tracks))
		nominalTrav := math.NaN()
		for _, tr := range e.tracks {
			if tr.ID == leg.TrackID {
				nominalTrav = traversalMinutes(tr, seg)
			}
		}
		for _, tr := range e.tracks {
			y := m.Binary(fmt.Sprintf("use:%s:%s", tag, tr.ID))
			e.trackVars = append(e.trackVars, y)
			assign = append(assign, milp.Term{Var: y, Coeff: 1})

			trav := traversalMinutes(tr, seg)
			// exit >= entry + traversal when this track is chosen.
			m.AddConstraint([]milp.Term{
				{Var: e.exit, Coeff: 1},
				{Var: e.entry, Coeff: -1},
				{Var: y, Coeff: -bigM},
			}, milp.GE, trav-bigM, "trav:"+tag+":"+tr.ID)

			if tr.ID != leg.TrackID {
				penalty := p.ReroutePenalty
				if !math.IsNaN(nominalTrav) && trav <= nominalTrav-p.RerouteSavingsMinutes {
					penalty = 0
				}
				if penalty != 0 {
					m.ObjectiveTerm(y, penalty)
				}
			}
		}
		m.AddConstraint(assign, milp.EQ, 1, "assign:"+tag)
	}

	// Same-train chaining: a leg starts only after the previous one ends,
	// plus any dwell.
	for i, e := range events {
		if i == 0 || events[i-1].train != e.train || events[i-1].legIdx+1 != e.legIdx {
			continue
		}
		prev := events[i-1]
		dwell := 0.0
		if prev.leg().StopAfter {
			dwell = prev.leg().DwellMinutes
		}
		m.AddConstraint([]milp.Term{
			{Var: e.entry, Coeff: 1},
			{Var: prev.exit, Coeff: -1},
		}, milp.GE, dwell, fmt.Sprintf("chain:%s:%d", e.train.ID, e.legIdx))
	}

	// Shared-track exclusion with headway, one order binary per train pair
	// per segment, and a budget on inversions of the nominal order.
	bySegment := make(map[string][]*event)
	for _, e := range events {
		id := e.leg().SegmentID
		bySegment[id] = append(bySegment[id], e)
	}
	var orderVars []milp.Term
	segIDs := make([]string, 0, len(bySegment))
	for id := range bySegment {
		segIDs = append(segIDs, id)
	}
	sort.Strings(segIDs)
	for _, segID := range segIDs {
		evs := bySegment[segID]
		for i := 0; i < len(evs); i++ {
			for j := i + 1; j < len(evs); j++ {
				a, b := evs[i], evs[j]
				if a.train == b.train {
					continue
				}
				// a is the nominal leader.
				if b.floorEntry < a.floorEntry ||
					(b.floorEntry == a.floorEntry && b.train.ID < a.train.ID) {
					a, b = b, a
				}
				shared := sharedExclusiveTracks(a, b)
				if len(shared) == 0 {
					continue
				}
				z := m.Binary(fmt.Sprintf("before:%s:%s:%s", a.train.ID, b.train.ID, segID))
				orderVars = append(orderVars, milp.Term{Var: z, Coeff: 1})
				for _, s := range shared {
					ya, yb := a.trackVars[s.ai], b.trackVars[s.bi]
					// z = 1: a exits before b enters, with headway.
					m.AddConstraint([]milp.Term{
						{Var: b.entry, Coeff: 1},
						{Var: a.exit, Coeff: -1},
						{Var: z, Coeff: -bigM},
						{Var: ya, Coeff: -bigM},
						{Var: yb, Coeff: -bigM},
					}, milp.GE, p.HeadwayMinutes-3*bigM, "excl")
					// z = 0: the other way around.
					m.AddConstraint([]milp.Term{
						{Var: a.entry, Coeff: 1},
						{Var: b.exit, Coeff: -1},
						{Var: z, Coeff: bigM},
						{Var: ya, Coeff: -bigM},
						{Var: yb, Coeff: -bigM},
					}, milp.GE, p.HeadwayMinutes-2*bigM, "excl")
				}
			}
		}
	}
	if p.MaxSwaps >= 0 && len(orderVars) > p.MaxSwaps {
		m.AddConstraint(orderVars, milp.GE, float64(len(orderVars)-p.MaxSwaps), "swap-budget")
	}
	return nil
}

type sharedTrack struct{ ai, bi int }

// sharedExclusiveTracks pairs up capacity-one tracks both events may use.
func sharedExclusiveTracks(a, b *event) []sharedTrack {
	var out []sharedTrack
	for i, ta := range a.tracks {
		if ta.Capacity > 1 {
			continue
		}
		for j, tb := range b.tracks {
			if ta.ID == tb.ID {
				out = append(out, sharedTrack{ai: i, bi: j})
			}
		}
	}
	return out
}

func (o *Optimizer) extractPlan(events []*event, sol *milp.Solution) *model.ReschedulePlan {
	plan := &model.ReschedulePlan{}
	rerouted := make(map[string]bool)
	delayByTrain := make(map[string]float64)

	for _, e := range events {
		chosen := e.tracks[0]
		for i, y := range e.trackVars {
			if sol.Values[y] > 0.5 {
				chosen = e.tracks[i]
				break
			}
		}
		entry := sol.Values[e.entry]
		exit := sol.Values[e.exit]
		plan.Entries = append(plan.Entries, model.PlanEntry{
			TrainID:     e.train.ID,
			SegmentID:   e.leg().SegmentID,
			TrackID:     chosen.ID,
			EntryMinute: entry,
			ExitMinute:  exit,
		})
		if chosen.ID != e.leg().TrackID {
			rerouted[e.train.ID] = true
			seg := o.infra.Segment(e.leg().SegmentID)
			nominal := o.infra.Track(e.leg().TrackID)
			if seg != nil && nominal != nil {
				trav := traversalMinutes(chosen, seg)
				nomTrav := traversalMinutes(nominal, seg)
				if trav > nomTrav-o.params.RerouteSavingsMinutes {
					plan.Objective += o.params.ReroutePenalty
				}
			}
		}
		if d := exit - e.floorExit; d > 1e-9 {
			plan.Objective += o.params.DelayWeight * priorityFactor(e.train) * d
			if e.last {
				delayByTrain[e.train.ID] = d
			}
		}
	}

	for id := range rerouted {
		plan.ReroutedTrainIDs = append(plan.ReroutedTrainIDs, id)
	}
	sort.Strings(plan.ReroutedTrainIDs)
	for _, d := range delayByTrain {
		plan.TotalDelayMinutes += d
	}
	assignOrders(plan)
	return plan
}

// identityPlan propagates the current delayed schedule unchanged: nominal
// tracks, shifted times, no reordering.
func (o *Optimizer) identityPlan(w *Window) *model.ReschedulePlan {
	plan := &model.ReschedulePlan{Identity: true}
	for _, t := range w.Trains {
		first := t.LegIndex
		if t.OffsetKm > 0 || t.SpeedNow > 0 {
			first++
		}
		for i := first; i < len(t.Route); i++ {
			leg := &t.Route[i]
			if !w.Contains(leg.SegmentID) {
				continue
			}
			plan.Entries = append(plan.Entries, model.PlanEntry{
				TrainID:     t.ID,
				SegmentID:   leg.SegmentID,
				TrackID:     leg.TrackID,
				EntryMinute: leg.PlannedEntry,
				ExitMinute:  leg.PlannedExit,
			})
		}
		plan.TotalDelayMinutes += t.DelayMinutes
	}
	assignOrders(plan)
	return plan
}

// assignOrders ranks entries per (segment, track) by entry time.
func assignOrders(plan *model.ReschedulePlan) {
	type key struct{ seg, track string }
	groups := make(map[key][]int)
	for i, e := range plan.Entries {
		k := key{e.SegmentID, e.TrackID}
		groups[k] = append(groups[k], i)
	}
	for _, idxs := range groups {
		sort.Slice(idxs, func(a, b int) bool {
			return plan.Entries[idxs[a]].EntryMinute < plan.Entries[idxs[b]].EntryMinute
		})
		for rank, i := range idxs {
			plan.Entries[i].Order = rank
		}
	}
}
