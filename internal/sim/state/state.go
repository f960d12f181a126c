// Package state coordinates the live simulation: the ticking engine, the
// disruption intake and the asynchronous optimizer, all serialised behind one
// coarse lock.
package state

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalworks/corridor-simulator/core"
	"github.com/signalworks/corridor-simulator/internal/logging"
	"github.com/signalworks/corridor-simulator/internal/resched"
	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

// Re-export the sentinel errors callers are expected to branch on, so the
// service layer can depend on state.* alone.
var (
	ErrTrainExists     = core.ErrTrainExists
	ErrTrainNotFound   = core.ErrTrainNotFound
	ErrTrainCompleted  = core.ErrTrainCompleted
	ErrSegmentNotFound = kb.ErrSegmentNotFound
)

// MetricsRecorder receives simulation-level observations. All methods must be
// safe for concurrent use.
type MetricsRecorder interface {
	SetSimCounts(activeTrains int, totalDelayMinutes float64)
	RecordTick()
	RecordSolve(outcome string, seconds float64)
}

// Stats is a point-in-time summary of the running simulation.
type Stats struct {
	NowMinutes        float64
	Ticks             uint64
	ActiveTrains      int
	TotalTrains       int
	TotalDelayMinutes float64
	Disruptions       int
	PlansApplied      int
	Fallbacks         int
	LastOutcome       string
	SolveInFlight     bool
}

// SimulationState owns the corridor simulation. The mutex serialises ticks,
// disruption intake and plan application; optimizer solves run in the
// background on train snapshots and their results are applied between ticks.
type SimulationState struct {
	mu sync.Mutex

	engine    *core.Engine
	optimizer *resched.Optimizer
	params    resched.Params

	log     logging.Logger
	metrics MetricsRecorder

	ticks        uint64
	disruptions  int
	plansApplied int
	fallbacks    int
	lastOutcome  string

	// solveGen invalidates in-flight solves: a result is only applied when
	// its generation still matches.
	solveGen uint64
	solving  bool
	pending  []string

	// seeds are pristine copies of the timetabled trains, kept so Reset can
	// rebuild the run from the loaded scenario.
	seeds []*model.Train

	wg sync.WaitGroup
}

// Option customises SimulationState construction.
type Option func(*SimulationState)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *SimulationState) {
		s.metrics = m
	}
}

// WithParams overrides the optimizer tunables.
func WithParams(p resched.Params) Option {
	return func(s *SimulationState) {
		s.params = p
	}
}

func New(engine *core.Engine, log logging.Logger, opts ...Option) *SimulationState {
	if log == nil {
		log = logging.Noop()
	}
	s := &SimulationState{
		engine: engine,
		params: resched.DefaultParams(),
		log:    log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.optimizer = resched.NewOptimizer(engine.Infra, s.params, log)
	s.updateMetricsLocked()
	return s
}

// Infrastructure exposes the sealed infrastructure base.
func (s *SimulationState) Infrastructure() *kb.InfrastructureBase {
	return s.engine.Infra
}

// AddTrain registers a timetabled train before or during the run. The train's
// schedule is retained as scenario seed so a reset restores it.
func (s *SimulationState) AddTrain(t *model.Train) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seed := t.Clone()
	if err := s.engine.AddTrain(t); err != nil {
		return err
	}
	s.seeds = append(s.seeds, seed)
	s.updateMetricsLocked()
	return nil
}

// AdvanceTick moves the simulation clock forward by dtMinutes and returns the
// per-train snapshots for the new instant.
func (s *SimulationState) AdvanceTick(ctx context.Context, dtMinutes float64) (map[string]core.TrainSnapshot, error) {
	if dtMinutes <= 0 {
		return nil, fmt.Errorf("tick must be positive, got %v", dtMinutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snaps, err := s.engine.Advance(dtMinutes)
	if err != nil {
		s.log.Error(ctx, "tick failed", logging.Any("error", err))
		return nil, err
	}
	s.ticks++
	if s.metrics != nil {
		s.metrics.RecordTick()
	}
	s.updateMetricsLocked()
	return snaps, nil
}

// NowMinutes reports the simulation clock.
func (s *SimulationState) NowMinutes() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Mover.NowMinutes()
}

// InjectDisruption delays a train on a segment and reschedules around it
// before returning, so the caller sees which trains the plan rerouted. A nil
// result with a nil error means the disruption landed but no reschedule
// window could be cut around the train.
func (s *SimulationState) InjectDisruption(ctx context.Context, d model.Disruption) (*resched.Result, error) {
	if d.DelayMinutes <= 0 {
		return nil, fmt.Errorf("disruption delay must be positive, got %v", d.DelayMinutes)
	}
	ctx, reqLog := logging.WithRunLogger(ctx, s.log)

	s.mu.Lock()
	if s.engine.Infra.Segment(d.SegmentID) == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", kb.ErrSegmentNotFound, d.SegmentID)
	}
	if d.Timestamp == 0 {
		d.Timestamp = s.engine.Mover.NowMinutes()
	}
	if err := core.ApplyDisruption(s.engine.Infra, s.engine.Trains, d); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.disruptions++
	reqLog.Info(ctx, "disruption injected",
		logging.String("train_id", d.TrainID),
		logging.String("segment_id", d.SegmentID),
		logging.Any("delay_minutes", d.DelayMinutes),
		logging.String("reason", d.Reason))

	w, err := resched.BuildWindow(s.engine.Trains, d.TrainID, s.engine.Mover.NowMinutes(), s.params)
	if err != nil {
		s.mu.Unlock()
		reqLog.Warn(ctx, "could not cut a reschedule window", logging.Any("error", err))
		return nil, nil
	}
	s.solveGen++
	gen := s.solveGen
	s.mu.Unlock()

	return s.finishSolve(ctx, gen, w), nil
}

// InsertSpecialTrain adds an unscheduled train mid-run and reschedules the
// traffic around it. Missing ID and stop policy get operational defaults:
// a generated SPL identifier and every listed stop mandatory.
func (s *SimulationState) InsertSpecialTrain(ctx context.Context, t *model.Train) (string, error) {
	if t == nil || len(t.Stops) < 2 {
		return "", fmt.Errorf("special train needs at least two stops")
	}
	if t.ID == "" {
		t.ID = "SPL-" + strings.ToUpper(uuid.NewString()[:8])
	}
	t.Type = model.TrainSpecial
	if t.Priority == 0 {
		t.Priority = 1
	}
	anyMandatory := false
	for _, stop := range t.Stops {
		if stop.Mandatory {
			anyMandatory = true
			break
		}
	}
	if !anyMandatory {
		for i := range t.Stops {
			t.Stops[i].Mandatory = true
		}
	}

	ctx, reqLog := logging.WithRunLogger(ctx, s.log)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.AddTrain(t); err != nil {
		return "", err
	}
	s.updateMetricsLocked()
	reqLog.Info(ctx, "special train inserted",
		logging.String("train_id", t.ID),
		logging.String("origin", t.Stops[0].Station),
		logging.String("destination", t.Stops[len(t.Stops)-1].Station))

	if err := s.requestSolveLocked(ctx, t.ID); err != nil {
		reqLog.Warn(ctx, "could not start rescheduling", logging.Any("error", err))
	}
	return t.ID, nil
}

// OptimizeNow runs one rescheduling solve synchronously and applies its plan
// before returning. Any background solve still in flight is superseded and its
// result discarded.
func (s *SimulationState) OptimizeNow(ctx context.Context, trainID string) (*resched.Result, error) {
	ctx, _ = logging.WithRunLogger(ctx, s.log)

	s.mu.Lock()
	w, err := resched.BuildWindow(s.engine.Trains, trainID, s.engine.Mover.NowMinutes(), s.params)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.solveGen++
	gen := s.solveGen
	s.mu.Unlock()

	return s.finishSolve(ctx, gen, w), nil
}

// finishSolve runs the optimizer for an already-cut window and applies the
// result under the lock, unless a newer request superseded this generation
// while the solver ran.
func (s *SimulationState) finishSolve(ctx context.Context, gen uint64, w *resched.Window) *resched.Result {
	res := s.optimizer.Optimize(ctx, w)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.solveGen {
		s.log.Warn(ctx, "synchronous solve superseded, discarding result",
			logging.String("train_id", w.TrainID))
		return res
	}
	s.applyResultLocked(ctx, res)
	return res
}

// TriggerOptimization starts a manual rescheduling run around a train.
func (s *SimulationState) TriggerOptimization(ctx context.Context, trainID string) error {
	ctx, reqLog := logging.WithRunLogger(ctx, s.log)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requestSolveLocked(ctx, trainID); err != nil {
		return err
	}
	reqLog.Info(ctx, "manual optimization requested", logging.String("train_id", trainID))
	return nil
}

// Trains returns the full train list sorted by ID. Callers must treat the
// returned trains as read-only.
func (s *SimulationState) Trains() []*model.Train {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Trains.List()
}

// Train fetches one train by ID. Read-only for callers.
func (s *SimulationState) Train(id string) (*model.Train, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Trains.Get(id)
}

// Stats summarises the run.
func (s *SimulationState) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		NowMinutes:        s.engine.Mover.NowMinutes(),
		Ticks:             s.ticks,
		ActiveTrains:      len(s.engine.Trains.Active()),
		TotalTrains:       len(s.engine.Trains.List()),
		TotalDelayMinutes: s.engine.Trains.TotalDelayMinutes(),
		Disruptions:       s.disruptions,
		PlansApplied:      s.plansApplied,
		Fallbacks:         s.fallbacks,
		LastOutcome:       s.lastOutcome,
		SolveInFlight:     s.solving,
	}
}

// Reset rebuilds the run from the static scenario: the sealed infrastructure
// stays, the timetabled trains come back on their original schedules, and the
// clock, counters and in-flight solves are discarded. Special trains inserted
// mid-run are not part of the scenario and do not come back. Returns the
// number of trains restored.
func (s *SimulationState) Reset(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info(ctx, "resetting simulation",
		logging.Int("trains", len(s.engine.Trains.List())),
		logging.Any("now_minutes", s.engine.Mover.NowMinutes()))

	s.engine = core.NewEngine(s.engine.Infra, core.NewTrainStore())
	restored := 0
	for _, seed := range s.seeds {
		if err := s.engine.AddTrain(seed.Clone()); err != nil {
			s.log.Error(ctx, "could not restore timetabled train",
				logging.String("train_id", seed.ID), logging.Any("error", err))
			continue
		}
		restored++
	}
	s.ticks = 0
	s.disruptions = 0
	s.plansApplied = 0
	s.fallbacks = 0
	s.lastOutcome = ""
	s.solveGen++ // orphan any in-flight solve
	s.solving = false
	s.pending = nil
	s.updateMetricsLocked()
	return restored
}

// WaitForSolves blocks until every launched solve has finished. Intended for
// shutdown and tests.
func (s *SimulationState) WaitForSolves() {
	s.wg.Wait()
}

// requestSolveLocked starts a background solve, or queues the request when
// one is already in flight. Caller must hold s.mu.
func (s *SimulationState) requestSolveLocked(ctx context.Context, trainID string) error {
	if s.solving {
		s.pending = append(s.pending, trainID)
		s.log.Debug(ctx, "solve in flight, queueing request", logging.String("train_id", trainID))
		return nil
	}
	return s.launchSolveLocked(ctx, trainID)
}

func (s *SimulationState) launchSolveLocked(ctx context.Context, trainID string) error {
	w, err := resched.BuildWindow(s.engine.Trains, trainID, s.engine.Mover.NowMinutes(), s.params)
	if err != nil {
		return err
	}
	s.solving = true
	s.solveGen++
	gen := s.solveGen
	s.wg.Add(1)
	go s.runSolve(context.WithoutCancel(ctx), gen, w)
	return nil
}

func (s *SimulationState) runSolve(ctx context.Context, gen uint64, w *resched.Window) {
	defer s.wg.Done()

	ctx, span := otel.Tracer("corridor-simulator/state").Start(ctx, "state.RunSolve",
		trace.WithAttributes(attribute.String("train_id", w.TrainID)))
	defer span.End()

	res := s.optimizer.Optimize(ctx, w)
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.solveGen {
		s.log.Warn(ctx, "discarding stale reschedule result",
			logging.String("train_id", w.TrainID))
	} else {
		s.applyResultLocked(ctx, res)
	}
	s.solving = false

	if len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		if err := s.launchSolveLocked(ctx, next); err != nil {
			s.log.Warn(ctx, "queued rescheduling could not start",
				logging.String("train_id", next), logging.Any("error", err))
		}
	}
}

// applyResultLocked validates and writes a plan onto the live trains.
// Caller must hold s.mu.
func (s *SimulationState) applyResultLocked(ctx context.Context, res *resched.Result) {
	plan := res.Plan
	if !plan.Identity {
		if err := resched.ValidatePlan(s.engine.Infra, plan, s.params.HeadwayMinutes); err != nil {
			s.log.Error(ctx, "solver plan failed validation, keeping current schedule",
				logging.Any("error", err))
			s.fallbacks++
			s.lastOutcome = resched.OutcomeFallback.String()
			if s.metrics != nil {
				s.metrics.RecordSolve(resched.OutcomeFallback.String(), res.SolveTime.Seconds())
			}
			return
		}
	}

	updated := resched.ApplyPlan(s.engine.Infra, s.engine.Trains, s.engine.Mover, plan)
	s.plansApplied++
	if res.Outcome == resched.OutcomeFallback {
		s.fallbacks++
	}
	s.lastOutcome = res.Outcome.String()
	if s.metrics != nil {
		s.metrics.RecordSolve(res.Outcome.String(), res.SolveTime.Seconds())
	}
	s.updateMetricsLocked()

	s.log.Info(ctx, "reschedule plan applied",
		logging.String("outcome", res.Outcome.String()),
		logging.Int("entries", len(plan.Entries)),
		logging.Int("trains_updated", updated),
		logging.Any("total_delay_minutes", plan.TotalDelayMinutes),
		logging.Any("rerouted", plan.ReroutedTrainIDs))
}

// updateMetricsLocked pushes the current fleet gauges. Caller must hold s.mu.
func (s *SimulationState) updateMetricsLocked() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetSimCounts(len(s.engine.Trains.Active()), s.engine.Trains.TotalDelayMinutes())
}
