// Package service is the boundary layer over the running simulation: it
// validates requests, calls into the simulation state and maps internal
// errors onto the two sentinels callers branch on.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalworks/corridor-simulator/internal/logging"
	"github.com/signalworks/corridor-simulator/internal/resched"
	"github.com/signalworks/corridor-simulator/internal/resched/milp"
	"github.com/signalworks/corridor-simulator/internal/sim/state"
	"github.com/signalworks/corridor-simulator/model"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
)

// Service exposes the simulator's boundary operations.
type Service struct {
	sim    *state.SimulationState
	log    logging.Logger
	tracer trace.Tracer
}

// New builds a service over the simulation state.
func New(sim *state.SimulationState, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{
		sim:    sim,
		log:    log,
		tracer: otel.Tracer("corridor-simulator/service"),
	}
}

// AdvanceTick moves the simulation clock forward and returns the fresh
// per-train positions.
func (s *Service) AdvanceTick(ctx context.Context, dtMinutes float64) (*TickResult, error) {
	if dtMinutes <= 0 {
		return nil, fmt.Errorf("%w: tick minutes must be positive, got %v", ErrInvalidRequest, dtMinutes)
	}

	ctx, span := s.tracer.Start(ctx, "service.AdvanceTick")
	defer span.End()

	snaps, err := s.sim.AdvanceTick(ctx, dtMinutes)
	if err != nil {
		return nil, err
	}
	return &TickResult{
		NowMinutes: s.sim.NowMinutes(),
		Positions:  snaps,
	}, nil
}

// InjectDisruption delays a train on a segment and reschedules around it
// before returning, so the result reports which trains the plan rerouted.
func (s *Service) InjectDisruption(ctx context.Context, req DisruptionRequest) (*DisruptionResult, error) {
	if strings.TrimSpace(req.TrainID) == "" {
		return nil, fmt.Errorf("%w: train_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.SegmentID) == "" {
		return nil, fmt.Errorf("%w: segment_id is required", ErrInvalidRequest)
	}
	if req.DelayMinutes <= 0 {
		return nil, fmt.Errorf("%w: delay_minutes must be positive, got %v", ErrInvalidRequest, req.DelayMinutes)
	}

	ctx, span := s.tracer.Start(ctx, "service.InjectDisruption",
		trace.WithAttributes(
			attribute.String("train_id", req.TrainID),
			attribute.String("segment_id", req.SegmentID),
			attribute.Float64("delay_minutes", req.DelayMinutes),
		))
	defer span.End()

	res, err := s.sim.InjectDisruption(ctx, model.Disruption{
		TrainID:      req.TrainID,
		SegmentID:    req.SegmentID,
		DelayMinutes: req.DelayMinutes,
		Reason:       req.Reason,
	})
	if err != nil {
		return nil, mapStateError(err)
	}
	out := &DisruptionResult{Success: true}
	if res != nil {
		out.OptimizationTriggered = true
		out.ReroutedTrainIDs = res.Plan.ReroutedTrainIDs
	}
	return out, nil
}

// InsertSpecialTrain adds an unscheduled train mid-run. Stops default to
// mandatory and the ID is generated when absent.
func (s *Service) InsertSpecialTrain(ctx context.Context, req SpecialTrainRequest) (*SpecialTrainResult, error) {
	if len(req.Stops) < 2 {
		return nil, fmt.Errorf("%w: a special train needs at least two stops, got %d", ErrInvalidRequest, len(req.Stops))
	}
	stops := make([]model.Stop, 0, len(req.Stops))
	for i, st := range req.Stops {
		if strings.TrimSpace(st.Station) == "" {
			return nil, fmt.Errorf("%w: stop[%d] station is required", ErrInvalidRequest, i)
		}
		if i > 0 && st.Arrival < req.Stops[i-1].Departure {
			return nil, fmt.Errorf("%w: stop[%d] arrives before the previous departure", ErrInvalidRequest, i)
		}
		stops = append(stops, model.Stop{
			Station:   st.Station,
			Arrival:   st.Arrival,
			Departure: st.Departure,
			Mandatory: st.Mandatory,
		})
	}

	speed := req.SpeedKmh
	if speed <= 0 {
		speed = 80
	}

	ctx, span := s.tracer.Start(ctx, "service.InsertSpecialTrain",
		trace.WithAttributes(
			attribute.String("origin", stops[0].Station),
			attribute.String("destination", stops[len(stops)-1].Station),
		))
	defer span.End()

	id, err := s.sim.InsertSpecialTrain(ctx, &model.Train{
		ID:       req.TrainID,
		SpeedKmh: speed,
		Priority: req.Priority,
		Stops:    stops,
	})
	if err != nil {
		// Duplicate IDs and route construction failures are both shaped by
		// the request.
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return &SpecialTrainResult{Success: true, TrainID: id}, nil
}

// TriggerManualOptimization runs a rescheduling solve around the given train
// synchronously and reports its outcome. Infeasible and timed-out solves fall
// back to the current schedule and are reported as unsuccessful.
func (s *Service) TriggerManualOptimization(ctx context.Context, trainID string) (*OptimizationResult, error) {
	if strings.TrimSpace(trainID) == "" {
		return nil, fmt.Errorf("%w: train_id is required", ErrInvalidRequest)
	}

	ctx, span := s.tracer.Start(ctx, "service.TriggerManualOptimization",
		trace.WithAttributes(attribute.String("train_id", trainID)))
	defer span.End()

	res, err := s.sim.OptimizeNow(ctx, trainID)
	if err != nil {
		return nil, mapStateError(err)
	}

	out := &OptimizationResult{
		Success:           res.Outcome != resched.OutcomeFallback,
		Outcome:           res.Outcome.String(),
		SolveTimeSeconds:  res.SolveTime.Seconds(),
		TotalDelayMinutes: res.Plan.TotalDelayMinutes,
		ReroutedTrainIDs:  res.Plan.ReroutedTrainIDs,
	}
	if !out.Success {
		switch res.Status {
		case milp.StatusInfeasible, milp.StatusTimeout:
			out.Message = fmt.Sprintf("solver %s, keeping current schedule", res.Status)
		default:
			out.Message = "no usable reschedule, keeping current schedule"
		}
	}
	return out, nil
}

// GetInfrastructure returns the static corridor description.
func (s *Service) GetInfrastructure(ctx context.Context) *InfrastructureView {
	_, span := s.tracer.Start(ctx, "service.GetInfrastructure")
	defer span.End()
	return infrastructureView(s.sim.Infrastructure())
}

// GetTrainList returns the train list sorted by ID.
func (s *Service) GetTrainList(ctx context.Context) []TrainView {
	_, span := s.tracer.Start(ctx, "service.GetTrainList")
	defer span.End()
	return trainViews(s.sim.Trains())
}

// Stats aggregates run health: fleet counts, punctuality and solver activity.
func (s *Service) Stats(ctx context.Context) *StatsResult {
	_, span := s.tracer.Start(ctx, "service.Stats")
	defer span.End()

	st := s.sim.Stats()
	out := &StatsResult{
		NowMinutes:        st.NowMinutes,
		Ticks:             st.Ticks,
		TotalTrains:       st.TotalTrains,
		ActiveTrains:      st.ActiveTrains,
		CompletedTrains:   st.TotalTrains - st.ActiveTrains,
		TotalDelayMinutes: st.TotalDelayMinutes,
		Disruptions:       st.Disruptions,
		PlansApplied:      st.PlansApplied,
		Fallbacks:         st.Fallbacks,
		LastOutcome:       st.LastOutcome,
	}
	for _, t := range s.sim.Trains() {
		if t.DelayMinutes > 0 {
			out.DelayedTrains++
		} else {
			out.OnTimeTrains++
		}
	}
	if out.TotalTrains > 0 {
		out.AverageDelayMinutes = out.TotalDelayMinutes / float64(out.TotalTrains)
	}
	if st.NowMinutes > 0 {
		out.ThroughputPerHour = float64(out.CompletedTrains) / (st.NowMinutes / 60)
	}
	return out
}

// Reset rebuilds the simulation from the loaded scenario: infrastructure and
// timetabled trains survive, the clock, counters and mid-run specials do not.
func (s *Service) Reset(ctx context.Context) *ResetResult {
	ctx, span := s.tracer.Start(ctx, "service.Reset")
	defer span.End()

	restored := s.sim.Reset(ctx)
	return &ResetResult{Success: true, TrainsRestored: restored}
}

// mapStateError translates state sentinels into the service's error surface.
func mapStateError(err error) error {
	switch {
	case errors.Is(err, state.ErrTrainNotFound), errors.Is(err, state.ErrSegmentNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, state.ErrTrainCompleted), errors.Is(err, state.ErrTrainExists):
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	default:
		return err
	}
}
