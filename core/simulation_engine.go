package core

import (
	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

// Engine binds the static infrastructure, the train store and the mover into
// one advanceable simulation. It is not concurrency-safe on its own; the
// simulation state serializes access.
type Engine struct {
	Infra  *kb.InfrastructureBase
	Trains *TrainStore
	Mover  *Mover

	tickListeners []func(minute float64, snaps map[string]TrainSnapshot)
}

// NewEngine wires an engine over sealed infrastructure.
func NewEngine(infra *kb.InfrastructureBase, trains *TrainStore) *Engine {
	return &Engine{
		Infra:  infra,
		Trains: trains,
		Mover:  NewMover(infra, trains),
	}
}

// RegisterTickListener adds a callback invoked after every tick with the
// fresh snapshot map.
func (e *Engine) RegisterTickListener(fn func(minute float64, snaps map[string]TrainSnapshot)) {
	e.tickListeners = append(e.tickListeners, fn)
}

// AddTrain builds the train's nominal main-track route, stores it, and arms
// its departure.
func (e *Engine) AddTrain(t *model.Train) error {
	route, err := BuildRoute(e.Infra, t)
	if err != nil {
		return err
	}
	t.Route = route
	t.Status = model.StatusWaiting
	if err := e.Trains.Add(t); err != nil {
		return err
	}
	e.Mover.Register(t)
	return nil
}

// Advance ticks the simulation forward by dt minutes.
func (e *Engine) Advance(dtMinutes float64) (map[string]TrainSnapshot, error) {
	snaps, err := e.Mover.Advance(dtMinutes)
	if err != nil {
		return nil, err
	}
	for _, fn := range e.tickListeners {
		fn(e.Mover.NowMinutes(), snaps)
	}
	return snaps, nil
}
