package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalworks/corridor-simulator/model"
)

var (
	ErrTrainExists   = errors.New("train already exists")
	ErrTrainNotFound = errors.New("train not found")
	// ErrTrainCompleted guards operations that only make sense for trains
	// still on the corridor.
	ErrTrainCompleted = errors.New("train already completed")
)

// TrainStore is the mutable per-train state: position, status, schedule,
// route and accumulated delay. All mutation goes through these methods; the
// pointers it hands out are owned by the store and must only be written
// while holding the simulation-state lock (single-writer discipline).
type TrainStore struct {
	mu     sync.RWMutex
	trains map[string]*model.Train
}

// NewTrainStore constructs an empty store.
func NewTrainStore() *TrainStore {
	return &TrainStore{trains: make(map[string]*model.Train)}
}

// Add registers a train. The ID must be unique.
func (s *TrainStore) Add(t *model.Train) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("nil or empty train")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trains[t.ID]; exists {
		return fmt.Errorf("%w: %q", ErrTrainExists, t.ID)
	}
	s.trains[t.ID] = t
	return nil
}

// Get returns a train by ID.
func (s *TrainStore) Get(id string) (*model.Train, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTrainNotFound, id)
	}
	return t, nil
}

// List returns all trains sorted by ID.
func (s *TrainStore) List() []*model.Train {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Train, 0, len(s.trains))
	for _, t := range s.trains {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns trains that have not completed their journey, sorted by ID.
func (s *TrainStore) Active() []*model.Train {
	var out []*model.Train
	for _, t := range s.List() {
		if t.Status != model.StatusCompleted {
			out = append(out, t)
		}
	}
	return out
}

// AddDelay raises a train's cumulative delay. Delay only ever grows through
// this method; there is deliberately no setter that could reset it.
func (s *TrainStore) AddDelay(id string, minutes float64) error {
	if minutes < 0 {
		return fmt.Errorf("negative delay %v for train %q", minutes, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trains[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTrainNotFound, id)
	}
	t.DelayMinutes += minutes
	return nil
}

// TotalDelayMinutes sums cumulative delay over all trains.
func (s *TrainStore) TotalDelayMinutes() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for _, t := range s.trains {
		total += t.DelayMinutes
	}
	return total
}
