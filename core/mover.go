package core

import (
	"container/heap"
	"fmt"

	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

// TrainSnapshot is the externally observable state of one train after a tick.
type TrainSnapshot struct {
	TrainID      string  `json:"train_id"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	SpeedKmh     float64 `json:"speed"`
	Status       string  `json:"status"`
	DelayMinutes float64 `json:"delay"`
	SegmentID    string  `json:"current_segment"`
	TrackKind    string  `json:"track_type"`
	NextStation  string  `json:"next_station"`
}

type eventKind int

const (
	// eventWake re-evaluates a held or dwelling train. Wakes are advisory:
	// a woken train re-checks its conditions and re-arms if still blocked,
	// so stale wakes left behind by a reschedule are harmless.
	eventWake eventKind = iota
)

type pendingEvent struct {
	at      float64 // simulation minute
	trainID string
	kind    eventKind
	seq     int
}

// eventHeap is a min-heap of pending events ordered by simulation time,
// with insertion order as the tiebreak for determinism.
type eventHeap []pendingEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(pendingEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	*h = old[:n-1]
	return ev
}

// Mover advances train positions through discrete events. It owns simulation
// time in minutes from day start and a pending-event heap for dwell
// completions and held segment entries. It is not safe for concurrent use;
// the simulation state serializes all calls.
type Mover struct {
	infra *kb.InfrastructureBase
	store *TrainStore

	nowMinutes float64
	pending    eventHeap
	seq        int
}

// NewMover constructs a mover over sealed infrastructure and a train store.
func NewMover(infra *kb.InfrastructureBase, store *TrainStore) *Mover {
	m := &Mover{infra: infra, store: store}
	heap.Init(&m.pending)
	return m
}

// NowMinutes returns the current simulation time in minutes from day start.
func (m *Mover) NowMinutes() float64 { return m.nowMinutes }

// Register arms the wake-up for a newly added train so it departs at its
// first leg's planned entry.
func (m *Mover) Register(t *model.Train) {
	if leg := t.CurrentLeg(); leg != nil {
		m.Wake(t.ID, leg.PlannedEntry)
	}
}

// Wake schedules a re-evaluation of the train at the given simulation minute.
func (m *Mover) Wake(trainID string, at float64) {
	if at < m.nowMinutes {
		at = m.nowMinutes
	}
	m.seq++
	heap.Push(&m.pending, pendingEvent{at: at, trainID: trainID, kind: eventWake, seq: m.seq})
}

// Advance moves simulation time forward by dt minutes, processes due events,
// moves running trains, and returns a snapshot of every non-completed train.
// A route referencing an unknown track is a fatal configuration error.
func (m *Mover) Advance(dtMinutes float64) (map[string]TrainSnapshot, error) {
	m.nowMinutes += dtMinutes

	for m.pending.Len() > 0 && m.pending[0].at <= m.nowMinutes {
		ev := heap.Pop(&m.pending).(pendingEvent)
		t, err := m.store.Get(ev.trainID)
		if err != nil {
			continue // train may have been superseded by a reset
		}
		m.evaluate(t)
	}

	snapshots := make(map[string]TrainSnapshot)
	for _, t := range m.store.Active() {
		if t.Status == model.StatusRunning || t.Status == model.StatusDelayed {
			if err := m.move(t, dtMinutes); err != nil {
				return nil, err
			}
		}
		if t.Status != model.StatusCompleted {
			snap, err := m.snapshot(t)
			if err != nil {
				return nil, err
			}
			snapshots[t.ID] = snap
		}
	}
	return snapshots, nil
}

// evaluate transitions a waiting or dwelling train when its blocking
// condition has cleared, re-arming the wake otherwise.
func (m *Mover) evaluate(t *model.Train) {
	switch t.Status {
	case model.StatusDwelling:
		if m.nowMinutes < t.DwellUntil {
			m.Wake(t.ID, t.DwellUntil)
			return
		}
		m.departOrHold(t)
	case model.StatusWaiting:
		m.departOrHold(t)
	}
}

// departOrHold starts the train on its current leg if the planned entry has
// passed, otherwise holds it and re-arms the wake.
func (m *Mover) departOrHold(t *model.Train) {
	leg := t.CurrentLeg()
	if leg == nil {
		m.complete(t)
		return
	}
	if m.nowMinutes < leg.PlannedEntry {
		t.Status = model.StatusWaiting
		t.SpeedNow = 0
		m.Wake(t.ID, leg.PlannedEntry)
		return
	}
	m.run(t)
}

func (m *Mover) run(t *model.Train) {
	// A disrupted train keeps reporting delayed while it carries delay.
	if t.DelayMinutes > 0 {
		t.Status = model.StatusDelayed
	} else {
		t.Status = model.StatusRunning
	}
	t.SpeedNow = t.SpeedKmh
}

func (m *Mover) complete(t *model.Train) {
	t.Status = model.StatusCompleted
	t.SpeedNow = 0
}

// move advances a running train along its assigned track by speed × dt.
func (m *Mover) move(t *model.Train, dtMinutes float64) error {
	leg := t.CurrentLeg()
	if leg == nil {
		m.complete(t)
		return nil
	}
	track := m.infra.Track(leg.TrackID)
	if track == nil {
		return fmt.Errorf("%w: train %q routed over unknown track %q",
			kb.ErrBadInfrastructure, t.ID, leg.TrackID)
	}

	lengthKm := m.trackLengthKm(track)
	t.OffsetKm += t.SpeedKmh * dtMinutes / 60.0

	if t.OffsetKm < lengthKm {
		return nil
	}

	// End of segment reached: dwell if the train calls here, otherwise roll
	// straight onto the next leg.
	t.OffsetKm = 0
	t.LegIndex++

	if leg.StopAfter {
		t.Status = model.StatusDwelling
		t.SpeedNow = 0
		t.DwellUntil = m.nowMinutes + leg.DwellMinutes
		m.Wake(t.ID, t.DwellUntil)
		return nil
	}
	m.departOrHold(t)
	return nil
}

func (m *Mover) trackLengthKm(track *model.Track) float64 {
	if len(track.Geometry) > 1 {
		return PolylineLengthKm(track.Geometry)
	}
	if seg := m.infra.Segment(track.SegmentID); seg != nil {
		return seg.LengthKm
	}
	return 0
}

// snapshot interpolates the train's display position from its track geometry.
func (m *Mover) snapshot(t *model.Train) (TrainSnapshot, error) {
	snap := TrainSnapshot{
		TrainID:      t.ID,
		SpeedKmh:     t.SpeedNow,
		Status:       t.Status.String(),
		DelayMinutes: t.DelayMinutes,
	}

	leg := t.CurrentLeg()
	if leg == nil {
		// Route exhausted but still dwelling at the terminus.
		if len(t.Route) > 0 {
			last := t.Route[len(t.Route)-1]
			if track := m.infra.Track(last.TrackID); track != nil && len(track.Geometry) > 0 {
				t.Position = track.Geometry[len(track.Geometry)-1]
			}
			snap.SegmentID = last.SegmentID
		}
		snap.Lat, snap.Lon = t.Position.Lat, t.Position.Lon
		return snap, nil
	}

	track := m.infra.Track(leg.TrackID)
	if track == nil {
		return TrainSnapshot{}, fmt.Errorf("%w: train %q routed over unknown track %q",
			kb.ErrBadInfrastructure, t.ID, leg.TrackID)
	}

	if lengthKm := m.trackLengthKm(track); lengthKm > 0 && len(track.Geometry) > 0 {
		t.Position = InterpolateAlong(track.Geometry, t.OffsetKm/lengthKm)
	}
	snap.Lat, snap.Lon = t.Position.Lat, t.Position.Lon
	snap.SegmentID = leg.SegmentID
	snap.TrackKind = track.Kind.String()
	if seg := m.infra.Segment(leg.SegmentID); seg != nil {
		snap.NextStation = seg.To
	}
	return snap, nil
}
