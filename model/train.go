package model

// TrainType classifies a train for priority handling.
type TrainType int

const (
	TrainPassenger TrainType = iota
	TrainFreight
	TrainSpecial
)

func (t TrainType) String() string {
	switch t {
	case TrainPassenger:
		return "passenger"
	case TrainFreight:
		return "freight"
	case TrainSpecial:
		return "special"
	default:
		return "unknown"
	}
}

// TrainStatus is the mover-visible lifecycle state of a train.
type TrainStatus int

const (
	StatusWaiting TrainStatus = iota
	StatusRunning
	StatusDwelling
	StatusDelayed
	StatusCompleted
)

func (s TrainStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusRunning:
		return "running"
	case StatusDwelling:
		return "dwelling"
	case StatusDelayed:
		return "delayed"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Stop is one scheduled station visit. Times are minutes from the start of
// the operating day.
type Stop struct {
	Station   string
	Arrival   float64
	Departure float64
	// Mandatory stops survive every reschedule; only their times may shift.
	Mandatory bool
}

// RouteLeg is one mover-consumable segment traversal: which track to take and
// when the train is allowed to enter it.
type RouteLeg struct {
	SegmentID string
	TrackID   string

	// PlannedEntry and PlannedExit are minutes from day start. The mover
	// holds a train at the leg boundary until PlannedEntry has passed, which
	// is how plan ordering on shared tracks is enforced.
	PlannedEntry float64
	PlannedExit  float64

	// StopAfter is set when the train calls at the leg's end station.
	StopAfter    bool
	DwellMinutes float64
}

// Train bundles a timetable identity with mutable running state.
type Train struct {
	ID       string
	Type     TrainType
	Priority int
	SpeedKmh float64

	Stops []Stop
	Route []RouteLeg

	// Mutable running state, owned by the mover.
	Status     TrainStatus
	LegIndex   int
	OffsetKm   float64 // distance into the current leg's track
	SpeedNow   float64 // km/h, zero while waiting or dwelling
	DwellUntil float64 // minutes; valid while dwelling or held

	// DelayMinutes is cumulative: raised by disruptions and by optimizer
	// timing shifts, never silently reset.
	DelayMinutes float64

	Position Coordinate
}

// CurrentLeg returns the active route leg, or nil when the route is exhausted.
func (t *Train) CurrentLeg() *RouteLeg {
	if t.LegIndex < 0 || t.LegIndex >= len(t.Route) {
		return nil
	}
	return &t.Route[t.LegIndex]
}

// RemainingLegs returns the legs from the active one onward.
func (t *Train) RemainingLegs() []RouteLeg {
	if t.LegIndex >= len(t.Route) {
		return nil
	}
	return t.Route[t.LegIndex:]
}

// Clone returns a deep copy of the train, detached from the live schedule.
// Background optimization works on clones so ticks can keep mutating the
// originals.
func (t *Train) Clone() *Train {
	c := *t
	c.Stops = append([]Stop(nil), t.Stops...)
	c.Route = append([]RouteLeg(nil), t.Route...)
	return &c
}

// StopAt returns the scheduled stop for a station, or nil.
func (t *Train) StopAt(station string) *Stop {
	for i := range t.Stops {
		if t.Stops[i].Station == station {
			return &t.Stops[i]
		}
	}
	return nil
}
