package service

import (
	"sort"

	"github.com/signalworks/corridor-simulator/core"
	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

// TickResult carries the per-train positions for one advanced tick.
type TickResult struct {
	NowMinutes float64                       `json:"now_minutes"`
	Positions  map[string]core.TrainSnapshot `json:"positions"`
}

// DisruptionRequest delays a train on one segment.
type DisruptionRequest struct {
	TrainID      string  `json:"train_id"`
	SegmentID    string  `json:"segment_id"`
	DelayMinutes float64 `json:"delay_minutes"`
	Reason       string  `json:"reason"`
}

// DisruptionResult reports the injection outcome, including the trains the
// reschedule moved onto a non-nominal track.
type DisruptionResult struct {
	Success               bool     `json:"success"`
	OptimizationTriggered bool     `json:"optimization_triggered"`
	ReroutedTrainIDs      []string `json:"rerouted_train_ids,omitempty"`
}

// StopRequest is one calling point of a requested special train.
type StopRequest struct {
	Station   string  `json:"station"`
	Arrival   float64 `json:"arrival"`
	Departure float64 `json:"departure"`
	Mandatory bool    `json:"mandatory"`
}

// SpecialTrainRequest inserts an unscheduled train mid-run.
type SpecialTrainRequest struct {
	TrainID  string        `json:"train_id,omitempty"`
	SpeedKmh float64       `json:"speed_kmh,omitempty"`
	Priority int           `json:"priority,omitempty"`
	Stops    []StopRequest `json:"stops"`
}

// SpecialTrainResult reports the assigned train ID.
type SpecialTrainResult struct {
	Success bool   `json:"success"`
	TrainID string `json:"train_id"`
}

// OptimizationResult summarises one synchronous rescheduling run.
type OptimizationResult struct {
	Success           bool     `json:"success"`
	Outcome           string   `json:"outcome"`
	Message           string   `json:"message,omitempty"`
	SolveTimeSeconds  float64  `json:"solve_time_seconds"`
	TotalDelayMinutes float64  `json:"total_delay_minutes"`
	ReroutedTrainIDs  []string `json:"rerouted_train_ids,omitempty"`
}

// StationView is the read-only station projection.
type StationView struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Platforms int     `json:"platforms"`
	Major     bool    `json:"major"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// TrackView is the read-only track projection.
type TrackView struct {
	ID               string  `json:"id"`
	Kind             string  `json:"kind"`
	Capacity         int     `json:"capacity"`
	TraversalMinutes float64 `json:"traversal_minutes"`
	ServesStations   bool    `json:"serves_stations"`
}

// SegmentView is the read-only segment projection, tracks main-first.
type SegmentView struct {
	ID             string      `json:"id"`
	From           string      `json:"from"`
	To             string      `json:"to"`
	LengthKm       float64     `json:"length_km"`
	NominalMinutes float64     `json:"nominal_minutes"`
	Tracks         []TrackView `json:"tracks"`
}

// InfrastructureView is the full static corridor description.
type InfrastructureView struct {
	Stations []StationView `json:"stations"`
	Segments []SegmentView `json:"segments"`
}

// TrainView is one row of the train list.
type TrainView struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Priority     int     `json:"priority"`
	Status       string  `json:"status"`
	DelayMinutes float64 `json:"delay_minutes"`
	Origin       string  `json:"origin"`
	Destination  string  `json:"destination"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
}

// StatsResult aggregates run health for dashboards.
type StatsResult struct {
	NowMinutes          float64 `json:"now_minutes"`
	Ticks               uint64  `json:"ticks"`
	TotalTrains         int     `json:"total_trains"`
	ActiveTrains        int     `json:"active_trains"`
	CompletedTrains     int     `json:"completed_trains"`
	OnTimeTrains        int     `json:"on_time_trains"`
	DelayedTrains       int     `json:"delayed_trains"`
	AverageDelayMinutes float64 `json:"average_delay_minutes"`
	TotalDelayMinutes   float64 `json:"total_delay_minutes"`
	ThroughputPerHour   float64 `json:"throughput_trains_per_hour"`
	Disruptions         int     `json:"disruptions"`
	PlansApplied        int     `json:"plans_applied"`
	Fallbacks           int     `json:"fallbacks"`
	LastOutcome         string  `json:"last_outcome,omitempty"`
}

// ResetResult acknowledges a simulation reset and counts the timetabled
// trains restored from the scenario.
type ResetResult struct {
	Success        bool `json:"success"`
	TrainsRestored int  `json:"trains_restored"`
}

func infrastructureView(infra *kb.InfrastructureBase) *InfrastructureView {
	view := &InfrastructureView{}
	for _, st := range infra.ListStations() {
		view.Stations = append(view.Stations, StationView{
			Code:      st.Code,
			Name:      st.Name,
			Platforms: st.Platforms,
			Major:     st.Major,
			Lat:       st.Position.Lat,
			Lon:       st.Position.Lon,
		})
	}
	for _, seg := range infra.ListSegments() {
		sv := SegmentView{
			ID:             seg.ID,
			From:           seg.From,
			To:             seg.To,
			LengthKm:       seg.LengthKm,
			NominalMinutes: seg.NominalMinutes,
		}
		for _, tr := range infra.TracksForSegment(seg.ID) {
			sv.Tracks = append(sv.Tracks, TrackView{
				ID:               tr.ID,
				Kind:             tr.Kind.String(),
				Capacity:         tr.Capacity,
				TraversalMinutes: tr.TraversalMinutes,
				ServesStations:   tr.ServesStations,
			})
		}
		view.Segments = append(view.Segments, sv)
	}
	return view
}

func trainViews(trains []*model.Train) []TrainView {
	views := make([]TrainView, 0, len(trains))
	for _, t := range trains {
		v := TrainView{
			ID:           t.ID,
			Type:         t.Type.String(),
			Priority:     t.Priority,
			Status:       t.Status.String(),
			DelayMinutes: t.DelayMinutes,
			Lat:          t.Position.Lat,
			Lon:          t.Position.Lon,
		}
		if len(t.Stops) > 0 {
			v.Origin = t.Stops[0].Station
			v.Destination = t.Stops[len(t.Stops)-1].Station
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}
