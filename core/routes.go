package core

import (
	"fmt"

	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

// BuildRoute walks the corridor from the train's first to last stop and
// produces main-track route legs with nominal timings. Planned entries honour
// both the running chain (previous exit plus dwell) and the published
// departure time at each calling point, whichever is later.
func BuildRoute(infra *kb.InfrastructureBase, t *model.Train) ([]model.RouteLeg, error) {
	if len(t.Stops) < 2 {
		return nil, fmt.Errorf("%w: train %q needs at least two stops", kb.ErrBadInfrastructure, t.ID)
	}

	origin := t.Stops[0].Station
	dest := t.Stops[len(t.Stops)-1].Station

	segs, err := segmentPath(infra, origin, dest)
	if err != nil {
		return nil, fmt.Errorf("train %q: %w", t.ID, err)
	}

	legs := make([]model.RouteLeg, 0, len(segs))
	clock := t.Stops[0].Departure

	for _, seg := range segs {
		main := infra.MainTrack(seg.ID)
		if main == nil {
			return nil, fmt.Errorf("%w: segment %q has no main track", kb.ErrBadInfrastructure, seg.ID)
		}

		leg := model.RouteLeg{
			SegmentID:    seg.ID,
			TrackID:      main.ID,
			PlannedEntry: clock,
			PlannedExit:  clock + traversalMinutes(main, seg),
		}

		if stop := t.StopAt(seg.To); stop != nil {
			leg.StopAfter = true
			leg.DwellMinutes = dwellFor(infra, seg.To, stop)
			// Hold to the published departure when the timetable is slack.
			next := leg.PlannedExit + leg.DwellMinutes
			if stop.Departure > next {
				next = stop.Departure
			}
			clock = next
		} else {
			clock = leg.PlannedExit
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// segmentPath follows From→To segment links along the linear corridor.
func segmentPath(infra *kb.InfrastructureBase, origin, dest string) ([]*model.Segment, error) {
	byFrom := make(map[string]*model.Segment)
	for _, seg := range infra.ListSegments() {
		byFrom[seg.From] = seg
	}

	var path []*model.Segment
	at := origin
	for at != dest {
		seg, ok := byFrom[at]
		if !ok {
			return nil, fmt.Errorf("%w: no segment continues from station %q toward %q",
				kb.ErrBadInfrastructure, at, dest)
		}
		path = append(path, seg)
		at = seg.To
		if len(path) > len(byFrom) {
			return nil, fmt.Errorf("%w: corridor loop between %q and %q",
				kb.ErrBadInfrastructure, origin, dest)
		}
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: origin %q equals destination", kb.ErrBadInfrastructure, origin)
	}
	return path, nil
}

// traversalMinutes prefers the track's own timing, falling back to the
// segment's nominal time.
func traversalMinutes(track *model.Track, seg *model.Segment) float64 {
	if track.TraversalMinutes > 0 {
		return track.TraversalMinutes
	}
	return seg.NominalMinutes
}

// dwellFor resolves a stop's dwell from the stop itself or the station default.
func dwellFor(infra *kb.InfrastructureBase, station string, stop *model.Stop) float64 {
	if stop != nil && stop.Departure > stop.Arrival {
		return stop.Departure - stop.Arrival
	}
	if st := infra.Station(station); st != nil && st.DwellMinutes > 0 {
		return st.DwellMinutes
	}
	return 1
}
