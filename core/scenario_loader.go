package core

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

// ScenarioSummary reports what was loaded. Mainly useful for startup logging.
type ScenarioSummary struct {
	StationCodes []string
	SegmentIDs   []string
	TrackIDs     []string
}

// internal GeoJSON shapes – unexported so we're free to evolve them.
type geoFeatureCollection struct {
	Features []geoFeature `json:"features"`
}

type geoFeature struct {
	Properties geoProperties `json:"properties"`
	Geometry   geoGeometry   `json:"geometry"`
}

type geoGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type geoProperties struct {
	Name        string  `json:"name"`
	StationCode string  `json:"station_code"`
	Platforms   int     `json:"platforms"`
	DwellTime   float64 `json:"dwell_time"`

	TrackID        string  `json:"track_id"`
	TrackType      string  `json:"track_type"`
	Capacity       int     `json:"capacity"`
	Segment        string  `json:"segment"`
	TraversalTime  float64 `json:"traversal_minutes"`
	ServesStations *bool   `json:"serves_stations"`
}

// LoadInfrastructure reads a GeoJSON scenario (stations as Points, tracks as
// LineStrings) into the infrastructure base and seals it. Structural problems
// are fatal per the fail-fast contract; the caller should abort startup.
func LoadInfrastructure(b *kb.InfrastructureBase, r io.Reader) (*ScenarioSummary, error) {
	if b == nil {
		return nil, fmt.Errorf("LoadInfrastructure: infrastructure base is nil")
	}

	var fc geoFeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("LoadInfrastructure: decode failed: %w", err)
	}

	summary := &ScenarioSummary{}

	// Pass 1: stations, so segments can reference them.
	for _, f := range fc.Features {
		if f.Geometry.Type != "Point" {
			continue
		}
		var lonlat [2]float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &lonlat); err != nil {
			return nil, fmt.Errorf("LoadInfrastructure: station %q coordinates: %w", f.Properties.StationCode, err)
		}
		platforms := f.Properties.Platforms
		if platforms == 0 {
			platforms = 2
		}
		st := &model.Station{
			Code:         f.Properties.StationCode,
			Name:         f.Properties.Name,
			Platforms:    platforms,
			Major:        platforms >= 5,
			Position:     model.Coordinate{Lat: lonlat[1], Lon: lonlat[0]},
			DwellMinutes: f.Properties.DwellTime,
		}
		if err := b.AddStation(st); err != nil {
			return nil, err
		}
		summary.StationCodes = append(summary.StationCodes, st.Code)
	}

	// Pass 2: tracks; segments are created on first sight of their ID.
	for _, f := range fc.Features {
		if f.Geometry.Type != "LineString" {
			continue
		}
		var raw [][2]float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &raw); err != nil {
			return nil, fmt.Errorf("LoadInfrastructure: track %q coordinates: %w", f.Properties.Name, err)
		}
		coords := make([]model.Coordinate, len(raw))
		for i, c := range raw {
			coords[i] = model.Coordinate{Lat: c[1], Lon: c[0]}
		}

		segID := f.Properties.Segment
		from, to, ok := strings.Cut(segID, "-")
		if !ok {
			return nil, fmt.Errorf("%w: track %q has malformed segment %q (want FROM-TO)",
				kb.ErrBadInfrastructure, f.Properties.Name, segID)
		}

		if b.Segment(segID) == nil {
			lengthKm := PolylineLengthKm(coords)
			seg := &model.Segment{
				ID:             segID,
				From:           from,
				To:             to,
				LengthKm:       lengthKm,
				NominalMinutes: f.Properties.TraversalTime,
			}
			if err := b.AddSegment(seg); err != nil {
				return nil, err
			}
			summary.SegmentIDs = append(summary.SegmentIDs, segID)
		}

		capacity := f.Properties.Capacity
		if capacity == 0 {
			capacity = 1
		}
		trackID := f.Properties.TrackID
		if trackID == "" {
			trackID = f.Properties.Name
		}
		kind := trackKindFromString(f.Properties.TrackType)
		serves := kind != model.TrackSecondary
		if f.Properties.ServesStations != nil {
			serves = *f.Properties.ServesStations
		}
		track := &model.Track{
			ID:               trackID,
			SegmentID:        segID,
			Kind:             kind,
			Capacity:         capacity,
			TraversalMinutes: f.Properties.TraversalTime,
			ServesStations:   serves,
			Geometry:         coords,
		}
		if err := b.AddTrack(track); err != nil {
			return nil, err
		}
		summary.TrackIDs = append(summary.TrackIDs, trackID)
	}

	if err := b.Seal(); err != nil {
		return nil, err
	}
	return summary, nil
}

// ScheduleRow is one CSV timetable line.
type ScheduleRow struct {
	TrainID        string  `csv:"train_id"`
	DepMinute      float64 `csv:"dep_time"`
	ArrMinute      float64 `csv:"arr_time"`
	SpeedKmh       float64 `csv:"speed_kmh"`
	Stops          string  `csv:"stops"`           // pipe-separated station codes
	MandatoryStops string  `csv:"mandatory_stops"` // subset of Stops; empty means all
	TrainType      string  `csv:"train_type"`
	Priority       int     `csv:"priority"`
}

// LoadSchedules reads the timetable CSV and builds trains with stop times
// derived from the corridor's nominal traversal times.
func LoadSchedules(infra *kb.InfrastructureBase, r io.Reader) ([]*model.Train, error) {
	var rows []*ScheduleRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("LoadSchedules: %w", err)
	}

	trains := make([]*model.Train, 0, len(rows))
	for _, row := range rows {
		t, err := TrainFromSchedule(infra, row)
		if err != nil {
			return nil, err
		}
		trains = append(trains, t)
	}
	return trains, nil
}

// TrainFromSchedule expands one timetable row into a Train with per-stop
// arrival/departure minutes.
func TrainFromSchedule(infra *kb.InfrastructureBase, row *ScheduleRow) (*model.Train, error) {
	codes := splitCodes(row.Stops)
	if len(codes) < 2 {
		return nil, fmt.Errorf("%w: train %q lists %d stops", kb.ErrBadInfrastructure, row.TrainID, len(codes))
	}

	mandatory := make(map[string]bool)
	for _, c := range splitCodes(row.MandatoryStops) {
		mandatory[c] = true
	}
	allMandatory := len(mandatory) == 0

	segs, err := segmentPath(infra, codes[0], codes[len(codes)-1])
	if err != nil {
		return nil, fmt.Errorf("train %q: %w", row.TrainID, err)
	}

	calling := make(map[string]bool, len(codes))
	for _, c := range codes {
		calling[c] = true
	}

	stops := make([]model.Stop, 0, len(codes))
	clock := row.DepMinute
	stops = append(stops, model.Stop{
		Station:   codes[0],
		Arrival:   row.DepMinute,
		Departure: row.DepMinute,
		Mandatory: allMandatory || mandatory[codes[0]],
	})
	for _, seg := range segs {
		main := infra.MainTrack(seg.ID)
		clock += traversalMinutes(main, seg)
		if !calling[seg.To] {
			continue
		}
		stop := model.Stop{
			Station:   seg.To,
			Arrival:   clock,
			Mandatory: allMandatory || mandatory[seg.To],
		}
		stop.Departure = clock + dwellFor(infra, seg.To, nil)
		clock = stop.Departure
		stops = append(stops, stop)
	}
	// The terminus has no onward departure.
	stops[len(stops)-1].Departure = stops[len(stops)-1].Arrival

	return &model.Train{
		ID:       row.TrainID,
		Type:     trainTypeFromString(row.TrainType),
		Priority: row.Priority,
		SpeedKmh: row.SpeedKmh,
		Stops:    stops,
		Status:   model.StatusWaiting,
	}, nil
}

func splitCodes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// trackKindFromString maps the GeoJSON track_type to a TrackKind. Kept
// tolerant: unknown values default to the main line.
func trackKindFromString(s string) model.TrackKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "siding", "loop":
		return model.TrackSiding
	case "secondary", "bypass":
		return model.TrackSecondary
	default:
		return model.TrackMain
	}
}

func trainTypeFromString(s string) model.TrainType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "freight", "goods":
		return model.TrainFreight
	case "special":
		return model.TrainSpecial
	default:
		return model.TrainPassenger
	}
}
