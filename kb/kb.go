package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalworks/corridor-simulator/model"
)

var (
	ErrStationExists   = errors.New("station already exists")
	ErrStationNotFound = errors.New("station not found")
	ErrSegmentExists   = errors.New("segment already exists")
	ErrSegmentNotFound = errors.New("segment not found")
	ErrTrackExists     = errors.New("track already exists")
	ErrTrackNotFound   = errors.New("track not found")
	// ErrBadInfrastructure marks fatal static-data problems. It is surfaced
	// at load time and never retried.
	ErrBadInfrastructure = errors.New("invalid infrastructure")
	// ErrSealed is returned by mutators once the KB is read-only.
	ErrSealed = errors.New("infrastructure is sealed")
)

// InfrastructureBase is the in-memory store for the static corridor graph:
// stations, segments and their tracks. It is populated at startup, validated,
// then sealed; after Seal it is read-only and safe for concurrent use.
type InfrastructureBase struct {
	mu sync.RWMutex

	stations map[string]*model.Station
	segments map[string]*model.Segment
	tracks   map[string]*model.Track

	tracksBySegment map[string][]*model.Track

	sealed bool
}

// NewInfrastructureBase constructs an empty infrastructure base.
func NewInfrastructureBase() *InfrastructureBase {
	return &InfrastructureBase{
		stations:        make(map[string]*model.Station),
		segments:        make(map[string]*model.Segment),
		tracks:          make(map[string]*model.Track),
		tracksBySegment: make(map[string][]*model.Track),
	}
}

// AddStation registers a station. The code must be unique.
func (b *InfrastructureBase) AddStation(s *model.Station) error {
	if s == nil || s.Code == "" {
		return fmt.Errorf("%w: nil or empty station", ErrBadInfrastructure)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrSealed
	}
	if _, exists := b.stations[s.Code]; exists {
		return fmt.Errorf("%w: %q", ErrStationExists, s.Code)
	}
	b.stations[s.Code] = s
	return nil
}

// AddSegment registers a segment. Both endpoint stations must already exist.
func (b *InfrastructureBase) AddSegment(s *model.Segment) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: nil or empty segment", ErrBadInfrastructure)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrSealed
	}
	if _, exists := b.segments[s.ID]; exists {
		return fmt.Errorf("%w: %q", ErrSegmentExists, s.ID)
	}
	if _, ok := b.stations[s.From]; !ok {
		return fmt.Errorf("%w: segment %q references unknown station %q", ErrBadInfrastructure, s.ID, s.From)
	}
	if _, ok := b.stations[s.To]; !ok {
		return fmt.Errorf("%w: segment %q references unknown station %q", ErrBadInfrastructure, s.ID, s.To)
	}
	b.segments[s.ID] = s
	return nil
}

// AddTrack registers a track under its owning segment.
func (b *InfrastructureBase) AddTrack(t *model.Track) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: nil or empty track", ErrBadInfrastructure)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrSealed
	}
	if _, exists := b.tracks[t.ID]; exists {
		return fmt.Errorf("%w: %q", ErrTrackExists, t.ID)
	}
	seg, ok := b.segments[t.SegmentID]
	if !ok {
		return fmt.Errorf("%w: track %q references unknown segment %q", ErrBadInfrastructure, t.ID, t.SegmentID)
	}
	if t.Capacity < 1 {
		return fmt.Errorf("%w: track %q has capacity %d", ErrBadInfrastructure, t.ID, t.Capacity)
	}
	b.tracks[t.ID] = t
	b.tracksBySegment[t.SegmentID] = append(b.tracksBySegment[t.SegmentID], t)
	seg.TrackIDs = append(seg.TrackIDs, t.ID)
	return nil
}

// Seal validates the assembled graph and makes the base read-only. Every
// segment needs at least one track, and every segment must have a main track
// so the identity fallback plan is always expressible.
func (b *InfrastructureBase) Seal() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id := range b.segments {
		tracks := b.tracksBySegment[id]
		if len(tracks) == 0 {
			return fmt.Errorf("%w: segment %q has no tracks", ErrBadInfrastructure, id)
		}
		hasMain := false
		for _, t := range tracks {
			if t.Kind == model.TrackMain {
				hasMain = true
			}
		}
		if !hasMain {
			return fmt.Errorf("%w: segment %q has no main track", ErrBadInfrastructure, id)
		}
	}
	b.sealed = true
	return nil
}

// Station returns a station by code, or nil.
func (b *InfrastructureBase) Station(code string) *model.Station {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stations[code]
}

// Segment returns a segment by ID, or nil.
func (b *InfrastructureBase) Segment(id string) *model.Segment {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.segments[id]
}

// Track returns a track by ID, or nil.
func (b *InfrastructureBase) Track(id string) *model.Track {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tracks[id]
}

// TracksForSegment returns the tracks of a segment, main line first.
func (b *InfrastructureBase) TracksForSegment(segmentID string) []*model.Track {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tracks := b.tracksBySegment[segmentID]
	out := make([]*model.Track, len(tracks))
	copy(out, tracks)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Kind < out[j].Kind
	})
	return out
}

// MainTrack returns the main track of a segment, or nil.
func (b *InfrastructureBase) MainTrack(segmentID string) *model.Track {
	for _, t := range b.TracksForSegment(segmentID) {
		if t.Kind == model.TrackMain {
			return t
		}
	}
	return nil
}

// ListStations returns a snapshot slice of all stations, sorted by code.
func (b *InfrastructureBase) ListStations() []*model.Station {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*model.Station, 0, len(b.stations))
	for _, s := range b.stations {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ListSegments returns a snapshot slice of all segments, sorted by ID.
func (b *InfrastructureBase) ListSegments() []*model.Segment {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*model.Segment, 0, len(b.segments))
	for _, s := range b.segments {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListTracks returns a snapshot slice of all tracks, sorted by ID.
func (b *InfrastructureBase) ListTracks() []*model.Track {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*model.Track, 0, len(b.tracks))
	for _, t := range b.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sealed reports whether the base has been sealed.
func (b *InfrastructureBase) Sealed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sealed
}
