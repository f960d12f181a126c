package model

// Coordinate is a WGS84 position used for display interpolation only.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Station represents a stopping point on the corridor.
type Station struct {
	Code      string
	Name      string
	Platforms int
	// Major marks junction stations (longer dwells, special-train anchors).
	Major bool

	Position Coordinate

	// DwellMinutes is the default dwell applied when a train stops here.
	DwellMinutes float64
}

// Segment is an ordered station pair with one or more physical tracks.
type Segment struct {
	ID   string
	From string // station code
	To   string // station code

	LengthKm float64
	// NominalMinutes is the traversal time on the main track at line speed.
	NominalMinutes float64

	// TrackIDs lists the tracks available on this segment, main first.
	TrackIDs []string
}

// TrackKind distinguishes the main line from auxiliary routings.
type TrackKind int

const (
	TrackMain TrackKind = iota
	TrackSiding
	TrackSecondary
)

func (k TrackKind) String() string {
	switch k {
	case TrackMain:
		return "main"
	case TrackSiding:
		return "siding"
	case TrackSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Track is one physical routing through a segment.
type Track struct {
	ID        string
	SegmentID string
	Kind      TrackKind

	// Capacity is the number of trains that may occupy the track at once.
	// Single-track working is Capacity == 1.
	Capacity int

	// TraversalMinutes is the time a train needs on this track; sidings are
	// usually slower than the main line, loops occasionally faster.
	TraversalMinutes float64

	// ServesStations reports whether the track reaches the segment's end
	// station platform. Bypass routings cannot host a stopping train.
	ServesStations bool

	// Geometry is the ordered polyline used for position interpolation.
	// It plays no role in optimization.
	Geometry []Coordinate
}
