package core

import (
	"strings"
	"testing"

	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/model"
)

const miniGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "properties": {"name": "Bengaluru City Jn", "station_code": "SBC", "platforms": 10, "dwell_time": 2},
     "geometry": {"type": "Point", "coordinates": [77.5708, 12.9774]}},
    {"type": "Feature",
     "properties": {"name": "Kengeri", "station_code": "KGI", "platforms": 3, "dwell_time": 1},
     "geometry": {"type": "Point", "coordinates": [77.4827, 12.9077]}},
    {"type": "Feature",
     "properties": {"name": "SBC-KGI Main Line", "track_id": "SBC-KGI-main", "track_type": "main",
                    "capacity": 1, "segment": "SBC-KGI", "traversal_minutes": 15},
     "geometry": {"type": "LineString", "coordinates": [[77.5708, 12.9774], [77.4827, 12.9077]]}},
    {"type": "Feature",
     "properties": {"name": "SBC-KGI Siding", "track_id": "SBC-KGI-siding", "track_type": "siding",
                    "capacity": 1, "segment": "SBC-KGI", "traversal_minutes": 20},
     "geometry": {"type": "LineString", "coordinates": [[77.5708, 12.9774], [77.4827, 12.9077]]}}
  ]
}`

const miniCSV = `train_id,dep_time,arr_time,speed_kmh,stops,mandatory_stops,train_type,priority
12614,0,20,60,SBC|KGI,SBC|KGI,passenger,1
56232,10,40,45,SBC|KGI,,freight,3
`

func TestLoadInfrastructure_MiniCorridor(t *testing.T) {
	b := kb.NewInfrastructureBase()
	summary, err := LoadInfrastructure(b, strings.NewReader(miniGeoJSON))
	if err != nil {
		t.Fatalf("LoadInfrastructure: %v", err)
	}

	if len(summary.StationCodes) != 2 || len(summary.SegmentIDs) != 1 || len(summary.TrackIDs) != 2 {
		t.Fatalf("summary = %+v, want 2 stations, 1 segment, 2 tracks", summary)
	}
	if !b.Sealed() {
		t.Fatal("expected infrastructure to be sealed after load")
	}

	sbc := b.Station("SBC")
	if sbc == nil || !sbc.Major {
		t.Fatalf("SBC = %+v, want major station (10 platforms)", sbc)
	}
	seg := b.Segment("SBC-KGI")
	if seg == nil || seg.From != "SBC" || seg.To != "KGI" {
		t.Fatalf("segment = %+v", seg)
	}
	if seg.LengthKm <= 0 {
		t.Fatalf("segment length %.2f, want > 0 (from geometry)", seg.LengthKm)
	}
	siding := b.Track("SBC-KGI-siding")
	if siding == nil || siding.Kind != model.TrackSiding {
		t.Fatalf("siding = %+v", siding)
	}
}

func TestLoadSchedules_BuildsStopTimes(t *testing.T) {
	b := kb.NewInfrastructureBase()
	if _, err := LoadInfrastructure(b, strings.NewReader(miniGeoJSON)); err != nil {
		t.Fatalf("LoadInfrastructure: %v", err)
	}

	trains, err := LoadSchedules(b, strings.NewReader(miniCSV))
	if err != nil {
		t.Fatalf("LoadSchedules: %v", err)
	}
	if len(trains) != 2 {
		t.Fatalf("got %d trains, want 2", len(trains))
	}

	express := trains[0]
	if express.ID != "12614" || express.Type != model.TrainPassenger {
		t.Fatalf("train = %+v", express)
	}
	if len(express.Stops) != 2 {
		t.Fatalf("got %d stops, want 2", len(express.Stops))
	}
	if got := express.Stops[1].Arrival; got != 15 {
		t.Fatalf("KGI arrival = %.1f, want 15 (nominal traversal)", got)
	}

	// Empty mandatory_stops column means every stop is mandatory.
	freight := trains[1]
	for _, s := range freight.Stops {
		if !s.Mandatory {
			t.Fatalf("stop %s should default to mandatory", s.Station)
		}
	}
	if !express.Stops[0].Mandatory || !express.Stops[1].Mandatory {
		t.Fatal("explicitly listed mandatory stops should be marked")
	}
}

func TestLoadInfrastructure_MalformedSegmentIsFatal(t *testing.T) {
	bad := strings.Replace(miniGeoJSON, `"segment": "SBC-KGI"`, `"segment": "corridor"`, 2)
	b := kb.NewInfrastructureBase()
	if _, err := LoadInfrastructure(b, strings.NewReader(bad)); err == nil {
		t.Fatal("expected a fatal error for a malformed segment id")
	}
}
