package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalworks/corridor-simulator/core"
	"github.com/signalworks/corridor-simulator/internal/logging"
	"github.com/signalworks/corridor-simulator/internal/sim/state"
)

const corridorGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"station_code": "SBC", "name": "Bengaluru City Jn", "platforms": 10, "dwell_time": 2},
      "geometry": {"type": "Point", "coordinates": [77.5713, 12.9774]}
    },
    {
      "type": "Feature",
      "properties": {"station_code": "KGI", "name": "Kengeri", "platforms": 3, "dwell_time": 1},
      "geometry": {"type": "Point", "coordinates": [77.4827, 12.9089]}
    },
    {
      "type": "Feature",
      "properties": {"track_id": "SBC-KGI-main", "track_type": "main", "segment": "SBC-KGI", "capacity": 1, "traversal_minutes": 15},
      "geometry": {"type": "LineString", "coordinates": [[77.5713, 12.9774], [77.4827, 12.9089]]}
    }
  ]
}`

const timetableCSV = `train_id,dep_time,arr_time,speed_kmh,stops,mandatory_stops,train_type,priority
12614,0,15,60,SBC|KGI,,passenger,1
56232,30,45,45,SBC|KGI,,freight,3
`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestNewAppFlags(t *testing.T) {
	app := newApp()
	if app.Name != "corridor-simulator" {
		t.Fatalf("app name = %q", app.Name)
	}
	var names []string
	for _, f := range app.Flags {
		names = append(names, f.Names()...)
	}
	for _, want := range []string{"config", "infrastructure", "schedule", "duration", "accelerated"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("flag %q not registered", want)
		}
	}
}

func TestLoadInfrastructureAndTimetable(t *testing.T) {
	geoPath := writeFixture(t, "corridor.geojson", corridorGeoJSON)
	csvPath := writeFixture(t, "timetable.csv", timetableCSV)

	log := logging.Noop()
	infra, err := loadInfrastructure(context.Background(), geoPath, log)
	if err != nil {
		t.Fatalf("loadInfrastructure: %v", err)
	}
	if infra.Segment("SBC-KGI") == nil {
		t.Fatal("segment SBC-KGI not loaded")
	}

	sim := state.New(core.NewEngine(infra, core.NewTrainStore()), nil)
	if err := loadTimetable(context.Background(), csvPath, infra, sim, log); err != nil {
		t.Fatalf("loadTimetable: %v", err)
	}
	if got := len(sim.Trains()); got != 2 {
		t.Fatalf("trains loaded = %d, want 2", got)
	}

	if err := loadTimetable(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), infra, sim, log); err == nil {
		t.Fatal("missing timetable must error")
	}
}
