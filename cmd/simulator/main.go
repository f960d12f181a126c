// Command simulator runs the corridor decision-support simulation: it loads
// the static infrastructure and timetable, then ticks the fleet while the
// optimizer reworks schedules around injected disruptions.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/signalworks/corridor-simulator/core"
	"github.com/signalworks/corridor-simulator/internal/config"
	"github.com/signalworks/corridor-simulator/internal/logging"
	"github.com/signalworks/corridor-simulator/internal/observability"
	"github.com/signalworks/corridor-simulator/internal/service"
	"github.com/signalworks/corridor-simulator/internal/sim/state"
	"github.com/signalworks/corridor-simulator/kb"
	"github.com/signalworks/corridor-simulator/timectrl"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "corridor-simulator",
		Usage: "railway corridor decision-support simulator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file (defaults apply when omitted)",
			},
			&cli.StringFlag{
				Name:  "infrastructure",
				Value: "configs/corridor.geojson",
				Usage: "GeoJSON corridor scenario (stations and tracks)",
			},
			&cli.StringFlag{
				Name:  "schedule",
				Value: "configs/timetable.csv",
				Usage: "CSV timetable to load at startup",
			},
			&cli.Float64Flag{
				Name:  "duration",
				Usage: "simulated minutes to run; 0 runs until interrupted",
			},
			&cli.BoolFlag{
				Name:  "accelerated",
				Usage: "tick as fast as possible instead of wall-clock pacing",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.NewFromEnv()

	cfg, err := config.LoadFile(c.String("config"))
	if err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewSimCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	metricsSrv := serveMetrics(ctx, cfg.Server.MetricsAddr, collector, log)
	defer metricsSrv.Close()

	infra, err := loadInfrastructure(ctx, c.String("infrastructure"), log)
	if err != nil {
		return err
	}

	engine := core.NewEngine(infra, core.NewTrainStore())
	engine.RegisterTickListener(func(minute float64, snaps map[string]core.TrainSnapshot) {
		log.Debug(ctx, "tick",
			logging.Float64("minute", minute),
			logging.Int("moving_trains", len(snaps)))
	})
	sim := state.New(engine, log,
		state.WithMetricsRecorder(collector),
		state.WithParams(cfg.Optimizer.Params()))
	svc := service.New(sim, log)

	if err := loadTimetable(ctx, c.String("schedule"), infra, sim, log); err != nil {
		return err
	}

	mode := timectrl.RealTime
	if c.Bool("accelerated") {
		mode = timectrl.Accelerated
	}
	ctl, err := timectrl.New(cfg.Simulation.TickMinutes, cfg.Simulation.TimeScale, mode)
	if err != nil {
		return err
	}
	ctl.AddListener(func(nowMinutes float64) {
		if _, err := svc.AdvanceTick(ctx, ctl.TickMinutes()); err != nil {
			log.Error(ctx, "tick failed", logging.Any("error", err))
		}
	})

	log.Info(ctx, "simulation starting",
		logging.String("mode", mode.String()),
		logging.Any("tick_minutes", cfg.Simulation.TickMinutes),
		logging.Any("duration_minutes", c.Float64("duration")),
		logging.String("metrics_addr", cfg.Server.MetricsAddr))

	runErr := ctl.Run(ctx, c.Float64("duration"))
	sim.WaitForSolves()

	stats := svc.Stats(context.Background())
	log.Info(context.Background(), "simulation finished",
		logging.Any("now_minutes", stats.NowMinutes),
		logging.Int("total_trains", stats.TotalTrains),
		logging.Int("completed_trains", stats.CompletedTrains),
		logging.Int("delayed_trains", stats.DelayedTrains),
		logging.Any("total_delay_minutes", stats.TotalDelayMinutes),
		logging.Int("disruptions", stats.Disruptions),
		logging.Int("plans_applied", stats.PlansApplied),
		logging.Int("fallbacks", stats.Fallbacks))

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func loadInfrastructure(ctx context.Context, path string, log logging.Logger) (*kb.InfrastructureBase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open infrastructure scenario: %w", err)
	}
	defer f.Close()

	infra := kb.NewInfrastructureBase()
	summary, err := core.LoadInfrastructure(infra, f)
	if err != nil {
		return nil, fmt.Errorf("load infrastructure: %w", err)
	}
	log.Info(ctx, "infrastructure loaded",
		logging.String("path", path),
		logging.Int("stations", len(summary.StationCodes)),
		logging.Int("segments", len(summary.SegmentIDs)),
		logging.Int("tracks", len(summary.TrackIDs)))
	return infra, nil
}

func loadTimetable(ctx context.Context, path string, infra *kb.InfrastructureBase, sim *state.SimulationState, log logging.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open timetable: %w", err)
	}
	defer f.Close()

	trains, err := core.LoadSchedules(infra, f)
	if err != nil {
		return fmt.Errorf("load timetable: %w", err)
	}
	for _, t := range trains {
		if err := sim.AddTrain(t); err != nil {
			return fmt.Errorf("add train %q: %w", t.ID, err)
		}
	}
	log.Info(ctx, "timetable loaded",
		logging.String("path", path),
		logging.Int("trains", len(trains)))
	return nil
}

func serveMetrics(ctx context.Context, addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server stopped", logging.Any("error", err))
		}
	}()
	return srv
}
