// Package config loads the simulator's operational tunables from YAML,
// overlaying a file onto compiled-in defaults.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalworks/corridor-simulator/internal/resched"
)

// Config is the root of the simulator configuration file.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Server     ServerConfig     `yaml:"server"`
}

// SimulationConfig covers the tick loop and scenario defaults.
type SimulationConfig struct {
	// TickMinutes is the simulated time one tick advances.
	TickMinutes float64 `yaml:"tick_minutes"`
	// TimeScale is how many simulated minutes pass per wall-clock second
	// when the run loop is ticking in real time. Zero means free-running.
	TimeScale float64 `yaml:"time_scale"`
	// DefaultDwellMinutes applies to stops without a station override.
	DefaultDwellMinutes float64 `yaml:"default_dwell_minutes"`
}

// OptimizerConfig mirrors the rescheduler tunables.
type OptimizerConfig struct {
	HeadwayMinutes        float64 `yaml:"headway_minutes"`
	MaxDelayMinutes       float64 `yaml:"max_delay_minutes"`
	ReroutePenalty        float64 `yaml:"reroute_penalty"`
	RerouteSavingsMinutes float64 `yaml:"reroute_savings_minutes"`
	DelayWeight           float64 `yaml:"delay_weight"`
	MaxSwaps              int     `yaml:"max_swaps"`
	SolveBudgetSeconds    float64 `yaml:"solve_budget_seconds"`
	LookaheadStops        int     `yaml:"lookahead_stops"`
	LookaheadMinutes      float64 `yaml:"lookahead_minutes"`
}

// ServerConfig covers the HTTP surfaces.
type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	p := resched.DefaultParams()
	return Config{
		Simulation: SimulationConfig{
			TickMinutes:         1,
			TimeScale:           1,
			DefaultDwellMinutes: 1,
		},
		Optimizer: OptimizerConfig{
			HeadwayMinutes:        p.HeadwayMinutes,
			MaxDelayMinutes:       p.MaxDelayMinutes,
			ReroutePenalty:        p.ReroutePenalty,
			RerouteSavingsMinutes: p.RerouteSavingsMinutes,
			DelayWeight:           p.DelayWeight,
			MaxSwaps:              p.MaxSwaps,
			SolveBudgetSeconds:    p.SolveBudget.Seconds(),
			LookaheadStops:        p.LookaheadStops,
			LookaheadMinutes:      p.LookaheadMinutes,
		},
		Server: ServerConfig{
			MetricsAddr: ":9090",
		},
	}
}

// Load decodes YAML from r over the defaults.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a configuration file, or returns the defaults when path is
// empty.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Params converts the optimizer section into resched tunables.
func (o OptimizerConfig) Params() resched.Params {
	return resched.Params{
		HeadwayMinutes:        o.HeadwayMinutes,
		MaxDelayMinutes:       o.MaxDelayMinutes,
		ReroutePenalty:        o.ReroutePenalty,
		RerouteSavingsMinutes: o.RerouteSavingsMinutes,
		DelayWeight:           o.DelayWeight,
		MaxSwaps:              o.MaxSwaps,
		SolveBudget:           time.Duration(o.SolveBudgetSeconds * float64(time.Second)),
		LookaheadStops:        o.LookaheadStops,
		LookaheadMinutes:      o.LookaheadMinutes,
	}
}

func (c Config) validate() error {
	if c.Simulation.TickMinutes <= 0 {
		return fmt.Errorf("simulation.tick_minutes must be positive, got %v", c.Simulation.TickMinutes)
	}
	if c.Simulation.TimeScale < 0 {
		return fmt.Errorf("simulation.time_scale must not be negative, got %v", c.Simulation.TimeScale)
	}
	if c.Optimizer.HeadwayMinutes < 0 {
		return fmt.Errorf("optimizer.headway_minutes must not be negative, got %v", c.Optimizer.HeadwayMinutes)
	}
	if c.Optimizer.MaxDelayMinutes <= 0 {
		return fmt.Errorf("optimizer.max_delay_minutes must be positive, got %v", c.Optimizer.MaxDelayMinutes)
	}
	if c.Optimizer.SolveBudgetSeconds <= 0 {
		return fmt.Errorf("optimizer.solve_budget_seconds must be positive, got %v", c.Optimizer.SolveBudgetSeconds)
	}
	if c.Optimizer.MaxSwaps < 0 {
		return fmt.Errorf("optimizer.max_swaps must not be negative, got %v", c.Optimizer.MaxSwaps)
	}
	return nil
}
