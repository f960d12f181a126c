// Package observability bundles the Prometheus metrics and OpenTelemetry
// tracing setup for the corridor simulator.
package observability

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles the simulation-facing Prometheus metrics. It satisfies
// the state layer's MetricsRecorder interface so gauges are driven directly
// from the mutators.
type SimCollector struct {
	gatherer prometheus.Gatherer

	TicksTotal        prometheus.Counter
	ActiveTrains      prometheus.Gauge
	TotalDelayMinutes prometheus.Gauge

	SolveDuration prometheus.Histogram
	SolvesTotal   *prometheus.CounterVec
}

// NewSimCollector registers the simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Re-registration of identical collectors is tolerated.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Cumulative number of simulation ticks advanced.",
	}), "sim_ticks_total")
	if err != nil {
		return nil, err
	}

	active, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_active_trains",
		Help: "Number of trains that have not yet completed their run.",
	}), "sim_active_trains")
	if err != nil {
		return nil, err
	}

	delay, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_total_delay_minutes",
		Help: "Sum of cumulative delay minutes across all trains.",
	}), "sim_total_delay_minutes")
	if err != nil {
		return nil, err
	}

	solveDuration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "resched_solve_duration_seconds",
		Help:    "Wall-clock duration of reschedule optimization solves.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "resched_solve_duration_seconds")
	if err != nil {
		return nil, err
	}

	solves, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resched_solves_total",
		Help: "Completed optimization runs, labeled by outcome (optimal, feasible, fallback).",
	}, []string{"outcome"}), "resched_solves_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:          gatherer,
		TicksTotal:        ticks,
		ActiveTrains:      active,
		TotalDelayMinutes: delay,
		SolveDuration:     solveDuration,
		SolvesTotal:       solves,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordTick counts one simulation tick.
func (c *SimCollector) RecordTick() {
	if c == nil || c.TicksTotal == nil {
		return
	}
	c.TicksTotal.Inc()
}

// SetSimCounts updates the fleet gauges.
func (c *SimCollector) SetSimCounts(activeTrains int, totalDelayMinutes float64) {
	if c == nil {
		return
	}
	if c.ActiveTrains != nil {
		c.ActiveTrains.Set(float64(activeTrains))
	}
	if c.TotalDelayMinutes != nil {
		c.TotalDelayMinutes.Set(totalDelayMinutes)
	}
}

// RecordSolve observes one completed optimization run.
func (c *SimCollector) RecordSolve(outcome string, seconds float64) {
	if c == nil {
		return
	}
	if c.SolveDuration != nil {
		c.SolveDuration.Observe(seconds)
	}
	if c.SolvesTotal != nil {
		c.SolvesTotal.WithLabelValues(outcome).Inc()
	}
}

// register tolerates double registration, handing back the collector that is
// already installed when the new one duplicates it.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var zero C
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
		return zero, fmt.Errorf("collector %s already registered with a different type", name)
	}
	return zero, err
}
