// Package timectrl paces the simulation tick loop: real-time scaled by a
// configurable factor, or accelerated as fast as the loop can run.
package timectrl

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mode describes how the controller advances simulation time.
type Mode int

const (
	// RealTime paces ticks against the wall clock, scaled by TimeScale.
	RealTime Mode = iota
	// Accelerated ticks as fast as the listeners can keep up.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// Controller owns the simulation clock, in minutes from the start of the
// operating day, and notifies registered listeners on every tick.
type Controller struct {
	mu sync.RWMutex

	tickMinutes float64
	// timeScale is simulated minutes per wall-clock second in RealTime mode.
	timeScale float64
	mode      Mode

	nowMinutes float64
	listeners  []func(nowMinutes float64)
}

// New constructs a controller. tickMinutes must be positive; timeScale only
// matters in RealTime mode and defaults to one simulated minute per second.
func New(tickMinutes, timeScale float64, mode Mode) (*Controller, error) {
	if tickMinutes <= 0 {
		return nil, fmt.Errorf("tick must be positive, got %v", tickMinutes)
	}
	if timeScale <= 0 {
		timeScale = 1
	}
	return &Controller{
		tickMinutes: tickMinutes,
		timeScale:   timeScale,
		mode:        mode,
	}, nil
}

// AddListener registers a callback invoked after every tick with the new
// simulation time. Listeners must be registered before Run.
func (c *Controller) AddListener(fn func(nowMinutes float64)) {
	c.listeners = append(c.listeners, fn)
}

// NowMinutes returns the current simulation time.
func (c *Controller) NowMinutes() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nowMinutes
}

// SetTime rewinds or jumps the clock, typically after a simulation reset.
func (c *Controller) SetTime(minutes float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowMinutes = minutes
}

// TickMinutes reports the configured tick length.
func (c *Controller) TickMinutes() float64 {
	return c.tickMinutes
}

// Run ticks until durationMinutes of simulated time have elapsed, or forever
// when durationMinutes is zero or negative. It returns the context error on
// cancellation, nil on a completed run.
func (c *Controller) Run(ctx context.Context, durationMinutes float64) error {
	var ticker *time.Ticker
	if c.mode == RealTime {
		interval := time.Duration(c.tickMinutes / c.timeScale * float64(time.Second))
		if interval <= 0 {
			interval = time.Millisecond
		}
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	elapsed := 0.0
	for {
		if durationMinutes > 0 && elapsed >= durationMinutes {
			return nil
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		elapsed += c.tickMinutes
		c.mu.Lock()
		c.nowMinutes += c.tickMinutes
		now := c.nowMinutes
		c.mu.Unlock()

		for _, fn := range c.listeners {
			fn(now)
		}
	}
}
