// Package idle measures how long the local user has been idle.
//
// Platform probes may shell out or scan device files, so they are never
// called from condition evaluation directly. A Sampler polls a Probe on its
// own goroutine and serves the last value without blocking.
package idle

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/justapithecus/leprechaun/condition"
	"github.com/justapithecus/leprechaun/log"
)

// ErrUnsupported is returned by probes on platforms without an idle source.
var ErrUnsupported = errors.New("idle time is not supported on this platform")

// Probe measures the current idle time. It may block briefly.
type Probe interface {
	Idle(ctx context.Context) (time.Duration, error)
	Name() string
}

// DefaultInterval is how often a Sampler refreshes its value.
const DefaultInterval = time.Second

// Sampler caches the latest probe result for non-blocking reads.
type Sampler struct {
	probe    Probe
	interval time.Duration
	logger   *log.Logger
	idle     atomic.Int64
	failing  atomic.Bool
}

var _ condition.IdleSource = (*Sampler)(nil)

// NewSampler creates a sampler for probe. interval <= 0 uses DefaultInterval.
func NewSampler(probe Probe, interval time.Duration, logger *log.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Sampler{probe: probe, interval: interval, logger: logger}
}

// IdleTime returns the most recent sample. Zero until the first successful probe.
func (s *Sampler) IdleTime() time.Duration {
	return time.Duration(s.idle.Load())
}

// Sample probes once and stores the result.
func (s *Sampler) Sample(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	d, err := s.probe.Idle(probeCtx)
	if err != nil {
		// A failing probe reads as "not idle" so idle-gated miners stay off.
		s.idle.Store(0)
		if !s.failing.Swap(true) {
			s.logger.Warn("idle probe failed", map[string]any{
				"probe": s.probe.Name(),
				"error": err.Error(),
			})
		}
		return
	}
	if s.failing.Swap(false) {
		s.logger.Info("idle probe recovered", map[string]any{"probe": s.probe.Name()})
	}
	if d < 0 {
		d = 0
	}
	s.idle.Store(int64(d))
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) error {
	s.Sample(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}

// Static is a fixed idle time, used when idle detection is disabled.
type Static time.Duration

// IdleTime returns the fixed duration.
func (s Static) IdleTime() time.Duration { return time.Duration(s) }
