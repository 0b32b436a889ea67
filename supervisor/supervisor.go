// Package supervisor drives the CPU and GPU miner stacks.
//
// One goroutine owns both stacks. Ticks, reloads, pause and resume, log
// reads and shutdown all run on it through a command channel; readers get
// the latest state from an atomically published snapshot.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/justapithecus/leprechaun/backend"
	"github.com/justapithecus/leprechaun/config"
	"github.com/justapithecus/leprechaun/events"
	"github.com/justapithecus/leprechaun/ipc"
	"github.com/justapithecus/leprechaun/log"
	"github.com/justapithecus/leprechaun/metrics"
	"github.com/justapithecus/leprechaun/miner"
	"github.com/justapithecus/leprechaun/types"
)

// ErrStopped is returned by commands issued after Run has returned.
var ErrStopped = errors.New("supervisor stopped")

// ErrNotRunning is returned by commands issued before Run has started.
var ErrNotRunning = errors.New("supervisor not running")

// Stack names.
const (
	StackCPU = backend.ClassCPU
	StackGPU = backend.ClassGPU
)

// Options configures a Supervisor.
type Options struct {
	// Config is the initial configuration (defaults applied).
	Config *config.Config
	// Load re-reads the configuration for Reload. Nil disables reloads.
	Load func() (*config.Config, error)
	// Build holds host facts for constructing miners.
	Build BuildOptions
	// Crashes persists crash records.
	Crashes miner.CrashRecorder
	// Events receives all supervisor events. Nil creates a private bus.
	Events *events.Bus
	// Logger receives diagnostics.
	Logger *log.Logger
	// Metrics counts activity. Nil disables counting.
	Metrics *metrics.Collector
	// Meta identifies the session in snapshots.
	Meta *types.SessionMeta
	// StatusPath receives a status frame after every tick. Empty disables it.
	StatusPath string
}

// ReloadResult reports what a reload installed.
type ReloadResult struct {
	CPU     int      `json:"cpu"`
	GPU     int      `json:"gpu"`
	Skipped []string `json:"skipped,omitempty"`
}

// Supervisor owns the miner stacks.
type Supervisor struct {
	opts   Options
	logger *log.Logger
	cfg    *config.Config
	stacks []*miner.Stack

	cmds    chan func()
	running atomic.Bool
	stopped chan struct{}
	reset   chan time.Duration

	ctx         context.Context // loop context, set by Run
	pausedUntil time.Time
	paused      bool
	lastDropped int64

	snapshot atomic.Pointer[types.Snapshot]
}

// New builds both stacks from opts.Config. Invalid miners fail New unless
// skip-invalid-miners is set, in which case they are logged and dropped.
func New(opts Options) (*Supervisor, error) {
	if opts.Config == nil {
		return nil, errors.New("supervisor: nil config")
	}
	if opts.Build.Spawner == nil {
		return nil, errors.New("supervisor: nil spawner")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	if opts.Events == nil {
		opts.Events = events.NewBus()
	}
	if opts.Meta == nil {
		opts.Meta = &types.SessionMeta{StartedAt: time.Now()}
	}
	if opts.Build.Now == nil {
		opts.Build.Now = time.Now
	}

	s := &Supervisor{
		opts:    opts,
		logger:  opts.Logger,
		cfg:     opts.Config,
		cmds:    make(chan func()),
		stopped: make(chan struct{}),
		reset:   make(chan time.Duration, 1),
	}

	res, err := Build(opts.Config, opts.Build)
	if err != nil {
		return nil, err
	}
	s.reportSkipped(res.Skipped)

	for _, name := range []string{StackCPU, StackGPU} {
		s.stacks = append(s.stacks, miner.NewStack(miner.StackOptions{
			Name:        name,
			Crashes:     opts.Crashes,
			Events:      opts.Events,
			Logger:      opts.Logger,
			Metrics:     opts.Metrics,
			StopTimeout: opts.Config.Supervisor.StopTimeout.Duration,
			Now:         opts.Build.Now,
		}))
	}
	if err := s.install(res); err != nil {
		return nil, err
	}
	s.publishSnapshot()
	return s, nil
}

func (s *Supervisor) install(res *BuildResult) error {
	if err := s.stack(StackCPU).Replace(res.CPU); err != nil {
		return err
	}
	return s.stack(StackGPU).Replace(res.GPU)
}

func (s *Supervisor) reportSkipped(skipped []error) {
	for _, err := range skipped {
		s.logger.Warn("skipping invalid miner", map[string]any{"error": err.Error()})
	}
}

func (s *Supervisor) stack(name string) *miner.Stack {
	for _, st := range s.stacks {
		if st.Name() == name {
			return st
		}
	}
	return nil
}

// Run ticks until ctx is canceled, then stops every backend. It must be
// called once.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("supervisor: Run called twice")
	}
	defer close(s.stopped)
	s.ctx = ctx

	interval := s.cfg.Supervisor.TickInterval.Duration
	if interval <= 0 {
		interval = config.DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("supervisor started", map[string]any{
		"tick_interval": interval.String(),
		"cpu_miners":    len(s.stack(StackCPU).Miners()),
		"gpu_miners":    len(s.stack(StackGPU).Miners()),
	})
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
			s.tick(ctx)
		case d := <-s.reset:
			ticker.Reset(d)
		case fn := <-s.cmds:
			fn()
		}
	}
}

// tick updates both stacks unless paused, then publishes a snapshot.
func (s *Supervisor) tick(ctx context.Context) {
	if s.paused && !s.pausedUntil.IsZero() && !s.opts.Build.Now().Before(s.pausedUntil) {
		s.resume("pause expired")
	}
	if !s.paused {
		for _, st := range s.stacks {
			st.Update(ctx)
		}
		s.opts.Metrics.IncTick()
	}
	if dropped := s.opts.Events.Dropped(); dropped > s.lastDropped {
		s.opts.Metrics.AddEventsDropped(dropped - s.lastDropped)
		s.lastDropped = dropped
	}
	s.publishSnapshot()
}

func (s *Supervisor) shutdown() {
	for _, st := range s.stacks {
		st.StopAll("shutdown")
	}
	s.publishSnapshot()
	s.logger.Info("supervisor stopped", nil)
}

// exec runs fn on the loop goroutine and waits for it.
func (s *Supervisor) exec(ctx context.Context, fn func()) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case s.cmds <- wrapped:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause stops both stacks gracefully and suppresses ticks for d. A
// non-positive d pauses until Resume.
func (s *Supervisor) Pause(ctx context.Context, d time.Duration) error {
	return s.exec(ctx, func() {
		now := s.opts.Build.Now()
		s.paused = true
		s.pausedUntil = time.Time{}
		reason := "paused until resumed"
		if d > 0 {
			s.pausedUntil = now.Add(d)
			reason = "paused for " + d.String()
		}
		for _, st := range s.stacks {
			st.StopAll("pause")
		}
		s.logger.Info("mining paused", map[string]any{"for": d.String()})
		s.opts.Events.Publish(types.Event{Type: types.EventTypePaused, Reason: reason, Time: now})
		s.publishSnapshot()
	})
}

// Resume lifts a pause and ticks immediately.
func (s *Supervisor) Resume(ctx context.Context) error {
	return s.exec(ctx, func() {
		if s.paused {
			s.resume("resumed")
		}
		s.tick(s.ctx)
	})
}

func (s *Supervisor) resume(reason string) {
	s.paused = false
	s.pausedUntil = time.Time{}
	s.logger.Info("mining resumed", map[string]any{"reason": reason})
	s.opts.Events.Publish(types.Event{Type: types.EventTypeResumed, Reason: reason, Time: s.opts.Build.Now()})
}

// Reload re-reads the configuration and replaces both stacks. On error the
// running stacks are left untouched.
func (s *Supervisor) Reload(ctx context.Context) (*ReloadResult, error) {
	if s.opts.Load == nil {
		return nil, errors.New("reload is not configured")
	}
	var (
		result *ReloadResult
		rerr   error
	)
	err := s.exec(ctx, func() {
		result, rerr = s.reload(s.ctx)
	})
	if err != nil {
		return nil, err
	}
	return result, rerr
}

func (s *Supervisor) reload(ctx context.Context) (*ReloadResult, error) {
	cfg, err := s.opts.Load()
	if err != nil {
		s.opts.Metrics.IncReloadFailure()
		s.logger.Error("reload failed", map[string]any{"error": err.Error()})
		return nil, err
	}
	res, err := Build(cfg, s.opts.Build)
	if err != nil {
		s.opts.Metrics.IncReloadFailure()
		s.logger.Error("reload rejected", map[string]any{"error": err.Error()})
		return nil, err
	}
	s.reportSkipped(res.Skipped)

	if err := s.install(res); err != nil {
		s.opts.Metrics.IncReloadFailure()
		return nil, err
	}
	if d := cfg.Supervisor.TickInterval.Duration; d > 0 && d != s.cfg.Supervisor.TickInterval.Duration {
		select {
		case s.reset <- d:
		default:
		}
	}
	s.cfg = cfg
	s.opts.Metrics.IncReload()

	out := &ReloadResult{CPU: len(res.CPU), GPU: len(res.GPU)}
	for _, e := range res.Skipped {
		out.Skipped = append(out.Skipped, e.Error())
	}
	s.logger.Info("configuration reloaded", map[string]any{
		"cpu_miners": out.CPU,
		"gpu_miners": out.GPU,
		"skipped":    len(out.Skipped),
	})
	s.opts.Events.Publish(types.Event{
		Type:   types.EventTypeReloaded,
		Reason: fmt.Sprintf("%d cpu, %d gpu, %d skipped", out.CPU, out.GPU, len(out.Skipped)),
		Time:   s.opts.Build.Now(),
	})
	s.tick(ctx)
	return out, nil
}

// ErrUnknownMiner is returned by Logs for a miner that is not configured.
var ErrUnknownMiner = errors.New("unknown miner")

// Logs returns up to n retained output lines of a miner (all when n <= 0).
func (s *Supervisor) Logs(ctx context.Context, stack, name string, n int) ([]string, error) {
	var (
		lines []string
		found bool
	)
	err := s.exec(ctx, func() {
		st := s.stack(stack)
		if st == nil {
			return
		}
		m, ok := st.Get(name)
		if !ok {
			return
		}
		found = true
		if n <= 0 {
			lines = m.Log().Snapshot()
			return
		}
		lines = m.Log().Tail(n)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownMiner, stack, name)
	}
	return lines, nil
}

// Snapshot returns the latest published state. It never blocks.
func (s *Supervisor) Snapshot() *types.Snapshot {
	return s.snapshot.Load()
}

// Events returns the supervisor's event bus.
func (s *Supervisor) Events() *events.Bus {
	return s.opts.Events
}

func (s *Supervisor) publishSnapshot() {
	now := s.opts.Build.Now()
	snap := &types.Snapshot{
		FrameVersion: types.StatusFrameVersion,
		Version:      types.Version,
		SessionID:    s.opts.Meta.SessionID,
		Host:         s.opts.Meta.Host,
		PID:          os.Getpid(),
		StartedAt:    s.opts.Meta.StartedAt,
		UpdatedAt:    now,
	}
	if s.paused {
		until := s.pausedUntil
		snap.PausedUntil = &until
	}
	for _, st := range s.stacks {
		snap.Stacks = append(snap.Stacks, st.Status())
	}
	s.snapshot.Store(snap)

	if s.opts.StatusPath != "" {
		if err := ipc.WriteStatusFile(s.opts.StatusPath, snap); err != nil {
			s.logger.Warn("status write failed", map[string]any{"path": s.opts.StatusPath, "error": err.Error()})
		}
	}
}
