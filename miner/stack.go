package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/leprechaun/log"
	"github.com/justapithecus/leprechaun/metrics"
	"github.com/justapithecus/leprechaun/types"
)

// ErrStopFailed is returned by Replace when an old backend outlives its stop.
var ErrStopFailed = errors.New("backend did not stop")

// DefaultStopTimeout is how long a stopped backend gets before it is killed.
const DefaultStopTimeout = 5 * time.Second

// Crash reasons recorded on quarantined miners.
const (
	ReasonExited       = "exited"
	ReasonLaunchFailed = "launch_failed"
)

// CrashRecord is the postmortem of one quarantined miner.
type CrashRecord struct {
	Stack    string
	Miner    string
	Time     time.Time
	Reason   string
	ExitCode *int
	Lines    []string
}

// CrashRecorder persists crash records and returns where they were written.
type CrashRecorder interface {
	Record(ctx context.Context, rec CrashRecord) (string, error)
}

// StackOptions configures a Stack.
type StackOptions struct {
	// Name is the device class, e.g. "cpu".
	Name string
	// Crashes persists crash records. Nil skips persistence.
	Crashes CrashRecorder
	// Events receives switch, crashed and log events. Nil discards them.
	Events Publisher
	// Logger receives diagnostics. Nil discards them.
	Logger *log.Logger
	// Metrics counts stack activity. Nil disables counting.
	Metrics *metrics.Collector
	// StopTimeout bounds graceful stops before a kill.
	StopTimeout time.Duration
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// Stack is the priority-ordered set of miners for one device class.
//
// At most one miner is active. Update, Replace and StopAll must be called
// from a single goroutine.
type Stack struct {
	opts   StackOptions
	logger *log.Logger

	miners []*Miner
	byName map[string]*Miner
	active *Miner
}

// NewStack creates an empty stack.
func NewStack(opts StackOptions) *Stack {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Stack{
		opts:   opts,
		logger: logger.WithStack(opts.Name),
		byName: make(map[string]*Miner),
	}
}

// Name returns the device class name.
func (s *Stack) Name() string { return s.opts.Name }

// Add appends m at the lowest priority. Duplicate names are rejected.
func (s *Stack) Add(m *Miner) error {
	if _, dup := s.byName[m.Name()]; dup {
		return &types.InvalidConfigError{Miner: m.Name(), Message: fmt.Sprintf("duplicate miner name in %s stack", s.opts.Name)}
	}
	m.attach(s.opts.Name, s.opts.Events, s.opts.Now)
	s.miners = append(s.miners, m)
	s.byName[m.Name()] = m
	return nil
}

// Miners returns the miners in priority order.
func (s *Stack) Miners() []*Miner {
	return append([]*Miner(nil), s.miners...)
}

// Get returns the named miner.
func (s *Stack) Get(name string) (*Miner, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// Active returns the active miner, or nil.
func (s *Stack) Active() *Miner { return s.active }

// ActiveName returns the active miner's name, or "".
func (s *Stack) ActiveName() string {
	if s.active == nil {
		return ""
	}
	return s.active.Name()
}

// Target returns the first eligible miner in priority order, or nil.
func (s *Stack) Target() *Miner {
	for _, m := range s.miners {
		if m.Eligible() {
			return m
		}
	}
	return nil
}

// Update runs one tick of the state machine:
//
//  1. An active miner whose process exited without a stop request from the
//     stack is quarantined and its log tail persisted.
//  2. The first eligible miner in priority order becomes the target.
//  3. If the target differs from the active miner, the active miner is
//     stopped and the target started. A target that fails to launch is
//     quarantined like a crash and the scan continues. An active miner that
//     survives its stop stays active and no target starts this tick.
//
// A switch event is emitted only when the active miner changed. Update never
// fails; problems are logged and reported as events.
func (s *Stack) Update(ctx context.Context) {
	previous := s.ActiveName()

	if s.active != nil && !s.active.Running() {
		if s.active.StopRequested() {
			s.logger.Info("active backend exited after stop request", map[string]any{
				"miner": s.active.Name(),
			})
		} else {
			code := s.active.Process().ExitCode()
			s.quarantine(ctx, s.active, ReasonExited, &code, nil)
		}
		s.active = nil
	}

	for {
		target := s.Target()
		if target == s.active {
			break
		}
		if s.active != nil {
			if !s.stop(s.active, "superseded") {
				// Still alive; retried next tick so two backends never overlap.
				break
			}
			s.active = nil
		}
		if target == nil {
			break
		}
		if err := target.Start(ctx); err != nil {
			s.opts.Metrics.IncLaunchFailure(s.opts.Name)
			s.quarantine(ctx, target, ReasonLaunchFailed, nil, err)
			continue
		}
		s.opts.Metrics.IncLaunchSuccess(s.opts.Name)
		s.logger.Info("backend started", map[string]any{
			"miner":   target.Name(),
			"backend": target.Backend(),
			"pid":     target.Process().PID(),
		})
		s.active = target
		break
	}

	if current := s.ActiveName(); current != previous {
		s.opts.Metrics.IncSwitch(s.opts.Name)
		s.logger.Info("active miner changed", map[string]any{"from": previous, "to": current})
		s.publish(types.SwitchEvent(s.opts.Name, previous, current, s.opts.Now()))
	}
}

// quarantine marks m broken, persists its log and emits a crashed event.
func (s *Stack) quarantine(ctx context.Context, m *Miner, reason string, exitCode *int, cause error) {
	m.MarkBroken(reason)
	s.opts.Metrics.IncCrash(s.opts.Name)

	lines := m.Log().Snapshot()
	if cause != nil {
		lines = append(lines, "[leprechaun] "+cause.Error())
	}
	fields := map[string]any{"miner": m.Name(), "reason": reason}
	if exitCode != nil {
		fields["exit_code"] = *exitCode
		lines = append(lines, fmt.Sprintf("[leprechaun] exited with code %d", *exitCode))
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}

	var path string
	if s.opts.Crashes != nil {
		var err error
		path, err = s.opts.Crashes.Record(ctx, CrashRecord{
			Stack:    s.opts.Name,
			Miner:    m.Name(),
			Time:     s.opts.Now(),
			Reason:   reason,
			ExitCode: exitCode,
			Lines:    lines,
		})
		if err != nil {
			s.opts.Metrics.IncCrashWriteFailure(s.opts.Name)
			fields["crash_record_error"] = err.Error()
		}
	}
	fields["crash_path"] = path
	s.logger.Error("miner quarantined", fields)
	s.publish(types.CrashedEvent(s.opts.Name, m.Name(), path, reason, exitCode, s.opts.Now()))
}

// stop gracefully terminates m, waiting up to StopTimeout before a kill.
// It reports whether m is gone.
func (s *Stack) stop(m *Miner, why string) bool {
	if !m.Running() {
		return true
	}
	s.opts.Metrics.IncGracefulStop(s.opts.Name)
	err := m.terminate(s.opts.StopTimeout)
	if m.Running() {
		fields := map[string]any{"miner": m.Name(), "why": why}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.logger.Warn("backend did not stop", fields)
		return false
	}
	s.logger.Info("backend stopped", map[string]any{"miner": m.Name(), "why": why})
	return true
}

// StopAll stops every running miner. Used for pause and shutdown; never
// produces crash records. An active miner that survives its stop stays
// active, and StopAll reports false.
func (s *Stack) StopAll(why string) bool {
	previous := s.ActiveName()
	ok := true
	for _, m := range s.miners {
		if !s.stop(m, why) {
			ok = false
		}
	}
	if s.active != nil && !s.active.Running() {
		s.active = nil
	}
	if current := s.ActiveName(); current != previous {
		s.opts.Metrics.IncSwitch(s.opts.Name)
		s.publish(types.SwitchEvent(s.opts.Name, previous, current, s.opts.Now()))
	}
	return ok
}

// Replace discards every miner and installs a fresh set. Running backends of
// the old set are stopped before the new set takes effect. The new set
// becomes active on the next Update. Duplicate names, or an old backend
// that will not stop (ErrStopFailed), leave the stack untouched.
func (s *Stack) Replace(miners []*Miner) error {
	seen := make(map[string]struct{}, len(miners))
	for _, m := range miners {
		if _, dup := seen[m.Name()]; dup {
			return &types.InvalidConfigError{Miner: m.Name(), Message: fmt.Sprintf("duplicate miner name in %s stack", s.opts.Name)}
		}
		seen[m.Name()] = struct{}{}
	}

	if !s.StopAll("reload") {
		return fmt.Errorf("%w in %s stack; keeping the old miners", ErrStopFailed, s.opts.Name)
	}
	s.miners = nil
	s.byName = make(map[string]*Miner, len(miners))
	for _, m := range miners {
		_ = s.Add(m)
	}
	return nil
}

// Status returns a point-in-time view of the stack.
func (s *Stack) Status() types.StackStatus {
	st := types.StackStatus{Name: s.opts.Name, Active: s.ActiveName(), Miners: make([]types.MinerStatus, 0, len(s.miners))}
	for _, m := range s.miners {
		st.Miners = append(st.Miners, m.Status(m == s.active))
	}
	return st
}

// RunningCount returns how many miners have a live process.
func (s *Stack) RunningCount() int {
	n := 0
	for _, m := range s.miners {
		if m.Running() {
			n++
		}
	}
	return n
}

func (s *Stack) publish(ev types.Event) {
	if s.opts.Events != nil {
		s.opts.Events.Publish(ev)
	}
}
