// Package miner binds backend configurations to supervised processes and
// implements the per-device-class stack that picks the one active miner.
package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/leprechaun/condition"
	"github.com/justapithecus/leprechaun/process"
	"github.com/justapithecus/leprechaun/types"
)

// Handle is a supervised backend process. *process.Process implements it.
type Handle interface {
	Running() bool
	Stop() error
	Kill() error
	Terminate(grace time.Duration) error
	Done() <-chan struct{}
	ExitCode() int
	PID() int
	StopRequested() bool
}

// Spawner starts backend processes.
type Spawner interface {
	Spawn(spec process.Spec, opts process.Options) (Handle, error)
}

// GroupSpawner spawns processes through a process group controller.
type GroupSpawner struct {
	Group *process.Group
}

// Spawn starts spec in the group.
func (s GroupSpawner) Spawn(spec process.Spec, opts process.Options) (Handle, error) {
	p, err := s.Group.Start(spec, opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Launcher resolves the executable and arguments for a miner.
// Implementations live in the backend package.
type Launcher interface {
	// LaunchSpec returns the command to run. It may touch the filesystem.
	LaunchSpec(ctx context.Context) (process.Spec, error)
	// Backend names the backend program, e.g. "xmrig".
	Backend() string
}

// HashrateReader is implemented by launchers that can parse a hashrate from
// backend output.
type HashrateReader interface {
	Hashrate(lines []string) (float64, bool)
}

// Publisher receives miner and stack events. *events.Bus implements it.
type Publisher interface {
	Publish(ev types.Event)
}

// Config is the validated definition of one miner.
type Config struct {
	// Name is unique within its stack.
	Name string
	// Currency is the coin code, e.g. XMR.
	Currency string
	// Address is the payout wallet address.
	Address string
	// Enabled gates the miner independently of its condition.
	Enabled bool
	// Condition gates the miner; nil means always allowed.
	Condition condition.Condition
	// Launcher resolves the backend command line.
	Launcher Launcher
	// ExtraArgs are appended to the launcher's arguments.
	ExtraArgs []string
	// LogCapacity is the retained output line count (default 1000).
	LogCapacity int
}

// Miner is one backend configuration and its current process.
// Flags and the process handle are owned by the stack's goroutine; the log
// buffer is safe for concurrent use.
type Miner struct {
	cfg     Config
	spawner Spawner
	log     *process.LogBuffer

	proc         Handle
	broken       bool
	brokenReason string

	stack  string
	events Publisher
	now    func() time.Time
}

// New validates cfg and creates a Miner.
func New(cfg Config, spawner Spawner) (*Miner, error) {
	if cfg.Name == "" {
		return nil, types.NewInvalidConfig("name", "miner name is required")
	}
	if cfg.Launcher == nil {
		return nil, &types.InvalidConfigError{Miner: cfg.Name, Message: "no backend launcher"}
	}
	if spawner == nil {
		return nil, errors.New("miner: nil spawner")
	}
	return &Miner{
		cfg:     cfg,
		spawner: spawner,
		log:     process.NewLogBuffer(cfg.LogCapacity),
		now:     time.Now,
	}, nil
}

// attach binds the miner to a stack's name and event sink.
func (m *Miner) attach(stack string, pub Publisher, now func() time.Time) {
	m.stack = stack
	m.events = pub
	if now != nil {
		m.now = now
	}
}

// Name returns the miner name.
func (m *Miner) Name() string { return m.cfg.Name }

// Currency returns the coin code.
func (m *Miner) Currency() string { return m.cfg.Currency }

// Address returns the payout address.
func (m *Miner) Address() string { return m.cfg.Address }

// Backend returns the backend program name.
func (m *Miner) Backend() string { return m.cfg.Launcher.Backend() }

// Condition returns the gating condition, possibly nil.
func (m *Miner) Condition() condition.Condition { return m.cfg.Condition }

// Enabled reports the configured enablement flag.
func (m *Miner) Enabled() bool { return m.cfg.Enabled }

// Allowed reports whether the condition currently permits running.
func (m *Miner) Allowed() bool {
	return condition.Satisfied(m.cfg.Condition)
}

// Broken reports whether the miner has been quarantined.
func (m *Miner) Broken() bool { return m.broken }

// BrokenReason describes why the miner was quarantined.
func (m *Miner) BrokenReason() string { return m.brokenReason }

// MarkBroken quarantines the miner. The flag never clears; a reload builds a
// fresh Miner instead.
func (m *Miner) MarkBroken(reason string) {
	m.broken = true
	if m.brokenReason == "" {
		m.brokenReason = reason
	}
}

// Eligible reports enabled && allowed && !broken.
func (m *Miner) Eligible() bool {
	return m.cfg.Enabled && !m.broken && m.Allowed()
}

// Running reports whether the current process is alive. False before the
// first start.
func (m *Miner) Running() bool {
	return m.proc != nil && m.proc.Running()
}

// StopRequested reports whether the current process was asked to stop.
func (m *Miner) StopRequested() bool {
	return m.proc != nil && m.proc.StopRequested()
}

// Process returns the current process handle, possibly nil.
func (m *Miner) Process() Handle { return m.proc }

// Log returns the retained output buffer.
func (m *Miner) Log() *process.LogBuffer { return m.log }

// LaunchSpec resolves the full command line, extra args included, without
// starting anything. Errors are *process.LaunchError.
func (m *Miner) LaunchSpec(ctx context.Context) (process.Spec, error) {
	spec, err := m.cfg.Launcher.LaunchSpec(ctx)
	if err != nil {
		var le *process.LaunchError
		if errors.As(err, &le) {
			return process.Spec{}, err
		}
		return process.Spec{}, &process.LaunchError{Path: m.cfg.Launcher.Backend(), Err: err}
	}
	spec.Args = append(append([]string(nil), spec.Args...), m.cfg.ExtraArgs...)
	return spec, nil
}

// Start launches the backend. It is a no-op while running. Errors are
// *process.LaunchError.
func (m *Miner) Start(ctx context.Context) error {
	if m.Running() {
		return nil
	}
	spec, err := m.LaunchSpec(ctx)
	if err != nil {
		return err
	}

	stack, name, pub, now := m.stack, m.cfg.Name, m.events, m.now
	proc, err := m.spawner.Spawn(spec, process.Options{
		Buffer: m.log,
		OnLine: func(line string) {
			if pub != nil {
				pub.Publish(types.LogLineEvent(stack, name, line, now()))
			}
		},
		OnExit: func(code int) {
			if pub != nil {
				pub.Publish(types.ExitedEvent(stack, name, code, now()))
			}
		},
	})
	if err != nil {
		if process.IsLaunchError(err) {
			return err
		}
		return &process.LaunchError{Path: spec.Path, Err: err}
	}
	m.proc = proc
	m.log.Append(fmt.Sprintf("[leprechaun] started %s (pid %d)", spec, proc.PID()))
	return nil
}

// Stop requests graceful termination. No-op when not running.
func (m *Miner) Stop() error {
	if !m.Running() {
		return nil
	}
	return m.proc.Stop()
}

// terminate stops the process and waits up to grace before killing it.
func (m *Miner) terminate(grace time.Duration) error {
	if !m.Running() {
		return nil
	}
	return m.proc.Terminate(grace)
}

// Hashrate parses the latest hashrate from the log, if the backend supports it.
func (m *Miner) Hashrate() (float64, bool) {
	hr, ok := m.cfg.Launcher.(HashrateReader)
	if !ok {
		return 0, false
	}
	return hr.Hashrate(m.log.Snapshot())
}

// Status returns a point-in-time view of the miner.
func (m *Miner) Status(active bool) types.MinerStatus {
	st := types.MinerStatus{
		Name:     m.cfg.Name,
		Currency: m.cfg.Currency,
		Backend:  m.Backend(),
		Enabled:  m.cfg.Enabled,
		Allowed:  m.Allowed(),
		Broken:   m.broken,
		Running:  m.Running(),
		Active:   active,
	}
	if st.Running {
		st.PID = m.proc.PID()
	}
	if rate, ok := m.Hashrate(); ok {
		st.Hashrate = &rate
	}
	return st
}
