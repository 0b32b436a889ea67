// Package metrics provides supervisor counters and their Prometheus export.
//
// The Collector accumulates counters for the lifetime of a supervisor session.
// Counters are keyed by stack name. All increment methods are nil-receiver safe.
package metrics

import (
	"maps"
	"sync"
)

// StackCounters holds the counters of one stack.
type StackCounters struct {
	Switches       int64
	Crashes        int64
	LaunchSuccess  int64
	LaunchFailure  int64
	GracefulStops  int64
	LogLines       int64
	CrashWriteFail int64
}

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	Stacks map[string]StackCounters

	Ticks          int64
	Reloads        int64
	ReloadFailures int64
	EventsDropped  int64

	// Dimensions (informational, set at construction)
	SessionID    string
	CrashBackend string
}

// Collector accumulates metrics during a session.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	stacks map[string]*StackCounters

	ticks          int64
	reloads        int64
	reloadFailures int64
	eventsDropped  int64

	sessionID    string
	crashBackend string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(sessionID, crashBackend string) *Collector {
	return &Collector{
		stacks:       make(map[string]*StackCounters),
		sessionID:    sessionID,
		crashBackend: crashBackend,
	}
}

// stack returns the counters for name, creating them. Caller holds mu.
func (c *Collector) stack(name string) *StackCounters {
	sc, ok := c.stacks[name]
	if !ok {
		sc = &StackCounters{}
		c.stacks[name] = sc
	}
	return sc
}

func (c *Collector) incStack(name string, inc func(*StackCounters)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	inc(c.stack(name))
	c.mu.Unlock()
}

// IncSwitch records an active-miner change.
func (c *Collector) IncSwitch(stack string) {
	c.incStack(stack, func(s *StackCounters) { s.Switches++ })
}

// IncCrash records a quarantined miner.
func (c *Collector) IncCrash(stack string) {
	c.incStack(stack, func(s *StackCounters) { s.Crashes++ })
}

// IncLaunchSuccess records a backend spawned successfully.
func (c *Collector) IncLaunchSuccess(stack string) {
	c.incStack(stack, func(s *StackCounters) { s.LaunchSuccess++ })
}

// IncLaunchFailure records a backend that failed to spawn.
func (c *Collector) IncLaunchFailure(stack string) {
	c.incStack(stack, func(s *StackCounters) { s.LaunchFailure++ })
}

// IncGracefulStop records a backend stopped by the stack.
func (c *Collector) IncGracefulStop(stack string) {
	c.incStack(stack, func(s *StackCounters) { s.GracefulStops++ })
}

// IncLogLine records one captured output line.
func (c *Collector) IncLogLine(stack string) {
	c.incStack(stack, func(s *StackCounters) { s.LogLines++ })
}

// IncCrashWriteFailure records a crash record that could not be persisted.
func (c *Collector) IncCrashWriteFailure(stack string) {
	c.incStack(stack, func(s *StackCounters) { s.CrashWriteFail++ })
}

// IncTick records one supervisor tick.
func (c *Collector) IncTick() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ticks++
	c.mu.Unlock()
}

// IncReload records a successful configuration reload.
func (c *Collector) IncReload() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.reloads++
	c.mu.Unlock()
}

// IncReloadFailure records a rejected configuration reload.
func (c *Collector) IncReloadFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.reloadFailures++
	c.mu.Unlock()
}

// AddEventsDropped records events a slow subscriber missed.
func (c *Collector) AddEventsDropped(n int64) {
	if c == nil || n == 0 {
		return
	}
	c.mu.Lock()
	c.eventsDropped += n
	c.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{Stacks: map[string]StackCounters{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stacks := make(map[string]StackCounters, len(c.stacks))
	for name, sc := range c.stacks {
		stacks[name] = *sc
	}
	return Snapshot{
		Stacks:         stacks,
		Ticks:          c.ticks,
		Reloads:        c.reloads,
		ReloadFailures: c.reloadFailures,
		EventsDropped:  c.eventsDropped,
		SessionID:      c.sessionID,
		CrashBackend:   c.crashBackend,
	}
}

// StackNames returns the names of all stacks with counters.
func (s Snapshot) StackNames() []string {
	names := make([]string, 0, len(s.Stacks))
	for name := range maps.Keys(s.Stacks) {
		names = append(names, name)
	}
	return names
}
