package supervisor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/leprechaun/config"
	"github.com/justapithecus/leprechaun/crash"
	"github.com/justapithecus/leprechaun/events"
	"github.com/justapithecus/leprechaun/ipc"
	"github.com/justapithecus/leprechaun/metrics"
	"github.com/justapithecus/leprechaun/types"
)

const baseDoc = `
addresses:
  XMR: 4wallet
  ETH: "0xeth"
cpu-miners:
  when-idle:
    currency: XMR
    condition: when-idle
    idle-minutes: 1
  always:
    currency: XMR
gpu-miners:
  gpu:
    currency: ETH
supervisor:
  tick-interval: 1h
`

type harness struct {
	t       *testing.T
	sup     *Supervisor
	spawner *fakeSpawner
	idle    *idleSwitch
	crashes *crash.Store
	bus     *events.Bus
	metrics *metrics.Collector
	cancel  context.CancelFunc
	done    chan error
	status  string

	mu      sync.Mutex
	nextCfg *config.Config
}

func newHarness(t *testing.T, doc string) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		spawner: newFakeSpawner(),
		idle:    &idleSwitch{},
		crashes: crash.NewMemoryStore(),
		bus:     events.NewBus(),
		metrics: metrics.NewCollector("session-1", "memory"),
		done:    make(chan error, 1),
	}
	cfg := mustParse(t, doc)
	h.status = cfg.Supervisor.StatusPath()
	sup, err := New(Options{
		Config: cfg,
		Load: func() (*config.Config, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.nextCfg == nil {
				return nil, errors.New("no config staged")
			}
			return h.nextCfg, nil
		},
		Build:      testBuildOptions(h.spawner, h.idle),
		Crashes:    h.crashes,
		Events:     h.bus,
		Metrics:    h.metrics,
		Meta:       &types.SessionMeta{SessionID: "session-1", Host: "rig", StartedAt: time.Now()},
		StatusPath: h.status,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.sup = sup
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.sup.Run(ctx) }()
	h.t.Cleanup(h.stop)
	h.waitFor("first tick", func(s *types.Snapshot) bool { return s.Stacks[0].Active != "" })
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
	select {
	case err := <-h.done:
		if err != nil {
			h.t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		h.t.Fatal("Run did not return")
	}
}

func (h *harness) stage(doc string) {
	cfg := mustParse(h.t, doc)
	h.mu.Lock()
	h.nextCfg = cfg
	h.mu.Unlock()
}

// tick forces an Update through Resume.
func (h *harness) tick() {
	h.t.Helper()
	if err := h.sup.Resume(context.Background()); err != nil {
		h.t.Fatalf("Resume: %v", err)
	}
}

func (h *harness) waitFor(what string, cond func(*types.Snapshot) bool) *types.Snapshot {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := h.sup.Snapshot(); s != nil && cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %s", what)
	return nil
}

func activeProc(h *harness, stack int) *fakeProc {
	h.t.Helper()
	snap := h.sup.Snapshot()
	for _, m := range snap.Stacks[stack].Miners {
		if m.Active {
			return h.spawner.proc(m.PID)
		}
	}
	h.t.Fatalf("no active miner in stack %d", stack)
	return nil
}

func TestSupervisor_StartsHighestEligible(t *testing.T) {
	h := newHarness(t, baseDoc)
	h.start()

	snap := h.sup.Snapshot()
	if snap.Stacks[0].Name != StackCPU || snap.Stacks[0].Active != "always" {
		t.Errorf("cpu active = %q", snap.Stacks[0].Active)
	}
	if snap.Stacks[1].Active != "gpu" {
		t.Errorf("gpu active = %q", snap.Stacks[1].Active)
	}

	h.idle.set(2 * time.Minute)
	h.tick()
	if got := h.sup.Snapshot().Stacks[0].Active; got != "when-idle" {
		t.Errorf("after idle: cpu active = %q", got)
	}
	if n := h.spawner.running(); n != 2 {
		t.Errorf("running backends = %d, want 2", n)
	}
	status, err := ipc.ReadStatusFile(h.status)
	if err != nil {
		t.Fatalf("ReadStatusFile: %v", err)
	}
	if status.Stacks[0].Active != "when-idle" || status.SessionID != "session-1" {
		t.Errorf("status file = %+v", status.Stacks[0])
	}
}

func TestSupervisor_CrashQuarantine(t *testing.T) {
	h := newHarness(t, baseDoc)
	sub := h.bus.Subscribe(16, events.Only(types.EventTypeCrashed))
	defer sub.Close()
	h.start()

	h.idle.set(2 * time.Minute)
	h.tick()
	p := activeProc(h, 0)
	p.emit("[2021-09-01 12:00:00.000]  miner    speed 10s/60s/15m 100.0 n/a n/a H/s")
	p.exit(1, false)
	h.tick()

	snap := h.sup.Snapshot()
	if snap.Stacks[0].Active != "always" {
		t.Errorf("cpu active = %q, want always", snap.Stacks[0].Active)
	}
	if !snap.Stacks[0].Miners[0].Broken {
		t.Error("crashed miner should be broken")
	}

	select {
	case ev := <-sub.Events():
		if ev.Miner != "when-idle" || ev.CrashPath == "" {
			t.Errorf("crashed event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no crashed event")
	}
	entries, err := h.crashes.List(context.Background())
	if err != nil || len(entries) != 1 || entries[0].Miner != "when-idle" {
		t.Fatalf("crash records = %+v, %v", entries, err)
	}
	data, _ := h.crashes.Get(context.Background(), entries[0].Key)
	if !slices.Contains(splitLines(string(data)), "[2021-09-01 12:00:00.000]  miner    speed 10s/60s/15m 100.0 n/a n/a H/s") {
		t.Errorf("crash record missing log tail:\n%s", data)
	}
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := range len(s) {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func TestSupervisor_PauseResume(t *testing.T) {
	h := newHarness(t, baseDoc)
	sub := h.bus.Subscribe(16, events.Only(types.EventTypePaused, types.EventTypeResumed))
	defer sub.Close()
	h.start()

	if err := h.sup.Pause(context.Background(), 0); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	snap := h.sup.Snapshot()
	if snap.PausedUntil == nil || !snap.PausedUntil.IsZero() {
		t.Errorf("PausedUntil = %v", snap.PausedUntil)
	}
	if h.spawner.running() != 0 {
		t.Error("pause must stop every backend")
	}
	for _, st := range snap.Stacks {
		for _, m := range st.Miners {
			if m.Broken {
				t.Errorf("pause marked %s broken", m.Name)
			}
		}
	}

	h.tick()
	if snap := h.sup.Snapshot(); snap.PausedUntil != nil || snap.Stacks[0].Active != "always" {
		t.Errorf("after resume: paused=%v active=%q", snap.PausedUntil, snap.Stacks[0].Active)
	}
	for _, want := range []types.EventType{types.EventTypePaused, types.EventTypeResumed} {
		select {
		case ev := <-sub.Events():
			if ev.Type != want {
				t.Errorf("event = %q, want %q", ev.Type, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("missing %s event", want)
		}
	}
}

func TestSupervisor_PauseExpires(t *testing.T) {
	h := newHarness(t, baseDoc)
	h.sup.cfg.Supervisor.TickInterval.Duration = 10 * time.Millisecond
	h.start()

	if err := h.sup.Pause(context.Background(), 200*time.Millisecond); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if h.sup.Snapshot().PausedUntil == nil {
		t.Fatal("expected paused snapshot")
	}
	h.waitFor("pause expiry", func(s *types.Snapshot) bool {
		return s.PausedUntil == nil && s.Stacks[0].Active == "always"
	})
}

func TestSupervisor_Reload(t *testing.T) {
	h := newHarness(t, baseDoc)
	h.start()
	old := activeProc(h, 0)

	h.stage(`
addresses: {XMR: 4wallet}
cpu-miners:
  replacement:
    currency: XMR
`)
	res, err := h.sup.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if res.CPU != 1 || res.GPU != 0 {
		t.Errorf("result = %+v", res)
	}
	if old.Running() {
		t.Error("old backend must be stopped before replacement")
	}
	snap := h.sup.Snapshot()
	if snap.Stacks[0].Active != "replacement" || len(snap.Stacks[1].Miners) != 0 {
		t.Errorf("after reload: %+v", snap.Stacks)
	}
	if h.spawner.running() != 1 {
		t.Errorf("running = %d, want 1", h.spawner.running())
	}
	if got := h.metrics.Snapshot().Reloads; got != 1 {
		t.Errorf("reloads = %d", got)
	}
}

func TestSupervisor_ReloadRejectedKeepsStacks(t *testing.T) {
	h := newHarness(t, baseDoc)
	h.start()
	before := activeProc(h, 0)

	h.stage(`
cpu-miners:
  broken:
    currency: DOGE
`)
	if _, err := h.sup.Reload(context.Background()); !errors.Is(err, types.ErrInvalidConfig) {
		t.Fatalf("Reload err = %v", err)
	}
	if !before.Running() || h.sup.Snapshot().Stacks[0].Active != "always" {
		t.Error("rejected reload must leave the running stacks untouched")
	}
	if got := h.metrics.Snapshot().ReloadFailures; got != 1 {
		t.Errorf("reload failures = %d", got)
	}
}

func TestSupervisor_Logs(t *testing.T) {
	h := newHarness(t, baseDoc)
	h.start()
	p := activeProc(h, 0)
	for _, line := range []string{"one", "two", "three"} {
		p.emit(line)
	}

	lines, err := h.sup.Logs(context.Background(), StackCPU, "always", 2)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if !slices.Equal(lines, []string{"two", "three"}) {
		t.Errorf("lines = %v", lines)
	}
	if _, err := h.sup.Logs(context.Background(), StackCPU, "missing", 1); !errors.Is(err, ErrUnknownMiner) {
		t.Errorf("unknown miner err = %v", err)
	}
}

func TestSupervisor_ShutdownStopsEverything(t *testing.T) {
	h := newHarness(t, baseDoc)
	sub := h.bus.Subscribe(16, events.Only(types.EventTypeSwitch))
	defer sub.Close()
	h.start()

	h.stop()
	if n := h.spawner.running(); n != 0 {
		t.Errorf("running after shutdown = %d", n)
	}
	if err := h.sup.Pause(context.Background(), time.Second); !errors.Is(err, ErrStopped) {
		t.Errorf("command after stop err = %v", err)
	}

	var stops int
	for len(sub.Events()) > 0 {
		if ev := <-sub.Events(); ev.To == "" {
			stops++
		}
	}
	if stops != 2 {
		t.Errorf("stop switches = %d, want 2", stops)
	}
	if snap := h.sup.Snapshot(); snap.Stacks[0].Active != "" || snap.Stacks[1].Active != "" {
		t.Errorf("final snapshot still has active miners: %+v", snap.Stacks)
	}
}

func TestSupervisor_CommandsBeforeRun(t *testing.T) {
	h := newHarness(t, baseDoc)
	if err := h.sup.Pause(context.Background(), time.Second); !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v", err)
	}
	if h.sup.Snapshot() == nil {
		t.Error("New should publish an initial snapshot")
	}
}
