package miner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/leprechaun/condition"
	"github.com/justapithecus/leprechaun/process"
	"github.com/justapithecus/leprechaun/types"
)

// fakeProc is a scriptable Handle.
type fakeProc struct {
	mu       sync.Mutex
	running  bool
	stopReq  bool
	code     int
	done     chan struct{}
	pid      int
	opts     process.Options
	stubborn bool

	// unkillable processes ignore Kill and Terminate.
	unkillable bool
}

func (p *fakeProc) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *fakeProc) StopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopReq
}

func (p *fakeProc) Done() <-chan struct{} { return p.done }
func (p *fakeProc) PID() int              { return p.pid }

func (p *fakeProc) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *fakeProc) exit(code int, requested bool) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.code = code
	if requested {
		p.stopReq = true
	}
	close(p.done)
	p.mu.Unlock()
	if p.opts.OnExit != nil {
		p.opts.OnExit(code)
	}
}

// crash simulates an unexpected exit.
func (p *fakeProc) crash(code int) { p.exit(code, false) }

func (p *fakeProc) emit(line string) {
	if p.opts.Buffer != nil {
		p.opts.Buffer.Append(line)
	}
	if p.opts.OnLine != nil {
		p.opts.OnLine(line)
	}
}

func (p *fakeProc) Stop() error {
	p.mu.Lock()
	p.stopReq = true
	stubborn := p.stubborn
	p.mu.Unlock()
	if !stubborn {
		p.exit(0, true)
	}
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	p.stopReq = true
	stuck := p.unkillable
	p.mu.Unlock()
	if stuck {
		return errStuck
	}
	p.exit(-1, true)
	return nil
}

func (p *fakeProc) Terminate(time.Duration) error {
	_ = p.Stop()
	if p.Running() {
		return p.Kill()
	}
	return nil
}

func (p *fakeProc) setUnkillable(v bool) {
	p.mu.Lock()
	p.unkillable = v
	p.stubborn = v
	p.mu.Unlock()
}

// fakeSpawner hands out fakeProcs and remembers them.
type fakeSpawner struct {
	mu    sync.Mutex
	procs []*fakeProc
	fail  map[string]error
	next  int
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{fail: map[string]error{}}
}

func (s *fakeSpawner) Spawn(spec process.Spec, opts process.Options) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[spec.Path]; ok {
		return nil, &process.LaunchError{Path: spec.Path, Err: err}
	}
	s.next++
	p := &fakeProc{running: true, code: -1, done: make(chan struct{}), pid: 1000 + s.next, opts: opts}
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.procs {
		if p.Running() {
			n++
		}
	}
	return n
}

// fakeLauncher returns a fixed spec.
type fakeLauncher struct {
	path string
	err  error
}

func (l fakeLauncher) LaunchSpec(context.Context) (process.Spec, error) {
	if l.err != nil {
		return process.Spec{}, l.err
	}
	return process.Spec{Path: l.path, Args: []string{"--rig", l.path}}, nil
}

func (l fakeLauncher) Backend() string { return "fake" }

// gate is a switchable condition built from a real Idle condition.
type gate struct {
	mu   sync.Mutex
	open bool
}

func (g *gate) set(open bool) {
	g.mu.Lock()
	g.open = open
	g.mu.Unlock()
}

func (g *gate) condition() condition.Condition {
	c, err := condition.NewIdle(time.Minute, condition.IdleFunc(func() time.Duration {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.open {
			return time.Hour
		}
		return 0
	}))
	if err != nil {
		panic(err)
	}
	return c
}

// memRecorder keeps crash records in memory.
type memRecorder struct {
	mu      sync.Mutex
	records []CrashRecord
	err     error
}

func (r *memRecorder) Record(_ context.Context, rec CrashRecord) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.records = append(r.records, rec)
	return fmt.Sprintf("crashes/%s.txt", rec.Miner), nil
}

func (r *memRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recorder) Publish(ev types.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// of returns events of the given types in publish order.
func (r *recorder) of(typs ...types.EventType) []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Event
	for _, ev := range r.events {
		for _, t := range typs {
			if ev.Type == t {
				out = append(out, ev)
			}
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

var (
	errNoBinary = errors.New("no such file")
	errStuck    = errors.New("operation not permitted")
)
