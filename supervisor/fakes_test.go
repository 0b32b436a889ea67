package supervisor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/justapithecus/leprechaun/miner"
	"github.com/justapithecus/leprechaun/process"
)

// fakeProc is a Handle that exits on Stop.
type fakeProc struct {
	mu      sync.Mutex
	spec    process.Spec
	opts    process.Options
	pid     int
	running bool
	stopReq bool
	code    int
	done    chan struct{}
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

func (p *fakeProc) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *fakeProc) Done() <-chan struct{} { return p.done }
func (p *fakeProc) PID() int              { return p.pid }

func (p *fakeProc) exit(code int, requested bool) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stopReq = p.stopReq || requested
	p.code = code
	close(p.done)
	onExit := p.opts.OnExit
	p.mu.Unlock()
	if onExit != nil {
		onExit(code)
	}
}

func (p *fakeProc) Stop() error                   { p.exit(0, true); return nil }
func (p *fakeProc) Kill() error                   { p.exit(-1, true); return nil }
func (p *fakeProc) Terminate(time.Duration) error { return p.Stop() }

func (p *fakeProc) emit(line string) {
	p.opts.Buffer.Append(line)
	if p.opts.OnLine != nil {
		p.opts.OnLine(line)
	}
}

type fakeSpawner struct {
	mu    sync.Mutex
	next  atomic.Int32
	procs map[int]*fakeProc
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{procs: map[int]*fakeProc{}}
}

func (s *fakeSpawner) Spawn(spec process.Spec, opts process.Options) (miner.Handle, error) {
	pid := 2000 + int(s.next.Add(1))
	p := &fakeProc{spec: spec, opts: opts, pid: pid, running: true, code: -1, done: make(chan struct{})}
	s.mu.Lock()
	s.procs[pid] = p
	s.mu.Unlock()
	return p, nil
}

func (s *fakeSpawner) proc(pid int) *fakeProc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[pid]
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

// idleSwitch is a controllable idle source.
type idleSwitch struct{ idle atomic.Int64 }

func (i *idleSwitch) IdleTime() time.Duration { return time.Duration(i.idle.Load()) }
func (i *idleSwitch) set(d time.Duration)     { i.idle.Store(int64(d)) }
