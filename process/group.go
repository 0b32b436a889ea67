package process

import (
	"errors"
	"sync"
	"time"
)

// Group is the process group controller. One Group is created at supervisor
// startup and every backend is started through it, so closing the group, or
// the supervisor dying, takes every backend down with it.
//
// Guarantees by platform:
//   - Windows: all processes join one job object with
//     JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE; the kernel kills the whole tree
//     when the supervisor's handle closes, including on abrupt termination.
//     Stop and Kill reach the backend process only: its descendants share
//     the one job and live on until the group is closed.
//   - Linux: each backend runs in its own process group with
//     PR_SET_PDEATHSIG=SIGKILL, so the backend dies with the supervisor.
//     Stop and Kill signal the whole process group, and the group is
//     SIGKILLed once the backend exits, so descendants never outlive it.
//   - Other Unix: own process group, signalled on Stop, Kill, Close and
//     backend exit; descendants survive an abrupt supervisor crash
//     (best-effort).
type Group struct {
	mu       sync.Mutex
	procs    map[*Process]struct{}
	closed   bool
	platform platformGroup
}

// NewGroup creates the process group controller.
func NewGroup() (*Group, error) {
	platform, err := newPlatformGroup()
	if err != nil {
		return nil, err
	}
	return &Group{procs: make(map[*Process]struct{}), platform: platform}, nil
}

// Len returns the number of live processes.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.procs)
}

func (g *Group) forget(p *Process) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.procs, p)
}

// Close kills every live process, waits up to grace for them to be reaped,
// and releases OS resources. Start fails afterwards. Close is idempotent.
func (g *Group) Close(grace time.Duration) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	live := make([]*Process, 0, len(g.procs))
	for p := range g.procs {
		live = append(live, p)
	}
	g.mu.Unlock()

	var errs []error
	for _, p := range live {
		if err := p.Kill(); err != nil {
			errs = append(errs, err)
		}
	}
	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	for _, p := range live {
		select {
		case <-p.Done():
		case <-deadline.C:
			errs = append(errs, errors.New("timed out waiting for backends to exit"))
			return errors.Join(append(errs, g.platform.release())...)
		}
	}
	if err := g.platform.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
