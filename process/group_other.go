//go:build !unix && !windows

package process

import "syscall"

// Platforms without process groups get plain per-process termination;
// descendants are not tracked (best-effort).
type platformGroup struct{}

func newPlatformGroup() (platformGroup, error) {
	return platformGroup{}, nil
}

func sysProcAttr() *syscall.SysProcAttr { return nil }

func (g *Group) adopt(*Process) error { return nil }

func (platformGroup) release() error { return nil }

func (p *Process) signalTerm() error { return p.cmd.Process.Kill() }

func (p *Process) signalKill() error { return p.cmd.Process.Kill() }

func (p *Process) reapDescendants() {}
