//go:build unix

package process

import (
	"errors"

	"golang.org/x/sys/unix"
)

type platformGroup struct{}

func newPlatformGroup() (platformGroup, error) {
	return platformGroup{}, nil
}

func (g *Group) adopt(*Process) error { return nil }

func (platformGroup) release() error { return nil }

// signalTerm sends SIGTERM to the backend's process group.
func (p *Process) signalTerm() error {
	return signalGroup(p.cmd.Process.Pid, unix.SIGTERM)
}

// signalKill sends SIGKILL to the backend's process group.
func (p *Process) signalKill() error {
	return signalGroup(p.cmd.Process.Pid, unix.SIGKILL)
}

// reapDescendants kills whatever is left of the backend's process group
// once the leader has been reaped. The pgid stays reserved while members
// live, so there is no leader fallback here.
func (p *Process) reapDescendants() {
	_ = unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL)
}

// signalGroup signals -pgid, falling back to the leader alone if the group
// is already gone.
func signalGroup(pid int, sig unix.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		err = unix.Kill(pid, sig)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
	}
	return err
}
