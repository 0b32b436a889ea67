package process

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// platformGroup holds the supervisor-wide job object.
type platformGroup struct {
	job windows.Handle
}

func newPlatformGroup() (platformGroup, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return platformGroup{}, fmt.Errorf("failed to create job object: %w", err)
	}
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		_ = windows.CloseHandle(job)
		return platformGroup{}, fmt.Errorf("failed to configure job object: %w", err)
	}
	return platformGroup{job: job}, nil
}

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// adopt assigns the new process to the job. Children it spawns afterwards
// inherit the job.
func (g *Group) adopt(p *Process) error {
	h, err := windows.OpenProcess(
		windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE,
		false,
		uint32(p.cmd.Process.Pid),
	)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)
	return windows.AssignProcessToJobObject(g.platform.job, h)
}

// release closes the job handle, which kills anything still inside it.
func (pg platformGroup) release() error {
	if pg.job == 0 {
		return nil
	}
	return windows.CloseHandle(pg.job)
}

// reapDescendants is a no-op: descendants stay in the shared job until the
// group closes.
func (p *Process) reapDescendants() {}

// signalTerm has no graceful equivalent for console-less backends on
// Windows; it terminates the process outright.
func (p *Process) signalTerm() error {
	return p.cmd.Process.Kill()
}

func (p *Process) signalKill() error {
	return p.cmd.Process.Kill()
}
