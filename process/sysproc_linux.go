package process

import "syscall"

// sysProcAttr places the backend in its own process group and asks the
// kernel to SIGKILL it when the spawning thread dies. The Go runtime only
// retires threads of goroutines that exit while locked to their thread,
// and Start never locks.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
