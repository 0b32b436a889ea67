//go:build unix && !linux

package process

import "syscall"

// sysProcAttr places the backend in its own process group. There is no
// parent-death signal here, so an abrupt supervisor crash can orphan it.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
