package idle

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	procGetLastInputInfo = user32.NewProc("GetLastInputInfo")
	procGetTickCount     = kernel32.NewProc("GetTickCount")
)

type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

// DefaultProbe uses GetLastInputInfo, which covers all session input.
func DefaultProbe() Probe {
	return lastInputProbe{}
}

type lastInputProbe struct{}

func (lastInputProbe) Name() string { return "GetLastInputInfo" }

func (lastInputProbe) Idle(context.Context) (time.Duration, error) {
	info := lastInputInfo{cbSize: uint32(unsafe.Sizeof(lastInputInfo{}))}
	r, _, err := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if r == 0 {
		return 0, fmt.Errorf("GetLastInputInfo: %w", err)
	}
	now, _, _ := procGetTickCount.Call()
	// Both counters are 32-bit milliseconds; unsigned subtraction handles wrap.
	elapsed := uint32(now) - info.dwTime
	return time.Duration(elapsed) * time.Millisecond, nil
}
