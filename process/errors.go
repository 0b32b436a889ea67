package process

import (
	"errors"
	"fmt"
)

// ErrGroupClosed is returned by Start after the group has been closed.
var ErrGroupClosed = errors.New("process group closed")

// LaunchError reports a backend that could not be spawned.
type LaunchError struct {
	// Path is the executable that failed to launch.
	Path string
	// Err is the underlying cause (exec.ErrNotFound, permission, syscall).
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsLaunchError reports whether err is (or wraps) a LaunchError.
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
