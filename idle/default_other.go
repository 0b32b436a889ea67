//go:build !linux && !darwin && !windows

package idle

import (
	"context"
	"time"
)

// DefaultProbe reports ErrUnsupported; when-idle conditions never pass
// unless an idle command is configured.
func DefaultProbe() Probe {
	return unsupported{}
}

type unsupported struct{}

func (unsupported) Name() string { return "unsupported" }

func (unsupported) Idle(context.Context) (time.Duration, error) {
	return 0, ErrUnsupported
}
