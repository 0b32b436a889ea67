package condition

import (
	"fmt"
	"time"

	"github.com/justapithecus/leprechaun/types"
)

// Idle is satisfied once the user has been idle for at least Threshold.
type Idle struct {
	threshold time.Duration
	source    IdleSource
}

// NewIdle creates an Idle condition. A threshold <= 0 or a nil source is
// rejected.
func NewIdle(threshold time.Duration, source IdleSource) (*Idle, error) {
	if threshold <= 0 {
		return nil, types.NewInvalidConfig("idle-minutes", "idle time must be positive (got %s)", threshold)
	}
	if source == nil {
		return nil, types.NewInvalidConfig("condition", "when-idle needs an idle time source")
	}
	return &Idle{threshold: threshold, source: source}, nil
}

// Threshold returns the configured idle threshold.
func (c *Idle) Threshold() time.Duration { return c.threshold }

// Satisfied reports whether idle time >= threshold.
func (c *Idle) Satisfied() bool {
	return c.source.IdleTime() >= c.threshold
}

func (c *Idle) String() string {
	return fmt.Sprintf("when-idle(%s)", c.threshold)
}

func (c *Idle) sealed() {}
