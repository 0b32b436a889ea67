// Package condition implements the gating predicates that decide whether a
// miner may run right now.
//
// The variant set is closed: Idle, Schedule, And and Or. Conditions are
// immutable once built and evaluation never fails; every malformed input is
// rejected by the constructors with a types.InvalidConfigError.
package condition

import (
	"time"
)

// Condition is a side-effect-free boolean gate.
// Satisfied must be cheap and non-blocking; it is called on every tick.
type Condition interface {
	Satisfied() bool
	String() string

	sealed()
}

// IdleSource reports how long the user has been idle.
// Implementations must return quickly and must not block.
type IdleSource interface {
	IdleTime() time.Duration
}

// IdleFunc adapts a function to IdleSource.
type IdleFunc func() time.Duration

// IdleTime calls f.
func (f IdleFunc) IdleTime() time.Duration { return f() }

// Env holds the external inputs conditions consult.
type Env struct {
	// Idle is the idle-time source used by Idle conditions.
	Idle IdleSource
	// Now returns the current local wall-clock time. Nil means time.Now.
	Now func() time.Time
}

func (e Env) now() func() time.Time {
	if e.Now != nil {
		return e.Now
	}
	return time.Now
}

// Satisfied evaluates c, treating a nil condition as always satisfied.
func Satisfied(c Condition) bool {
	return c == nil || c.Satisfied()
}
