package types

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is the sentinel for construction-time configuration errors.
// Use errors.Is(err, ErrInvalidConfig) to detect them.
var ErrInvalidConfig = errors.New("invalid config")

// InvalidConfigError describes a rejected configuration value.
type InvalidConfigError struct {
	// Miner is the miner entry the error belongs to, if any.
	Miner string
	// Field is the offending configuration key, if known.
	Field string
	// Message describes the problem.
	Message string
	// Err is an optional underlying cause.
	Err error
}

// NewInvalidConfig creates an InvalidConfigError for a field.
func NewInvalidConfig(field, format string, args ...any) *InvalidConfigError {
	return &InvalidConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *InvalidConfigError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("field '%s': %s", e.Field, msg)
	}
	if e.Miner != "" {
		msg = fmt.Sprintf("miner '%s': %s", e.Miner, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return "invalid config: " + msg
}

func (e *InvalidConfigError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInvalidConfig.
func (e *InvalidConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ForMiner attaches a miner name to err if it is an InvalidConfigError
// without one. Other errors are wrapped as invalid config for that miner.
func ForMiner(name string, err error) error {
	if err == nil {
		return nil
	}
	var ice *InvalidConfigError
	if errors.As(err, &ice) {
		if ice.Miner == "" {
			clone := *ice
			clone.Miner = name
			return &clone
		}
		return err
	}
	return &InvalidConfigError{Miner: name, Message: "rejected", Err: err}
}
