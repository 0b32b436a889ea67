package types

import "time"

// EventType represents the type of a supervisor event.
type EventType string

// Event type constants.
const (
	// EventTypeSwitch is emitted when a stack changes its active miner.
	EventTypeSwitch EventType = "switch"
	// EventTypeLogLine carries one line of backend output.
	EventTypeLogLine EventType = "log_line"
	// EventTypeCrashed is emitted when a miner is quarantined.
	EventTypeCrashed EventType = "crashed"
	// EventTypeExited is emitted exactly once per backend process exit.
	EventTypeExited EventType = "exited"
	// EventTypeReloaded is emitted after a configuration reload takes effect.
	EventTypeReloaded EventType = "reloaded"
	// EventTypePaused is emitted when mining is paused.
	EventTypePaused EventType = "paused"
	// EventTypeResumed is emitted when a pause ends, by resume or expiry.
	EventTypeResumed EventType = "resumed"
)

// IsForwardable reports whether events of this type leave the host
// through an adapter. Log lines and exits stay local.
func (e EventType) IsForwardable() bool {
	return e == EventTypeSwitch || e == EventTypeCrashed
}

// Event is a single observer notification.
// Empty From/To on a switch event mean "no active miner".
type Event struct {
	// Type is the event discriminator.
	Type EventType `json:"type" msgpack:"type"`
	// Stack is the device class the event belongs to ("cpu" or "gpu").
	Stack string `json:"stack,omitempty" msgpack:"stack,omitempty"`
	// Miner is the miner the event refers to (log_line, crashed, exited).
	Miner string `json:"miner,omitempty" msgpack:"miner,omitempty"`
	// From is the previously active miner (switch).
	From string `json:"from,omitempty" msgpack:"from,omitempty"`
	// To is the newly active miner (switch).
	To string `json:"to,omitempty" msgpack:"to,omitempty"`
	// Line is the captured output line (log_line).
	Line string `json:"line,omitempty" msgpack:"line,omitempty"`
	// CrashPath is the crash record key (crashed).
	CrashPath string `json:"crash_path,omitempty" msgpack:"crash_path,omitempty"`
	// ExitCode is the process exit code (exited, crashed).
	ExitCode *int `json:"exit_code,omitempty" msgpack:"exit_code,omitempty"`
	// Reason is a short human readable cause (crashed, paused).
	Reason string `json:"reason,omitempty" msgpack:"reason,omitempty"`
	// Time is when the event was produced.
	Time time.Time `json:"time" msgpack:"time"`
}

// SwitchEvent builds a switch event.
func SwitchEvent(stack, from, to string, at time.Time) Event {
	return Event{Type: EventTypeSwitch, Stack: stack, From: from, To: to, Time: at}
}

// LogLineEvent builds a log line event.
func LogLineEvent(stack, miner, line string, at time.Time) Event {
	return Event{Type: EventTypeLogLine, Stack: stack, Miner: miner, Line: line, Time: at}
}

// CrashedEvent builds a crashed event.
func CrashedEvent(stack, miner, path, reason string, exitCode *int, at time.Time) Event {
	return Event{
		Type:      EventTypeCrashed,
		Stack:     stack,
		Miner:     miner,
		CrashPath: path,
		Reason:    reason,
		ExitCode:  exitCode,
		Time:      at,
	}
}

// ExitedEvent builds an exited event.
func ExitedEvent(stack, miner string, code int, at time.Time) Event {
	return Event{Type: EventTypeExited, Stack: stack, Miner: miner, ExitCode: &code, Time: at}
}
