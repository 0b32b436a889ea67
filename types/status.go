package types

import "time"

// SessionMeta identifies one supervisor session.
type SessionMeta struct {
	// SessionID is a uuid generated at startup.
	SessionID string
	// Host is the local hostname, also used in worker names.
	Host string
	// StartedAt is when the supervisor started.
	StartedAt time.Time
}

// MinerStatus is a point-in-time view of one miner.
type MinerStatus struct {
	Name     string   `json:"name" yaml:"name" msgpack:"name"`
	Currency string   `json:"currency" yaml:"currency" msgpack:"currency"`
	Backend  string   `json:"backend" yaml:"backend" msgpack:"backend"`
	Enabled  bool     `json:"enabled" yaml:"enabled" msgpack:"enabled"`
	Allowed  bool     `json:"allowed" yaml:"allowed" msgpack:"allowed"`
	Broken   bool     `json:"broken" yaml:"broken" msgpack:"broken"`
	Running  bool     `json:"running" yaml:"running" msgpack:"running"`
	Active   bool     `json:"active" yaml:"active" msgpack:"active"`
	Hashrate *float64 `json:"hashrate,omitempty" yaml:"hashrate,omitempty" msgpack:"hashrate,omitempty"`
	PID      int      `json:"pid,omitempty" yaml:"pid,omitempty" msgpack:"pid,omitempty"`
}

// StackStatus is a point-in-time view of one miner stack.
type StackStatus struct {
	Name   string        `json:"name" yaml:"name" msgpack:"name"`
	Active string        `json:"active,omitempty" yaml:"active,omitempty" msgpack:"active,omitempty"`
	Miners []MinerStatus `json:"miners" yaml:"miners" msgpack:"miners"`
}

// Snapshot is the supervisor state published after every tick.
type Snapshot struct {
	FrameVersion int           `json:"frame_version" yaml:"frame_version" msgpack:"frame_version"`
	Version      string        `json:"version" yaml:"version" msgpack:"version"`
	SessionID    string        `json:"session_id" yaml:"session_id" msgpack:"session_id"`
	Host         string        `json:"host" yaml:"host" msgpack:"host"`
	PID          int           `json:"pid" yaml:"pid" msgpack:"pid"`
	StartedAt    time.Time     `json:"started_at" yaml:"started_at" msgpack:"started_at"`
	UpdatedAt    time.Time     `json:"updated_at" yaml:"updated_at" msgpack:"updated_at"`
	// PausedUntil is set while paused; the zero time means until resumed.
	PausedUntil  *time.Time    `json:"paused_until,omitempty" yaml:"paused_until,omitempty" msgpack:"paused_until,omitempty"`
	Stacks       []StackStatus `json:"stacks" yaml:"stacks" msgpack:"stacks"`
}
