// Package adapter forwards supervisor events to downstream systems.
//
// Only switch and crashed events leave the host. Delivery is best-effort:
// a forwarder goroutine drains a bounded bus subscription, so a slow or
// failing adapter loses events instead of stalling the supervisor.
package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/leprechaun/types"
)

// Envelope is the JSON payload published for each forwarded event.
type Envelope struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Stack     string `json:"stack"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Miner     string `json:"miner,omitempty"`
	CrashPath string `json:"crash_path,omitempty"`
	Reason    string `json:"reason,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	Timestamp string `json:"timestamp"` // RFC 3339, UTC
	Host      string `json:"host"`
	SessionID string `json:"session_id"`
	Version   string `json:"version"`
}

// NewEnvelope wraps ev with a fresh event id and the session identity.
func NewEnvelope(ev types.Event, meta *types.SessionMeta) *Envelope {
	env := &Envelope{
		EventID:   uuid.NewString(),
		Type:      string(ev.Type),
		Stack:     ev.Stack,
		From:      ev.From,
		To:        ev.To,
		Miner:     ev.Miner,
		CrashPath: ev.CrashPath,
		Reason:    ev.Reason,
		ExitCode:  ev.ExitCode,
		Timestamp: ev.Time.UTC().Format(time.RFC3339Nano),
		Version:   types.Version,
	}
	if meta != nil {
		env.Host = meta.Host
		env.SessionID = meta.SessionID
	}
	return env
}

// Adapter publishes envelopes to a downstream system.
type Adapter interface {
	// Publish sends one envelope. Must respect context cancellation.
	Publish(ctx context.Context, env *Envelope) error

	// Close releases adapter resources.
	Close() error
}
