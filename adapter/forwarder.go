package adapter

import (
	"context"

	"github.com/justapithecus/leprechaun/events"
	"github.com/justapithecus/leprechaun/log"
	"github.com/justapithecus/leprechaun/types"
)

// ForwardBuffer is the subscription queue length of a Forwarder.
const ForwardBuffer = 64

// Forwarder drains forwardable events from a bus into an adapter.
type Forwarder struct {
	adapter Adapter
	sub     *events.Subscription
	meta    *types.SessionMeta
	logger  *log.Logger

	// OnResult is called after each publish attempt. Optional.
	OnResult func(env *Envelope, err error)
}

// NewForwarder subscribes to switch and crashed events on bus.
func NewForwarder(bus *events.Bus, a Adapter, meta *types.SessionMeta, logger *log.Logger) *Forwarder {
	if logger == nil {
		logger = log.NewNop()
	}
	filter := func(ev types.Event) bool { return ev.Type.IsForwardable() }
	return &Forwarder{
		adapter: a,
		sub:     bus.Subscribe(ForwardBuffer, filter),
		meta:    meta,
		logger:  logger,
	}
}

// Run publishes events until ctx is done or the bus closes. It then closes
// the subscription and the adapter. Publish failures are logged and never
// returned.
func (f *Forwarder) Run(ctx context.Context) error {
	defer func() {
		f.sub.Close()
		if err := f.adapter.Close(); err != nil {
			f.logger.Warn("adapter close failed", map[string]any{"error": err.Error()})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-f.sub.Events():
			if !ok {
				return nil
			}
			env := NewEnvelope(ev, f.meta)
			err := f.adapter.Publish(ctx, env)
			if err != nil && ctx.Err() == nil {
				f.logger.Warn("event forward failed", map[string]any{
					"event_id": env.EventID,
					"type":     env.Type,
					"stack":    env.Stack,
					"error":    err.Error(),
				})
			}
			if f.OnResult != nil {
				f.OnResult(env, err)
			}
		}
	}
}

// Dropped returns how many events did not fit the forwarder's queue.
func (f *Forwarder) Dropped() int64 {
	return f.sub.Dropped()
}
