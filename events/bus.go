// Package events fans supervisor events out to observers.
//
// Publish never blocks: each subscriber has a bounded queue and events that
// do not fit are dropped and counted. Producers include backend capture
// goroutines, so a slow observer must never stall output capture or the tick
// loop.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/justapithecus/leprechaun/types"
)

// DefaultBuffer is the queue length used when Subscribe is given <= 0.
const DefaultBuffer = 256

// Filter selects the events a subscriber receives. Nil accepts everything.
type Filter func(types.Event) bool

// Only accepts events of the listed types.
func Only(typs ...types.EventType) Filter {
	set := make(map[types.EventType]struct{}, len(typs))
	for _, t := range typs {
		set[t] = struct{}{}
	}
	return func(ev types.Event) bool {
		_, ok := set[ev.Type]
		return ok
	}
}

// Bus is an in-process publish/subscribe hub.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Int64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription is one observer's queue.
type Subscription struct {
	bus     *Bus
	ch      chan types.Event
	filter  Filter
	dropped atomic.Int64
	once    sync.Once
}

// Events returns the receive side of the queue. It is closed by Close or
// when the bus closes.
func (s *Subscription) Events() <-chan types.Event {
	return s.ch
}

// Dropped returns how many events this subscriber missed.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes the queue.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	s.once.Do(func() {
		delete(s.bus.subs, s)
		close(s.ch)
	})
}

// Subscribe registers an observer.
func (b *Bus) Subscribe(buffer int, filter Filter) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription{bus: b, ch: make(chan types.Event, buffer), filter: filter}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every matching subscriber without blocking.
// Nil buses discard events.
func (b *Bus) Publish(ev types.Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the total number of dropped deliveries.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscription. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for s := range b.subs {
		s.closeLocked()
	}
}
