package events

import (
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/leprechaun/types"
)

func recv(t *testing.T, s *Subscription) types.Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return types.Event{}
}

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	a := b.Subscribe(4, nil)
	c := b.Subscribe(4, nil)

	b.Publish(types.SwitchEvent("cpu", "", "m1", time.Now()))

	if ev := recv(t, a); ev.To != "m1" {
		t.Errorf("a got %+v", ev)
	}
	if ev := recv(t, c); ev.To != "m1" {
		t.Errorf("c got %+v", ev)
	}
}

func TestBus_Filter(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(4, Only(types.EventTypeCrashed))

	b.Publish(types.LogLineEvent("cpu", "m1", "hello", time.Now()))
	b.Publish(types.CrashedEvent("cpu", "m1", "p", "exited", nil, time.Now()))

	if ev := recv(t, s); ev.Type != types.EventTypeCrashed {
		t.Errorf("got %q, want crashed", ev.Type)
	}
	select {
	case ev := <-s.Events():
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(1, nil)

	for i := 0; i < 3; i++ {
		b.Publish(types.LogLineEvent("cpu", "m1", "x", time.Now()))
	}

	if s.Dropped() != 2 || b.Dropped() != 2 {
		t.Errorf("dropped = %d/%d, want 2/2", s.Dropped(), b.Dropped())
	}
}

func TestBus_CloseIsSafeWithConcurrentPublish(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(8, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.Publish(types.LogLineEvent("cpu", "m1", "x", time.Now()))
		}
	}()
	s.Close()
	s.Close()
	b.Close()
	wg.Wait()

	// Drain; channel must be closed.
	for range s.Events() {
	}
	late := b.Subscribe(1, nil)
	if _, ok := <-late.Events(); ok {
		t.Error("subscribe after Close should return a closed subscription")
	}
}

func TestBus_NilPublish(t *testing.T) {
	var b *Bus
	b.Publish(types.Event{Type: types.EventTypeSwitch})
}
