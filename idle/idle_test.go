package idle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeProbe struct {
	mu   sync.Mutex
	idle time.Duration
	err  error
}

func (p *fakeProbe) Name() string { return "fake" }

func (p *fakeProbe) Idle(context.Context) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle, p.err
}

func (p *fakeProbe) set(d time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle, p.err = d, err
}

func TestSampler_Sample(t *testing.T) {
	probe := &fakeProbe{idle: 3 * time.Minute}
	s := NewSampler(probe, time.Second, nil)

	if got := s.IdleTime(); got != 0 {
		t.Fatalf("IdleTime before sampling = %s, want 0", got)
	}

	s.Sample(context.Background())
	if got := s.IdleTime(); got != 3*time.Minute {
		t.Errorf("IdleTime = %s, want 3m", got)
	}

	probe.set(0, errors.New("no display"))
	s.Sample(context.Background())
	if got := s.IdleTime(); got != 0 {
		t.Errorf("IdleTime after failure = %s, want 0", got)
	}

	probe.set(-time.Second, nil)
	s.Sample(context.Background())
	if got := s.IdleTime(); got != 0 {
		t.Errorf("negative samples should clamp to 0, got %s", got)
	}
}

func TestSampler_RunStopsOnCancel(t *testing.T) {
	probe := &fakeProbe{idle: time.Minute}
	s := NewSampler(probe, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for s.IdleTime() != time.Minute {
		select {
		case <-deadline:
			t.Fatal("sampler never published a value")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestParseMillis(t *testing.T) {
	d, err := ParseMillis([]byte("1500\n"))
	if err != nil || d != 1500*time.Millisecond {
		t.Errorf("ParseMillis = %s, %v; want 1.5s", d, err)
	}
	if _, err := ParseMillis([]byte("soon")); err == nil {
		t.Error("expected error for non-numeric output")
	}
}

func TestParseHIDIdle(t *testing.T) {
	out := []byte(`    | |   "HIDIdleTime" = 2500000000` + "\n")
	d, err := ParseHIDIdle(out)
	if err != nil || d != 2500*time.Millisecond {
		t.Errorf("ParseHIDIdle = %s, %v; want 2.5s", d, err)
	}
	if _, err := ParseHIDIdle([]byte("nothing")); err == nil {
		t.Error("expected error when property is missing")
	}
}

func TestStatic(t *testing.T) {
	if Static(time.Hour).IdleTime() != time.Hour {
		t.Error("Static should return its value")
	}
}
