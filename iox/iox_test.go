package iox

import (
	"errors"
	"testing"
)

type spyCloser struct{ calls int }

func (s *spyCloser) Close() error { s.calls++; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if s.calls != 1 {
		t.Fatalf("Close calls = %d, want 1", s.calls)
	}
}

func TestCloseFunc_Deferred(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.calls != 0 {
		t.Fatal("Close called before the returned func ran")
	}
	fn()
	fn()
	if s.calls != 2 {
		t.Fatalf("Close calls = %d, want 2", s.calls)
	}
}
