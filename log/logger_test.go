package log

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/justapithecus/leprechaun/types"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_SessionFields(t *testing.T) {
	var buf bytes.Buffer
	meta := &types.SessionMeta{SessionID: "sess-1", Host: "rig"}
	l, err := NewLoggerWithOptions(meta, Options{Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatalf("NewLoggerWithOptions: %v", err)
	}

	l.WithStack("cpu").WithMiner("m1").Info("switched", map[string]any{"to": "m1"})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	for key, want := range map[string]string{
		"session_id": "sess-1",
		"host":       "rig",
		"stack":      "cpu",
		"miner":      "m1",
		"level":      "info",
		"message":    "switched",
	} {
		if got, _ := e[key].(string); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	fields, ok := e["fields"].(map[string]any)
	if !ok || fields["to"] != "m1" {
		t.Errorf("fields = %v, want to=m1", e["fields"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLoggerWithOptions(&types.SessionMeta{SessionID: "s"}, Options{
		Level:   "warn",
		Writers: []io.Writer{&buf},
	})
	if err != nil {
		t.Fatalf("NewLoggerWithOptions: %v", err)
	}

	l.Info("dropped", nil)
	l.Warn("kept", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["message"] != "kept" {
		t.Fatalf("entries = %v, want only the warn entry", entries)
	}
}

func TestLogger_MultipleWriters(t *testing.T) {
	var a, b bytes.Buffer
	l, err := NewLoggerWithOptions(nil, Options{Writers: []io.Writer{&a, &b}})
	if err != nil {
		t.Fatalf("NewLoggerWithOptions: %v", err)
	}
	l.Sugar().Infof("hello %s", "rig")

	if len(decodeLines(t, &a)) != 1 || len(decodeLines(t, &b)) != 1 {
		t.Error("expected one entry in each writer")
	}
}

func TestParseLevel_Invalid(t *testing.T) {
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewLoggerWithOptions(nil, Options{Level: "loud"}); err == nil {
		t.Error("expected constructor error for unknown level")
	}
}
