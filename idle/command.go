package idle

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CommandProbe runs an external command and parses idle time from its output.
type CommandProbe struct {
	Path  string
	Args  []string
	Parse func(out []byte) (time.Duration, error)
}

// NewMillisCommand returns a probe for commands that print idle milliseconds
// (xprintidle and compatible tools).
func NewMillisCommand(path string, args ...string) *CommandProbe {
	return &CommandProbe{Path: path, Args: args, Parse: ParseMillis}
}

// Name returns the command path.
func (p *CommandProbe) Name() string { return p.Path }

// Idle runs the command once.
func (p *CommandProbe) Idle(ctx context.Context) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, p.Path, p.Args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("failed to run idle command %s: %w", p.Path, err)
	}
	return p.Parse(stdout.Bytes())
}

// ParseMillis parses a single integer of milliseconds.
func ParseMillis(out []byte) (time.Duration, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid idle milliseconds %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

var hidIdlePattern = regexp.MustCompile(`"HIDIdleTime"\s*=\s*(\d+)`)

// ParseHIDIdle parses the nanosecond HIDIdleTime property printed by
// `ioreg -c IOHIDSystem`.
func ParseHIDIdle(out []byte) (time.Duration, error) {
	m := hidIdlePattern.FindSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("HIDIdleTime not found in ioreg output")
	}
	ns, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid HIDIdleTime %q: %w", m[1], err)
	}
	return time.Duration(ns), nil
}
