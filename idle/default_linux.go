package idle

import (
	"context"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultProbe prefers xprintidle when a graphical session provides it and
// falls back to terminal device access times otherwise. The terminal probe
// only sees keyboard activity on ttys and ptys, so desktop input without
// xprintidle is best-effort.
func DefaultProbe() Probe {
	if path, err := exec.LookPath("xprintidle"); err == nil {
		return NewMillisCommand(path)
	}
	return &ttyProbe{patterns: []string{"/dev/pts/[0-9]*", "/dev/tty[0-9]*"}, now: time.Now}
}

// ttyProbe reports time since the most recently read terminal device.
type ttyProbe struct {
	patterns []string
	now      func() time.Time
}

func (p *ttyProbe) Name() string { return "tty-atime" }

func (p *ttyProbe) Idle(ctx context.Context) (time.Duration, error) {
	var latest time.Time
	for _, pattern := range p.patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return 0, err
		}
		for _, m := range matches {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			var st unix.Stat_t
			if err := unix.Stat(m, &st); err != nil {
				continue
			}
			atime := time.Unix(st.Atim.Unix())
			if atime.After(latest) {
				latest = atime
			}
		}
	}
	if latest.IsZero() {
		return 0, ErrUnsupported
	}
	return p.now().Sub(latest), nil
}
