package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/justapithecus/leprechaun/iox"
	"github.com/justapithecus/leprechaun/log"
)

// DefaultDebounce coalesces bursts of config file events.
const DefaultDebounce = time.Second

// Watcher calls OnChange after the config file changes. Editors often
// replace files by rename, so the parent directory is watched and events
// are filtered by path.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(ctx context.Context)
	logger   *log.Logger
}

// NewWatcher creates a watcher for path. debounce <= 0 uses DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, onChange func(ctx context.Context), logger *log.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Watcher{path: filepath.Clean(abs), debounce: debounce, onChange: onChange, logger: logger}, nil
}

// Run watches until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer iox.DiscardClose(fw)

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Chmod) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", map[string]any{"error": err.Error()})
		case <-timer.C:
			w.logger.Info("config file changed", map[string]any{"path": w.path})
			w.onChange(ctx)
		}
	}
}
