package tui

import (
	"fmt"

	"github.com/justapithecus/leprechaun/types"
)

// View types accepted by Run.
const (
	ViewStatus     = "status"
	ViewStatusLive = "status_live"
)

// Run starts the view for viewType. ViewStatus takes a *types.Snapshot;
// ViewStatusLive takes a SnapshotFunc.
func Run(viewType string, data any) error {
	switch viewType {
	case ViewStatus:
		snap, ok := data.(*types.Snapshot)
		if !ok {
			return fmt.Errorf("invalid data type for %s: %T", viewType, data)
		}
		return RunStatusTUI(snap, nil)
	case ViewStatusLive:
		fn, ok := data.(SnapshotFunc)
		if !ok {
			return fmt.Errorf("invalid data type for %s: %T", viewType, data)
		}
		return RunStatusTUI(nil, fn)
	}
	return fmt.Errorf("TUI mode is not supported for %s", viewType)
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	for _, v := range SupportedTUIViews() {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewStatus, ViewStatusLive}
}
