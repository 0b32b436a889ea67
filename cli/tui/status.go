package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/leprechaun/types"
)

// RefreshInterval is how often live views reload their snapshot.
const RefreshInterval = time.Second

// SnapshotFunc loads the latest snapshot.
type SnapshotFunc func() (*types.Snapshot, error)

type snapshotMsg struct {
	snap *types.Snapshot
	err  error
}

type refreshMsg struct{}

func refreshAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return refreshMsg{} })
}

func load(fn SnapshotFunc) tea.Cmd {
	return func() tea.Msg {
		snap, err := fn()
		return snapshotMsg{snap: snap, err: err}
	}
}

// StatusModel renders a supervisor snapshot, optionally reloading it.
type StatusModel struct {
	snap     *types.Snapshot
	source   SnapshotFunc
	err      error
	now      func() time.Time
	width    int
	height   int
	quitting bool
}

// NewStatusModel creates a status view. A nil source shows snap as is.
func NewStatusModel(snap *types.Snapshot, source SnapshotFunc) StatusModel {
	return StatusModel{snap: snap, source: source, now: time.Now}
}

// Init implements tea.Model.
func (m StatusModel) Init() tea.Cmd {
	if m.source == nil {
		return nil
	}
	return load(m.source)
}

// Update implements tea.Model.
func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case snapshotMsg:
		m.err = msg.err
		if msg.snap != nil {
			m.snap = msg.snap
		}
		return m, refreshAfter(RefreshInterval)

	case refreshMsg:
		if m.source == nil {
			return m, nil
		}
		return m, load(m.source)

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m StatusModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(renderHeader(m.snap, m.now()))
	b.WriteString("\n")
	b.WriteString(renderStacks(m.snap, -1))
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.err.Error()))
	}
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

func renderHeader(snap *types.Snapshot, now time.Time) string {
	if snap == nil {
		return TitleStyle.Render("leprechaun") + "\n" + WarningStyle.Render("waiting for status")
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render("leprechaun " + snap.Version))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Host:"), ValueStyle.Render(snap.Host))
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Session:"), ValueStyle.Render(snap.SessionID))
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Updated:"),
		ValueStyle.Render(snap.UpdatedAt.Local().Format(time.DateTime)))
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Mining:"), pauseText(snap, now))
	return b.String()
}

func pauseText(snap *types.Snapshot, now time.Time) string {
	switch {
	case snap.PausedUntil == nil:
		return SuccessStyle.Render("on")
	case snap.PausedUntil.IsZero():
		return WarningStyle.Render("paused until resumed")
	default:
		left := snap.PausedUntil.Sub(now).Round(time.Second)
		return WarningStyle.Render(fmt.Sprintf("paused, resumes in %s", max(left, 0)))
	}
}

// renderStacks draws every miner in priority order. cursor is the index
// into the flattened miner list, or -1 for none.
func renderStacks(snap *types.Snapshot, cursor int) string {
	if snap == nil {
		return ""
	}
	var b strings.Builder
	row := 0
	for _, st := range snap.Stacks {
		title := strings.ToUpper(st.Name) + " stack"
		if st.Active != "" {
			title += " (" + st.Active + ")"
		}
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render(title))
		b.WriteString("\n")
		if len(st.Miners) == 0 {
			b.WriteString(HelpStyle.UnsetMarginTop().Render("  no miners configured"))
			b.WriteString("\n")
			continue
		}
		b.WriteString(HeaderStyle.Render(fmt.Sprintf("  %-3s %-20s %-9s %-9s %-10s %s", "#", "MINER", "CURRENCY", "BACKEND", "STATE", "HASHRATE")))
		b.WriteString("\n")
		for i, ms := range st.Miners {
			state := MinerState(ms)
			line := fmt.Sprintf("  %-3d %-20s %-9s %-9s ", i+1, ms.Name, ms.Currency, ms.Backend)
			if row == cursor {
				line = SelectedStyle.Render(">" + line[1:])
			}
			b.WriteString(line)
			b.WriteString(StateStyle(state).Render(fmt.Sprintf("%-10s", state)))
			b.WriteString(" ")
			b.WriteString(FormatHashrate(ms.Hashrate))
			b.WriteString("\n")
			row++
		}
	}
	return b.String()
}

// FormatHashrate renders a hashrate with a unit prefix, or "-" when unknown.
func FormatHashrate(h *float64) string {
	if h == nil {
		return "-"
	}
	v := *h
	units := []string{"H/s", "kH/s", "MH/s", "GH/s"}
	i := 0
	for v >= 1000 && i < len(units)-1 {
		v /= 1000
		i++
	}
	return fmt.Sprintf("%.2f %s", v, units[i])
}

// RunStatusTUI shows snap, reloading from source when it is non-nil.
func RunStatusTUI(snap *types.Snapshot, source SnapshotFunc) error {
	p := tea.NewProgram(NewStatusModel(snap, source), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatusStatic renders a snapshot without running a program.
func RenderStatusStatic(snap *types.Snapshot) string {
	model := NewStatusModel(snap, nil)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
