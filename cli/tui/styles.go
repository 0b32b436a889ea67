// Package tui provides the Bubble Tea views of the leprechaun CLI.
//
//   - The status view renders the same snapshot as `status --format`
//   - The dashboard runs inside `run --tui` and can pause and resume mining
//   - Both are opt-in through --tui
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/leprechaun/types"
)

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// SuccessStyle for success states.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle for warning states.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle for error states.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// BoxStyle for bordered containers.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	// SelectedStyle marks the cursor row.
	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// HeaderStyle for table headers.
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(mutedColor)

	// LogStyle for captured backend output.
	LogStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(mutedColor)
)

// Miner states shown in the state column, highest precedence first.
const (
	StateActive   = "active"
	StateRunning  = "running"
	StateBroken   = "broken"
	StateDisabled = "disabled"
	StateWaiting  = "waiting"
	StateReady    = "ready"
)

// MinerState summarizes a miner's flags as one word.
func MinerState(m types.MinerStatus) string {
	switch {
	case m.Active:
		return StateActive
	case m.Running:
		return StateRunning
	case m.Broken:
		return StateBroken
	case !m.Enabled:
		return StateDisabled
	case !m.Allowed:
		return StateWaiting
	default:
		return StateReady
	}
}

// StateStyle returns a style based on the state string.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case StateActive:
		return SuccessStyle
	case StateRunning:
		return WarningStyle
	case StateBroken:
		return ErrorStyle
	case StateDisabled, StateWaiting:
		return lipgloss.NewStyle().Foreground(mutedColor)
	default:
		return ValueStyle
	}
}
