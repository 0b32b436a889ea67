package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/leprechaun/types"
)

// DashboardLogLines is how many log lines the dashboard requests.
const DashboardLogLines = 200

// DashboardRefresh is how often the dashboard polls the supervisor.
const DashboardRefresh = 500 * time.Millisecond

// Controller is the supervisor surface the dashboard drives.
type Controller interface {
	Snapshot() *types.Snapshot
	Pause(ctx context.Context, d time.Duration) error
	Resume(ctx context.Context) error
	Logs(ctx context.Context, stack, name string, n int) ([]string, error)
}

type logsMsg struct {
	miner string
	lines []string
	err   error
}

type commandMsg struct {
	err error
}

// DashboardModel is the live view shown by `run --tui`.
type DashboardModel struct {
	ctx    context.Context
	ctl    Controller
	snap   *types.Snapshot
	cursor int
	logs   viewport.Model
	status string
	err    error
	now    func() time.Time
	width  int
	height int
}

// NewDashboardModel creates a dashboard bound to ctl.
func NewDashboardModel(ctx context.Context, ctl Controller) DashboardModel {
	return DashboardModel{
		ctx:  ctx,
		ctl:  ctl,
		snap: ctl.Snapshot(),
		logs: viewport.New(80, 10),
		now:  time.Now,
	}
}

// Init implements tea.Model.
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.fetchLogs(), refreshAfter(DashboardRefresh))
}

// selected returns the stack and miner under the cursor.
func (m DashboardModel) selected() (string, string, bool) {
	if m.snap == nil {
		return "", "", false
	}
	i := 0
	for _, st := range m.snap.Stacks {
		for _, ms := range st.Miners {
			if i == m.cursor {
				return st.Name, ms.Name, true
			}
			i++
		}
	}
	return "", "", false
}

func (m DashboardModel) minerCount() int {
	if m.snap == nil {
		return 0
	}
	n := 0
	for _, st := range m.snap.Stacks {
		n += len(st.Miners)
	}
	return n
}

func (m DashboardModel) fetchLogs() tea.Cmd {
	stack, name, ok := m.selected()
	if !ok {
		return nil
	}
	ctx, ctl := m.ctx, m.ctl
	return func() tea.Msg {
		lines, err := ctl.Logs(ctx, stack, name, DashboardLogLines)
		return logsMsg{miner: stack + "/" + name, lines: lines, err: err}
	}
}

func (m DashboardModel) command(fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return commandMsg{err: fn(ctx)}
	}
}

// Update implements tea.Model.
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logs.Width = msg.Width
		m.logs.Height = max(msg.Height/3, 3)
		return m, nil

	case refreshMsg:
		m.snap = m.ctl.Snapshot()
		if n := m.minerCount(); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
		return m, tea.Batch(m.fetchLogs(), refreshAfter(DashboardRefresh))

	case logsMsg:
		if stack, name, ok := m.selected(); ok && msg.miner == stack+"/"+name {
			atBottom := m.logs.AtBottom()
			m.logs.SetContent(strings.Join(msg.lines, "\n"))
			if atBottom {
				m.logs.GotoBottom()
			}
		}
		m.err = ignoreStopped(msg.err)
		return m, nil

	case commandMsg:
		m.status = ""
		m.err = ignoreStopped(msg.err)
		m.snap = m.ctl.Snapshot()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			m.logs.SetContent("")
			return m, m.fetchLogs()
		case key.Matches(msg, keys.Down):
			if m.cursor < m.minerCount()-1 {
				m.cursor++
			}
			m.logs.SetContent("")
			return m, m.fetchLogs()
		case key.Matches(msg, keys.Pause):
			m.status = "pausing"
			return m, m.command(func(ctx context.Context) error { return m.ctl.Pause(ctx, 0) })
		case key.Matches(msg, keys.Resume):
			m.status = "resuming"
			return m, m.command(m.ctl.Resume)
		}
	}

	var cmd tea.Cmd
	m.logs, cmd = m.logs.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m DashboardModel) View() string {
	var b strings.Builder
	b.WriteString(renderHeader(m.snap, m.now()))
	b.WriteString("\n")
	b.WriteString(renderStacks(m.snap, m.cursor))
	if stack, name, ok := m.selected(); ok {
		b.WriteString("\n")
		b.WriteString(HeaderStyle.Render("log: " + stack + "/" + name))
		b.WriteString("\n")
		b.WriteString(LogStyle.Render(m.logs.View()))
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(WarningStyle.Render(m.status + "..."))
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.err.Error()))
	}
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(helpLine(keys.Up, keys.Down, keys.Pause, keys.Resume, keys.Quit)))
	return b.String()
}

func ignoreStopped(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunDashboard shows the dashboard until the user quits or ctx is done.
func RunDashboard(ctx context.Context, ctl Controller) error {
	p := tea.NewProgram(NewDashboardModel(ctx, ctl), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
