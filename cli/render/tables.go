package render

import (
	"strconv"
	"time"

	"github.com/justapithecus/leprechaun/cli/tui"
	"github.com/justapithecus/leprechaun/crash"
	"github.com/justapithecus/leprechaun/types"
)

// Status lays a supervisor snapshot out as one row per miner, in priority
// order within each stack.
type Status types.Snapshot

// Headers implements Tabular.
func (s Status) Headers() []string {
	return []string{"stack", "#", "miner", "currency", "backend", "state", "hashrate", "pid"}
}

// Rows implements Tabular.
func (s Status) Rows() [][]string {
	var rows [][]string
	for _, st := range s.Stacks {
		for i, m := range st.Miners {
			pid := ""
			if m.PID != 0 {
				pid = strconv.Itoa(m.PID)
			}
			rows = append(rows, []string{st.Name, strconv.Itoa(i + 1), m.Name, m.Currency, m.Backend, tui.MinerState(m), tui.FormatHashrate(m.Hashrate), pid})
		}
	}
	return rows
}

// Crashes lays crash records out one per row, in the order given.
type Crashes []crash.Entry

// Headers implements Tabular.
func (c Crashes) Headers() []string {
	return []string{"time", "miner", "key"}
}

// Rows implements Tabular.
func (c Crashes) Rows() [][]string {
	rows := make([][]string, 0, len(c))
	for _, e := range c {
		rows = append(rows, []string{formatTime(e.Time), e.Miner, e.Key})
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}
