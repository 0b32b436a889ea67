package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/leprechaun/cli/render"
	"github.com/justapithecus/leprechaun/idle"
	"github.com/justapithecus/leprechaun/miner"
	"github.com/justapithecus/leprechaun/process"
	"github.com/justapithecus/leprechaun/supervisor"
)

// CheckedMiner is one resolved miner in `check` output.
type CheckedMiner struct {
	Stack      string   `json:"stack" yaml:"stack"`
	Priority   int      `json:"priority" yaml:"priority"`
	Name       string   `json:"name" yaml:"name"`
	Currency   string   `json:"currency" yaml:"currency"`
	Backend    string   `json:"backend" yaml:"backend"`
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Condition  string   `json:"condition" yaml:"condition"`
	Executable string   `json:"executable,omitempty" yaml:"executable,omitempty"`
	Args       []string `json:"args,omitempty" yaml:"args,omitempty"`
	Problem    string   `json:"problem,omitempty" yaml:"problem,omitempty"`
}

// CheckResponse is the response for the check command.
type CheckResponse struct {
	Config  string         `json:"config" yaml:"config"`
	Miners  []CheckedMiner `json:"miners" yaml:"miners"`
	Skipped []string       `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Headers implements render.Tabular.
func (r CheckResponse) Headers() []string {
	return []string{"stack", "#", "miner", "currency", "backend", "enabled", "condition", "executable"}
}

// Rows implements render.Tabular.
func (r CheckResponse) Rows() [][]string {
	rows := make([][]string, 0, len(r.Miners))
	for _, m := range r.Miners {
		exe := m.Executable
		if m.Problem != "" {
			exe = "! " + m.Problem
		}
		rows = append(rows, []string{m.Stack, strconv.Itoa(m.Priority), m.Name, m.Currency, m.Backend, strconv.FormatBool(m.Enabled), m.Condition, exe})
	}
	return rows
}

// CheckCommand returns the check command.
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:   "check",
		Usage:  "Validate the config and print the resolved miner stacks",
		Flags:  OutputFlags(),
		Action: checkAction,
	}
}

// errDryRun is returned by the spawner used for checks.
var errDryRun = errors.New("check never starts miners")

type dryRunSpawner struct{}

func (dryRunSpawner) Spawn(process.Spec, process.Options) (miner.Handle, error) {
	return nil, errDryRun
}

func checkAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return unsupportedTUI("check")
	}

	cfg, path, err := loadConfig(c)
	if err != nil {
		return err
	}
	res, err := supervisor.Build(cfg, supervisor.BuildOptions{
		Spawner: dryRunSpawner{},
		Idle:    idle.Static(0),
		Host:    newSessionMeta().Host,
	})
	if err != nil {
		return configExit(err)
	}

	resp := CheckResponse{Config: path}
	for _, stack := range []struct {
		name   string
		miners []*miner.Miner
	}{{supervisor.StackCPU, res.CPU}, {supervisor.StackGPU, res.GPU}} {
		for i, m := range stack.miners {
			resp.Miners = append(resp.Miners, checkMiner(c, stack.name, i+1, m))
		}
	}
	for _, e := range res.Skipped {
		resp.Skipped = append(resp.Skipped, e.Error())
	}

	if err := r.Render(resp); err != nil {
		return err
	}
	if isStderrTTY() {
		for _, s := range resp.Skipped {
			fmt.Fprintf(os.Stderr, "skipped: %s\n", s)
		}
		fmt.Fprintf(os.Stderr, "%s: %d miners OK\n", path, len(resp.Miners))
	}
	return nil
}

func checkMiner(c *cli.Context, stack string, priority int, m *miner.Miner) CheckedMiner {
	out := CheckedMiner{
		Stack:     stack,
		Priority:  priority,
		Name:      m.Name(),
		Currency:  m.Currency(),
		Backend:   m.Backend(),
		Enabled:   m.Enabled(),
		Condition: "always",
	}
	if cond := m.Condition(); cond != nil {
		out.Condition = cond.String()
	}
	spec, err := m.LaunchSpec(c.Context)
	if err != nil {
		out.Problem = err.Error()
		return out
	}
	out.Executable = spec.Path
	out.Args = spec.Args
	return out
}
