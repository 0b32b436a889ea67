package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	clicfg "github.com/justapithecus/leprechaun/cli/config"
	"github.com/justapithecus/leprechaun/cli/render"
	"github.com/justapithecus/leprechaun/cli/tui"
	"github.com/justapithecus/leprechaun/config"
	"github.com/justapithecus/leprechaun/ipc"
	"github.com/justapithecus/leprechaun/types"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the state published by a running supervisor",
		Flags: append(OutputFlags(), &cli.StringFlag{
			Name:  "status-file",
			Usage: "Read this status frame instead of <data-dir>/status.frame",
		}),
		Action: statusAction,
	}
}

// statusPath finds the status frame: --status-file, else the data dir of
// the config, else the default data dir.
func statusPath(c *cli.Context) string {
	if p := c.String("status-file"); p != "" {
		return p
	}
	if cfg, err := config.Load(clicfg.Path(c.String("config"))); err == nil {
		return cfg.Supervisor.StatusPath()
	}
	s := config.SupervisorConfig{DataDir: config.DefaultDataDir()}
	return s.StatusPath()
}

func statusAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	path := statusPath(c)

	if c.Bool("tui") {
		var source tui.SnapshotFunc = func() (*types.Snapshot, error) {
			return ipc.ReadStatusFile(path)
		}
		return r.RenderTUI(tui.ViewStatusLive, source)
	}

	snap, err := ipc.ReadStatusFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cli.Exit(fmt.Sprintf("no status at %s (is leprechaun running?)", path), exitFailure)
		}
		return cli.Exit(fmt.Sprintf("failed to read status: %v", err), exitFailure)
	}
	if age := time.Since(snap.UpdatedAt); isStderrTTY() && age > time.Minute {
		fmt.Fprintf(os.Stderr, "warning: status is %s old; the supervisor may have stopped\n", age.Round(time.Second))
	}
	return r.Render((*render.Status)(snap))
}
