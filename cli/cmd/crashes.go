package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/leprechaun/cli/render"
	"github.com/justapithecus/leprechaun/crash"
)

// crashListWarningThreshold is the record count above which list suggests --limit.
const crashListWarningThreshold = 100

// CrashesCommand returns the crashes command with subcommands.
func CrashesCommand() *cli.Command {
	return &cli.Command{
		Name:  "crashes",
		Usage: "Inspect crash records",
		Subcommands: []*cli.Command{
			crashesListCommand(),
			crashesShowCommand(),
		},
	}
}

func crashesListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List crash records, newest first",
		Flags: append(OutputFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Show at most this many records (0 = all)",
			},
			&cli.StringFlag{
				Name:  "miner",
				Usage: "Only show records of this miner",
			},
		),
		Action: crashesListAction,
	}
}

func crashesListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return unsupportedTUI("crashes list")
	}
	store, err := crashStore(c)
	if err != nil {
		return err
	}

	entries, err := store.List(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to list crash records: %v", err), exitFailure)
	}
	if name := c.String("miner"); name != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Miner == name {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	limit := c.Int("limit")
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if limit == 0 && len(entries) > crashListWarningThreshold && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "%d crash records; use --limit to shorten the list\n", len(entries))
	}
	if entries == nil {
		entries = []crash.Entry{}
	}
	return r.Render(render.Crashes(entries))
}

func crashesShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print one crash record",
		ArgsUsage: "<key>",
		Flags:     []cli.Flag{ConfigFlag},
		Action:    crashesShowAction,
	}
}

func crashesShowAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: leprechaun crashes show <key>", exitFailure)
	}
	store, err := crashStore(c)
	if err != nil {
		return err
	}
	data, err := store.Get(c.Context, c.Args().First())
	if err != nil {
		if errors.Is(err, crash.ErrNotFound) {
			return cli.Exit(fmt.Sprintf("no crash record %q", c.Args().First()), exitFailure)
		}
		return cli.Exit(fmt.Sprintf("failed to read crash record: %v", err), exitFailure)
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func crashStore(c *cli.Context) (*crash.Store, error) {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	store, err := openCrashStore(c.Context, cfg)
	if err != nil {
		return nil, exitFor(err)
	}
	return store, nil
}
