package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/leprechaun/types"
)

// Exit codes.
const (
	exitSuccess       = 0
	exitFailure       = 1
	exitInvalidConfig = 2
)

// configExit turns a configuration failure into exit code 2.
func configExit(err error) error {
	return cli.Exit(err.Error(), exitInvalidConfig)
}

// exitFor maps an error to its exit code: invalid configuration is 2,
// everything else 1.
func exitFor(err error) error {
	if err == nil {
		return nil
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return err
	}
	if errors.Is(err, types.ErrInvalidConfig) {
		return configExit(err)
	}
	return cli.Exit(err.Error(), exitFailure)
}

func unsupportedTUI(command string) error {
	return cli.Exit(fmt.Sprintf("--tui is not supported for %s command", command), exitFailure)
}
