package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/leprechaun/adapter"
	"github.com/justapithecus/leprechaun/adapter/redis"
	"github.com/justapithecus/leprechaun/adapter/webhook"
	clicfg "github.com/justapithecus/leprechaun/cli/config"
	"github.com/justapithecus/leprechaun/config"
	"github.com/justapithecus/leprechaun/crash"
	"github.com/justapithecus/leprechaun/log"
	"github.com/justapithecus/leprechaun/types"
)

// loadConfig reads the file selected by --config. Failures are exit code 2.
func loadConfig(c *cli.Context) (*config.Config, string, error) {
	path := clicfg.Path(c.String("config"))
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, configExit(err)
	}
	return cfg, path, nil
}

// openCrashStore builds the crash store selected by the crashes section.
func openCrashStore(ctx context.Context, cfg *config.Config) (*crash.Store, error) {
	switch cfg.Crashes.Backend {
	case "", "fs":
		dir := cfg.Crashes.Path
		if dir == "" {
			dir = cfg.Supervisor.CrashDir
		}
		return crash.NewFSStore(dir)
	case "s3":
		bucket, prefix := crash.ParseS3Path(cfg.Crashes.Path)
		return crash.NewS3Store(ctx, crash.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Crashes.Region,
			Endpoint:     cfg.Crashes.Endpoint,
			UsePathStyle: cfg.Crashes.S3PathStyle,
		})
	default:
		return nil, types.NewInvalidConfig("crashes.backend", "unknown backend %q (must be fs or s3)", cfg.Crashes.Backend)
	}
}

// newAdapter builds the event adapter, or nil when none is configured.
func newAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := 0
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		a, err := webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		a, err := redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			History: cfg.History,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, types.NewInvalidConfig("adapter.type", "unknown adapter %q (must be webhook or redis)", cfg.Type)
	}
}

// logSetup is the parsed --log-* flag set.
type logSetup struct {
	level   string
	file    string
	pipeLog bool
	quiet   bool // stderr is owned by the TUI
}

func logSetupFrom(c *cli.Context) logSetup {
	s := logSetup{
		level:   c.String("log-level"),
		file:    c.String("log-file"),
		pipeLog: c.Bool("pipe-log"),
		quiet:   c.Bool("tui"),
	}
	if s.pipeLog && !c.IsSet("log-level") {
		s.level = "debug"
	}
	return s
}

// newLogger builds the session logger. The returned close func flushes and
// closes the log file.
func newLogger(s logSetup, meta *types.SessionMeta) (*log.Logger, func(), error) {
	var writers []io.Writer
	if !s.quiet {
		writers = append(writers, os.Stderr)
	}
	var file *os.File
	if s.file != "" {
		f, err := os.OpenFile(s.file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}
	logger, err := log.NewLoggerWithOptions(meta, log.Options{Level: s.level, Writers: writers})
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, nil, cli.Exit(err.Error(), exitFailure)
	}
	return logger, func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}, nil
}
