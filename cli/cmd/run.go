package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/leprechaun/adapter"
	"github.com/justapithecus/leprechaun/cli/tui"
	"github.com/justapithecus/leprechaun/config"
	"github.com/justapithecus/leprechaun/events"
	"github.com/justapithecus/leprechaun/httpapi"
	"github.com/justapithecus/leprechaun/idle"
	"github.com/justapithecus/leprechaun/log"
	"github.com/justapithecus/leprechaun/metrics"
	"github.com/justapithecus/leprechaun/miner"
	"github.com/justapithecus/leprechaun/observability"
	"github.com/justapithecus/leprechaun/process"
	"github.com/justapithecus/leprechaun/supervisor"
	"github.com/justapithecus/leprechaun/types"
)

// observerBuffer sizes the log and crash subscriptions of the run command.
const observerBuffer = 256

// RunCommand returns the run command, the only command that starts miners.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Supervise the configured miners until interrupted",
		Flags: []cli.Flag{
			ConfigFlag,
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show the live dashboard instead of logging to stderr",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also append JSON log lines to this file",
			},
			&cli.BoolFlag{
				Name:  "pipe-log",
				Usage: "Log backend output lines (implies --log-level debug)",
			},
			&cli.StringFlag{
				Name:  "http",
				Usage: "Serve the HTTP API on this address (overrides http.listen)",
			},
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "Do not reload when the config file changes",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, path, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("http"); addr != "" {
		cfg.HTTP.Listen = addr
	}
	if c.Bool("no-watch") {
		off := false
		cfg.Supervisor.Watch = &off
	}

	meta := newSessionMeta()
	logger, closeLog, err := newLogger(logSetupFrom(c), meta)
	if err != nil {
		return err
	}
	defer closeLog()

	flush, _, err := observability.InitSentry(cfg.Sentry, meta)
	if err != nil {
		logger.Warn("sentry disabled", map[string]any{"error": err.Error()})
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, daemonOptions{
		Config:     cfg,
		ConfigPath: path,
		Meta:       meta,
		Logger:     logger,
		PipeLog:    c.Bool("pipe-log"),
	})
	if err != nil {
		observability.CaptureError(err, map[string]string{"component": "run"}, nil)
		return exitFor(err)
	}
	defer d.close()

	if c.Bool("tui") {
		err = d.runWithDashboard(ctx)
	} else {
		err = d.run(ctx)
	}
	if err != nil {
		observability.CaptureError(err, map[string]string{"component": "run"}, nil)
		return exitFor(err)
	}
	return nil
}

func newSessionMeta() *types.SessionMeta {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return &types.SessionMeta{SessionID: uuid.NewString(), Host: host, StartedAt: time.Now()}
}

// daemonOptions configures newDaemon.
type daemonOptions struct {
	Config     *config.Config
	ConfigPath string
	Meta       *types.SessionMeta
	Logger     *log.Logger
	PipeLog    bool
	// Probe overrides the platform idle probe.
	Probe idle.Probe
	// Spawner overrides the process group spawner.
	Spawner miner.Spawner
	// LookPath overrides PATH lookup of backend executables.
	LookPath func(string) (string, error)
}

// daemon is every long-running service of `run`, wired together.
type daemon struct {
	opts      daemonOptions
	logger    *log.Logger
	group     *process.Group
	bus       *events.Bus
	sampler   *idle.Sampler
	sup       *supervisor.Supervisor
	adapter   adapter.Adapter
	forwarder *adapter.Forwarder
	observer  *events.Subscription
	collector *metrics.Collector
}

func newDaemon(ctx context.Context, opts daemonOptions) (*daemon, error) {
	cfg, logger := opts.Config, opts.Logger
	supervisor.WarnIfUnprivileged(logger)

	crashes, err := openCrashStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open crash store: %w", err)
	}
	group, err := process.NewGroup()
	if err != nil {
		return nil, fmt.Errorf("failed to create process group: %w", err)
	}

	probe := opts.Probe
	if probe == nil {
		probe = idle.DefaultProbe()
	}
	d := &daemon{
		opts:      opts,
		logger:    logger,
		group:     group,
		bus:       events.NewBus(),
		sampler:   idle.NewSampler(probe, 0, logger),
		collector: metrics.NewCollector(opts.Meta.SessionID, crashes.Backend()),
	}

	build := supervisor.BuildOptions{
		Spawner:  supervisor.GroupSpawner(group),
		Idle:     d.sampler,
		Host:     opts.Meta.Host,
		LookPath: opts.LookPath,
	}
	if opts.Spawner != nil {
		build.Spawner = opts.Spawner
	}

	// Subscribe before the supervisor exists so the first switch is seen.
	d.adapter, err = newAdapter(cfg.Adapter)
	if err != nil {
		d.close()
		return nil, err
	}
	if d.adapter != nil {
		d.forwarder = adapter.NewForwarder(d.bus, d.adapter, opts.Meta, logger)
	}
	watched := []types.EventType{types.EventTypeCrashed}
	if opts.PipeLog {
		watched = append(watched, types.EventTypeLogLine)
	}
	d.observer = d.bus.Subscribe(observerBuffer, events.Only(watched...))

	d.sup, err = supervisor.New(supervisor.Options{
		Config: cfg,
		Load: func() (*config.Config, error) {
			return config.Load(opts.ConfigPath)
		},
		Build:      build,
		Crashes:    crashes,
		Events:     d.bus,
		Logger:     logger,
		Metrics:    d.collector,
		Meta:       opts.Meta,
		StatusPath: cfg.Supervisor.StatusPath(),
	})
	if err != nil {
		if d.adapter != nil {
			_ = d.adapter.Close()
		}
		d.close()
		return nil, err
	}
	return d, nil
}

// run starts every service and blocks until ctx is done or one fails.
func (d *daemon) run(ctx context.Context) error {
	cfg := d.opts.Config
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.sampler.Run(gctx) })
	g.Go(func() error { return d.sup.Run(gctx) })
	g.Go(func() error { d.observe(gctx); return nil })
	if d.forwarder != nil {
		g.Go(func() error { return d.forwarder.Run(gctx) })
	}
	if cfg.Supervisor.WatchEnabled() && d.opts.ConfigPath != "" {
		w, err := supervisor.NewWatcher(d.opts.ConfigPath, supervisor.DefaultDebounce, d.reload, d.logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}
	if addr := cfg.HTTP.Listen; addr != "" {
		exporter := metrics.NewExporter(d.collector, d.sup.Snapshot)
		srv := httpapi.NewServer(d.sup, metrics.Handler(metrics.NewRegistry(exporter)), d.logger)
		g.Go(func() error { return srv.ListenAndServe(gctx, addr) })
	}
	return g.Wait()
}

// runWithDashboard runs the services with the dashboard in the foreground.
// Quitting the dashboard shuts everything down.
func (d *daemon) runWithDashboard(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- d.run(ctx) }()

	uiErr := tui.RunDashboard(ctx, d.sup)
	cancel()
	runErr := <-errCh
	return errors.Join(runErr, uiErr)
}

func (d *daemon) reload(ctx context.Context) {
	res, err := d.sup.Reload(ctx)
	if err != nil {
		if !errors.Is(err, supervisor.ErrStopped) && !errors.Is(err, context.Canceled) {
			observability.CaptureError(err, map[string]string{"component": "reload"}, nil)
		}
		return
	}
	for _, skipped := range res.Skipped {
		d.logger.Warn("miner skipped on reload", map[string]any{"error": skipped})
	}
}

// observe pipes backend output to the log and crashes to Sentry.
func (d *daemon) observe(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.observer.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case types.EventTypeLogLine:
				d.logger.WithStack(ev.Stack).WithMiner(ev.Miner).Debug("backend output", map[string]any{"line": ev.Line})
			case types.EventTypeCrashed:
				observability.CaptureCrash(ev)
			}
		}
	}
}

// close releases the bus and kills anything still running.
func (d *daemon) close() {
	if d.observer != nil {
		d.observer.Close()
	}
	d.bus.Close()
	if err := d.group.Close(d.opts.Config.Supervisor.StopTimeout.Duration); err != nil {
		d.logger.Warn("process group close failed", map[string]any{"error": err.Error()})
	}
}
