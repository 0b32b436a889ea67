// Package httpapi serves supervisor status and control over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/justapithecus/leprechaun/log"
	"github.com/justapithecus/leprechaun/observability"
	"github.com/justapithecus/leprechaun/supervisor"
	"github.com/justapithecus/leprechaun/types"
)

// MaxLogLines caps the lines query parameter.
const MaxLogLines = 1000

// DefaultLogLines is used when lines is omitted.
const DefaultLogLines = 100

// ShutdownTimeout bounds graceful server shutdown.
const ShutdownTimeout = 5 * time.Second

// Controller is the supervisor surface the API drives.
type Controller interface {
	Snapshot() *types.Snapshot
	Pause(ctx context.Context, d time.Duration) error
	Resume(ctx context.Context) error
	Logs(ctx context.Context, stack, name string, n int) ([]string, error)
}

var _ Controller = (*supervisor.Supervisor)(nil)

// Health is the /health response.
type Health struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// Logs is the log tail response.
type Logs struct {
	Stack string   `json:"stack"`
	Miner string   `json:"miner"`
	Count int      `json:"count"`
	Lines []string `json:"lines"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
}

// Server routes HTTP requests to a Controller.
type Server struct {
	ctl     Controller
	metrics http.Handler
	logger  *log.Logger
	now     func() time.Time
}

// NewServer creates a server. metrics may be nil to disable /metrics.
func NewServer(ctl Controller, metrics http.Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Server{ctl: ctl, metrics: metrics, logger: logger, now: time.Now}
}

// Echo builds the router with request ids, recovery and error capture.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		TargetHeader: echo.HeaderXRequestID,
		RequestIDHandler: func(c echo.Context, id string) {
			c.Request().Header.Set(echo.HeaderXRequestID, id)
		},
	}))
	if observability.Enabled() {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	e.Use(middleware.Recover())
	e.Use(s.capture)
	s.Register(e)
	return e
}

// Register installs the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.getHealth)
	e.GET("/status", s.getStatus)
	e.GET("/stacks/:stack/miners/:miner/log", s.getLogs)
	e.POST("/pause", s.postPause)
	e.POST("/resume", s.postResume)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

func (s *Server) capture(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err != nil {
			s.logger.Warn("http handler failed", map[string]any{
				"route":      c.Path(),
				"method":     c.Request().Method,
				"request_id": c.Request().Header.Get(echo.HeaderXRequestID),
				"error":      err.Error(),
			})
			observability.CaptureError(err, map[string]string{
				"component": "http",
				"route":     c.Path(),
			}, map[string]any{
				"method": c.Request().Method,
				"uri":    c.Request().RequestURI,
			})
		}
		return err
	}
}

func (s *Server) getHealth(c echo.Context) error {
	status := "ok"
	if s.ctl.Snapshot() == nil {
		status = "starting"
	}
	return c.JSON(http.StatusOK, Health{Status: status, Time: s.now().UTC()})
}

func (s *Server) getStatus(c echo.Context) error {
	snap := s.ctl.Snapshot()
	if snap == nil {
		return c.JSON(http.StatusServiceUnavailable, Error{Error: "no status yet"})
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) getLogs(c echo.Context) error {
	n, err := logCount(c.QueryParam("lines"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, Error{Error: err.Error()})
	}
	stack, name := c.Param("stack"), c.Param("miner")
	lines, err := s.ctl.Logs(c.Request().Context(), stack, name, n)
	if err != nil {
		return s.commandError(c, err)
	}
	if lines == nil {
		lines = []string{}
	}
	return c.JSON(http.StatusOK, Logs{Stack: stack, Miner: name, Count: len(lines), Lines: lines})
}

func (s *Server) postPause(c echo.Context) error {
	var d time.Duration
	if raw := c.QueryParam("for"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, Error{Error: "invalid duration: " + raw})
		}
		d = parsed
	}
	if err := s.ctl.Pause(c.Request().Context(), d); err != nil {
		return s.commandError(c, err)
	}
	return s.getStatus(c)
}

func (s *Server) postResume(c echo.Context) error {
	if err := s.ctl.Resume(c.Request().Context()); err != nil {
		return s.commandError(c, err)
	}
	return s.getStatus(c)
}

// commandError maps supervisor errors to responses. Unexpected errors are
// returned so the capture middleware sees them.
func (s *Server) commandError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, supervisor.ErrUnknownMiner):
		return c.JSON(http.StatusNotFound, Error{Error: err.Error()})
	case errors.Is(err, supervisor.ErrStopped), errors.Is(err, supervisor.ErrNotRunning):
		return c.JSON(http.StatusServiceUnavailable, Error{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusServiceUnavailable, Error{Error: err.Error()})
	}
	_ = c.JSON(http.StatusInternalServerError, Error{Error: err.Error()})
	return err
}

var errInvalidLogCount = errors.New("invalid lines")

func logCount(raw string) (int, error) {
	if raw == "" {
		return DefaultLogLines, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errInvalidLogCount
	}
	return min(n, MaxLogLines), nil
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Echo(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", map[string]any{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
