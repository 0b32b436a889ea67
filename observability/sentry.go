// Package observability reports unexpected errors to Sentry.
package observability

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/justapithecus/leprechaun/config"
	"github.com/justapithecus/leprechaun/types"
)

// FlushTimeout bounds how long the flush returned by InitSentry waits.
const FlushTimeout = 2 * time.Second

var sentryEnabled atomic.Bool

// InitSentry configures the global Sentry client from cfg. An empty DSN
// disables reporting and returns a no-op flush.
func InitSentry(cfg config.SentryConfig, meta *types.SessionMeta) (func(), bool, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		sentryEnabled.Store(false)
		return func() {}, false, nil
	}

	options := sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      strings.TrimSpace(cfg.Environment),
		Release:          "leprechaun@" + types.Version,
		AttachStacktrace: true,
	}
	if cfg.SampleRate != nil {
		options.SampleRate = *cfg.SampleRate
	}
	if meta != nil {
		options.ServerName = meta.Host
	}

	if err := sentry.Init(options); err != nil {
		sentryEnabled.Store(false)
		return func() {}, false, err
	}
	if meta != nil {
		sentry.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("session_id", meta.SessionID)
		})
	}

	sentryEnabled.Store(true)
	return func() {
		sentry.Flush(FlushTimeout)
	}, true, nil
}

// CaptureError reports err with tags and extra context. No-op when Sentry
// is disabled or err is nil.
func CaptureError(err error, tags map[string]string, extra map[string]any) {
	if err == nil || !sentryEnabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for key, value := range tags {
			scope.SetTag(key, value)
		}
		for key, value := range extra {
			scope.SetExtra(key, value)
		}
		sentry.CaptureException(err)
	})
}

// CaptureCrash reports a quarantined miner as a Sentry message.
func CaptureCrash(ev types.Event) {
	if ev.Type != types.EventTypeCrashed || !sentryEnabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("stack", ev.Stack)
		scope.SetTag("miner", ev.Miner)
		scope.SetTag("reason", ev.Reason)
		scope.SetExtra("crash_path", ev.CrashPath)
		if ev.ExitCode != nil {
			scope.SetExtra("exit_code", *ev.ExitCode)
		}
		sentry.CaptureMessage("miner quarantined: " + ev.Stack + "/" + ev.Miner)
	})
}

// Enabled reports whether InitSentry configured a client.
func Enabled() bool {
	return sentryEnabled.Load()
}
