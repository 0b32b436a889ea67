// Package redis forwards event envelopes over Redis pub/sub.
//
// Each envelope is PUBLISHed as JSON to a channel. When a stream key is
// configured the envelope is also appended to a capped list so
// late subscribers can catch up on recent switches and crashes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/leprechaun/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "leprechaun:events"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// DefaultHistory is the list length kept when History is set without a size.
const DefaultHistory = 100

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default leprechaun:events).
	Channel string
	// History, if set, is a list key receiving every envelope.
	History string
	// HistorySize caps the History list (default 100).
	HistorySize int64
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
}

// Adapter publishes envelopes via Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistory
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish sends env to the channel (and history list).
func (a *Adapter) Publish(ctx context.Context, env *adapter.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: marshal envelope: %w", err)
	}
	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.send(publishCtx, body)
	}, func(err error) bool { return errors.Is(err, goredis.ErrClosed) })
}

func (a *Adapter) send(ctx context.Context, body []byte) error {
	if a.config.History == "" {
		return a.client.Publish(ctx, a.config.Channel, body).Err()
	}
	_, err := a.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Publish(ctx, a.config.Channel, body)
		p.LPush(ctx, a.config.History, body)
		p.LTrim(ctx, a.config.History, 0, a.config.HistorySize-1)
		return nil
	})
	return err
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
