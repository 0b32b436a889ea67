// Package config loads the leprechaun YAML configuration.
//
// Miner priority is the document order of the cpu-miners and gpu-miners
// mappings, so those sections are decoded through yaml.Node.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/justapithecus/leprechaun/condition"
)

// PlaceholderAddress is the address template value shipped in sample
// configs. It is never accepted.
const PlaceholderAddress = "<your address here>"

// Defaults.
const (
	DefaultTickInterval = 5 * time.Second
	DefaultStopTimeout  = 5 * time.Second
	DefaultCrashDirName = "miner_crashes"
	DefaultMinersDir    = "miners"
)

// Config is a leprechaun.yml file.
type Config struct {
	Addresses  map[string]string `yaml:"addresses,omitempty" json:"addresses,omitempty"`
	CPUMiners  MinerList         `yaml:"cpu-miners,omitempty" json:"cpu-miners,omitempty"`
	GPUMiners  MinerList         `yaml:"gpu-miners,omitempty" json:"gpu-miners,omitempty"`
	Supervisor SupervisorConfig  `yaml:"supervisor,omitempty" json:"supervisor"`
	Crashes    CrashesConfig     `yaml:"crashes,omitempty" json:"crashes"`
	Adapter    AdapterConfig     `yaml:"adapter,omitempty" json:"adapter"`
	HTTP       HTTPConfig        `yaml:"http,omitempty" json:"http"`
	Sentry     SentryConfig      `yaml:"sentry,omitempty" json:"sentry"`

	// Path is the file the config was loaded from.
	Path string `yaml:"-" json:"-"`
}

// SupervisorConfig tunes the supervisor loop.
type SupervisorConfig struct {
	TickInterval      Duration `yaml:"tick-interval,omitempty" json:"tick-interval"`
	StopTimeout       Duration `yaml:"stop-timeout,omitempty" json:"stop-timeout"`
	DataDir           string   `yaml:"data-dir,omitempty" json:"data-dir"`
	CrashDir          string   `yaml:"crash-dir,omitempty" json:"crash-dir"`
	MinersDir         string   `yaml:"miners-dir,omitempty" json:"miners-dir"`
	SkipInvalidMiners bool     `yaml:"skip-invalid-miners,omitempty" json:"skip-invalid-miners"`
	LogLines          int      `yaml:"log-lines,omitempty" json:"log-lines,omitempty"`
	Watch             *bool    `yaml:"watch,omitempty" json:"watch,omitempty"`
}

// WatchEnabled reports whether config changes trigger a reload (default on).
func (s SupervisorConfig) WatchEnabled() bool {
	return s.Watch == nil || *s.Watch
}

// StatusPath is the status frame location.
func (s SupervisorConfig) StatusPath() string {
	return filepath.Join(s.DataDir, "status.frame")
}

// CrashesConfig selects the crash record store.
type CrashesConfig struct {
	// Backend is "fs" (default) or "s3".
	Backend     string `yaml:"backend,omitempty" json:"backend,omitempty"`
	Path        string `yaml:"path,omitempty" json:"path,omitempty"`
	Region      string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3-path-style,omitempty" json:"s3-path-style,omitempty"`
}

// AdapterConfig configures event forwarding.
type AdapterConfig struct {
	Type    string            `yaml:"type,omitempty" json:"type,omitempty"`
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Channel string            `yaml:"channel,omitempty" json:"channel,omitempty"`
	History string            `yaml:"history,omitempty" json:"history,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty" json:"retries,omitempty"`
}

// HTTPConfig enables the HTTP API when Listen is set.
type HTTPConfig struct {
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string   `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Environment string   `yaml:"environment,omitempty" json:"environment,omitempty"`
	SampleRate  *float64 `yaml:"sample-rate,omitempty" json:"sample-rate,omitempty"`
}

// MinerEntry is one miner in a cpu-miners or gpu-miners mapping.
type MinerEntry struct {
	// Name is the mapping key.
	Name string `yaml:"-" json:"name"`
	// Line is the entry's position in the file.
	Line int `yaml:"-" json:"-"`

	condition.Spec `yaml:",inline"`

	Currency        string   `yaml:"currency" json:"currency"`
	Address         string   `yaml:"address,omitempty" json:"address,omitempty"`
	Enabled         *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Backend         string   `yaml:"backend,omitempty" json:"backend,omitempty"`
	Path            string   `yaml:"path,omitempty" json:"path,omitempty"`
	Pool            string   `yaml:"pool,omitempty" json:"pool,omitempty"`
	Args            []string `yaml:"args,omitempty" json:"args,omitempty"`
	ProcessPriority any      `yaml:"process-priority,omitempty" json:"process-priority,omitempty"`
	ProcessThreads  any      `yaml:"process-threads,omitempty" json:"process-threads,omitempty"`
}

// IsEnabled reports the enabled flag (default true).
func (e MinerEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Duration wraps time.Duration for YAML strings like "10s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// MarshalText renders the duration string for JSON output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultDataDir returns the per-user data directory for leprechaun.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, "leprechaun")
		}
		return filepath.Join(home, "AppData", "Local", "leprechaun")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "leprechaun")
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "leprechaun")
	}
	return filepath.Join(home, ".local", "share", "leprechaun")
}

// ApplyDefaults fills unset supervisor and store settings.
func (c *Config) ApplyDefaults() {
	s := &c.Supervisor
	if s.TickInterval.Duration == 0 {
		s.TickInterval.Duration = DefaultTickInterval
	}
	if s.StopTimeout.Duration == 0 {
		s.StopTimeout.Duration = DefaultStopTimeout
	}
	if s.DataDir == "" {
		s.DataDir = DefaultDataDir()
	}
	if s.CrashDir == "" {
		s.CrashDir = filepath.Join(s.DataDir, DefaultCrashDirName)
	}
	if s.MinersDir == "" {
		s.MinersDir = filepath.Join(s.DataDir, DefaultMinersDir)
	}
	if c.Crashes.Backend == "" {
		c.Crashes.Backend = "fs"
	}
	normalized := make(map[string]string, len(c.Addresses))
	for cur, addr := range c.Addresses {
		normalized[strings.ToUpper(cur)] = addr
	}
	c.Addresses = normalized
}

// Validate checks settings outside the miner lists. Miner entries are
// validated when they are built so that invalid ones can be skipped.
func (c *Config) Validate() error {
	s := c.Supervisor
	if s.TickInterval.Duration < 0 {
		return fmt.Errorf("supervisor.tick-interval must be positive")
	}
	if s.StopTimeout.Duration < 0 {
		return fmt.Errorf("supervisor.stop-timeout must be positive")
	}
	if s.LogLines < 0 {
		return fmt.Errorf("supervisor.log-lines must not be negative")
	}
	switch c.Crashes.Backend {
	case "", "fs":
	case "s3":
		if c.Crashes.Path == "" {
			return fmt.Errorf("crashes.path is required for the s3 backend (bucket/prefix)")
		}
	default:
		return fmt.Errorf("crashes.backend must be one of: fs, s3 (got %q)", c.Crashes.Backend)
	}
	switch c.Adapter.Type {
	case "":
	case "webhook":
		if c.Adapter.URL == "" {
			return fmt.Errorf("adapter.url is required for the webhook adapter")
		}
	case "redis":
		if c.Adapter.URL == "" {
			return fmt.Errorf("adapter.url is required for the redis adapter")
		}
	default:
		return fmt.Errorf("adapter.type must be one of: webhook, redis (got %q)", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries must not be negative")
	}
	if r := c.Sentry.SampleRate; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("sentry.sample-rate must be in [0, 1]")
	}
	return nil
}

// MinerCount is the number of configured miners across both stacks.
func (c *Config) MinerCount() int {
	return len(c.CPUMiners) + len(c.GPUMiners)
}
