package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/leprechaun/types"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "leprechaun.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	doc := `addresses:
  xmr: 4xmrwallet
  ETH: "0xethwallet"

cpu-miners:
  night:
    currency: xmr
    condition: on-schedule
    days: [mon, tue]
    from-time: "22:00"
    until-time: "06:00"
    process-threads: max - 1
  idle:
    currency: XMR
    condition: when-idle
    idle-minutes: 5
    process-priority: 3
    enabled: false

gpu-miners:
  gpu:
    currency: ETH
    backend: ethminer
    address: 0xoverride
    args: [--farm-recheck, "200"]
    conditions-or:
      - condition: when-idle
        idle-minutes: 1.5
      - condition: on-schedule
        days: [sat, sun]

supervisor:
  tick-interval: 2s
  stop-timeout: 10s
  data-dir: /var/lib/leprechaun
  skip-invalid-miners: true
  watch: false

crashes:
  backend: s3
  path: my-bucket/crashes
  region: us-east-1
  endpoint: https://minio.local
  s3-path-style: true

adapter:
  type: webhook
  url: https://hooks.example.com/leprechaun
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3

http:
  listen: 127.0.0.1:8787

sentry:
  dsn: https://key@sentry.example.com/1
  sample-rate: 0.5
`
	cfg, err := Load(writeTemp(t, doc))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.CPUMiners) != 2 || cfg.CPUMiners[0].Name != "night" || cfg.CPUMiners[1].Name != "idle" {
		t.Fatalf("cpu miners out of document order: %+v", cfg.CPUMiners)
	}
	night := cfg.CPUMiners[0]
	assertEqual(t, "night.currency", night.Currency, "XMR")
	assertEqual(t, "night.condition", night.Condition, "on-schedule")
	assertEqual(t, "night.from-time", night.FromTime, "22:00")
	if night.ProcessThreads != "max - 1" {
		t.Errorf("process-threads = %v", night.ProcessThreads)
	}
	if !night.IsEnabled() {
		t.Error("night should default to enabled")
	}

	idle := cfg.CPUMiners[1]
	if idle.IsEnabled() {
		t.Error("idle should be disabled")
	}
	if idle.IdleMinutes == nil || *idle.IdleMinutes != 5 {
		t.Errorf("idle-minutes = %v", idle.IdleMinutes)
	}
	if idle.ProcessPriority != 3 {
		t.Errorf("process-priority = %v (%T)", idle.ProcessPriority, idle.ProcessPriority)
	}

	gpu := cfg.GPUMiners[0]
	assertEqual(t, "gpu.backend", gpu.Backend, "ethminer")
	if len(gpu.ConditionsOr) != 2 || gpu.ConditionsOr[1].Days[1] != "sun" {
		t.Errorf("conditions-or = %+v", gpu.ConditionsOr)
	}
	if strings.Join(gpu.Args, " ") != "--farm-recheck 200" {
		t.Errorf("args = %v", gpu.Args)
	}

	s := cfg.Supervisor
	if s.TickInterval.Duration != 2*time.Second || s.StopTimeout.Duration != 10*time.Second {
		t.Errorf("durations = %v / %v", s.TickInterval, s.StopTimeout)
	}
	assertEqual(t, "crash-dir", s.CrashDir, filepath.Join("/var/lib/leprechaun", "miner_crashes"))
	assertEqual(t, "miners-dir", s.MinersDir, filepath.Join("/var/lib/leprechaun", "miners"))
	assertEqual(t, "status path", s.StatusPath(), filepath.Join("/var/lib/leprechaun", "status.frame"))
	if !s.SkipInvalidMiners || s.WatchEnabled() {
		t.Errorf("skip-invalid-miners=%v watch=%v", s.SkipInvalidMiners, s.WatchEnabled())
	}

	assertEqual(t, "crashes.backend", cfg.Crashes.Backend, "s3")
	if !cfg.Crashes.S3PathStyle {
		t.Error("expected s3-path-style")
	}
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/leprechaun")
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Error("expected adapter.retries=3")
	}
	assertEqual(t, "http.listen", cfg.HTTP.Listen, "127.0.0.1:8787")
	if cfg.Sentry.SampleRate == nil || *cfg.Sentry.SampleRate != 0.5 {
		t.Error("expected sentry.sample-rate=0.5")
	}

	addr, err := cfg.ResolveAddress(night)
	if err != nil || addr != "4xmrwallet" {
		t.Errorf("ResolveAddress(night) = %q, %v", addr, err)
	}
	addr, err = cfg.ResolveAddress(gpu)
	if err != nil || addr != "0xoverride" {
		t.Errorf("ResolveAddress(gpu) = %q, %v", addr, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeTemp(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s := cfg.Supervisor
	if s.TickInterval.Duration != DefaultTickInterval || s.StopTimeout.Duration != DefaultStopTimeout {
		t.Errorf("durations = %v / %v", s.TickInterval, s.StopTimeout)
	}
	if s.DataDir == "" || s.CrashDir != filepath.Join(s.DataDir, "miner_crashes") {
		t.Errorf("data-dir=%q crash-dir=%q", s.DataDir, s.CrashDir)
	}
	assertEqual(t, "crashes.backend", cfg.Crashes.Backend, "fs")
	if s.SkipInvalidMiners || !s.WatchEnabled() {
		t.Error("unexpected supervisor defaults")
	}
	if cfg.MinerCount() != 0 {
		t.Errorf("MinerCount = %d", cfg.MinerCount())
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/leprechaun.yml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    string
		invalid bool
	}{
		{name: "bad yaml", doc: "{{invalid yaml", want: "yaml"},
		{name: "unknown top-level", doc: "minerz: {}", want: "field minerz not found"},
		{name: "unknown miner key", doc: "cpu-miners:\n  m:\n    currency: XMR\n    threads: 2\n", want: "threads", invalid: true},
		{name: "unknown nested key", doc: "cpu-miners:\n  m:\n    conditions:\n      - condition: when-idle\n        idle: 3\n", want: "conditions[0].idle", invalid: true},
		{name: "miners not a mapping", doc: "cpu-miners: [a, b]", want: "mapping"},
		{name: "duplicate miner", doc: "cpu-miners:\n  m: {currency: XMR}\n  m: {currency: XMR}\n", want: "m"},
		{name: "bad duration", doc: "supervisor:\n  tick-interval: soon\n", want: "invalid duration"},
		{name: "bad adapter", doc: "adapter:\n  type: kafka\n", want: "adapter.type"},
		{name: "webhook without url", doc: "adapter:\n  type: webhook\n", want: "adapter.url"},
		{name: "s3 without path", doc: "crashes:\n  backend: s3\n", want: "crashes.path"},
		{name: "missing env", doc: "addresses:\n  XMR: ${UNSET_WALLET_12345:?wallet}\n", want: "UNSET_WALLET_12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
			if tt.invalid && !errors.Is(err, types.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_WALLET", "4expanded")
	cfg, err := Load(writeTemp(t, "addresses:\n  XMR: ${TEST_WALLET}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "addresses.XMR", cfg.Addresses["XMR"], "4expanded")
}

func TestResolveAddress_Errors(t *testing.T) {
	cfg := &Config{Addresses: map[string]string{"XMR": PlaceholderAddress}}
	for _, e := range []MinerEntry{
		{Name: "a", Currency: "XMR"},
		{Name: "b", Currency: "ETH"},
	} {
		_, err := cfg.ResolveAddress(e)
		var ic *types.InvalidConfigError
		if !errors.As(err, &ic) || ic.Field != "address" {
			t.Errorf("ResolveAddress(%s) = %v", e.Name, err)
		}
	}
}

func TestMinerList_MarshalKeepsOrder(t *testing.T) {
	cfg, err := Parse([]byte("cpu-miners:\n  zeta: {currency: XMR}\n  alpha: {currency: XMR}\n"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := yaml.Marshal(cfg.CPUMiners)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Index(string(out), "zeta") > strings.Index(string(out), "alpha") {
		t.Errorf("order lost:\n%s", out)
	}
}
