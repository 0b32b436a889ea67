package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/leprechaun/adapter/webhook"
	"github.com/justapithecus/leprechaun/config"
	"github.com/justapithecus/leprechaun/ipc"
	"github.com/justapithecus/leprechaun/log"
	"github.com/justapithecus/leprechaun/types"
)

type fixedProbe time.Duration

func (p fixedProbe) Idle(context.Context) (time.Duration, error) { return time.Duration(p), nil }
func (fixedProbe) Name() string                                  { return "fixed" }

func TestDaemon_RunsMinerAndForwardsSwitch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the backend")
	}

	switches := make(chan string, 8)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(webhook.HeaderEventType) == string(types.EventTypeSwitch) {
			select {
			case switches <- r.Header.Get(webhook.HeaderEventID):
			default:
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	env := newTestEnv(t, "cpu-miners:\n  night:\n    currency: XMR\n    path: PLACEHOLDER\n")
	data, err := os.ReadFile(env.config)
	if err != nil {
		t.Fatal(err)
	}
	doc := string(data)
	doc = strings.Replace(doc, "PLACEHOLDER", env.miner, 1)
	doc += "adapter:\n  type: webhook\n  url: " + hook.URL + "\n"
	if err := os.WriteFile(env.config, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(env.config)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	meta := &types.SessionMeta{SessionID: "test-session", Host: "rig", StartedAt: time.Now()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d, err := newDaemon(ctx, daemonOptions{
		Config:     cfg,
		ConfigPath: env.config,
		Meta:       meta,
		Logger:     log.NewNop(),
		Probe:      fixedProbe(0),
	})
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()

	select {
	case id := <-switches:
		if id == "" {
			t.Error("switch event posted without an event id")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no switch event forwarded")
	}

	var snap *types.Snapshot
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		snap, err = ipc.ReadStatusFile(cfg.Supervisor.StatusPath())
		if err == nil && len(snap.Stacks) > 0 && snap.Stacks[0].Active == "night" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if snap == nil || snap.SessionID != "test-session" {
		t.Fatalf("status snapshot = %+v (err %v)", snap, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	d.close()
}

