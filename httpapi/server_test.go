package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/leprechaun/iox"
	"github.com/justapithecus/leprechaun/supervisor"
	"github.com/justapithecus/leprechaun/types"
)

type fakeController struct {
	mu       sync.Mutex
	snap     *types.Snapshot
	paused   []time.Duration
	resumed  int
	lines    []string
	logsArgs []string
	err      error
}

func (f *fakeController) Snapshot() *types.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Pause(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.paused = append(f.paused, d)
	return nil
}

func (f *fakeController) Resume(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.resumed++
	return nil
}

func (f *fakeController) Logs(_ context.Context, stack, name string, n int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logsArgs = append(f.logsArgs, fmt.Sprintf("%s/%s/%d", stack, name, n))
	if name == "missing" {
		return nil, fmt.Errorf("%w: %s/%s", supervisor.ErrUnknownMiner, stack, name)
	}
	return f.lines, nil
}

func (f *fakeController) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logsArgs...)
}

func newTestServer(ctl *fakeController, metrics http.Handler) *httptest.Server {
	return httptest.NewServer(NewServer(ctl, metrics, nil).Echo())
}

func do(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer iox.DiscardClose(resp.Body)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

func TestServer_HealthAndStatus(t *testing.T) {
	ctl := &fakeController{}
	srv := newTestServer(ctl, nil)
	defer srv.Close()

	resp, body := do(t, http.MethodGet, srv.URL+"/health")
	var h Health
	if err := json.Unmarshal(body, &h); err != nil || resp.StatusCode != http.StatusOK || h.Status != "starting" {
		t.Fatalf("health = %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/status")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status before snapshot = %d", resp.StatusCode)
	}

	ctl.mu.Lock()
	ctl.snap = &types.Snapshot{SessionID: "s1", Stacks: []types.StackStatus{{Name: "cpu", Active: "m1"}}}
	ctl.mu.Unlock()
	resp, body = do(t, http.MethodGet, srv.URL+"/status")
	var snap types.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	if snap.SessionID != "s1" || snap.Stacks[0].Active != "m1" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestServer_Logs(t *testing.T) {
	ctl := &fakeController{lines: []string{"a", "b"}}
	srv := newTestServer(ctl, nil)
	defer srv.Close()

	resp, body := do(t, http.MethodGet, srv.URL+"/stacks/cpu/miners/m1/log?lines=5000")
	var logs Logs
	if err := json.Unmarshal(body, &logs); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("logs = %d %s", resp.StatusCode, body)
	}
	if logs.Count != 2 || logs.Miner != "m1" {
		t.Errorf("logs = %+v", logs)
	}
	if calls := ctl.calls(); calls[0] != fmt.Sprintf("cpu/m1/%d", MaxLogLines) {
		t.Errorf("Logs called with %v", calls)
	}

	tests := []struct {
		url  string
		want int
	}{
		{"/stacks/cpu/miners/m1/log?lines=abc", http.StatusBadRequest},
		{"/stacks/cpu/miners/m1/log?lines=0", http.StatusBadRequest},
		{"/stacks/cpu/miners/missing/log", http.StatusNotFound},
	}
	for _, tt := range tests {
		if resp, _ := do(t, http.MethodGet, srv.URL+tt.url); resp.StatusCode != tt.want {
			t.Errorf("%s = %d, want %d", tt.url, resp.StatusCode, tt.want)
		}
	}
	calls := ctl.calls()
	if last := calls[len(calls)-1]; last != fmt.Sprintf("cpu/missing/%d", DefaultLogLines) {
		t.Errorf("default lines call = %s", last)
	}
}

func TestServer_PauseResume(t *testing.T) {
	ctl := &fakeController{snap: &types.Snapshot{}}
	srv := newTestServer(ctl, nil)
	defer srv.Close()

	if resp, body := do(t, http.MethodPost, srv.URL+"/pause?for=90m"); resp.StatusCode != http.StatusOK {
		t.Fatalf("pause = %d %s", resp.StatusCode, body)
	}
	if resp, _ := do(t, http.MethodPost, srv.URL+"/pause"); resp.StatusCode != http.StatusOK {
		t.Fatalf("indefinite pause = %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodPost, srv.URL+"/pause?for=soon"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad duration = %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodPost, srv.URL+"/resume"); resp.StatusCode != http.StatusOK {
		t.Errorf("resume = %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/pause"); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /pause = %d", resp.StatusCode)
	}

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if len(ctl.paused) != 2 || ctl.paused[0] != 90*time.Minute || ctl.paused[1] != 0 || ctl.resumed != 1 {
		t.Errorf("paused = %v resumed = %d", ctl.paused, ctl.resumed)
	}
}

func TestServer_CommandErrors(t *testing.T) {
	ctl := &fakeController{err: supervisor.ErrStopped}
	srv := newTestServer(ctl, nil)
	defer srv.Close()
	if resp, _ := do(t, http.MethodPost, srv.URL+"/resume"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("stopped = %d", resp.StatusCode)
	}

	ctl.mu.Lock()
	ctl.err = errors.New("disk on fire")
	ctl.mu.Unlock()
	resp, body := do(t, http.MethodPost, srv.URL+"/resume")
	if resp.StatusCode != http.StatusInternalServerError || !strings.Contains(string(body), "disk on fire") {
		t.Errorf("unexpected = %d %s", resp.StatusCode, body)
	}
}

func TestServer_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("leprechaun_ticks_total 3\n"))
	})
	srv := newTestServer(&fakeController{}, metrics)
	defer srv.Close()
	resp, body := do(t, http.MethodGet, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "leprechaun_ticks_total") {
		t.Errorf("metrics = %d %s", resp.StatusCode, body)
	}

	noMetrics := newTestServer(&fakeController{}, nil)
	defer noMetrics.Close()
	if resp, _ := do(t, http.MethodGet, noMetrics.URL+"/metrics"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("metrics disabled = %d", resp.StatusCode)
	}
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	s := NewServer(&fakeController{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
