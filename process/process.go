// Package process owns backend OS processes.
//
// A Process is spawned through a Group, which applies platform group-kill
// semantics so that no backend outlives the supervisor. Standard input is the
// null device; standard output and standard error share one pipe that a
// capture goroutine splits into lines. A separate wait goroutine reaps the
// process and reports its exit code exactly once.
package process

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// maxLineBytes caps a single captured line; longer output is split.
	maxLineBytes = 64 * 1024
	// drainTimeout bounds how long exit reporting waits for buffered output
	// after the process has been reaped.
	drainTimeout = time.Second
)

// Spec describes one backend launch.
type Spec struct {
	// Path is the executable to run.
	Path string
	// Args are the arguments, excluding the executable itself.
	Args []string
	// Env holds extra KEY=VALUE entries layered over the supervisor environment.
	Env []string
	// Dir is the working directory. Empty means the executable's directory.
	Dir string
}

// String renders the command line for logs.
func (s Spec) String() string {
	return strings.TrimSpace(s.Path + " " + strings.Join(s.Args, " "))
}

// Options configures output and exit notification for one process.
// Callbacks run on the process's own goroutines and must not block for long.
type Options struct {
	// Buffer receives every captured line before OnLine is called.
	Buffer *LogBuffer
	// OnLine is called for every captured line.
	OnLine func(line string)
	// OnExit is called exactly once with the exit code.
	OnExit func(code int)
}

// Process is one running (or exited) backend.
type Process struct {
	spec  Spec
	cmd   *exec.Cmd
	group *Group
	opts  Options

	pipe        *os.File
	captureDone chan struct{}
	done        chan struct{}

	exitCode      atomic.Int64
	stopRequested atomic.Bool
	stopOnce      sync.Once
	stopErr       error
	startedAt     time.Time
}

// Start spawns spec inside the group.
func (g *Group) Start(spec Spec, opts Options) (*Process, error) {
	if spec.Path == "" {
		return nil, &LaunchError{Path: spec.Path, Err: errors.New("empty executable path")}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, &LaunchError{Path: spec.Path, Err: ErrGroupClosed}
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = deduplicateEnv(append(os.Environ(), spec.Env...))
	}
	cmd.SysProcAttr = sysProcAttr()

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Path: spec.Path, Err: fmt.Errorf("failed to create output pipe: %w", err)}
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, &LaunchError{Path: spec.Path, Err: err}
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	p := &Process{
		spec:        spec,
		cmd:         cmd,
		group:       g,
		opts:        opts,
		pipe:        pr,
		captureDone: make(chan struct{}),
		done:        make(chan struct{}),
		startedAt:   time.Now(),
	}
	p.exitCode.Store(-1)

	if err := g.adopt(p); err != nil {
		_ = p.signalKill()
		_ = cmd.Wait()
		_ = pr.Close()
		return nil, &LaunchError{Path: spec.Path, Err: fmt.Errorf("failed to attach to process group: %w", err)}
	}
	g.procs[p] = struct{}{}

	go p.capture()
	go p.wait()
	return p, nil
}

// capture splits merged output into lines until the pipe closes. Lines are
// trimmed and blank lines dropped.
func (p *Process) capture() {
	defer close(p.captureDone)

	scanner := bufio.NewScanner(p.pipe)
	scanner.Buffer(make([]byte, 0, 4096), 2*maxLineBytes)
	scanner.Split(splitLines(maxLineBytes))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if p.opts.Buffer != nil {
			p.opts.Buffer.Append(line)
		}
		if p.opts.OnLine != nil {
			p.opts.OnLine(line)
		}
	}
}

// wait reaps the process, drains output, and publishes the exit code.
func (p *Process) wait() {
	err := p.cmd.Wait()
	code := exitCode(err)
	p.reapDescendants()

	// Descendants may still hold the write end; bound the drain.
	_ = p.pipe.SetReadDeadline(time.Now().Add(drainTimeout))
	timer := time.NewTimer(drainTimeout + 100*time.Millisecond)
	select {
	case <-p.captureDone:
		timer.Stop()
	case <-timer.C:
		_ = p.pipe.Close()
	}
	_ = p.pipe.Close()

	p.exitCode.Store(int64(code))
	p.group.forget(p)
	close(p.done)

	if p.opts.OnExit != nil {
		p.opts.OnExit(code)
	}
}

// exitCode extracts the process exit code from a Wait error.
// Signalled processes report -1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Running reports whether the process has not yet reported an exit code.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed after the exit code is available.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code, or -1 while running or when signalled.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// PID returns the OS process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Spec returns the launch spec.
func (p *Process) Spec() Spec {
	return p.spec
}

// StartedAt returns when the process was spawned.
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// StopRequested reports whether Stop or Kill has been called.
func (p *Process) StopRequested() bool {
	return p.stopRequested.Load()
}

// Stop requests graceful termination of the process and its descendants.
// It returns without waiting for exit and is a no-op once the process has
// exited or a stop was already sent.
func (p *Process) Stop() error {
	if !p.Running() {
		return nil
	}
	p.stopOnce.Do(func() {
		p.stopRequested.Store(true)
		p.stopErr = p.signalTerm()
		if p.stopErr != nil && !p.Running() {
			p.stopErr = nil
		}
	})
	return p.stopErr
}

// Kill forcibly terminates the process and its descendants.
func (p *Process) Kill() error {
	if !p.Running() {
		return nil
	}
	p.stopRequested.Store(true)
	if err := p.signalKill(); err != nil && p.Running() {
		return fmt.Errorf("failed to kill %s: %w", p.spec.Path, err)
	}
	return nil
}

// Terminate stops the process and waits up to grace for it to exit,
// killing it if it does not. It always returns after the process has exited
// or a further grace period has passed after the kill.
func (p *Process) Terminate(grace time.Duration) error {
	if !p.Running() {
		return nil
	}
	stopErr := p.Stop()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	if err := p.Kill(); err != nil {
		return errors.Join(stopErr, err)
	}
	timer.Reset(grace)
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("process %d did not exit after kill", p.PID())
	}
}

// splitLines is bufio.ScanLines with a cap on token length.
func splitLines(limit int) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		advance, token, err := bufio.ScanLines(data, atEOF)
		if err == nil && token == nil && !atEOF && len(data) >= limit {
			return limit, data[:limit], nil
		}
		return advance, token, err
	}
}

// deduplicateEnv keeps the last occurrence of each env var key.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
