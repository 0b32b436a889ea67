// Package backend builds launch specs for the supported mining programs.
//
// A launcher only resolves an already installed executable; it never
// downloads anything. Resolution order is the entry's explicit path, the
// versioned directory under the miners dir, then PATH.
package backend

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/justapithecus/leprechaun/miner"
	"github.com/justapithecus/leprechaun/process"
	"github.com/justapithecus/leprechaun/types"
)

// Device classes.
const (
	ClassCPU = "cpu"
	ClassGPU = "gpu"
)

// Params are the backend-specific fields of one miner entry.
type Params struct {
	// Name is the miner name, used in the worker name.
	Name string
	// Currency is the coin code.
	Currency string
	// Address is the resolved payout address.
	Address string
	// Backend selects a program where a currency has several (GPU: t-rex, ethminer).
	Backend string
	// Path overrides executable resolution.
	Path string
	// Pool overrides the default pool endpoint.
	Pool string
	// ProcessPriority is an integer or expression (xmrig only).
	ProcessPriority any
	// ProcessThreads is an integer or expression (xmrig only).
	ProcessThreads any
}

// Env holds host facts launchers depend on.
type Env struct {
	// Host is the hostname used in worker names.
	Host string
	// MinersDir holds pre-installed backends in versioned directories.
	MinersDir string
	// NumCPU bounds process-threads. Zero means runtime.NumCPU().
	NumCPU int
	// LookPath resolves executables on PATH. Nil means exec.LookPath.
	LookPath func(file string) (string, error)
	// Stat checks explicit and miners-dir paths. Nil means os.Stat.
	Stat func(name string) (os.FileInfo, error)
}

func (e Env) numCPU() int {
	if e.NumCPU > 0 {
		return e.NumCPU
	}
	return runtime.NumCPU()
}

// WorkerName returns the pool worker name for a miner: <host>/<name>.
func (e Env) WorkerName(name string) string {
	if e.Host == "" {
		return name
	}
	return e.Host + "/" + name
}

// New returns the launcher for a miner of the given device class.
func New(class string, p Params, env Env) (miner.Launcher, error) {
	switch class {
	case ClassCPU:
		if p.Currency == "XMR" {
			x, err := newXMRig(p, env)
			if err != nil {
				return nil, err
			}
			return x, nil
		}
		return nil, types.NewInvalidConfig("currency", "no known CPU miners for currency '%s'", p.Currency)
	case ClassGPU:
		if p.Currency == "ETH" {
			e, err := newEthash(p, env)
			if err != nil {
				return nil, err
			}
			return e, nil
		}
		return nil, types.NewInvalidConfig("currency", "no known GPU miners for currency '%s'", p.Currency)
	default:
		return nil, fmt.Errorf("unknown device class %q", class)
	}
}

// program identifies an installable backend binary.
type program struct {
	name    string
	version string
	exe     string
}

func (p program) exeName() string {
	if runtime.GOOS == "windows" {
		return p.exe + ".exe"
	}
	return p.exe
}

// resolver finds the executable for a program.
type resolver struct {
	program  program
	explicit string
	env      Env
}

// resolve returns the executable path or a *process.LaunchError.
func (r resolver) resolve() (string, error) {
	stat := r.env.Stat
	if stat == nil {
		stat = os.Stat
	}
	lookPath := r.env.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	if r.explicit != "" {
		if _, err := stat(r.explicit); err != nil {
			return "", &process.LaunchError{Path: r.explicit, Err: err}
		}
		return r.explicit, nil
	}

	var tried []string
	if r.env.MinersDir != "" {
		candidate := filepath.Join(r.env.MinersDir, r.program.name+"-"+r.program.version, r.program.exeName())
		if _, err := stat(candidate); err == nil {
			return candidate, nil
		}
		tried = append(tried, candidate)
	}
	path, err := lookPath(r.program.exeName())
	if err == nil {
		return path, nil
	}
	tried = append(tried, "$PATH")
	return "", &process.LaunchError{
		Path: r.program.exeName(),
		Err:  fmt.Errorf("%w (looked in %s)", exec.ErrNotFound, strings.Join(tried, ", ")),
	}
}
