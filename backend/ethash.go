package backend

import (
	"context"

	"github.com/justapithecus/leprechaun/process"
	"github.com/justapithecus/leprechaun/types"
)

// GPU backend names accepted in the `backend` key.
const (
	BackendTRex     = "t-rex"
	BackendEthminer = "ethminer"
)

var (
	trexProgram     = program{name: "t-rex", version: "0.21.6", exe: "t-rex"}
	nsfminerProgram = program{name: "nsfminer", version: "1.3.14", exe: "nsfminer"}
)

// Default pool endpoints per program.
const (
	DefaultTRexPool     = "stratum+tcp://eu1.ethermine.org:4444"
	DefaultNsfminerPool = "eu1.ethermine.org:5555"
)

// Ethash launches t-rex or nsfminer for Ether GPU mining.
type Ethash struct {
	backend  string
	resolver resolver
	address  string
	worker   string
	pool     string
}

func newEthash(p Params, env Env) (*Ethash, error) {
	backend := p.Backend
	if backend == "" {
		backend = BackendTRex
	}
	if p.ProcessPriority != nil || p.ProcessThreads != nil {
		return nil, types.NewInvalidConfig("process-priority", "process-priority and process-threads only apply to CPU miners")
	}

	e := &Ethash{backend: backend, address: p.Address, worker: env.WorkerName(p.Name), pool: p.Pool}
	switch backend {
	case BackendTRex:
		e.resolver = resolver{program: trexProgram, explicit: p.Path, env: env}
		if e.pool == "" {
			e.pool = DefaultTRexPool
		}
	case BackendEthminer:
		e.resolver = resolver{program: nsfminerProgram, explicit: p.Path, env: env}
		if e.pool == "" {
			e.pool = DefaultNsfminerPool
		}
	default:
		return nil, types.NewInvalidConfig("backend", "backend must be one of: '%s', '%s' (got '%s')", BackendTRex, BackendEthminer, backend)
	}
	return e, nil
}

// Backend returns the program name.
func (e *Ethash) Backend() string { return e.resolver.program.name }

// Args returns the program arguments.
func (e *Ethash) Args() []string {
	if e.backend == BackendTRex {
		return []string{
			"-a", "ethash",
			"-o", e.pool,
			"-u", e.address,
			"-p", "x",
			"-w", e.worker,
		}
	}
	return []string{
		"-P", "stratum+ssl://" + e.address + "." + e.worker + ":x@" + e.pool,
		"--nocolor",
	}
}

// LaunchSpec resolves the executable.
func (e *Ethash) LaunchSpec(context.Context) (process.Spec, error) {
	path, err := e.resolver.resolve()
	if err != nil {
		return process.Spec{}, err
	}
	return process.Spec{Path: path, Args: e.Args()}, nil
}
