package backend

import (
	"context"
	"strconv"

	"github.com/justapithecus/leprechaun/process"
	"github.com/justapithecus/leprechaun/types"
)

// DefaultXMRPool is the stratum endpoint used when an entry sets no pool.
const DefaultXMRPool = "pool.supportxmr.com:443"

var xmrigProgram = program{name: "xmrig", version: "6.14.1", exe: "xmrig"}

// xmrigFeeFactor nets out the xmrig donation (1%) and pool fee (0.6%).
const xmrigFeeFactor = 0.99 * 0.994

// XMRig launches xmrig for Monero CPU mining.
type XMRig struct {
	resolver resolver
	address  string
	worker   string
	pool     string
	priority int
	threads  int
}

func newXMRig(p Params, env Env) (*XMRig, error) {
	priority := 2
	if p.ProcessPriority != nil {
		v, err := evalInt(p.ProcessPriority, 0, 5)
		if err != nil {
			return nil, types.NewInvalidConfig("process-priority", "%v", err)
		}
		priority = v
	}
	if priority < 0 || priority > 5 {
		return nil, types.NewInvalidConfig("process-priority", "process priority must be in range [0, 5] (got '%d')", priority)
	}

	maxThreads := env.numCPU()
	threads := maxThreads
	if p.ProcessThreads != nil {
		v, err := evalInt(p.ProcessThreads, 1, maxThreads)
		if err != nil {
			return nil, types.NewInvalidConfig("process-threads", "%v", err)
		}
		threads = v
	}
	if threads < 1 || threads > maxThreads {
		return nil, types.NewInvalidConfig("process-threads", "process thread count must be in range [1, %d] (got '%d')", maxThreads, threads)
	}

	if p.Backend != "" && p.Backend != xmrigProgram.name {
		return nil, types.NewInvalidConfig("backend", "backend must be 'xmrig' (got '%s')", p.Backend)
	}

	pool := p.Pool
	if pool == "" {
		pool = DefaultXMRPool
	}
	return &XMRig{
		resolver: resolver{program: xmrigProgram, explicit: p.Path, env: env},
		address:  p.Address,
		worker:   env.WorkerName(p.Name),
		pool:     pool,
		priority: priority,
		threads:  threads,
	}, nil
}

// Backend returns "xmrig".
func (x *XMRig) Backend() string { return xmrigProgram.name }

// Threads returns the configured mining thread count.
func (x *XMRig) Threads() int { return x.threads }

// Priority returns the configured CPU priority.
func (x *XMRig) Priority() int { return x.priority }

// Args returns the xmrig arguments.
func (x *XMRig) Args() []string {
	return []string{
		"-o", x.pool,
		"-u", x.address,
		"--rig-id", x.worker,
		"--cpu-priority", strconv.Itoa(x.priority),
		"-t", strconv.Itoa(x.threads),
		"-k", "--tls", "--no-color",
	}
}

// LaunchSpec resolves the executable.
func (x *XMRig) LaunchSpec(context.Context) (process.Spec, error) {
	path, err := x.resolver.resolve()
	if err != nil {
		return process.Spec{}, err
	}
	return process.Spec{Path: path, Args: x.Args()}, nil
}

// Hashrate returns the newest hashrate in H/s net of fees.
func (x *XMRig) Hashrate(lines []string) (float64, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if rate, ok := ParseXMRigSpeed(lines[i]); ok {
			return rate * xmrigFeeFactor, true
		}
	}
	return 0, false
}
