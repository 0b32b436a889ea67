package supervisor

import (
	"errors"
	"time"

	"github.com/justapithecus/leprechaun/backend"
	"github.com/justapithecus/leprechaun/condition"
	"github.com/justapithecus/leprechaun/config"
	"github.com/justapithecus/leprechaun/miner"
	"github.com/justapithecus/leprechaun/process"
	"github.com/justapithecus/leprechaun/types"
)

// BuildOptions are the host facts needed to turn config entries into miners.
type BuildOptions struct {
	// Spawner starts backend processes.
	Spawner miner.Spawner
	// Idle feeds when-idle conditions.
	Idle condition.IdleSource
	// Now is the clock for schedule conditions. Nil means time.Now.
	Now func() time.Time
	// Host is used in worker names.
	Host string
	// NumCPU bounds process-threads. Zero means runtime.NumCPU().
	NumCPU int
	// LookPath overrides PATH lookup of backend executables.
	LookPath func(string) (string, error)
}

// BuildResult holds the miners built from one config.
type BuildResult struct {
	CPU []*miner.Miner
	GPU []*miner.Miner
	// Skipped lists the rejected entries when invalid miners are skipped.
	Skipped []error
}

// Build constructs the miners of both stacks in priority order.
//
// Each entry is built in isolation. With skip-invalid-miners unset any
// invalid entry fails the whole build and every problem is reported;
// otherwise invalid entries are dropped and listed in Skipped.
func Build(cfg *config.Config, opts BuildOptions) (*BuildResult, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	env := backend.Env{
		Host:      opts.Host,
		MinersDir: cfg.Supervisor.MinersDir,
		NumCPU:    opts.NumCPU,
		LookPath:  opts.LookPath,
	}

	res := &BuildResult{}
	var errs []error
	for _, class := range []struct {
		name    string
		entries config.MinerList
		out     *[]*miner.Miner
	}{
		{backend.ClassCPU, cfg.CPUMiners, &res.CPU},
		{backend.ClassGPU, cfg.GPUMiners, &res.GPU},
	} {
		for _, entry := range class.entries {
			m, err := buildMiner(cfg, class.name, entry, env, opts)
			if err != nil {
				errs = append(errs, types.ForMiner(entry.Name, err))
				continue
			}
			*class.out = append(*class.out, m)
		}
	}

	if len(errs) > 0 && !cfg.Supervisor.SkipInvalidMiners {
		return nil, errors.Join(errs...)
	}
	res.Skipped = errs
	return res, nil
}

func buildMiner(cfg *config.Config, class string, entry config.MinerEntry, env backend.Env, opts BuildOptions) (*miner.Miner, error) {
	if entry.Currency == "" {
		return nil, types.NewInvalidConfig("currency", "required")
	}
	address, err := cfg.ResolveAddress(entry)
	if err != nil {
		return nil, err
	}
	cond, err := condition.Parse(entry.Spec, condition.Env{Idle: opts.Idle, Now: opts.Now})
	if err != nil {
		return nil, err
	}
	launcher, err := backend.New(class, backend.Params{
		Name:            entry.Name,
		Currency:        entry.Currency,
		Address:         address,
		Backend:         entry.Backend,
		Path:            entry.Path,
		Pool:            entry.Pool,
		ProcessPriority: entry.ProcessPriority,
		ProcessThreads:  entry.ProcessThreads,
	}, env)
	if err != nil {
		return nil, err
	}
	return miner.New(miner.Config{
		Name:        entry.Name,
		Currency:    entry.Currency,
		Address:     address,
		Enabled:     entry.IsEnabled(),
		Condition:   cond,
		Launcher:    launcher,
		ExtraArgs:   entry.Args,
		LogCapacity: cfg.Supervisor.LogLines,
	}, opts.Spawner)
}

// GroupSpawner adapts a process group for Build.
func GroupSpawner(g *process.Group) miner.Spawner {
	return miner.GroupSpawner{Group: g}
}
