package pipeline

import (
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/unixpickle/dist-reduce/collcomm"
	"github.com/unixpickle/dist-reduce/partition"
	"github.com/unixpickle/dist-reduce/simulator"
	"golang.org/x/sync/errgroup"
)

// RunWorker runs every phase of a run on one rank.
//
// A group of one rank computes its result directly. In a
// larger group, a rank that fails aborts the group so that
// its peers fail too rather than waiting forever.
func RunWorker(c *collcomm.Comms, cfg Config, input []int) (*Result, error) {
	if c.Size() == 1 {
		return runAlone(c, cfg, input)
	}
	res, err := runPhases(c, cfg, input)
	if err != nil && !errors.Is(errors.Remote, err) {
		log.Error.Printf("[WORKER %d] aborting: %v", c.Rank(), err)
		c.Abort(err)
	}
	return res, err
}

func runPhases(c *collcomm.Comms, cfg Config, input []int) (*Result, error) {
	partitioned, err := Start(c, cfg, input)
	if err != nil {
		return nil, err
	}
	distributed, err := partitioned.Distribute()
	if err != nil {
		return nil, err
	}
	reduced, err := distributed.ReduceLocal()
	if err != nil {
		return nil, err
	}
	combined, err := reduced.Combine()
	if err != nil {
		return nil, err
	}
	return combined.Result(), nil
}

func runAlone(c *collcomm.Comms, cfg Config, input []int) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(input) != cfg.N {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("coordinator holds %d elements but the run expects %d", len(input), cfg.N))
	}
	k := cfg.kernel()
	start := c.Time()
	global := Direct(input, k)
	c.Handle.Sleep(k.Cost(len(input)))
	elapsed := c.Time() - start
	return &Result{
		Count:   len(input),
		Partial: global,
		Timings: Timings{Compute: elapsed, Total: elapsed},
		Plan:    partition.Plan{{Offset: 0, Count: len(input)}},
		Global:  global,
	}, nil
}

// An Outcome summarizes a run across its whole group.
type Outcome struct {
	Cluster Cluster
	Config  Config
	Plan    partition.Plan

	// Partials holds every rank's partial sum, indexed by
	// rank.
	Partials []float64

	Global       float64
	Inconsistent bool

	// Timings are the coordinator's, in virtual seconds.
	Timings Timings

	// Wall is the real time the simulation took.
	Wall time.Duration
}

// Run executes a run on a simulated group and returns the
// coordinator's result.
//
// A single-worker cluster takes the direct path, with no
// event loop and no messages.
// If any rank fails, Run returns the error that caused the
// failure rather than the errors of the peers it aborted.
func Run(cluster Cluster, cfg Config, input []int) (*Outcome, error) {
	if err := cluster.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(input) != cfg.N {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("input holds %d elements but the run expects %d", len(input), cfg.N))
	}

	wallStart := time.Now()
	if cluster.Workers == 1 {
		k := cfg.kernel()
		global := Direct(input, k)
		cost := k.Cost(len(input))
		return &Outcome{
			Cluster:  cluster,
			Config:   cfg,
			Plan:     partition.Plan{{Offset: 0, Count: len(input)}},
			Partials: []float64{global},
			Global:   global,
			Timings:  Timings{Compute: cost, Total: cost},
			Wall:     time.Since(wallStart),
		}, nil
	}

	loop := simulator.NewEventLoopSeed(cluster.Seed)
	nodes := simulator.NewNodes(cluster.Workers)
	results := make([]*Result, cluster.Workers)
	errs := make([]error, cluster.Workers)
	collcomm.SpawnComms(loop, cluster.network(nodes), nodes, func(c *collcomm.Comms) {
		var owned []int
		if c.Rank() == 0 {
			owned = input
		}
		results[c.Rank()], errs[c.Rank()] = RunWorker(c, cfg, owned)
	})
	loopErr := loop.Run()
	if err := firstError(errs); err != nil {
		return nil, err
	}
	if loopErr != nil {
		return nil, errors.E(errors.Fatal, fmt.Sprintf("run on %d workers", cluster.Workers), loopErr)
	}

	coord := results[0]
	out := &Outcome{
		Cluster:      cluster,
		Config:       cfg,
		Plan:         coord.Plan,
		Partials:     make([]float64, len(results)),
		Global:       coord.Global,
		Inconsistent: coord.Inconsistent,
		Timings:      coord.Timings,
		Wall:         time.Since(wallStart),
	}
	for i, res := range results {
		out.Partials[i] = res.Partial
	}
	return out, nil
}

// RunAll executes one run per cluster concurrently, all on
// the same input, and returns the outcomes in order.
func RunAll(clusters []Cluster, cfg Config, input []int) ([]*Outcome, error) {
	outcomes := make([]*Outcome, len(clusters))
	var g errgroup.Group
	for i, cluster := range clusters {
		i, cluster := i, cluster
		g.Go(func() error {
			out, err := Run(cluster, cfg, input)
			if err != nil {
				return errors.E(fmt.Sprintf("run on %d workers", cluster.Workers), err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
