package pipeline

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/unixpickle/dist-reduce/collcomm"
	"github.com/unixpickle/dist-reduce/partition"
	"github.com/unixpickle/dist-reduce/transform"
)

// Timings records how much virtual time one rank spent in
// each phase of a run.
type Timings struct {
	Distribute float64
	Compute    float64
	Combine    float64

	// Total includes time spent waiting in barriers.
	Total float64
}

// A Result is one rank's view of a finished run.
type Result struct {
	Rank    int
	Count   int
	Partial float64
	Timings Timings

	// The remaining fields are only set at the coordinator.

	Plan   partition.Plan
	Global float64

	// Gathered holds every rank's partial sum, indexed by
	// rank, if diagnostics were enabled.
	Gathered []float64

	// Inconsistent is set if the reduced sum disagrees with
	// the sum of the gathered partials.
	Inconsistent bool
}

// run is the state shared by every phase of one rank's run.
type run struct {
	comms   *collcomm.Comms
	cfg     Config
	kernel  transform.Kernel
	plan    partition.Plan
	start   float64
	timings Timings
}

// Partitioned is a run whose partition plan is known but
// whose data has not moved yet.
type Partitioned struct {
	*run
	input []int
}

// Distributed is a run where every rank holds its slice.
type Distributed struct {
	*run
	local []int
}

// LocallyReduced is a run where every rank holds the
// partial sum of its slice.
type LocallyReduced struct {
	*run
	count   int
	partial float64
}

// Combined is a finished run.
type Combined struct {
	*run
	result *Result
}

// Start begins a run on one rank of a group.
//
// Only the coordinator's input is used, and it must hold
// exactly cfg.N elements. Every rank computes the same
// plan from cfg and the group size.
func Start(c *collcomm.Comms, cfg Config, input []int) (*Partitioned, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.Rank() != 0 {
		input = nil
	} else if len(input) != cfg.N {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("coordinator holds %d elements but the run expects %d", len(input), cfg.N))
	}
	plan, err := partition.Compute(cfg.N, c.Size(), cfg.Policy)
	if err != nil {
		return nil, err
	}
	if cfg.Distribution == FixedStride {
		if _, ok := plan.FixedStride(); !ok {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("%s distribution cannot carry a %s plan of %d elements over %d ranks",
					cfg.Distribution, cfg.Policy, cfg.N, c.Size()))
		}
	}
	r := &run{
		comms:  c,
		cfg:    cfg,
		kernel: cfg.kernel(),
		plan:   plan,
		start:  c.Time(),
	}
	return &Partitioned{run: r, input: input}, nil
}

// Plan returns the partition plan of the run.
func (p *Partitioned) Plan() partition.Plan {
	return p.plan
}

// Distribute moves every rank's range from the coordinator
// to that rank.
//
// A rank that receives a different number of elements than
// its own plan calls for fails with an errors.Integrity
// error.
func (p *Partitioned) Distribute() (*Distributed, error) {
	c := p.comms
	start := c.Time()

	var local []int
	var err error
	switch p.cfg.Distribution {
	case Scatterv:
		local, err = p.scatter()
	case FixedStride:
		local, err = p.sendStrided()
	}
	if err != nil {
		return nil, err
	}
	if expected := p.plan[c.Rank()].Count; len(local) != expected {
		return nil, sizeMismatch(c.Rank(), expected, len(local))
	}

	p.timings.Distribute = c.Time() - start
	if len(local) > 0 {
		log.Debug.Printf("[WORKER %d] received %d elements (first %d, last %d)", c.Rank(),
			len(local), local[0], local[len(local)-1])
	} else {
		log.Debug.Printf("[WORKER %d] received no elements", c.Rank())
	}
	return &Distributed{run: p.run, local: local}, nil
}

func (p *Partitioned) scatter() ([]int, error) {
	c := p.comms
	if c.Rank() != 0 {
		return collcomm.Scatterv(c, 0, nil, nil, nil)
	}
	p.logPlan()
	return collcomm.Scatterv(c, 0, p.input, p.plan.Counts(), p.plan.Offsets())
}

func (p *Partitioned) sendStrided() ([]int, error) {
	c := p.comms
	if c.Rank() != 0 {
		env, err := c.Recv(0, collcomm.TagData)
		if err != nil {
			return nil, err
		}
		return env.Payload.([]int), nil
	}
	p.logPlan()
	stride, _ := p.plan.FixedStride()
	for r := 1; r < c.Size(); r++ {
		end := (r + 1) * stride
		if r == c.Size()-1 {
			end = len(p.input)
		}
		part := append([]int(nil), p.input[r*stride:end]...)
		c.Send(r, collcomm.TagData, part, float64(len(part)*collcomm.IntSize))
	}
	return append([]int(nil), p.input[:stride]...), nil
}

func (p *Partitioned) logPlan() {
	log.Printf("[COLLECTIVE] distributing %d elements over %d ranks (%s policy, %s)",
		p.cfg.N, p.comms.Size(), p.cfg.Policy, p.cfg.Distribution)
	for _, line := range p.plan.Describe() {
		log.Printf("[COLLECTIVE]   %s", line)
	}
}

// ReduceLocal waits for every rank to hold its slice, then
// transforms and sums the slice.
//
// The slice is released once the partial sum is known.
func (d *Distributed) ReduceLocal() (*LocallyReduced, error) {
	c := d.comms
	if err := collcomm.Barrier(c); err != nil {
		return nil, err
	}
	start := c.Time()
	partial := ReduceLocal(d.local, d.kernel)
	c.Handle.Sleep(d.kernel.Cost(len(d.local)))
	d.timings.Compute = c.Time() - start

	log.Debug.Printf("[WORKER %d] partial sum of %d elements: %.6f", c.Rank(), len(d.local), partial)
	count := len(d.local)
	d.local = nil
	return &LocallyReduced{run: d.run, count: count, partial: partial}, nil
}

// Partial returns the rank's partial sum.
func (l *LocallyReduced) Partial() float64 {
	return l.partial
}

// Combine waits for every rank to finish computing, then
// reduces the partial sums at the coordinator.
//
// With diagnostics enabled, the coordinator also gathers
// the partial sums and checks the reduction against them.
// A disagreement is logged and flagged but does not fail
// the run.
func (l *LocallyReduced) Combine() (*Combined, error) {
	c := l.comms
	if err := collcomm.Barrier(c); err != nil {
		return nil, err
	}
	start := c.Time()

	var gathered [][]float64
	if l.cfg.Diagnostics {
		var err error
		gathered, err = collcomm.Gather(c, 0, []float64{l.partial})
		if err != nil {
			return nil, err
		}
	}
	reduced, err := l.cfg.reducer().Reduce(c, 0, []float64{l.partial}, collcomm.Sum)
	if err != nil {
		return nil, err
	}

	res := &Result{Rank: c.Rank(), Count: l.count, Partial: l.partial}
	if c.Rank() == 0 {
		res.Plan = l.plan
		res.Global = reduced[0]
		log.Printf("[COLLECTIVE] global sum over %d ranks: %.6f", c.Size(), res.Global)
		if gathered != nil {
			res.Gathered = make([]float64, len(gathered))
			for i, vec := range gathered {
				res.Gathered[i] = vec[0]
			}
			manual := sumInOrder(res.Gathered)
			if !consistent(res.Global, manual, l.cfg.tolerance()) {
				res.Inconsistent = true
				log.Error.Printf("[COLLECTIVE] reduced sum %.6f disagrees with gathered sum %.6f",
					res.Global, manual)
			}
		}
	}

	l.timings.Combine = c.Time() - start
	l.timings.Total = c.Time() - l.start
	res.Timings = l.timings
	return &Combined{run: l.run, result: res}, nil
}

// Result reports the outcome of the run on this rank.
func (c *Combined) Result() *Result {
	return c.result
}

func sumInOrder(values []float64) float64 {
	var sum float64
	for _, x := range values {
		sum += x
	}
	return sum
}

func consistent(global, manual, tolerance float64) bool {
	return math.Abs(global-manual) <= tolerance*math.Max(1, math.Abs(global))
}
