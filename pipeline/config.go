// Package pipeline implements a scatter-compute-reduce run
// over a simulated process group.
//
// The coordinator (rank 0) owns the input array. A run
// partitions it, distributes one range to every rank,
// transforms and sums each range locally, and combines the
// partial sums back at the coordinator.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/unixpickle/dist-reduce/collcomm"
	"github.com/unixpickle/dist-reduce/partition"
	"github.com/unixpickle/dist-reduce/simulator"
	"github.com/unixpickle/dist-reduce/transform"
)

// DefaultTolerance is the relative difference allowed
// between the reduced sum and the sum of gathered partials.
const DefaultTolerance = 1e-6

// A Distribution is a strategy for moving ranges of the
// input from the coordinator to the other ranks.
type Distribution int

const (
	// Scatterv sends every rank a chunk carrying its own
	// count, offset, and checksum. It works with any plan.
	Scatterv Distribution = iota

	// FixedStride sends rank r the elements starting at
	// r*stride, with the last rank taking the rest. It only
	// works with plans where all but the last range have
	// the same length.
	FixedStride
)

// ParseDistribution parses the name of a Distribution.
func ParseDistribution(name string) (Distribution, error) {
	switch strings.ToLower(name) {
	case "scatterv":
		return Scatterv, nil
	case "fixed", "fixed-stride", "stride":
		return FixedStride, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown distribution %q", name))
}

// String returns the distribution's name.
func (d Distribution) String() string {
	switch d {
	case Scatterv:
		return "scatterv"
	case FixedStride:
		return "fixed-stride"
	}
	return fmt.Sprintf("Distribution(%d)", int(d))
}

// ParseReducer looks up a reduction algorithm by name.
func ParseReducer(name string) (collcomm.Reducer, error) {
	switch strings.ToLower(name) {
	case "tree":
		return collcomm.TreeReducer{}, nil
	case "linear":
		return collcomm.LinearReducer{}, nil
	}
	return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown reducer %q", name))
}

// ReducerName returns the name accepted by ParseReducer.
func ReducerName(r collcomm.Reducer) string {
	switch r.(type) {
	case nil, collcomm.TreeReducer:
		return "tree"
	case collcomm.LinearReducer:
		return "linear"
	}
	return fmt.Sprintf("%T", r)
}

// Config describes what a run computes. Every rank of a
// group must use the same Config.
type Config struct {
	// N is the number of input elements.
	N int

	Policy       partition.Policy
	Distribution Distribution

	// Reducer combines the partial sums. If nil,
	// collcomm.TreeReducer is used.
	Reducer collcomm.Reducer

	// Diagnostics enables gathering every partial sum at
	// the coordinator and cross-checking the reduction.
	Diagnostics bool

	// Kernel is applied to every element. The zero value
	// means transform.Default.
	Kernel transform.Kernel

	// Tolerance is the relative error allowed by the
	// diagnostic cross-check. If 0, DefaultTolerance is
	// used.
	Tolerance float64
}

// Validate checks the configuration without regard to the
// number of workers.
func (c Config) Validate() error {
	if c.N < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("cannot reduce %d elements", c.N))
	}
	if c.Tolerance < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("negative tolerance %g", c.Tolerance))
	}
	switch c.Distribution {
	case Scatterv, FixedStride:
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("unknown distribution %d", int(c.Distribution)))
	}
	switch c.Policy {
	case partition.Trailing, partition.Leading:
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("unknown partition policy %d", int(c.Policy)))
	}
	return nil
}

func (c Config) kernel() transform.Kernel {
	if c.Kernel.Name == "" {
		return transform.Default
	}
	return c.Kernel
}

func (c Config) reducer() collcomm.Reducer {
	if c.Reducer == nil {
		return collcomm.TreeReducer{}
	}
	return c.Reducer
}

func (c Config) tolerance() float64 {
	if c.Tolerance == 0 {
		return DefaultTolerance
	}
	return c.Tolerance
}

// Cluster describes the simulated process group a run
// executes on.
type Cluster struct {
	// Workers is the number of ranks, including the
	// coordinator.
	Workers int

	// Network is one of "switched", "random", or "ordered".
	// If empty, "switched" is used.
	Network string

	// Latency is the per-message delay in virtual seconds.
	Latency float64

	// Rate is the bandwidth of every network interface in
	// bytes per virtual second.
	Rate float64

	// Seed seeds the event loop's tie-breaking.
	Seed int64
}

// DefaultCluster returns a cluster of the given size on a
// fast switched network.
func DefaultCluster(workers int) Cluster {
	return Cluster{
		Workers: workers,
		Network: "switched",
		Latency: 1e-4,
		Rate:    1e9,
		Seed:    1,
	}
}

// Validate checks the cluster shape.
func (c Cluster) Validate() error {
	if c.Workers < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("cannot run on %d workers", c.Workers))
	}
	if c.Latency < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("negative latency %g", c.Latency))
	}
	switch c.Network {
	case "", "switched", "ordered":
		if c.Rate <= 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("network rate must be positive, got %g", c.Rate))
		}
	case "random":
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("unknown network %q", c.Network))
	}
	return nil
}

func (c Cluster) network(nodes []*simulator.Node) simulator.Network {
	switch c.Network {
	case "random":
		return simulator.RandomNetwork{MaxLatency: c.Latency}
	case "ordered":
		return simulator.NewOrderedNetwork(c.Rate, c.Latency)
	}
	return simulator.NewSwitcherNetwork(simulator.NewGreedyDropSwitcher(len(nodes), c.Rate),
		nodes, c.Latency)
}
