package collcomm

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/dist-reduce/simulator"
)

// TestNetworks lists the network models that collective
// operations are expected to work on.
var TestNetworks = []string{"random", "switched", "ordered"}

// TestGroupSizes lists the group sizes that collective
// operations are expected to work on.
var TestGroupSizes = []int{1, 2, 3, 5, 16, 17}

// NewTestNetwork creates a network of the named model for
// the given nodes.
func NewTestNetwork(name string, nodes []*simulator.Node) simulator.Network {
	switch name {
	case "random":
		return simulator.RandomNetwork{}
	case "switched":
		return simulator.NewSwitcherNetwork(simulator.NewGreedyDropSwitcher(len(nodes), 1.0),
			nodes, 0.1)
	case "ordered":
		return simulator.NewOrderedNetwork(1.0, 0.1)
	}
	panic("unknown network: " + name)
}

// RunGroup runs f on every rank of a group of the given
// size and fails the test if the event loop deadlocks.
func RunGroup(t *testing.T, size int, network string, f func(c *Comms)) {
	loop := simulator.NewEventLoop()
	nodes := simulator.NewNodes(size)
	SpawnComms(loop, NewTestNetwork(network, nodes), nodes, f)
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
}

// RunReducerTests runs a battery of tests on a Reducer.
func RunReducerTests(t *testing.T, reducer Reducer) {
	for _, numNodes := range TestGroupSizes {
		for _, size := range []int{0, 1, 1337} {
			for _, network := range TestNetworks {
				name := fmt.Sprintf("Nodes=%d,Size=%d,Network=%s", numNodes, size, network)
				t.Run(name, func(t *testing.T) {
					root := numNodes / 2
					vectors := make([][]float64, numNodes)
					sum := make([]float64, size)
					for i := range vectors {
						vectors[i] = make([]float64, size)
						for j := range vectors[i] {
							vectors[i][j] = rand.NormFloat64()
							sum[j] += vectors[i][j]
						}
					}
					results := make([][]float64, numNodes)
					errs := make([]error, numNodes)
					RunGroup(t, numNodes, network, func(c *Comms) {
						results[c.Rank()], errs[c.Rank()] = reducer.Reduce(c, root,
							vectors[c.Rank()], Sum)
					})
					for i, err := range errs {
						if err != nil {
							t.Fatalf("rank %d: %v", i, err)
						}
						if i != root && results[i] != nil {
							t.Errorf("rank %d: non-root got a result", i)
						}
					}
					verifySum(t, results[root], sum)
				})
			}
		}
	}
}

func verifySum(t *testing.T, actual, expected []float64) {
	if len(actual) != len(expected) {
		t.Fatalf("result has length %d but expected %d", len(actual), len(expected))
	}
	for i, x := range expected {
		if math.Abs(x-actual[i]) > 1e-5 {
			t.Errorf("sum is incorrect (expected %f but got %f at component %d)",
				x, actual[i], i)
			break
		}
	}
}
