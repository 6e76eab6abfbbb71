package collcomm

import (
	"fmt"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/unixpickle/dist-reduce/simulator"
	"github.com/unixpickle/dist-reduce/transform"
)

func TestTreeReducer(t *testing.T) {
	RunReducerTests(t, TreeReducer{})
}

func TestLinearReducer(t *testing.T) {
	RunReducerTests(t, LinearReducer{})
}

func TestTreePosition(t *testing.T) {
	for _, size := range TestGroupSizes {
		for root := 0; root < size; root++ {
			seen := map[int]bool{}
			for rank := 0; rank < size; rank++ {
				parent, children := treePosition(rank, size, root)
				if (parent == -1) != (rank == root) {
					t.Fatalf("size %d root %d: rank %d has parent %d", size, root, rank, parent)
				}
				for _, child := range children {
					if p, _ := treePosition(child, size, root); p != rank {
						t.Errorf("size %d: child %d of %d has parent %d", size, child, rank, p)
					}
					if seen[child] {
						t.Errorf("size %d: rank %d has two parents", size, child)
					}
					seen[child] = true
				}
			}
			if len(seen) != size-1 {
				t.Errorf("size %d root %d: %d ranks have parents", size, root, len(seen))
			}
		}
	}
}

func TestBarrier(t *testing.T) {
	for _, size := range TestGroupSizes {
		for _, network := range TestNetworks {
			t.Run(fmt.Sprintf("Nodes=%d,Network=%s", size, network), func(t *testing.T) {
				lastArrival := float64(size - 1)
				RunGroup(t, size, network, func(c *Comms) {
					c.Handle.Sleep(float64(c.Rank()))
					if err := Barrier(c); err != nil {
						t.Error(err)
						return
					}
					if c.Time() < lastArrival {
						t.Errorf("rank %d left the barrier at %f before the last arrival",
							c.Rank(), c.Time())
					}
					// A second barrier must not be confused with the first.
					if err := Barrier(c); err != nil {
						t.Error(err)
					}
				})
			})
		}
	}
}

func TestScatterv(t *testing.T) {
	for _, size := range TestGroupSizes {
		for _, network := range TestNetworks {
			t.Run(fmt.Sprintf("Nodes=%d,Network=%s", size, network), func(t *testing.T) {
				data := make([]int, 3*size+1)
				for i := range data {
					data[i] = i * 7
				}
				counts := make([]int, size)
				displs := make([]int, size)
				offset := 0
				for r := range counts {
					counts[r] = r % 4
					if r == size-1 {
						counts[r] = len(data) - offset
					}
					displs[r] = offset
					offset += counts[r]
				}
				results := make([][]int, size)
				RunGroup(t, size, network, func(c *Comms) {
					var err error
					if c.Rank() == 0 {
						results[0], err = Scatterv(c, 0, data, counts, displs)
					} else {
						results[c.Rank()], err = Scatterv(c, 0, nil, nil, nil)
					}
					if err != nil {
						t.Error(err)
					}
				})
				for r, res := range results {
					expect.EQ(t, len(res), counts[r])
					for i, x := range res {
						if x != data[displs[r]+i] {
							t.Errorf("rank %d element %d: got %d", r, i, x)
							break
						}
					}
				}
			})
		}
	}
}

func TestScattervInvalid(t *testing.T) {
	RunGroup(t, 1, "random", func(c *Comms) {
		_, err := Scatterv(c, 0, []int{1, 2}, []int{3}, []int{0})
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("expected invalid error but got %v", err)
		}
	})
}

func TestChunkVerify(t *testing.T) {
	data := []int{5, 3, 8, 1, 9}
	chunk := &Chunk{Offset: 0, Count: len(data), Checksum: Checksum(data), Data: data}
	assert.NoError(t, chunk.Verify())

	short := *chunk
	short.Count = 4
	if err := short.Verify(); !errors.Is(errors.Integrity, err) {
		t.Errorf("expected integrity error for count mismatch but got %v", err)
	}

	corrupt := *chunk
	corrupt.Data = []int{5, 3, 8, 1, 10}
	if err := corrupt.Verify(); !errors.Is(errors.Integrity, err) {
		t.Errorf("expected integrity error for checksum mismatch but got %v", err)
	}
}

func TestGather(t *testing.T) {
	for _, size := range TestGroupSizes {
		for _, network := range TestNetworks {
			t.Run(fmt.Sprintf("Nodes=%d,Network=%s", size, network), func(t *testing.T) {
				var gathered [][]float64
				RunGroup(t, size, network, func(c *Comms) {
					res, err := Gather(c, 0, []float64{float64(c.Rank()), 1})
					if err != nil {
						t.Error(err)
					}
					if c.Rank() == 0 {
						gathered = res
					} else if res != nil {
						t.Errorf("rank %d got a gather result", c.Rank())
					}
				})
				assert.EQ(t, len(gathered), size)
				for r, vec := range gathered {
					expect.EQ(t, vec, []float64{float64(r), 1})
				}
			})
		}
	}
}

// TestRecvOrder makes sure that point-to-point messages
// arrive in send order even on a reordering network.
func TestRecvOrder(t *testing.T) {
	const count = 50
	RunGroup(t, 2, "random", func(c *Comms) {
		if c.Rank() == 0 {
			for i := 0; i < count; i++ {
				c.Send(1, TagData, i, 8)
			}
			return
		}
		for i := 0; i < count; i++ {
			env, err := c.Recv(0, TagData)
			if err != nil {
				t.Error(err)
				return
			}
			if env.Payload != i {
				t.Errorf("expected message %d but got %v", i, env.Payload)
				return
			}
		}
	})
}

func TestAbort(t *testing.T) {
	for _, network := range TestNetworks {
		t.Run(network, func(t *testing.T) {
			const size = 5
			errs := make([]error, size)
			RunGroup(t, size, network, func(c *Comms) {
				if c.Rank() == 3 {
					errs[3] = errors.E(errors.Integrity, "bad slice")
					c.Abort(errs[3])
					return
				}
				errs[c.Rank()] = Barrier(c)
			})
			for r, err := range errs {
				if r == 3 {
					continue
				}
				if !errors.Is(errors.Remote, err) {
					t.Errorf("rank %d: expected remote error but got %v", r, err)
				}
			}
		})
	}
}

func TestSum(t *testing.T) {
	loop := simulator.NewEventLoop()
	var res []float64
	loop.Go(func(h *simulator.Handle) {
		res = Sum(h, []float64{1, 2}, []float64{3, 4}, []float64{5, 6})
	})
	loop.MustRun()
	expect.EQ(t, res, []float64{9, 12})
	expect.EQ(t, loop.Time(), transform.FlopTime*4)
}

func TestRecvAnySource(t *testing.T) {
	const size = 5
	const perRank = 10
	RunGroup(t, size, "random", func(c *Comms) {
		if c.Rank() != 0 {
			for i := 0; i < perRank; i++ {
				c.Send(0, TagData, i, 8)
			}
			return
		}
		next := make([]int, size)
		for i := 0; i < (size-1)*perRank; i++ {
			env, err := c.Recv(AnySource, TagData)
			if err != nil {
				t.Error(err)
				return
			}
			if env.Payload != next[env.Source] {
				t.Errorf("rank %d: expected message %d but got %v", env.Source,
					next[env.Source], env.Payload)
				return
			}
			next[env.Source]++
		}
		for r := 1; r < size; r++ {
			if next[r] != perRank {
				t.Errorf("got %d messages from rank %d", next[r], r)
			}
		}
	})
}
