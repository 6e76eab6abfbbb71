// Package collcomm implements a process group on top of a
// simulated network, along with the collective operations
// needed to scatter work and combine results.
package collcomm

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/unixpickle/dist-reduce/simulator"
	"github.com/unixpickle/essentials"
)

// AnySource may be passed to Recv to accept a message from
// any rank.
const AnySource = -1

// A Tag distinguishes the messages of different operations
// between the same pair of ranks.
type Tag int

const (
	// TagData is free for point-to-point use by callers.
	TagData Tag = iota
	tagScatter
	tagGather
	tagReduce
	tagBarrierUp
	tagBarrierDown
	tagAbort
)

// envelopeOverhead is the simulated size, in bytes, of the
// routing information carried by every message.
const envelopeOverhead = 16

// An Envelope is the unit of point-to-point communication.
type Envelope struct {
	Source  int
	Tag     Tag
	Payload interface{}

	// seq orders messages sent with the same tag between
	// the same pair of ranks, since networks may reorder
	// them.
	seq int
}

type seqKey struct {
	peer int
	tag  Tag
}

// Comms is one rank's view of a process group.
//
// Each rank's main Goroutine owns its Comms object.
// Every rank must call collective operations in the same
// order for them to complete.
type Comms struct {
	// Handle is the rank's main Goroutine's handle on the
	// event loop.
	Handle *simulator.Handle

	// Port is the current rank's port.
	Port *simulator.Port

	// Ports contains ports to all the ranks in the group,
	// including the current one, indexed by rank.
	Ports []*simulator.Port

	// Network is the network connecting the ranks.
	Network simulator.Network

	rank    int
	sendSeq map[seqKey]int
	recvSeq map[seqKey]int
	pending []*Envelope
	aborted error
}

// NewComms creates the view of the group for one rank.
func NewComms(h *simulator.Handle, network simulator.Network, ports []*simulator.Port,
	rank int) *Comms {
	if rank < 0 || rank >= len(ports) {
		panic("rank out of range")
	}
	return &Comms{
		Handle:  h,
		Port:    ports[rank],
		Ports:   ports,
		Network: network,
		rank:    rank,
		sendSeq: map[seqKey]int{},
		recvSeq: map[seqKey]int{},
	}
}

// SpawnComms creates Comms objects for every node in a
// network and calls f for each node in its own Goroutine.
//
// The rank of each node is its index in nodes.
func SpawnComms(loop *simulator.EventLoop, network simulator.Network, nodes []*simulator.Node,
	f func(c *Comms)) {
	ports := make([]*simulator.Port, len(nodes))
	for i, node := range nodes {
		ports[i] = node.Port(loop)
	}
	for i := range nodes {
		rank := i
		loop.Go(func(h *simulator.Handle) {
			f(NewComms(h, network, ports, rank))
		})
	}
}

// Rank gets the current rank.
func (c *Comms) Rank() int {
	return c.rank
}

// Size gets the number of ranks in the group.
func (c *Comms) Size() int {
	return len(c.Ports)
}

// Time gets the current virtual time.
func (c *Comms) Time() float64 {
	return c.Handle.Time()
}

// Send schedules a payload of the given size (in bytes) to
// be delivered to rank dst.
//
// The payload must not be modified after it is sent.
func (c *Comms) Send(dst int, tag Tag, payload interface{}, size float64) {
	c.Network.Send(c.Handle, c.message(dst, tag, payload, size))
}

// sendMany is like Send for a batch of destinations, which
// lets the network plan all of the deliveries at once.
func (c *Comms) sendMany(dsts []int, tag Tag, payloads []interface{}, sizes []float64) {
	if len(dsts) == 0 {
		return
	}
	msgs := make([]*simulator.Message, len(dsts))
	for i, dst := range dsts {
		msgs[i] = c.message(dst, tag, payloads[i], sizes[i])
	}
	c.Network.Send(c.Handle, msgs...)
}

func (c *Comms) message(dst int, tag Tag, payload interface{}, size float64) *simulator.Message {
	if dst == c.rank {
		panic("send to self")
	}
	key := seqKey{peer: dst, tag: tag}
	env := &Envelope{Source: c.rank, Tag: tag, Payload: payload, seq: c.sendSeq[key]}
	c.sendSeq[key]++
	return &simulator.Message{
		Source:  c.Port,
		Dest:    c.Ports[dst],
		Message: env,
		Size:    size + envelopeOverhead,
	}
}

// Recv blocks until a message with the given tag arrives
// from rank src (or from any rank, for AnySource).
//
// Messages from one rank with one tag are received in the
// order they were sent.
// If any rank has called Abort, Recv fails with an
// errors.Remote error.
func (c *Comms) Recv(src int, tag Tag) (*Envelope, error) {
	for {
		if c.aborted != nil {
			return nil, c.aborted
		}
		if env := c.takePending(src, tag); env != nil {
			return env, nil
		}
		env := c.Port.Recv(c.Handle).Message.(*Envelope)
		if env.Tag == tagAbort {
			c.aborted = errors.E(errors.Remote,
				fmt.Sprintf("rank %d aborted the group: %v", env.Source, env.Payload))
			continue
		}
		c.pending = append(c.pending, env)
	}
}

func (c *Comms) takePending(src int, tag Tag) *Envelope {
	for i, env := range c.pending {
		if env.Tag != tag || (src != AnySource && env.Source != src) {
			continue
		}
		key := seqKey{peer: env.Source, tag: tag}
		if env.seq != c.recvSeq[key] {
			continue
		}
		c.recvSeq[key]++
		essentials.OrderedDelete(&c.pending, i)
		return env
	}
	return nil
}

// Abort tells every other rank that this rank failed with
// err.
//
// Peers blocked in (or later entering) any receive will
// fail instead of waiting forever.
// Subsequent receives on c fail with err.
func (c *Comms) Abort(err error) {
	if c.aborted != nil {
		return
	}
	c.aborted = err
	var dsts []int
	for rank := range c.Ports {
		if rank != c.rank {
			dsts = append(dsts, rank)
		}
	}
	payloads := make([]interface{}, len(dsts))
	sizes := make([]float64, len(dsts))
	for i := range dsts {
		payloads[i] = err.Error()
	}
	c.sendMany(dsts, tagAbort, payloads, sizes)
}
