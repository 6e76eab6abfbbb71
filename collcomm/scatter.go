package collcomm

import (
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/spaolacci/murmur3"
)

// IntSize is the simulated wire size of one integer.
const IntSize = 8

// A Chunk is the part of a scattered array destined for
// one rank, along with the metadata needed to check it.
type Chunk struct {
	Offset   int
	Count    int
	Checksum uint32
	Data     []int
}

// Size returns the simulated wire size of the chunk.
func (c *Chunk) Size() float64 {
	return float64(len(c.Data)*IntSize + 3*IntSize)
}

// Verify checks that the chunk's data agrees with its
// count and checksum.
func (c *Chunk) Verify() error {
	if len(c.Data) != c.Count {
		return errors.E(errors.Integrity,
			fmt.Sprintf("chunk at offset %d declares %d elements but carries %d",
				c.Offset, c.Count, len(c.Data)))
	}
	if sum := Checksum(c.Data); sum != c.Checksum {
		return errors.E(errors.Integrity,
			fmt.Sprintf("computed checksum %x but expected checksum %x", sum, c.Checksum))
	}
	return nil
}

// Checksum hashes a slice of integers.
func Checksum(data []int) uint32 {
	buf := make([]byte, len(data)*IntSize)
	for i, x := range data {
		binary.LittleEndian.PutUint64(buf[i*IntSize:], uint64(x))
	}
	return murmur3.Sum32(buf)
}

// Scatterv sends data[displs[r]:displs[r]+counts[r]] from
// root to every rank r and returns the caller's part.
//
// Only the root's data, counts, and displs are used.
// The root keeps a copy of its own part rather than
// sending to itself.
// A chunk whose contents do not match its metadata yields
// an errors.Integrity error on the receiving rank.
func Scatterv(c *Comms, root int, data []int, counts, displs []int) ([]int, error) {
	if c.Rank() != root {
		env, err := c.Recv(root, tagScatter)
		if err != nil {
			return nil, err
		}
		chunk := env.Payload.(*Chunk)
		if err := chunk.Verify(); err != nil {
			return nil, err
		}
		return chunk.Data, nil
	}

	if len(counts) != c.Size() || len(displs) != c.Size() {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("scatterv: %d counts and %d displacements for %d ranks",
				len(counts), len(displs), c.Size()))
	}
	for r := range counts {
		if counts[r] < 0 || displs[r] < 0 || displs[r]+counts[r] > len(data) {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("scatterv: rank %d range [%d, %d) outside of %d elements",
					r, displs[r], displs[r]+counts[r], len(data)))
		}
	}

	var dsts []int
	var payloads []interface{}
	var sizes []float64
	for r := range counts {
		if r == root {
			continue
		}
		part := append([]int(nil), data[displs[r]:displs[r]+counts[r]]...)
		chunk := &Chunk{
			Offset:   displs[r],
			Count:    counts[r],
			Checksum: Checksum(part),
			Data:     part,
		}
		dsts = append(dsts, r)
		payloads = append(payloads, chunk)
		sizes = append(sizes, chunk.Size())
	}
	c.sendMany(dsts, tagScatter, payloads, sizes)

	return append([]int(nil), data[displs[root]:displs[root]+counts[root]]...), nil
}
