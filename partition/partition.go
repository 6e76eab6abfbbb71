// Package partition splits an array of N elements into
// contiguous ranges, one per worker.
package partition

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
)

// A Policy decides which workers absorb the remainder when
// N is not a multiple of the number of workers.
type Policy int

const (
	// Trailing gives every worker N/W elements and the
	// last worker the N%W extra ones.
	Trailing Policy = iota

	// Leading gives one extra element to each of the first
	// N%W workers.
	Leading
)

// ParsePolicy parses the name of a policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "trailing":
		return Trailing, nil
	case "leading":
		return Leading, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown partition policy %q", name))
}

// String returns the policy's name.
func (p Policy) String() string {
	switch p {
	case Trailing:
		return "trailing"
	case Leading:
		return "leading"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// A Range is a contiguous run of elements assigned to one
// worker.
type Range struct {
	Offset int
	Count  int
}

// End returns the index just past the range.
func (r Range) End() int {
	return r.Offset + r.Count
}

// A Plan assigns a Range to every rank.
type Plan []Range

// Compute partitions n elements across w workers.
//
// n may be smaller than w, in which case some workers get
// empty ranges. w < 1 and n < 0 are rejected.
func Compute(n, w int, p Policy) (Plan, error) {
	if w < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("cannot partition across %d workers", w))
	}
	if n < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("cannot partition %d elements", n))
	}
	base, rem := n/w, n%w
	plan := make(Plan, w)
	offset := 0
	for r := range plan {
		count := base
		switch p {
		case Trailing:
			if r == w-1 {
				count += rem
			}
		case Leading:
			if r < rem {
				count++
			}
		default:
			return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown partition policy %d", int(p)))
		}
		plan[r] = Range{Offset: offset, Count: count}
		offset += count
	}
	return plan, nil
}

// Counts returns the number of elements of every rank.
func (p Plan) Counts() []int {
	res := make([]int, len(p))
	for i, r := range p {
		res[i] = r.Count
	}
	return res
}

// Offsets returns the first index of every rank.
func (p Plan) Offsets() []int {
	res := make([]int, len(p))
	for i, r := range p {
		res[i] = r.Offset
	}
	return res
}

// Total returns the number of elements covered.
func (p Plan) Total() int {
	var total int
	for _, r := range p {
		total += r.Count
	}
	return total
}

// FixedStride reports whether every range but the last has
// the same length, which is what a fixed-stride transfer
// requires, and returns that length.
//
// A single-rank plan has a stride equal to its length.
func (p Plan) FixedStride() (stride int, ok bool) {
	if len(p) == 0 {
		return 0, false
	}
	stride = p[0].Count
	for i, r := range p[:len(p)-1] {
		if r.Count != stride || r.Offset != i*stride {
			return 0, false
		}
	}
	return stride, p[len(p)-1].Offset == (len(p)-1)*stride
}

// Check verifies that the plan covers exactly n elements
// with contiguous, non-negative ranges.
func (p Plan) Check(n int) error {
	offset := 0
	for i, r := range p {
		if r.Count < 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("rank %d has negative count %d", i, r.Count))
		}
		if r.Offset != offset {
			return errors.E(errors.Invalid,
				fmt.Sprintf("rank %d starts at %d but previous range ends at %d", i, r.Offset, offset))
		}
		offset = r.End()
	}
	if offset != n {
		return errors.E(errors.Invalid, fmt.Sprintf("plan covers %d of %d elements", offset, n))
	}
	return nil
}

// Describe renders one line per rank, suitable for logging
// the distribution plan.
func (p Plan) Describe() []string {
	lines := make([]string, len(p))
	for i, r := range p {
		if r.Count == 0 {
			lines[i] = fmt.Sprintf("rank %d: 0 elements", i)
			continue
		}
		lines[i] = fmt.Sprintf("rank %d: %d elements (indices %d to %d)", i, r.Count, r.Offset, r.End()-1)
	}
	return lines
}
