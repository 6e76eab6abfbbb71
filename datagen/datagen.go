// Package datagen produces the reproducible input arrays
// that the coordinator distributes.
package datagen

import (
	"fmt"
	"math/rand"

	"github.com/grailbio/base/errors"
)

const (
	// DefaultSeed is the seed used when none is given.
	DefaultSeed = 42

	// DefaultSize is the default number of elements.
	DefaultSize = 1000

	// MinValue and MaxValue bound every generated value.
	MinValue = 1
	MaxValue = 100
)

// Generate returns n values in [MinValue, MaxValue] drawn
// from a source seeded with seed.
//
// The same n and seed always produce the same array, and a
// shorter array is a prefix of a longer one.
func Generate(n int, seed int64) ([]int, error) {
	if n < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("cannot generate %d values", n))
	}
	r := rand.New(rand.NewSource(seed))
	res := make([]int, n)
	for i := range res {
		res[i] = MinValue + r.Intn(MaxValue-MinValue+1)
	}
	return res, nil
}
