package collcomm

import (
	"fmt"

	"github.com/unixpickle/dist-reduce/simulator"
	"github.com/unixpickle/dist-reduce/transform"
)

// A ReduceFn folds the vectors of several ranks into one.
//
// Vectors are folded in argument order, so the same
// arguments always give a bit-identical result.
type ReduceFn func(h *simulator.Handle, vecs ...[]float64) []float64

// Sum adds vectors of equal length element-wise and
// charges one flop per addition to the caller's clock.
func Sum(h *simulator.Handle, vecs ...[]float64) []float64 {
	res := append([]float64(nil), vecs[0]...)
	for _, v := range vecs[1:] {
		if len(v) != len(res) {
			panic(fmt.Sprintf("cannot sum vectors of length %d and %d", len(res), len(v)))
		}
		for i, x := range v {
			res[i] += x
		}
	}
	h.Sleep(transform.FlopTime * float64((len(vecs)-1)*len(res)))
	return res
}
