package pipeline

import "github.com/unixpickle/dist-reduce/transform"

// ReduceLocal applies k to every element of slice, in
// index order, and sums the results.
//
// An empty slice sums to zero.
func ReduceLocal(slice []int, k transform.Kernel) float64 {
	var sum float64
	for _, x := range slice {
		sum += k.Apply(x)
	}
	return sum
}

// Direct computes the global result of a single-worker run.
// It involves no group and no messages.
func Direct(input []int, k transform.Kernel) float64 {
	return ReduceLocal(input, k)
}
