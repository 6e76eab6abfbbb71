// Package transform implements the per-element kernel that
// workers apply before summing.
//
// Kernels are pure: the same input always produces the
// same output, whichever rank computes it.
package transform

import "math"

// FlopTime is the amount of virtual time it takes to
// perform a single floating-point operation.
const FlopTime = 1e-9

// A Kernel is a deterministic, compute-bound function from
// integers to floats.
type Kernel struct {
	// Name identifies the kernel in reports.
	Name string

	// Iterations is the number of arithmetic passes applied
	// to every element.
	Iterations int

	// FlopsPerIteration is the approximate number of
	// floating-point operations in one pass.
	FlopsPerIteration int

	step func(r float64, i int) float64
}

// Default is a kernel of bounded passes that keeps its
// state within roughly [-1000, 1002] regardless of input.
var Default = Kernel{
	Name:              "bounded",
	Iterations:        5000,
	FlopsPerIteration: 8,
	step: func(r float64, i int) float64 {
		r = r*1.0001 + math.Sin(r/100)
		r = math.Mod(r, 1000) + 1
		return r + math.Cos(float64(i))*0.01
	},
}

// Smooth is a heavier kernel whose passes keep the state
// in (0, 3) after the first iteration.
var Smooth = Kernel{
	Name:              "smooth",
	Iterations:        10000,
	FlopsPerIteration: 12,
	step: func(r float64, i int) float64 {
		r = math.Sqrt(r*r + 1)
		r = math.Sin(r)*math.Cos(r) + 1
		return math.Log(r+1) * math.Exp(r/1000)
	},
}

// Transform applies the Default kernel.
func Transform(value int) float64 {
	return Default.Apply(value)
}

// Apply runs the kernel on a value.
//
// Apply is total: a non-finite intermediate, which the
// built-in kernels never produce, collapses to zero rather
// than poisoning a sum.
func (k Kernel) Apply(value int) float64 {
	r := float64(value)
	for i := 0; i < k.Iterations; i++ {
		r = k.step(r, i)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return 0
		}
	}
	return r
}

// Cost returns the virtual time needed to apply the kernel
// to n elements.
func (k Kernel) Cost(n int) float64 {
	return float64(n) * float64(k.Iterations*k.FlopsPerIteration) * FlopTime
}

// WithIterations returns a copy of k with a different
// number of passes.
func (k Kernel) WithIterations(n int) Kernel {
	k.Iterations = n
	return k
}

// ByName looks up a built-in kernel.
func ByName(name string) (Kernel, bool) {
	for _, k := range []Kernel{Default, Smooth} {
		if k.Name == name {
			return k, true
		}
	}
	return Kernel{}, false
}
