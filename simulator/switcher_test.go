package simulator

import (
	"math"
	"testing"
)

func TestGreedyDropSwitcher(t *testing.T) {
	switcher := &GreedyDropSwitcher{
		SendRates: []float64{1.0, 2.0, 3.0},
		RecvRates: []float64{2.0, 1.0, 1.0},
	}
	cases := []struct {
		in  []float64
		out []float64
	}{
		{
			in:  []float64{0, 1, 0, 0, 0, 1, 1, 0, 0},
			out: []float64{0, 1, 0, 0, 0, 1, 2, 0, 0},
		},
		{
			in:  []float64{1, 0, 0, 1, 0, 0, 1, 0, 0},
			out: []float64{1.0 / 3, 0, 0, 2.0 / 3, 0, 0, 1, 0, 0},
		},
		{
			in: []float64{1, 1, 1, 1, 1, 1, 1, 1, 1},
			out: []float64{
				1.0 / 3, 1.0 / 6, 1.0 / 6,
				2.0 / 3, 2.0 / 6, 2.0 / 6,
				1, 3.0 / 6, 3.0 / 6,
			},
		},
	}
	for i, c := range cases {
		mat := NewConnMat(3)
		for j, x := range c.in {
			mat.Set(j/3, j%3, x)
		}
		switcher.SwitchedRates(mat)
		for j, expected := range c.out {
			if actual := mat.Get(j/3, j%3); math.Abs(actual-expected) > 0.001 {
				t.Errorf("case %d entry %d: expected %f but got %f", i, j, expected, actual)
			}
		}
	}
}

func TestConnMatSums(t *testing.T) {
	mat := NewConnMat(4)
	mat.Set(1, 2, 3.0)
	mat.Set(0, 2, 2.0)
	mat.Set(2, 3, 4.0)
	for i, expected := range []float64{0, 0, 5, 4} {
		if res := mat.SumDest(i); res != expected {
			t.Errorf("column %d: expected sum %f but got %f", i, expected, res)
		}
	}
	for i, expected := range []float64{2, 3, 4, 0} {
		if res := mat.SumSource(i); res != expected {
			t.Errorf("row %d: expected sum %f but got %f", i, expected, res)
		}
	}
}

func TestConnMatScales(t *testing.T) {
	mat := NewConnMat(4)
	mat.Set(1, 2, 3.0)
	mat.Set(1, 3, 5.0)
	mat.Set(0, 2, 2.0)
	mat.Set(2, 3, 4.0)

	mat.ScaleSource(1, 2.0)
	for i, expected := range []float64{0, 0, 6, 10} {
		if res := mat.Get(1, i); res != expected {
			t.Errorf("column %d: expected %f but got %f", i, expected, res)
		}
	}

	mat.ScaleDest(3, 3.0)
	for i, expected := range []float64{0, 30, 12, 0} {
		if res := mat.Get(i, 3); res != expected {
			t.Errorf("row %d: expected %f but got %f", i, expected, res)
		}
	}
}

func TestConnMatBounds(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewConnMat(2).Get(2, 0)
}
