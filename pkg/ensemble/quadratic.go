package ensemble

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// QuadraticForm evaluates xᵀ R x outcome by outcome, where x[i] is the i-th
// coordinate of the vector. The result is not floored.
func QuadraticForm(x []Vector, r mat.Symmetric) Vector {
	n := len(x)
	if n == 0 {
		return Vector{}
	}
	if r.SymmetricDim() != n {
		panic(fmt.Sprintf("ensemble: quadratic form dimension %d vs %d", r.SymmetricDim(), n))
	}

	paths := 1
	for _, xi := range x {
		paths = broadcastLen(Fill(paths, 0), xi)
	}

	xm := mat.NewDense(n, paths, nil)
	for i, xi := range x {
		xm.SetRow(i, xi.expand(paths))
	}

	var rx mat.Dense
	rx.Mul(r, xm)

	out := make([]float64, paths)
	for p := 0; p < paths; p++ {
		var acc float64
		for i := 0; i < n; i++ {
			acc += xm.At(i, p) * rx.At(i, p)
		}
		out[p] = acc
	}
	return Vector{data: out}
}
