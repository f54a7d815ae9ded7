// Package ensemble provides the path-vectorized number used throughout the margin
// calculation. A Vector carries one value per simulated outcome. A Vector with a
// single element is a scalar and broadcasts against a Vector of any size, so the
// same formula serves deterministic and Monte Carlo inputs.
//
// Vectors are immutable: every operation returns a fresh Vector and never writes
// into its operands.
package ensemble

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Vector is a path-vectorized value. The zero value is the scalar 0.
type Vector struct {
	data []float64
}

// Scalar returns a Vector that broadcasts x to every outcome.
func Scalar(x float64) Vector {
	return Vector{data: []float64{x}}
}

// New returns a Vector holding a copy of values. No values yields the scalar 0.
func New(values ...float64) Vector {
	if len(values) == 0 {
		return Vector{}
	}
	data := make([]float64, len(values))
	copy(data, values)
	return Vector{data: data}
}

// Fill returns a Vector of n outcomes all equal to x.
func Fill(n int, x float64) Vector {
	if n <= 1 {
		return Scalar(x)
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = x
	}
	return Vector{data: data}
}

// Len returns the number of outcomes. Scalars report 1.
func (v Vector) Len() int {
	if len(v.data) == 0 {
		return 1
	}
	return len(v.data)
}

// IsScalar reports whether v broadcasts.
func (v Vector) IsScalar() bool {
	return len(v.data) <= 1
}

// At returns the value for outcome i.
func (v Vector) At(i int) float64 {
	switch len(v.data) {
	case 0:
		return 0
	case 1:
		return v.data[0]
	}
	return v.data[i]
}

// Values returns a copy of the outcome values.
func (v Vector) Values() []float64 {
	if len(v.data) == 0 {
		return []float64{0}
	}
	out := make([]float64, len(v.data))
	copy(out, v.data)
	return out
}

// Float returns the value of a scalar Vector. ok is false for multi-outcome vectors.
func (v Vector) Float() (value float64, ok bool) {
	if !v.IsScalar() {
		return 0, false
	}
	return v.At(0), true
}

// Compatible reports whether a and b can be combined elementwise.
func Compatible(a, b Vector) bool {
	return a.IsScalar() || b.IsScalar() || len(a.data) == len(b.data)
}

// broadcastLen returns the outcome count of combining a and b.
// Mismatched ensembles are a programming error; gradients are validated before use.
func broadcastLen(a, b Vector) int {
	if !Compatible(a, b) {
		panic(fmt.Sprintf("ensemble: size mismatch %d vs %d", len(a.data), len(b.data)))
	}
	if a.Len() > b.Len() {
		return a.Len()
	}
	return b.Len()
}

// expand returns a fresh slice of n values.
func (v Vector) expand(n int) []float64 {
	out := make([]float64, n)
	if v.IsScalar() {
		x := v.At(0)
		for i := range out {
			out[i] = x
		}
		return out
	}
	copy(out, v.data)
	return out
}

// Map applies fn to every outcome.
func (v Vector) Map(fn func(float64) float64) Vector {
	out := v.expand(v.Len())
	for i, x := range out {
		out[i] = fn(x)
	}
	return Vector{data: out}
}

// Zip applies fn outcome by outcome to a and b.
func Zip(a, b Vector, fn func(x, y float64) float64) Vector {
	n := broadcastLen(a, b)
	out := make([]float64, n)
	for i := range out {
		out[i] = fn(a.At(i), b.At(i))
	}
	return Vector{data: out}
}

// Add returns v + w.
func (v Vector) Add(w Vector) Vector {
	n := broadcastLen(v, w)
	out := v.expand(n)
	if w.IsScalar() {
		floats.AddConst(w.At(0), out)
	} else {
		floats.Add(out, w.data)
	}
	return Vector{data: out}
}

// Sub returns v - w.
func (v Vector) Sub(w Vector) Vector {
	n := broadcastLen(v, w)
	out := v.expand(n)
	if w.IsScalar() {
		floats.AddConst(-w.At(0), out)
	} else {
		floats.Sub(out, w.data)
	}
	return Vector{data: out}
}

// Mul returns v * w.
func (v Vector) Mul(w Vector) Vector {
	n := broadcastLen(v, w)
	out := v.expand(n)
	if w.IsScalar() {
		floats.Scale(w.At(0), out)
	} else {
		floats.Mul(out, w.data)
	}
	return Vector{data: out}
}

// Div returns v / w with IEEE semantics per outcome.
func (v Vector) Div(w Vector) Vector {
	n := broadcastLen(v, w)
	out := v.expand(n)
	floats.Div(out, w.expand(n))
	return Vector{data: out}
}

// Scale returns v * f.
func (v Vector) Scale(f float64) Vector {
	out := v.expand(v.Len())
	floats.Scale(f, out)
	return Vector{data: out}
}

// Neg returns -v.
func (v Vector) Neg() Vector {
	return v.Scale(-1)
}

// Abs returns |v|.
func (v Vector) Abs() Vector {
	return v.Map(math.Abs)
}

// Square returns v².
func (v Vector) Square() Vector {
	return v.Map(func(x float64) float64 { return x * x })
}

// Sqrt returns √v. Negative outcomes yield NaN; callers floor first.
func (v Vector) Sqrt() Vector {
	return v.Map(math.Sqrt)
}

// Min returns the outcome-wise minimum of a and b.
func Min(a, b Vector) Vector {
	return Zip(a, b, math.Min)
}

// Max returns the outcome-wise maximum of a and b.
func Max(a, b Vector) Vector {
	return Zip(a, b, math.Max)
}

// Clamp caps v into [lo, hi] outcome by outcome.
func (v Vector) Clamp(lo, hi Vector) Vector {
	return Min(Max(v, lo), hi)
}

// FloorZero replaces negative outcomes by 0 and reports how many were replaced.
func (v Vector) FloorZero() (Vector, int) {
	floored := 0
	out := v.Map(func(x float64) float64 {
		if x < 0 {
			floored++
			return 0
		}
		return x
	})
	return out, floored
}

// Sum adds vs. An empty argument list yields the scalar 0.
func Sum(vs ...Vector) Vector {
	var total Vector
	for _, v := range vs {
		total = total.Add(v)
	}
	return total
}

// Equal reports whether a and b hold bit-identical outcomes after broadcasting.
func Equal(a, b Vector) bool {
	if !Compatible(a, b) {
		return false
	}
	n := broadcastLen(a, b)
	for i := 0; i < n; i++ {
		if math.Float64bits(a.At(i)) != math.Float64bits(b.At(i)) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (v Vector) String() string {
	if v.IsScalar() {
		return fmt.Sprintf("%g", v.At(0))
	}
	return fmt.Sprintf("%v", v.data)
}

// MarshalJSON encodes scalars as a number and ensembles as an array.
func (v Vector) MarshalJSON() ([]byte, error) {
	if v.IsScalar() {
		return json.Marshal(v.At(0))
	}
	return json.Marshal(v.data)
}

// UnmarshalJSON accepts either a number or an array of numbers.
func (v *Vector) UnmarshalJSON(b []byte) error {
	var x float64
	if err := json.Unmarshal(b, &x); err == nil {
		*v = Scalar(x)
		return nil
	}
	var xs []float64
	if err := json.Unmarshal(b, &xs); err != nil {
		return fmt.Errorf("ensemble: expected number or array: %w", err)
	}
	*v = New(xs...)
	return nil
}
