// Package lagrange builds and evaluates the interpolating polynomials that
// serve as the engine's hiding lookup tables. Interpolation only happens at
// compile time; the engine ships with coefficient vectors and evaluates.
package lagrange

import (
	"fmt"

	"github.com/ajiang-xyz/zekaengine/pkg/field"
)

// Polynomial is a coefficient vector over F_p, lowest degree first. Every
// coefficient is in [0, p).
type Polynomial []field.Element

// Interpolate returns the unique polynomial of degree < len(points)
// interpolating the given (x, y) pairs. The x values must be pairwise
// distinct; a duplicate makes some basis denominator zero and is reported as
// an error rather than a panic, since duplicates reaching this layer mean a
// malformed rubric.
func Interpolate(xs, ys []field.Element, p *field.Prime) (Polynomial, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("lagrange: %d x values but %d y values", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("lagrange: cannot interpolate zero points")
	}

	k := len(xs)

	// Master polynomial M(x) = product of (x - x_j). Each basis numerator
	// is then a single synthetic division M / (x - x_i), which keeps the
	// whole interpolation quadratic; the naive per-basis product is cubic
	// and collapses under automaton-sized point sets.
	master := make(Polynomial, 1, k+1)
	master[0] = p.One()
	for _, x := range xs {
		master = mul(master, Polynomial{p.Zero().Sub(x), p.One()}, p)
	}

	result := make(Polynomial, k)
	for i := range result {
		result[i] = p.Zero()
	}

	quotient := make(Polynomial, k)
	for i := 0; i < k; i++ {
		// Divide M by (x - x_i): quotient coefficients from the top down.
		quotient[k-1] = master[k]
		for d := k - 1; d > 0; d-- {
			quotient[d-1] = master[d].Add(xs[i].Mul(quotient[d]))
		}

		// The denominator product over j != i equals the quotient
		// evaluated at x_i.
		denominator := quotient.Eval(xs[i], p)
		inv, ok := denominator.Inverse()
		if !ok {
			return nil, fmt.Errorf("lagrange: duplicate x value at index %d", i)
		}

		scale := ys[i].Mul(inv)
		for c := range quotient {
			result[c] = result[c].Add(quotient[c].Mul(scale))
		}
	}

	return result, nil
}

// Eval evaluates the polynomial at x using Horner's rule.
func (poly Polynomial) Eval(x field.Element, p *field.Prime) field.Element {
	if len(poly) == 0 {
		return p.Zero()
	}
	acc := poly[len(poly)-1]
	for i := len(poly) - 2; i >= 0; i-- {
		acc = acc.Mul(x).Add(poly[i])
	}
	return acc
}

func mul(a, b Polynomial, p *field.Prime) Polynomial {
	result := make(Polynomial, len(a)+len(b)-1)
	for i := range result {
		result[i] = p.Zero()
	}
	for i, ca := range a {
		for j, cb := range b {
			result[i+j] = result[i+j].Add(ca.Mul(cb))
		}
	}
	return result
}

