package icalc

import (
	"math"
	"math/big"

	"github.com/pkg/errors"

	"ds-trapezoid.com/master/shared"
)

// ErrNonFinite is returned when the integrand is not finite at a boundary.
var ErrNonFinite = errors.New("integrand is not finite")

// Reducer accumulates partial sums in the order they are added and applies
// the trapezoidal boundary term when the final value is read.
type Reducer struct {
	req  shared.IntegrationRequest
	f    shared.Integrand
	prec uint
	sum  *big.Float
	n    int
}

func NewReducer(req shared.IntegrationRequest, f shared.Integrand, prec uint) *Reducer {
	if prec == 0 {
		prec = shared.DefaultPrecision
	}
	return &Reducer{
		req:  req,
		f:    f,
		prec: prec,
		sum:  new(big.Float).SetPrec(prec),
	}
}

// Add folds one worker's partial sum into the accumulator.
func (r *Reducer) Add(partial *big.Float) {
	r.sum.Add(r.sum, partial)
	r.n++
}

// Count is the number of partials added so far.
func (r *Reducer) Count() int { return r.n }

// Sum returns a copy of the plain sum of partials.
func (r *Reducer) Sum() *big.Float {
	return new(big.Float).SetPrec(r.prec).Set(r.sum)
}

// Final returns width * (Σ partials + (f(lower)+f(upper))/2). The
// accumulator is not modified, so the boundary term is applied once per
// result no matter how often Final is called.
func (r *Reducer) Final() (*big.Float, error) {
	a, b := r.f(r.req.LowerBound), r.f(r.req.UpperBound)
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return nil, errors.Wrapf(ErrNonFinite, "f(%g) = %g", r.req.LowerBound, a)
	}
	if math.IsNaN(b) || math.IsInf(b, 0) {
		return nil, errors.Wrapf(ErrNonFinite, "f(%g) = %g", r.req.UpperBound, b)
	}

	fa := new(big.Float).SetPrec(r.prec).SetFloat64(a)
	fb := new(big.Float).SetPrec(r.prec).SetFloat64(b)

	boundary := new(big.Float).SetPrec(r.prec).Add(fa, fb)
	boundary.Quo(boundary, big.NewFloat(2))

	total := new(big.Float).SetPrec(r.prec).Add(r.sum, boundary)
	return total.Mul(total, new(big.Float).SetPrec(r.prec).SetFloat64(r.req.SliceWidth())), nil
}
