// Package shared holds what the coordinator and the workers agree on: the
// integration request, the work descriptor wire record and the encoding of
// partial results.
package shared

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidRequest marks an IntegrationRequest that cannot be partitioned.
var ErrInvalidRequest = errors.New("invalid integration request")

// Integrand is the function being integrated.
type Integrand func(x float64) float64

// IntegrationRequest is the immutable definition of one run.
type IntegrationRequest struct {
	LowerBound float64
	UpperBound float64
	SliceCount int
}

// NewRequest validates and returns an IntegrationRequest.
func NewRequest(lower, upper float64, slices int) (IntegrationRequest, error) {
	r := IntegrationRequest{LowerBound: lower, UpperBound: upper, SliceCount: slices}
	return r, r.Validate()
}

// Validate reports whether the request can be partitioned and sent.
func (r IntegrationRequest) Validate() error {
	if math.IsNaN(r.LowerBound) || math.IsInf(r.LowerBound, 0) ||
		math.IsNaN(r.UpperBound) || math.IsInf(r.UpperBound, 0) {
		return errors.Wrap(ErrInvalidRequest, "bounds must be finite")
	}
	if r.UpperBound == r.LowerBound {
		return errors.Wrapf(ErrInvalidRequest, "empty interval [%g,%g]", r.LowerBound, r.UpperBound)
	}
	if r.SliceCount < 1 {
		return errors.Wrapf(ErrInvalidRequest, "slice count %d must be positive", r.SliceCount)
	}
	if r.SliceCount > math.MaxInt32 {
		return errors.Wrapf(ErrInvalidRequest, "slice count %d does not fit the descriptor", r.SliceCount)
	}
	return nil
}

// SliceWidth is the width of one slice. It is negative when the bounds are
// reversed, which flips the sign of the integral.
func (r IntegrationRequest) SliceWidth() float64 {
	return (r.UpperBound - r.LowerBound) / float64(r.SliceCount)
}
