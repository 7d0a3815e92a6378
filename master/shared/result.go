package shared

import (
	"math/big"

	"github.com/pkg/errors"
)

// DefaultPrecision is the mantissa precision, in bits, of partial sums and
// of the coordinator's accumulator.
const DefaultPrecision uint = 256

// EncodePartial serializes a worker's partial sum. The big.Float gob
// encoding keeps the full precision of the worker's accumulator.
func EncodePartial(sum *big.Float) ([]byte, error) {
	buf, err := sum.GobEncode()
	if err != nil {
		return nil, errors.Wrap(err, "encode partial result")
	}
	return buf, nil
}

// DecodePartial is the inverse of EncodePartial.
func DecodePartial(data []byte) (*big.Float, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrMalformed, "empty partial result")
	}
	sum := new(big.Float)
	if err := sum.GobDecode(data); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "partial result: %v", err)
	}
	if sum.IsInf() {
		return nil, errors.Wrap(ErrMalformed, "infinite partial result")
	}
	return sum, nil
}
