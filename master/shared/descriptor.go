package shared

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// DescriptorSize is the length of an encoded WorkDescriptor.
const DescriptorSize = 24

// ErrMalformed is returned when a payload does not decode.
var ErrMalformed = errors.New("malformed payload")

// WorkDescriptor tells one worker which contiguous slice range it owns.
type WorkDescriptor struct {
	LowerBound         float64 // global lower bound of the interval
	SliceWidth         float64 // global slice width
	AssignedSliceCount int32   // number of slices to process
	StartSliceIndex    int32   // first global slice index
}

// End returns the index one past the last slice of the range.
func (d WorkDescriptor) End() int64 {
	return int64(d.StartSliceIndex) + int64(d.AssignedSliceCount)
}

// MarshalBinary encodes d as the fixed little-endian record
// {f64 lower; f64 width; i32 count; i32 start}.
func (d WorkDescriptor) MarshalBinary() ([]byte, error) {
	buf := make([]byte, DescriptorSize)
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(d.LowerBound))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(d.SliceWidth))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(d.AssignedSliceCount))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(d.StartSliceIndex))
	return buf, nil
}

// UnmarshalBinary decodes a record written by MarshalBinary.
func (d *WorkDescriptor) UnmarshalBinary(data []byte) error {
	if len(data) != DescriptorSize {
		return errors.Wrapf(ErrMalformed, "descriptor is %d bytes, want %d", len(data), DescriptorSize)
	}

	desc := WorkDescriptor{
		LowerBound:         math.Float64frombits(binary.LittleEndian.Uint64(data[0:8])),
		SliceWidth:         math.Float64frombits(binary.LittleEndian.Uint64(data[8:16])),
		AssignedSliceCount: int32(binary.LittleEndian.Uint32(data[16:20])),
		StartSliceIndex:    int32(binary.LittleEndian.Uint32(data[20:24])),
	}
	if desc.AssignedSliceCount < 0 || desc.StartSliceIndex < 0 {
		return errors.Wrapf(ErrMalformed, "negative range [%d,+%d)", desc.StartSliceIndex, desc.AssignedSliceCount)
	}
	if math.IsNaN(desc.LowerBound) || math.IsInf(desc.LowerBound, 0) ||
		math.IsNaN(desc.SliceWidth) || math.IsInf(desc.SliceWidth, 0) {
		return errors.Wrap(ErrMalformed, "non-finite bound or width")
	}

	*d = desc
	return nil
}
