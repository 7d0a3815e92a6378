package icalc

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"ds-trapezoid.com/master/shared"
)

// Policy selects how start indices are derived from the per-worker shares.
type Policy int

const (
	// PolicyCumulative starts each worker where the previous one ended.
	PolicyCumulative Policy = iota
	// PolicyBaseStride starts worker i at baseShare*i. It only tiles the
	// range when the slice count divides evenly by the worker count.
	PolicyBaseStride
)

func (p Policy) String() string {
	switch p {
	case PolicyCumulative:
		return "cumulative"
	case PolicyBaseStride:
		return "base-stride"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy maps a config name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cumulative":
		return PolicyCumulative, nil
	case "base-stride", "stride":
		return PolicyBaseStride, nil
	}
	return PolicyCumulative, errors.Errorf("unknown partition policy %q", name)
}

// Shares splits slices across workers: everyone gets slices/workers and the
// remainder is handed out one slice at a time, round robin from worker 0.
func Shares(slices, workers int) []int {
	if workers < 1 {
		return nil
	}

	base := slices / workers
	extra := slices % workers

	shares := make([]int, workers)
	for i := range shares {
		shares[i] = base
	}
	for i := 0; extra > 0; i++ {
		shares[i%workers]++
		extra--
	}
	return shares
}

// Partition builds one WorkDescriptor per worker, indexed by worker
// (rank-1). Every descriptor carries its own copy of the bounds.
func Partition(req shared.IntegrationRequest, workers int, policy Policy) ([]shared.WorkDescriptor, error) {
	if workers < 1 {
		return nil, errors.Wrapf(ErrNoWorkers, "worker count %d", workers)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	shares := Shares(req.SliceCount, workers)
	base := req.SliceCount / workers
	width := req.SliceWidth()

	descs := make([]shared.WorkDescriptor, workers)
	next := 0
	for i, count := range shares {
		start := next
		if policy == PolicyBaseStride {
			start = base * i
		}
		descs[i] = shared.WorkDescriptor{
			LowerBound:         req.LowerBound,
			SliceWidth:         width,
			AssignedSliceCount: int32(count),
			StartSliceIndex:    int32(start),
		}
		next += count
	}
	return descs, nil
}

// CheckCoverage verifies that the descriptors, in worker order, cover
// [0, slices) with no gap and no overlap.
func CheckCoverage(descs []shared.WorkDescriptor, slices int) error {
	var next int64
	for i, d := range descs {
		start := int64(d.StartSliceIndex)
		switch {
		case start > next:
			return errors.Wrapf(ErrPartitionInvariant, "gap [%d,%d) before worker %d", next, start, i)
		case start < next:
			return errors.Wrapf(ErrPartitionInvariant, "worker %d overlaps [%d,%d)", i, start, next)
		}
		next = d.End()
	}
	if next != int64(slices) {
		return errors.Wrapf(ErrPartitionInvariant, "covered [0,%d), want [0,%d)", next, slices)
	}
	return nil
}
