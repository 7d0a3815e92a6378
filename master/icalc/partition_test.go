package icalc

import (
	"testing"

	"github.com/pkg/errors"

	"ds-trapezoid.com/master/shared"
)

func mustRequest(t *testing.T, lower, upper float64, slices int) shared.IntegrationRequest {
	t.Helper()
	req, err := shared.NewRequest(lower, upper, slices)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestSharesFairRemainder(t *testing.T) {
	for slices := 1; slices <= 40; slices++ {
		for workers := 1; workers <= 12; workers++ {
			shares := Shares(slices, workers)
			base, extra := slices/workers, slices%workers

			total := 0
			for i, s := range shares {
				want := base
				if i < extra {
					want++
				}
				if s != want {
					t.Fatalf("Shares(%d,%d)[%d] = %d, want %d", slices, workers, i, s, want)
				}
				total += s
			}
			if total != slices {
				t.Fatalf("Shares(%d,%d) sums to %d", slices, workers, total)
			}
		}
	}
}

func TestPartitionCoversRange(t *testing.T) {
	for slices := 1; slices <= 60; slices++ {
		for workers := 1; workers <= 16; workers++ {
			req := mustRequest(t, -2, 3, slices)
			descs, err := Partition(req, workers, PolicyCumulative)
			if err != nil {
				t.Fatal(err)
			}
			if len(descs) != workers {
				t.Fatalf("got %d descriptors, want %d", len(descs), workers)
			}
			if err := CheckCoverage(descs, slices); err != nil {
				t.Fatalf("slices=%d workers=%d: %v", slices, workers, err)
			}

			covered := make([]int, slices)
			for _, d := range descs {
				if d.LowerBound != req.LowerBound || d.SliceWidth != req.SliceWidth() {
					t.Fatalf("descriptor carries %g/%g, want %g/%g", d.LowerBound, d.SliceWidth, req.LowerBound, req.SliceWidth())
				}
				for i := d.StartSliceIndex; int64(i) < d.End(); i++ {
					covered[i]++
				}
			}
			for i, n := range covered {
				if n != 1 {
					t.Fatalf("slices=%d workers=%d: slice %d covered %d times", slices, workers, i, n)
				}
			}
		}
	}
}

func TestPartitionFewerSlicesThanWorkers(t *testing.T) {
	descs, err := Partition(mustRequest(t, 0, 1, 3), 5, PolicyCumulative)
	if err != nil {
		t.Fatal(err)
	}
	wantCounts := []int32{1, 1, 1, 0, 0}
	wantStarts := []int32{0, 1, 2, 3, 3}
	for i, d := range descs {
		if d.AssignedSliceCount != wantCounts[i] || d.StartSliceIndex != wantStarts[i] {
			t.Errorf("worker %d: got [%d,+%d), want [%d,+%d)", i, d.StartSliceIndex, d.AssignedSliceCount, wantStarts[i], wantCounts[i])
		}
	}
}

func TestPartitionNoWorkers(t *testing.T) {
	_, err := Partition(mustRequest(t, 0, 1, 10), 0, PolicyCumulative)
	if errors.Cause(err) != ErrNoWorkers {
		t.Fatalf("expected ErrNoWorkers, got %v", err)
	}
}

func TestBaseStrideMatchesWhenDivisible(t *testing.T) {
	req := mustRequest(t, 0, 10, 1_000_000)
	stride, err := Partition(req, 4, PolicyBaseStride)
	if err != nil {
		t.Fatal(err)
	}
	cumulative, _ := Partition(req, 4, PolicyCumulative)
	for i := range stride {
		if stride[i] != cumulative[i] {
			t.Errorf("worker %d: stride %+v, cumulative %+v", i, stride[i], cumulative[i])
		}
	}
	if err := CheckCoverage(stride, req.SliceCount); err != nil {
		t.Fatal(err)
	}
}

func TestBaseStrideSkewIsDetected(t *testing.T) {
	// 10 slices over 3 workers: shares 4,3,3 but starts 0,3,6
	descs, err := Partition(mustRequest(t, 0, 1, 10), 3, PolicyBaseStride)
	if err != nil {
		t.Fatal(err)
	}
	wantStarts := []int32{0, 3, 6}
	for i, d := range descs {
		if d.StartSliceIndex != wantStarts[i] {
			t.Errorf("worker %d start = %d, want %d", i, d.StartSliceIndex, wantStarts[i])
		}
	}
	if err := CheckCoverage(descs, 10); errors.Cause(err) != ErrPartitionInvariant {
		t.Fatalf("expected ErrPartitionInvariant, got %v", err)
	}
}

func TestCheckCoverageGap(t *testing.T) {
	descs := []shared.WorkDescriptor{
		{AssignedSliceCount: 2, StartSliceIndex: 0},
		{AssignedSliceCount: 2, StartSliceIndex: 3},
	}
	if err := CheckCoverage(descs, 5); errors.Cause(err) != ErrPartitionInvariant {
		t.Fatalf("expected ErrPartitionInvariant, got %v", err)
	}
	if err := CheckCoverage(descs[:1], 5); errors.Cause(err) != ErrPartitionInvariant {
		t.Fatalf("short cover: expected ErrPartitionInvariant, got %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{"": PolicyCumulative, "cumulative": PolicyCumulative, "Base-Stride": PolicyBaseStride}
	for name, want := range cases {
		got, err := ParsePolicy(name)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParsePolicy("random"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
