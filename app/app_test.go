package app

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"ds-trapezoid.com/cluster"
	"ds-trapezoid.com/master/icalc"
	"ds-trapezoid.com/master/shared"
	"ds-trapezoid.com/worker/calculator"
)

func referenceOptions(t *testing.T, slices int) Options {
	t.Helper()
	req, err := shared.NewRequest(0, 10, slices)
	if err != nil {
		t.Fatal(err)
	}
	f, err := calculator.Lookup(calculator.Reference)
	if err != nil {
		t.Fatal(err)
	}
	return Options{Request: req, Integrand: f, BarrierTimeout: 5 * time.Second}
}

func TestRunLocal(t *testing.T) {
	opts := referenceOptions(t, 1_000_000)

	var seen *icalc.Coordinator
	opts.OnCoordinator = func(c *icalc.Coordinator) { seen = c }

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := RunLocal(ctx, 4, opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Float64(); math.Abs(got-1000.0/3) > 1e-6 {
		t.Errorf("integral = %.10f", got)
	}
	if seen == nil || seen.Status().Phase != icalc.PhaseDone {
		t.Error("coordinator hook not called or run not done")
	}
}

func TestRunLocalWithoutWorkers(t *testing.T) {
	_, err := RunLocal(context.Background(), 0, referenceOptions(t, 10))
	if errors.Cause(err) != icalc.ErrNoWorkers {
		t.Errorf("err = %v", err)
	}
}

func TestRunLocalCancelsWorkersOnFailure(t *testing.T) {
	opts := referenceOptions(t, 10)
	opts.Coordinator.Policy = icalc.PolicyBaseStride

	done := make(chan error, 1)
	go func() {
		// 10 slices over 3 workers leaves a gap under base-stride
		_, err := RunLocal(context.Background(), 3, opts)
		done <- err
	}()

	select {
	case err := <-done:
		if errors.Cause(err) != icalc.ErrPartitionInvariant {
			t.Errorf("err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("workers were not released")
	}
}

func TestRunDispatchesByRank(t *testing.T) {
	ranks, _ := cluster.NewLocal(3)
	opts := referenceOptions(t, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results := make([]*icalc.Result, len(ranks))
	errs := make([]error, len(ranks))
	var wg sync.WaitGroup
	for i, r := range ranks {
		wg.Add(1)
		go func(i int, r cluster.Context) {
			defer wg.Done()
			results[i], errs[i] = Run(ctx, r, opts)
		}(i, r)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}
	if results[0] == nil || results[1] != nil || results[2] != nil {
		t.Errorf("results = %v", results)
	}
}

func TestBarrierFailureKeepsResult(t *testing.T) {
	ranks, _ := cluster.NewLocal(2)
	opts := referenceOptions(t, 100)
	opts.BarrierTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// the worker exchanges but never joins the barrier
	go func() {
		w, _ := calculator.NewWorker(ranks[1], opts.Integrand, calculator.Options{})
		w.Run(ctx)
	}()

	res, err := Run(ctx, ranks[0], opts)
	if err != nil || res == nil {
		t.Fatalf("res = %v, err = %v", res, err)
	}
}
