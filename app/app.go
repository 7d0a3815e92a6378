// Package app dispatches a process to its role: rank 0 coordinates, every
// other rank computes one share of the slices.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"ds-trapezoid.com/cluster"
	"ds-trapezoid.com/common/closer"
	"ds-trapezoid.com/logs"
	"ds-trapezoid.com/master/icalc"
	"ds-trapezoid.com/master/shared"
	"ds-trapezoid.com/worker/calculator"
)

// Options describe one run for every rank.
type Options struct {
	Request        shared.IntegrationRequest
	Integrand      shared.Integrand
	Coordinator    icalc.Options
	Worker         calculator.Options
	BarrierTimeout time.Duration // zero waits without bound

	// OnCoordinator, if set, is called with the coordinator before it runs.
	OnCoordinator func(*icalc.Coordinator)
}

// Run plays the role of cc's rank. The coordinator returns the result;
// workers return a nil result. Both join the final barrier after a
// successful exchange; a barrier failure is logged and does not fail the run.
func Run(ctx context.Context, cc cluster.Context, opts Options) (*icalc.Result, error) {
	var res *icalc.Result

	if cc.Rank() == cluster.CoordinatorRank {
		c, err := icalc.NewCoordinator(cc, opts.Request, opts.Integrand, opts.Coordinator)
		if err != nil {
			return nil, err
		}
		if opts.OnCoordinator != nil {
			opts.OnCoordinator(c)
		}
		if res, err = c.Run(ctx); err != nil {
			return nil, err
		}
	} else {
		w, err := calculator.NewWorker(cc, opts.Integrand, opts.Worker)
		if err != nil {
			return nil, err
		}
		if _, err := w.Run(ctx); err != nil {
			return nil, err
		}
	}

	if err := finalize(ctx, cc, opts.BarrierTimeout); err != nil {
		logs.Rank(cc.Rank()).Warn("Final barrier failed", "err", err)
	}
	return res, nil
}

func finalize(ctx context.Context, cc cluster.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return cluster.Barrier(ctx, cc)
}

// RunLocal runs a coordinator and workers ranks as goroutines over an
// in-process cluster. The first failing rank cancels the others.
func RunLocal(ctx context.Context, workers int, opts Options) (*icalc.Result, error) {
	ranks, err := cluster.NewLocal(workers + 1)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, r := range ranks {
			closer.LogClose(r, "local rank", logs.Log)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		once   sync.Once
		first  error
		result *icalc.Result
	)
	for _, r := range ranks {
		wg.Add(1)
		go func(r *cluster.Local) {
			defer wg.Done()

			res, err := Run(ctx, r, opts)
			if err != nil {
				once.Do(func() {
					first = errors.Wrapf(err, "rank %d", r.Rank())
					cancel()
				})
				return
			}
			if r.Rank() == cluster.CoordinatorRank {
				result = res
			}
		}(r)
	}
	wg.Wait()

	if first != nil {
		return nil, first
	}
	return result, nil
}
