// Package icalc is the coordinator side of the integration: it partitions the
// slice range, hands one WorkDescriptor to every worker, collects their
// partial sums and reduces them into the final estimate.
package icalc

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"

	"ds-trapezoid.com/cluster"
	"ds-trapezoid.com/logs"
	"ds-trapezoid.com/master/shared"
)

// Options tune a Coordinator. Zero timeouts wait without bound.
type Options struct {
	Policy        Policy
	Precision     uint
	SendTimeout   time.Duration // per descriptor send
	ResultTimeout time.Duration // per awaited result
}

// Coordinator runs the rank 0 side of one integration.
type Coordinator struct {
	cluster cluster.Context
	req     shared.IntegrationRequest
	f       shared.Integrand
	opts    Options
	log     *slog.Logger

	mu     sync.RWMutex
	status Status
	assign []Assignment
}

// Result is the outcome of a successful run.
type Result struct {
	Request     shared.IntegrationRequest
	Workers     int
	Descriptors []shared.WorkDescriptor
	Partials    []*big.Float // indexed by worker (rank-1)
	Value       *big.Float
	Elapsed     time.Duration
}

// Float64 returns the final estimate rounded to a float64.
func (r *Result) Float64() float64 {
	v, _ := r.Value.Float64()
	return v
}

// NewCoordinator returns a coordinator bound to cc, which must be rank 0.
func NewCoordinator(cc cluster.Context, req shared.IntegrationRequest, f shared.Integrand, opts Options) (*Coordinator, error) {
	if cc.Rank() != cluster.CoordinatorRank {
		return nil, errors.Errorf("coordinator must run on rank %d, not %d", cluster.CoordinatorRank, cc.Rank())
	}
	if f == nil {
		return nil, errors.New("coordinator needs an integrand")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if opts.Precision == 0 {
		opts.Precision = shared.DefaultPrecision
	}

	return &Coordinator{
		cluster: cc,
		req:     req,
		f:       f,
		opts:    opts,
		log:     logs.Rank(cc.Rank()),
		status: Status{
			Phase:      PhaseIdle,
			LowerBound: req.LowerBound,
			UpperBound: req.UpperBound,
			SliceCount: req.SliceCount,
			Policy:     opts.Policy.String(),
		},
	}, nil
}

// Run partitions the work, exchanges one descriptor and one result with
// every worker and returns the reduced estimate. Any failed exchange aborts
// the run with a *ClusterCommunicationError; no partial estimate is returned.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	workers := cluster.Workers(c.cluster)
	if workers < 1 {
		return nil, c.fail(errors.Wrapf(ErrNoWorkers, "cluster size %d", c.cluster.Size()))
	}

	descs, err := Partition(c.req, workers, c.opts.Policy)
	if err != nil {
		return nil, c.fail(err)
	}
	if err := CheckCoverage(descs, c.req.SliceCount); err != nil {
		return nil, c.fail(errors.Wrapf(err, "%s partition of %d slices over %d workers", c.opts.Policy, c.req.SliceCount, workers))
	}
	c.partitioned(descs)

	c.log.Info("Work partitioned",
		"slices", c.req.SliceCount, "workers", workers, "width", c.req.SliceWidth(), "policy", c.opts.Policy.String())

	c.setPhase(PhaseSending)
	for i, d := range descs {
		if err := c.sendDescriptor(ctx, i+1, d); err != nil {
			return nil, c.fail(err)
		}
		c.markSent(i)
	}

	c.setPhase(PhaseAwaiting)
	reducer := NewReducer(c.req, c.f, c.opts.Precision)
	partials := make([]*big.Float, workers)
	for i := range descs {
		partial, err := c.awaitResult(ctx, i+1)
		if err != nil {
			return nil, c.fail(err)
		}
		reducer.Add(partial)
		partials[i] = partial
		c.markReceived(i, partial)
	}

	c.log.Debug("Partials reduced", "count", reducer.Count(), "sum", reducer.Sum().Text('g', 17))

	value, err := reducer.Final()
	if err != nil {
		return nil, c.fail(err)
	}

	res := &Result{
		Request:     c.req,
		Workers:     workers,
		Descriptors: descs,
		Partials:    partials,
		Value:       value,
		Elapsed:     time.Since(start),
	}
	c.done(res)

	c.log.Info("Final integral", "result", value.Text('f', 12), "workers", workers, "elapsed", res.Elapsed)
	return res, nil
}

func (c *Coordinator) sendDescriptor(ctx context.Context, rank int, d shared.WorkDescriptor) error {
	payload, err := d.MarshalBinary()
	if err != nil {
		return &ClusterCommunicationError{Rank: rank, Stage: StageSendDescriptor, Err: err}
	}

	sendCtx, cancel := withTimeout(ctx, c.opts.SendTimeout)
	defer cancel()

	if err := c.cluster.Send(sendCtx, payload, rank, cluster.TagDescriptor); err != nil {
		c.log.Error("Descriptor send failed", "worker", rank, "err", err)
		return &ClusterCommunicationError{Rank: rank, Stage: StageSendDescriptor, Err: err}
	}

	c.log.Info("Sent descriptor", "worker", rank,
		"start", d.StartSliceIndex, "count", d.AssignedSliceCount)
	return nil
}

func (c *Coordinator) awaitResult(ctx context.Context, rank int) (*big.Float, error) {
	recvCtx, cancel := withTimeout(ctx, c.opts.ResultTimeout)
	defer cancel()

	payload, err := c.cluster.Recv(recvCtx, rank, cluster.TagResult)
	if err != nil {
		if recvCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = errors.Wrapf(ErrWorkerUnresponsive, "no result after %s", c.opts.ResultTimeout)
		}
		c.log.Error("Result receive failed", "worker", rank, "err", err)
		return nil, &ClusterCommunicationError{Rank: rank, Stage: StageAwaitResult, Err: err}
	}

	partial, err := shared.DecodePartial(payload)
	if err != nil {
		c.log.Error("Result decode failed", "worker", rank, "err", err)
		return nil, &ClusterCommunicationError{Rank: rank, Stage: StageDecodeResult, Err: err}
	}

	c.log.Info("Received result", "worker", rank, "partial", partial.Text('g', 17))
	return partial, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Status returns a snapshot of the run's progress.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.status
	if s.Result != nil {
		s.Result = new(big.Float).Copy(s.Result)
	}
	return s
}

// Assignments returns the per-worker plan and exchange state.
func (c *Coordinator) Assignments() []Assignment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.assign)
}

func (c *Coordinator) setPhase(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Phase = p
}

func (c *Coordinator) partitioned(descs []shared.WorkDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.Phase = PhasePartitioned
	c.status.Workers = len(descs)
	c.status.StartedAt = time.Now()
	c.assign = make([]Assignment, len(descs))
	for i, d := range descs {
		c.assign[i] = Assignment{Rank: i + 1, Descriptor: d}
	}
}

func (c *Coordinator) markSent(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assign[i].Sent = true
	c.status.Sent++
}

func (c *Coordinator) markReceived(i int, partial *big.Float) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assign[i].Received = true
	c.assign[i].Partial = partial.Text('g', 17)
	c.status.Received++
}

func (c *Coordinator) done(res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Phase = PhaseDone
	c.status.Result = new(big.Float).Copy(res.Value)
	c.status.Elapsed = res.Elapsed
}

func (c *Coordinator) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Phase = PhaseFailed
	c.status.Error = err.Error()
	return err
}
