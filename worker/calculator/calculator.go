// Package calculator is the worker side of the integration: it receives one
// WorkDescriptor, sums the integrand over the assigned slices and returns the
// partial sum to the coordinator.
package calculator

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slog"

	"ds-trapezoid.com/cluster"
	"ds-trapezoid.com/logs"
	"ds-trapezoid.com/master/shared"
)

// cancelCheckEvery is how many slices are summed between context checks.
const cancelCheckEvery = 1 << 16

// ErrNonFinite is returned when the integrand is NaN or infinite at a sample point.
var ErrNonFinite = errors.New("integrand is not finite")

// Options tune a Worker. A zero DescriptorTimeout waits without bound.
type Options struct {
	Precision         uint
	DescriptorTimeout time.Duration
	SendTimeout       time.Duration
}

// Worker runs one non-zero rank.
type Worker struct {
	cluster cluster.Context
	f       shared.Integrand
	opts    Options
	log     *slog.Logger
}

func NewWorker(cc cluster.Context, f shared.Integrand, opts Options) (*Worker, error) {
	if cc.Rank() == cluster.CoordinatorRank {
		return nil, errors.New("worker cannot run on the coordinator rank")
	}
	if f == nil {
		return nil, errors.New("worker needs an integrand")
	}
	if opts.Precision == 0 {
		opts.Precision = shared.DefaultPrecision
	}
	return &Worker{cluster: cc, f: f, opts: opts, log: logs.Rank(cc.Rank())}, nil
}

// Run performs the worker's single exchange: await the descriptor, compute,
// send the partial sum back.
func (w *Worker) Run(ctx context.Context) (*big.Float, error) {
	desc, err := w.awaitDescriptor(ctx)
	if err != nil {
		return nil, err
	}

	w.log.Info("Descriptor received",
		"min", desc.LowerBound, "width", desc.SliceWidth,
		"div", desc.AssignedSliceCount, "index", desc.StartSliceIndex)

	start := time.Now()
	sum, err := Compute(ctx, desc, w.f, w.opts.Precision)
	if err != nil {
		return nil, errors.Wrap(err, "compute partial sum")
	}
	w.log.Debug("Partial sum computed", "elapsed", time.Since(start), "sum", sum.Text('g', 17))

	if err := w.send(ctx, sum); err != nil {
		return nil, err
	}

	w.log.Info("Partial sum sent", "sum", sum.Text('g', 17))
	return sum, nil
}

func (w *Worker) awaitDescriptor(ctx context.Context) (shared.WorkDescriptor, error) {
	var desc shared.WorkDescriptor

	recvCtx, cancel := withTimeout(ctx, w.opts.DescriptorTimeout)
	defer cancel()

	payload, err := w.cluster.Recv(recvCtx, cluster.CoordinatorRank, cluster.TagDescriptor)
	if err != nil {
		return desc, errors.Wrap(err, "await descriptor")
	}
	if err := desc.UnmarshalBinary(payload); err != nil {
		return desc, errors.Wrap(err, "decode descriptor")
	}
	return desc, nil
}

func (w *Worker) send(ctx context.Context, sum *big.Float) error {
	payload, err := shared.EncodePartial(sum)
	if err != nil {
		return err
	}

	sendCtx, cancel := withTimeout(ctx, w.opts.SendTimeout)
	defer cancel()

	if err := w.cluster.Send(sendCtx, payload, cluster.CoordinatorRank, cluster.TagResult); err != nil {
		return errors.Wrap(err, "send result")
	}
	return nil
}

// Compute sums f(lower + width*index) over the descriptor's slice indices.
// A descriptor with no slices yields zero.
func Compute(ctx context.Context, d shared.WorkDescriptor, f shared.Integrand, prec uint) (*big.Float, error) {
	sum := new(big.Float).SetPrec(prec)
	term := new(big.Float).SetPrec(prec)

	index := int64(d.StartSliceIndex)
	for i := int32(0); i < d.AssignedSliceCount; i++ {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		x := d.LowerBound + d.SliceWidth*float64(index)
		fx := f(x)
		if math.IsNaN(fx) || math.IsInf(fx, 0) {
			return nil, errors.Wrapf(ErrNonFinite, "f(%g) = %g at slice %d", x, fx, index)
		}
		sum.Add(sum, term.SetFloat64(fx))
		index++
	}
	return sum, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
