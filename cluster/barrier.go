package cluster

import (
	"context"

	"github.com/pkg/errors"
)

// Barrier blocks until every rank of c has entered it. Workers check in with
// the coordinator, which releases them once all have arrived.
func Barrier(ctx context.Context, c Context) error {
	if c.Size() == 1 {
		return nil
	}

	if c.Rank() != CoordinatorRank {
		if err := c.Send(ctx, nil, CoordinatorRank, TagBarrier); err != nil {
			return errors.Wrap(err, "barrier check-in")
		}
		if _, err := c.Recv(ctx, CoordinatorRank, TagBarrier); err != nil {
			return errors.Wrap(err, "barrier release")
		}
		return nil
	}

	for r := 1; r < c.Size(); r++ {
		if _, err := c.Recv(ctx, r, TagBarrier); err != nil {
			return errors.Wrapf(err, "barrier wait for rank %d", r)
		}
	}
	for r := 1; r < c.Size(); r++ {
		if err := c.Send(ctx, nil, r, TagBarrier); err != nil {
			return errors.Wrapf(err, "barrier release rank %d", r)
		}
	}
	return nil
}
