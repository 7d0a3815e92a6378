package cluster

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by operations on a closed Context.
	ErrClosed = errors.New("cluster: context closed")
	// ErrBadRank is returned when a source or destination rank is outside the cluster.
	ErrBadRank = errors.New("cluster: invalid rank")
)

// wrapCtx turns a context failure into a readable receive/send error while
// keeping context.DeadlineExceeded reachable through errors.Cause.
func wrapCtx(err error, op string, peer int, tag Tag) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Wrapf(err, "%s %s with rank %d", op, tag, peer)
	}
	return err
}
