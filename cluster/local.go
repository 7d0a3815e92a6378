package cluster

import (
	"context"

	"github.com/pkg/errors"
)

// Local is one rank of an in-process cluster created by NewLocal.
type Local struct {
	rank  int
	boxes []*mailbox
}

// NewLocal creates size connected ranks that exchange messages through
// in-memory mailboxes. Element i of the result has rank i.
func NewLocal(size int) ([]*Local, error) {
	if size < 1 {
		return nil, errors.Errorf("cluster: local size %d, need at least 1", size)
	}

	boxes := make([]*mailbox, size)
	for i := range boxes {
		boxes[i] = newMailbox()
	}

	ranks := make([]*Local, size)
	for i := range ranks {
		ranks[i] = &Local{rank: i, boxes: boxes}
	}
	return ranks, nil
}

func (l *Local) Rank() int { return l.rank }

func (l *Local) Size() int { return len(l.boxes) }

func (l *Local) Send(ctx context.Context, payload []byte, dest int, tag Tag) error {
	if l.boxes[l.rank].closed() {
		return ErrClosed
	}
	if err := checkRank(dest, len(l.boxes)); err != nil {
		return errors.Wrap(ErrBadRank, err.Error())
	}
	err := l.boxes[dest].deliver(ctx, l.rank, tag, payload)
	return wrapCtx(err, "send", dest, tag)
}

func (l *Local) Recv(ctx context.Context, source int, tag Tag) ([]byte, error) {
	if err := checkRank(source, len(l.boxes)); err != nil {
		return nil, errors.Wrap(ErrBadRank, err.Error())
	}
	payload, err := l.boxes[l.rank].receive(ctx, source, tag)
	return payload, wrapCtx(err, "receive", source, tag)
}

// Close releases this rank's mailbox. Pending and future receives on it fail
// with ErrClosed; sends to it from other ranks fail the same way.
func (l *Local) Close() error {
	l.boxes[l.rank].close()
	return nil
}
