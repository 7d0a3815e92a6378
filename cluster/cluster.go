// Package cluster provides the process topology consumed by the coordinator
// and the workers: a rank, a process count and tagged point-to-point
// messages between ranks.
package cluster

import (
	"context"
	"fmt"
)

// Tag identifies the kind of a message on the wire.
type Tag int

const (
	TagDescriptor Tag = 0 // coordinator -> worker work descriptor
	TagResult     Tag = 1 // worker -> coordinator partial result
	TagBarrier    Tag = 2 // end-of-run barrier
)

func (t Tag) String() string {
	switch t {
	case TagDescriptor:
		return "descriptor"
	case TagResult:
		return "result"
	case TagBarrier:
		return "barrier"
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// CoordinatorRank is the rank of the process that partitions and reduces.
const CoordinatorRank = 0

// Context is the whole-cluster communication context of one process.
//
// Send blocks until the destination accepted the payload and Recv blocks
// until a payload from source with the given tag arrives. Both give up when
// ctx is done.
type Context interface {
	Rank() int
	Size() int
	Send(ctx context.Context, payload []byte, dest int, tag Tag) error
	Recv(ctx context.Context, source int, tag Tag) ([]byte, error)
	Close() error
}

// Workers returns the number of worker ranks in c.
func Workers(c Context) int {
	return c.Size() - 1
}

func checkRank(rank, size int) error {
	if rank < 0 || rank >= size {
		return fmt.Errorf("rank %d out of range [0,%d)", rank, size)
	}
	return nil
}
