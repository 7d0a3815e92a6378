package icalc

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoWorkers is the configuration error of a run with nothing to delegate to.
	ErrNoWorkers = errors.New("no workers available: the cluster needs at least 2 processes")
	// ErrPartitionInvariant is returned when a plan does not tile the slice range exactly.
	ErrPartitionInvariant = errors.New("partition does not cover the slice range exactly once")
	// ErrWorkerUnresponsive is returned when a worker's result did not arrive in time.
	ErrWorkerUnresponsive = errors.New("worker unresponsive")
)

// Stage names the protocol step during which a worker exchange failed.
type Stage string

const (
	StageSendDescriptor Stage = "send descriptor"
	StageAwaitResult    Stage = "await result"
	StageDecodeResult   Stage = "decode result"
)

// ClusterCommunicationError aborts a run and names the worker and the stage
// that failed.
type ClusterCommunicationError struct {
	Rank  int
	Stage Stage
	Err   error
}

func (e *ClusterCommunicationError) Error() string {
	return fmt.Sprintf("worker rank %d: %s: %v", e.Rank, e.Stage, e.Err)
}

func (e *ClusterCommunicationError) Unwrap() error { return e.Err }

// Cause lets errors.Cause reach the underlying error.
func (e *ClusterCommunicationError) Cause() error { return e.Err }
