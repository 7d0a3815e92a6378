package icalc

import (
	"math/big"
	"time"

	"ds-trapezoid.com/master/shared"
)

// Phase is the coordinator's position in the protocol.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePartitioned Phase = "partitioned"
	PhaseSending     Phase = "sending"
	PhaseAwaiting    Phase = "awaiting"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Status holds status information about the current run.
type Status struct {
	Phase      Phase
	LowerBound float64
	UpperBound float64
	SliceCount int
	Policy     string
	Workers    int
	Sent       int
	Received   int
	StartedAt  time.Time
	Elapsed    time.Duration
	Result     *big.Float // set once Phase is PhaseDone
	Error      string     // set once Phase is PhaseFailed
}

// Progress is the share of workers whose result has been reduced, in percent.
func (s Status) Progress() float64 {
	if s.Workers == 0 {
		return 0
	}
	return float64(s.Received) / float64(s.Workers) * 100
}

// Assignment is one worker's slice range and where its exchange stands.
type Assignment struct {
	Rank       int
	Descriptor shared.WorkDescriptor
	Sent       bool
	Received   bool
	Partial    string
}
