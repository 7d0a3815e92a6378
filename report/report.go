// Package report publishes the summary of a finished run to the configured
// sinks: the log, Kafka, beanstalkd and a MySQL run history.
package report

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slog"

	"ds-trapezoid.com/common/closer"
	"ds-trapezoid.com/master/icalc"
	"ds-trapezoid.com/worker/calculator"
)

// Summary is the published record of one run.
type Summary struct {
	Function   string    `json:"function"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
	SliceCount int       `json:"slice_count"`
	Workers    int       `json:"workers"`
	Policy     string    `json:"policy"`
	Result     string    `json:"result"`
	Value      float64   `json:"value"`
	Partials   []string  `json:"partials"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	FinishedAt time.Time `json:"finished_at"`

	// Exact and AbsError are set only for the reference kernel x^2.
	Exact    *float64 `json:"exact,omitempty"`
	AbsError *float64 `json:"abs_error,omitempty"`
}

// NewSummary builds the summary of a successful coordinator run.
func NewSummary(function string, policy icalc.Policy, res *icalc.Result) Summary {
	s := Summary{
		Function:   function,
		LowerBound: res.Request.LowerBound,
		UpperBound: res.Request.UpperBound,
		SliceCount: res.Request.SliceCount,
		Workers:    res.Workers,
		Policy:     policy.String(),
		Result:     res.Value.Text('f', 12),
		Value:      res.Float64(),
		Partials:   make([]string, len(res.Partials)),
		ElapsedMS:  res.Elapsed.Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}
	for i, p := range res.Partials {
		s.Partials[i] = p.Text('g', 17)
	}

	if function == calculator.Reference {
		a, b := s.LowerBound, s.UpperBound
		exact := (b*b*b - a*a*a) / 3
		diff := math.Abs(s.Value - exact)
		s.Exact, s.AbsError = &exact, &diff
	}
	return s
}

func (s Summary) JSON() ([]byte, error) {
	return json.Marshal(s)
}

// Reporter publishes a run summary.
type Reporter interface {
	Report(ctx context.Context, s Summary) error
}

// Multi fans a summary out to every reporter. A failing reporter does not
// stop the others; the first error is returned.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, s Summary) error {
	var first error
	for _, r := range m {
		if err := r.Report(ctx, s); err != nil {
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// History returns the first MySQL reporter, or nil when none is configured.
func (m Multi) History() *MySQL {
	for _, r := range m {
		if h, ok := r.(*MySQL); ok {
			return h
		}
	}
	return nil
}

// Close closes every reporter that holds a connection.
func (m Multi) Close(log *slog.Logger) {
	for _, r := range m {
		if c, ok := r.(io.Closer); ok {
			closer.LogClose(c, "reporter", log)
		}
	}
}

// Log writes the summary as one structured record.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Report(_ context.Context, s Summary) error {
	attrs := []any{
		"function", s.Function,
		"bounds", []float64{s.LowerBound, s.UpperBound},
		"slices", s.SliceCount,
		"workers", s.Workers,
		"result", s.Result,
		"elapsed_ms", s.ElapsedMS,
	}
	if s.Exact != nil {
		attrs = append(attrs, "exact", *s.Exact, "abs_error", *s.AbsError)
	}
	l.Logger.Info("Run summary", attrs...)
	return nil
}

func wrapReport(err error, sink string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "report to %s", sink)
}
