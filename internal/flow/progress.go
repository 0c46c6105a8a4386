// internal/flow/progress.go
package flow

import (
	"context"

	"github.com/shashank9mittal/uxray/api/schemas"
)

// Reporter delivers ordered progress events to an optional channel. Percent
// is clamped so the stream is monotonically non-decreasing within one flow;
// a nil channel turns every report into a no-op, leaving control flow
// untouched.
type Reporter struct {
	ch   chan<- schemas.ProgressEvent
	last int
}

// NewReporter wraps the caller-supplied channel. ch may be nil.
func NewReporter(ch chan<- schemas.ProgressEvent) *Reporter {
	return &Reporter{ch: ch}
}

// Report emits one event. It blocks until the consumer takes it or ctx ends,
// preserving the stream's ordering guarantee.
func (r *Reporter) Report(ctx context.Context, stage schemas.Stage, percent int, message string, metadata map[string]string) {
	if percent < r.last {
		percent = r.last
	}
	if percent > 100 {
		percent = 100
	}
	r.last = percent

	if r.ch == nil {
		return
	}
	select {
	case r.ch <- schemas.ProgressEvent{
		Stage:    stage,
		Percent:  percent,
		Message:  message,
		Metadata: metadata,
	}:
	case <-ctx.Done():
	}
}
