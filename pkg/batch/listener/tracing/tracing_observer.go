// Package tracing provides an observer that annotates the job span with skip and rollback events.
package tracing

import (
	"context"

	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/core/metrics"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

// TracingObserver records job events on the span carried by the observer context.
type TracingObserver struct {
	tracer metrics.Tracer
}

// NewTracingObserver creates a new TracingObserver.
func NewTracingObserver(tracer metrics.Tracer) *TracingObserver {
	return &TracingObserver{tracer: tracer}
}

func (o *TracingObserver) OnJobStart(ctx context.Context, jobID string) {
	o.tracer.RecordEvent(ctx, "job.start", map[string]interface{}{"job.id": jobID})
}

func (o *TracingObserver) OnSkip(ctx context.Context, phase port.SkipPhase, _ interface{}, err error) {
	o.tracer.RecordEvent(ctx, "item.skip", map[string]interface{}{
		"phase": string(phase),
		"kind":  exception.Kind(err),
		"error": exception.ExtractErrorMessage(err),
	})
}

func (o *TracingObserver) OnChunkRolledBack(ctx context.Context) {
	o.tracer.RecordEvent(ctx, "chunk.rollback", nil)
}

func (o *TracingObserver) OnJobEnd(ctx context.Context, outcome model.Outcome) {
	if outcome.Err != nil {
		o.tracer.RecordError(ctx, "job", outcome.Err)
	}
	o.tracer.RecordEvent(ctx, "job.end", map[string]interface{}{
		"status":  outcome.Status.String(),
		"read":    outcome.ReadCount,
		"written": outcome.WriteCount,
		"skipped": outcome.SkipCount,
	})
}

var _ port.Observer = (*TracingObserver)(nil)
