// Package metrics defines the recording and tracing contracts used by the job and step machinery.
package metrics

import (
	"context"

	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
)

// MetricRecorder records the counters of a job run.
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd records the end of a JobExecution together with its outcome.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution, outcome model.Outcome)
	// RecordItemRead records one item read by stepName.
	RecordItemRead(ctx context.Context, stepName string)
	// RecordItemFilter records one item filtered out by the processor of stepName.
	RecordItemFilter(ctx context.Context, stepName string)
	// RecordItemWrite records count items written by stepName.
	RecordItemWrite(ctx context.Context, stepName string, count int)
	// RecordItemSkip records one item skipped by stepName in the given phase ("read", "transform", "write").
	RecordItemSkip(ctx context.Context, stepName string, phase string, reason string)
	// RecordChunkCommit records a committed chunk of count items.
	RecordChunkCommit(ctx context.Context, stepName string, count int)
	// RecordChunkRollback records a rolled-back chunk.
	RecordChunkRollback(ctx context.Context, stepName string)
}

// NoOpMetricRecorder discards every measurement.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordJobStart(context.Context, *model.JobExecution)              {}
func (r *NoOpMetricRecorder) RecordJobEnd(context.Context, *model.JobExecution, model.Outcome) {}
func (r *NoOpMetricRecorder) RecordItemRead(context.Context, string)                           {}
func (r *NoOpMetricRecorder) RecordItemFilter(context.Context, string)                         {}
func (r *NoOpMetricRecorder) RecordItemWrite(context.Context, string, int)                     {}
func (r *NoOpMetricRecorder) RecordItemSkip(context.Context, string, string, string)           {}
func (r *NoOpMetricRecorder) RecordChunkCommit(context.Context, string, int)                   {}
func (r *NoOpMetricRecorder) RecordChunkRollback(context.Context, string)                      {}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)
