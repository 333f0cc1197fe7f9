// Package job runs a single step as a job: it owns the job execution, the observers
// and the resources whose lifetime is the run, and maps the result to an Outcome.
package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/core/metrics"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// JobIDKey is the execution context key holding the id of the running job execution.
const JobIDKey = "job.id"

// Exit codes of a job run.
const (
	ExitCodeCompleted         = 0
	ExitCodeFailed            = 1
	ExitCodeSkipLimitExceeded = 2
	ExitCodeReaderFailure     = 3
)

// Step is the unit of work a SimpleJob runs.
type Step interface {
	StepName() string
	Execute(ctx context.Context, jobExecution *model.JobExecution, restart bool) (*model.StepExecution, error)
}

// ScopedResource is opened before the step starts and closed on every exit path of the run.
type ScopedResource interface {
	Name() string
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// SimpleJob runs one step.
type SimpleJob struct {
	name           string
	step           Step
	observers      []port.Observer
	resources      []ScopedResource
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// NewSimpleJob creates a SimpleJob.
//
// Parameters:
//
//	name: The job name.
//	step: The step to run.
//	observers: Notified of job start and end, in order.
//	resources: Opened in order before the step, closed in reverse order afterwards.
//	metricRecorder, tracer: May be nil.
func NewSimpleJob(
	name string,
	step Step,
	observers []port.Observer,
	resources []ScopedResource,
	metricRecorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *SimpleJob {
	if metricRecorder == nil {
		metricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &SimpleJob{
		name:           name,
		step:           step,
		observers:      observers,
		resources:      resources,
		metricRecorder: metricRecorder,
		tracer:         tracer,
	}
}

// JobName returns the job name.
func (j *SimpleJob) JobName() string {
	return j.name
}

// Run executes the job and returns its outcome. It never panics on step failure; the
// failure is reported through Outcome.Err and Outcome.FailureKind.
func (j *SimpleJob) Run(ctx context.Context, restart bool) (outcome model.Outcome) {
	jobExecution := model.NewJobExecution(j.name)
	jobExecution.ExecutionContext.Put(JobIDKey, jobExecution.ID)
	jobExecution.MarkAsStarted()

	ctx, finishSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()

	logger.Infof("Starting Job '%s' (Execution ID: %s, restart: %t).", j.name, jobExecution.ID, restart)
	j.metricRecorder.RecordJobStart(ctx, jobExecution)

	opened, openErr := j.openResources(ctx)
	defer func() {
		if jobExecution.Status != model.BatchStatusCompleted {
			jobExecution.MarkAsFailed(outcome.Err)
		}
		// Observers may push the recorded series, so the job end is recorded first.
		j.metricRecorder.RecordJobEnd(ctx, jobExecution, outcome)
		for _, o := range j.observers {
			o.OnJobEnd(ctx, outcome)
		}
		j.closeResources(ctx, opened)
	}()
	if openErr != nil {
		return model.OutcomeOf(nil, openErr, FailureKind(openErr))
	}

	for _, o := range j.observers {
		o.OnJobStart(ctx, jobExecution.ID)
	}

	stepExecution, err := j.step.Execute(ctx, jobExecution, restart)
	outcome = model.OutcomeOf(stepExecution, err, FailureKind(err))
	if err == nil {
		jobExecution.MarkAsCompleted()
	}
	return outcome
}

func (j *SimpleJob) openResources(ctx context.Context) ([]ScopedResource, error) {
	opened := make([]ScopedResource, 0, len(j.resources))
	for _, r := range j.resources {
		if err := r.Open(ctx); err != nil {
			return opened, exception.NewBatchError(j.name, fmt.Sprintf("failed to open resource '%s'", r.Name()), err, false, false)
		}
		opened = append(opened, r)
	}
	return opened, nil
}

// closeResources closes in reverse order. Close failures are logged, never returned.
func (j *SimpleJob) closeResources(ctx context.Context, opened []ScopedResource) {
	var result *multierror.Error
	for i := len(opened) - 1; i >= 0; i-- {
		if err := opened[i].Close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", opened[i].Name(), err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Warnf("Job '%s': failed to close resources: %v", j.name, err)
	}
}

// FailureKind names the kind of a fatal error for reporting.
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	if kind := exception.Kind(err); kind != "" {
		return kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Interrupted"
	}
	return "UnexpectedError"
}

// ExitCode maps an outcome to the process exit code.
func ExitCode(outcome model.Outcome) int {
	switch {
	case outcome.Succeeded():
		return ExitCodeCompleted
	case errors.Is(outcome.Err, exception.ErrSkipLimitExceeded):
		return ExitCodeSkipLimitExceeded
	case errors.Is(outcome.Err, exception.ErrFormat), errors.Is(outcome.Err, exception.ErrNotOpen):
		return ExitCodeReaderFailure
	default:
		return ExitCodeFailed
	}
}
