// Package notification reports the final status of a job run through a Notifier.
package notification

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// JobReport is what a Notifier receives when a job ends.
type JobReport struct {
	JobName  string
	JobID    string
	Duration time.Duration
	Outcome  model.Outcome
}

// String renders the report as a single status line.
func (r JobReport) String() string {
	o := r.Outcome
	line := fmt.Sprintf("Job '%s' (ID: %s) finished with status %s in %s. read=%d written=%d filtered=%d skipped=%d commits=%d rollbacks=%d",
		r.JobName, r.JobID, o.Status, r.Duration, o.ReadCount, o.WriteCount, o.FilterCount, o.SkipCount, o.CommitCount, o.RollbackCount)
	if !o.Succeeded() {
		line += fmt.Sprintf(". %s: %v", o.FailureKind, o.Err)
	}
	return line
}

// Notifier delivers job reports.
type Notifier interface {
	NotifyJobCompletion(ctx context.Context, report JobReport)
}

// LogNotifier writes job reports to the package logger.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyJobCompletion logs completed runs at INFO and failed runs at ERROR.
func (n *LogNotifier) NotifyJobCompletion(ctx context.Context, report JobReport) {
	if report.Outcome.Succeeded() {
		logger.Infof("Job Notification: %s", report)
		return
	}
	logger.Errorf("Job Notification: %s", report)
}

var _ Notifier = (*LogNotifier)(nil)

// NotificationObserver sends a JobReport to its Notifier when the job ends.
type NotificationObserver struct {
	port.NoopObserver
	notifier  Notifier
	jobName   string
	jobID     string
	startedAt time.Time
	now       func() time.Time
}

// NewNotificationObserver creates an observer reporting the named job to notifier.
func NewNotificationObserver(notifier Notifier, jobName string) *NotificationObserver {
	return &NotificationObserver{notifier: notifier, jobName: jobName, now: time.Now}
}

func (o *NotificationObserver) OnJobStart(ctx context.Context, jobID string) {
	o.jobID = jobID
	o.startedAt = o.now()
}

func (o *NotificationObserver) OnJobEnd(ctx context.Context, outcome model.Outcome) {
	o.notifier.NotifyJobCompletion(ctx, JobReport{
		JobName:  o.jobName,
		JobID:    o.jobID,
		Duration: o.now().Sub(o.startedAt).Round(time.Millisecond),
		Outcome:  outcome,
	})
}

var _ port.Observer = (*NotificationObserver)(nil)
