// Package logging provides an observer that reports job progress through the package logger.
package logging

import (
	"context"
	"time"

	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// LoggingObserver logs the lifecycle points of a job run.
type LoggingObserver struct {
	jobName   string
	jobID     string
	startedAt time.Time
	skips     int
	rollbacks int
}

// NewLoggingObserver creates an observer for the named job.
func NewLoggingObserver(jobName string) *LoggingObserver {
	return &LoggingObserver{jobName: jobName}
}

func (l *LoggingObserver) OnJobStart(ctx context.Context, jobID string) {
	l.jobID = jobID
	l.startedAt = time.Now()
	logger.Infof("Job '%s' started. ID: %s", l.jobName, jobID)
}

func (l *LoggingObserver) OnSkip(ctx context.Context, phase port.SkipPhase, payload interface{}, err error) {
	l.skips++
	logger.Warnf("Job '%s': item skipped in %s phase (%s): %v", l.jobName, phase, exception.Kind(err), err)
}

func (l *LoggingObserver) OnChunkRolledBack(ctx context.Context) {
	l.rollbacks++
	logger.Warnf("Job '%s': chunk rolled back, lookup cache cleared; retrying items individually.", l.jobName)
}

// OnJobEnd logs the skips and rollbacks seen by this observer. The status line is
// reported by the notification observer.
func (l *LoggingObserver) OnJobEnd(ctx context.Context, outcome model.Outcome) {
	logger.Debugf("Job '%s' (ID: %s) ended after %s: %d skip(s) and %d rollback(s) observed.",
		l.jobName, l.jobID, time.Since(l.startedAt).Round(time.Millisecond), l.skips, l.rollbacks)
}

var _ port.Observer = (*LoggingObserver)(nil)
