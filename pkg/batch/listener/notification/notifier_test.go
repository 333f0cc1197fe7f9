package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
)

type recordingNotifier struct {
	reports []JobReport
}

func (n *recordingNotifier) NotifyJobCompletion(_ context.Context, report JobReport) {
	n.reports = append(n.reports, report)
}

func TestNotificationObserver_ReportsTheOutcomeOnce(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	o := NewNotificationObserver(notifier, "listingImportJob")
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := start
	o.now = func() time.Time { return clock }

	o.OnJobStart(ctx, "job-1")
	o.OnChunkRolledBack(ctx)
	clock = start.Add(1500 * time.Millisecond)
	o.OnJobEnd(ctx, model.Outcome{Status: model.BatchStatusCompleted, ReadCount: 3, WriteCount: 2, FilterCount: 1, CommitCount: 1})

	require.Len(t, notifier.reports, 1)
	r := notifier.reports[0]
	assert.Equal(t, "listingImportJob", r.JobName)
	assert.Equal(t, "job-1", r.JobID)
	assert.Equal(t, 1500*time.Millisecond, r.Duration)
	assert.Equal(t, 2, r.Outcome.WriteCount)
	assert.Contains(t, r.String(), "finished with status COMPLETED in 1.5s")
	assert.Contains(t, r.String(), "read=3 written=2 filtered=1")
}

func TestJobReport_FailedRunNamesTheFailure(t *testing.T) {
	r := JobReport{
		JobName: "listingImportJob",
		JobID:   "job-2",
		Outcome: model.Outcome{Status: model.BatchStatusFailed, Err: errors.New("too many skips"), FailureKind: "SkipLimitExceededError"},
	}
	assert.Contains(t, r.String(), "finished with status FAILED")
	assert.Contains(t, r.String(), "SkipLimitExceededError: too many skips")
}
