package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
)

func TestPrometheusRecorder_CountsAreLabelledWithTheRunningJob(t *testing.T) {
	ctx := context.Background()
	r := NewPrometheusRecorder()

	je := model.NewJobExecution("listingImportJob")
	je.MarkAsStarted()
	r.RecordJobStart(ctx, je)

	r.RecordItemRead(ctx, "importStep")
	r.RecordItemRead(ctx, "importStep")
	r.RecordItemFilter(ctx, "importStep")
	r.RecordItemWrite(ctx, "importStep", 5)
	r.RecordItemSkip(ctx, "importStep", "transform", "ValidationError")
	r.RecordChunkCommit(ctx, "importStep", 5)
	r.RecordChunkRollback(ctx, "importStep")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepReadCount.WithLabelValues("listingImportJob", "importStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepFilterCount.WithLabelValues("listingImportJob", "importStep")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.stepWriteCount.WithLabelValues("listingImportJob", "importStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemSkipCounter.WithLabelValues("listingImportJob", "importStep", "transform", "ValidationError")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepCommitCount.WithLabelValues("listingImportJob", "importStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepRollbackCount.WithLabelValues("listingImportJob", "importStep")))

	time.Sleep(time.Millisecond)
	je.MarkAsCompleted()
	r.RecordJobEnd(ctx, je, model.Outcome{Status: model.BatchStatusCompleted})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobStatusCounter.WithLabelValues("listingImportJob", "COMPLETED")))

	families, err := r.GetRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
