package inmemory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/core/domain/repository"
	"github.com/tigerroll/iconium/pkg/batch/infrastructure/repository/inmemory"
)

func TestInMemoryCheckpointRepository_SaveFindDelete(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryCheckpointRepository()

	_, err := repo.FindCheckpointData(ctx, nil, "listingImportJob", "importStep")
	assert.ErrorIs(t, err, repository.ErrCheckpointDataNotFound)

	ec := model.NewExecutionContext()
	ec.Put("reader.read.count", 2500)
	require.NoError(t, repo.SaveCheckpointData(ctx, nil, &model.CheckpointData{
		JobName: "listingImportJob", StepName: "importStep", ExecutionContext: ec,
	}))
	ec.Put("reader.read.count", 5000)

	found, err := repo.FindCheckpointData(ctx, nil, "listingImportJob", "importStep")
	require.NoError(t, err)
	count, _ := found.ExecutionContext.GetInt("reader.read.count")
	assert.Equal(t, 2500, count, "later changes to the saved context are not seen")
	assert.False(t, found.UpdatedAt.IsZero())

	found.ExecutionContext.Put("reader.read.count", 1)
	again, err := repo.FindCheckpointData(ctx, nil, "listingImportJob", "importStep")
	require.NoError(t, err)
	count, _ = again.ExecutionContext.GetInt("reader.read.count")
	assert.Equal(t, 2500, count)

	_, err = repo.FindCheckpointData(ctx, nil, "otherJob", "importStep")
	assert.ErrorIs(t, err, repository.ErrCheckpointDataNotFound)

	require.NoError(t, repo.DeleteCheckpointData(ctx, nil, "listingImportJob", "importStep"))
	_, err = repo.FindCheckpointData(ctx, nil, "listingImportJob", "importStep")
	assert.ErrorIs(t, err, repository.ErrCheckpointDataNotFound)
}
