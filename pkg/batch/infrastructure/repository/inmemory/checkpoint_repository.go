// Package inmemory keeps step checkpoints in process memory.
// It is used when no checkpoint database is configured, so a restart only resumes
// within the same process.
package inmemory

import (
	"context"
	"sync"
	"time"

	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/iconium/pkg/batch/core/tx"
)

type checkpointKey struct {
	jobName  string
	stepName string
}

// InMemoryCheckpointRepository implements repository.CheckpointRepository with a map.
// The executor arguments are ignored.
type InMemoryCheckpointRepository struct {
	mu          sync.RWMutex
	checkpoints map[checkpointKey]*model.CheckpointData
}

// NewInMemoryCheckpointRepository creates an empty InMemoryCheckpointRepository.
func NewInMemoryCheckpointRepository() *InMemoryCheckpointRepository {
	return &InMemoryCheckpointRepository{
		checkpoints: make(map[checkpointKey]*model.CheckpointData),
	}
}

// FindCheckpointData returns a copy of the stored checkpoint or ErrCheckpointDataNotFound.
func (r *InMemoryCheckpointRepository) FindCheckpointData(ctx context.Context, _ tx.TxExecutor, jobName, stepName string) (*model.CheckpointData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.checkpoints[checkpointKey{jobName, stepName}]
	if !ok {
		return nil, repository.ErrCheckpointDataNotFound
	}
	return clone(data), nil
}

// SaveCheckpointData overwrites any checkpoint stored for the same job and step.
func (r *InMemoryCheckpointRepository) SaveCheckpointData(ctx context.Context, _ tx.TxExecutor, data *model.CheckpointData) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data.UpdatedAt.IsZero() {
		data.UpdatedAt = time.Now()
	}
	r.checkpoints[checkpointKey{data.JobName, data.StepName}] = clone(data)
	return nil
}

func (r *InMemoryCheckpointRepository) DeleteCheckpointData(ctx context.Context, _ tx.TxExecutor, jobName, stepName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.checkpoints, checkpointKey{jobName, stepName})
	return nil
}

// clone keeps callers from changing stored state through the returned pointer.
func clone(data *model.CheckpointData) *model.CheckpointData {
	c := *data
	if data.ExecutionContext != nil {
		c.ExecutionContext = data.ExecutionContext.Copy()
	}
	return &c
}

var _ repository.CheckpointRepository = (*InMemoryCheckpointRepository)(nil)
