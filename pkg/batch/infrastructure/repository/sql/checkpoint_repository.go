// Package sql persists step checkpoints in the batch_checkpoints table.
package sql

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/iconium/pkg/batch/core/tx"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

// CheckpointEntity is the persisted form of model.CheckpointData.
type CheckpointEntity struct {
	JobName          string                 `gorm:"column:job_name;primaryKey"`
	StepName         string                 `gorm:"column:step_name;primaryKey"`
	ExecutionContext model.ExecutionContext `gorm:"column:execution_context"`
	UpdatedAt        time.Time              `gorm:"column:updated_at"`
}

// TableName returns the checkpoint table name.
func (CheckpointEntity) TableName() string {
	return "batch_checkpoints"
}

// SQLCheckpointRepository implements repository.CheckpointRepository with plain SQL through tx.TxExecutor.
type SQLCheckpointRepository struct{}

// NewSQLCheckpointRepository creates a new SQLCheckpointRepository.
func NewSQLCheckpointRepository() *SQLCheckpointRepository {
	return &SQLCheckpointRepository{}
}

// FindCheckpointData implements repository.CheckpointRepository.
func (r *SQLCheckpointRepository) FindCheckpointData(ctx context.Context, executor tx.TxExecutor, jobName, stepName string) (*model.CheckpointData, error) {
	const op = "SQLCheckpointRepository.FindCheckpointData"

	var entities []CheckpointEntity
	n, err := executor.ExecuteRawQuery(ctx, &entities,
		`SELECT job_name, step_name, execution_context, updated_at FROM batch_checkpoints WHERE job_name = ? AND step_name = ?`,
		jobName, stepName)
	if err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find checkpoint for %s/%s", jobName, stepName), err, false, false)
	}
	if n == 0 || len(entities) == 0 {
		return nil, repository.ErrCheckpointDataNotFound
	}

	e := entities[0]
	ec := e.ExecutionContext
	if ec == nil {
		ec = model.NewExecutionContext()
	}
	return &model.CheckpointData{
		JobName:          e.JobName,
		StepName:         e.StepName,
		ExecutionContext: ec,
		UpdatedAt:        e.UpdatedAt,
	}, nil
}

// SaveCheckpointData implements repository.CheckpointRepository.
func (r *SQLCheckpointRepository) SaveCheckpointData(ctx context.Context, executor tx.TxExecutor, data *model.CheckpointData) error {
	const op = "SQLCheckpointRepository.SaveCheckpointData"

	if data.UpdatedAt.IsZero() {
		data.UpdatedAt = time.Now()
	}
	entity := &CheckpointEntity{
		JobName:          data.JobName,
		StepName:         data.StepName,
		ExecutionContext: data.ExecutionContext,
		UpdatedAt:        data.UpdatedAt,
	}

	conflictCols := []string{"job_name", "step_name"}
	updateCols := []string{"execution_context", "updated_at"}
	if _, err := executor.ExecuteUpsert(ctx, entity, entity.TableName(), conflictCols, updateCols); err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save checkpoint for %s/%s", data.JobName, data.StepName), err, false, false)
	}
	return nil
}

// DeleteCheckpointData implements repository.CheckpointRepository.
func (r *SQLCheckpointRepository) DeleteCheckpointData(ctx context.Context, executor tx.TxExecutor, jobName, stepName string) error {
	const op = "SQLCheckpointRepository.DeleteCheckpointData"

	_, err := executor.ExecuteUpdate(ctx, &CheckpointEntity{}, tx.OperationDelete, CheckpointEntity{}.TableName(),
		map[string]interface{}{"job_name": jobName, "step_name": stepName})
	if err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to delete checkpoint for %s/%s", jobName, stepName), err, false, false)
	}
	return nil
}

var _ repository.CheckpointRepository = (*SQLCheckpointRepository)(nil)
