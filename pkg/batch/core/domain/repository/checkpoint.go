// Package repository defines persistence of step restart state.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/iconium/pkg/batch/core/tx"
)

// ErrCheckpointDataNotFound is returned when no checkpoint exists for a step.
var ErrCheckpointDataNotFound = errors.New("checkpoint data not found")

// CheckpointRepository stores the restart state of a step.
// Every method runs through the executor it is given, so a checkpoint can be saved
// inside the transaction of the chunk it describes.
type CheckpointRepository interface {
	// FindCheckpointData returns the checkpoint of jobName/stepName or ErrCheckpointDataNotFound.
	FindCheckpointData(ctx context.Context, executor tx.TxExecutor, jobName, stepName string) (*model.CheckpointData, error)
	// SaveCheckpointData inserts or replaces the checkpoint.
	SaveCheckpointData(ctx context.Context, executor tx.TxExecutor, data *model.CheckpointData) error
	// DeleteCheckpointData removes the checkpoint so the next run starts from the beginning.
	DeleteCheckpointData(ctx context.Context, executor tx.TxExecutor, jobName, stepName string) error
}
