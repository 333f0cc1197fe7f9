// Package port defines the contracts between the chunk step and the components it drives:
// item readers, processors and writers, the observers notified of skips and rollbacks,
// and the cache the step invalidates before retrying rolled-back items.
package port

import (
	"context"
	"errors"
	"fmt"

	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/iconium/pkg/batch/core/tx"
)

// ErrNoMoreItems is returned by ItemReader.Read when the input is exhausted.
var ErrNoMoreItems = errors.New("no more items to read")

// ItemReader reads items one at a time.
type ItemReader[O any] interface {
	// Open prepares the reader. ec carries the restart state saved by a previous run.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Read returns the next item, or ErrNoMoreItems at the end of the input.
	Read(ctx context.Context) (O, error)
	// Close releases the reader. It is safe to call more than once.
	Close(ctx context.Context) error
	// SetExecutionContext replaces the reader's restart state.
	SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error
	// GetExecutionContext returns the restart state reflecting every item read so far.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// ItemProcessor transforms an item. Returning a nil output with a nil error filters the item out.
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter writes a chunk of items inside the caller's transaction.
type ItemWriter[I any] interface {
	// Write persists items through t. When a single item is to blame the returned
	// error should be an *ItemWriteError naming its index.
	Write(ctx context.Context, t tx.Tx, items []I) error
}

// ItemWriteError identifies the item of a chunk that made ItemWriter.Write fail.
type ItemWriteError struct {
	// Index is the position of the offending item in the chunk.
	Index int
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *ItemWriteError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying failure.
func (e *ItemWriteError) Unwrap() error {
	return e.Err
}

// SkipPhase names the phase in which a skipped item failed.
type SkipPhase string

const (
	PhaseRead      SkipPhase = "read"
	PhaseTransform SkipPhase = "transform"
	PhaseWrite     SkipPhase = "write"
)

// Observer is notified synchronously at the documented points of a job run.
type Observer interface {
	// OnJobStart is called once, before the first item is read.
	OnJobStart(ctx context.Context, jobID string)
	// OnSkip is called for every item absorbed by the skip policy.
	// For read and transform skips payload is the item as read (or the offending
	// input when reading failed); for write skips it is the raw source item.
	OnSkip(ctx context.Context, phase SkipPhase, payload interface{}, err error)
	// OnChunkRolledBack is called after a chunk transaction was rolled back and
	// the lookup cache cleared, before its items are retried.
	OnChunkRolledBack(ctx context.Context)
	// OnJobEnd is called once on every exit path.
	OnJobEnd(ctx context.Context, outcome model.Outcome)
}

// CacheInvalidator is implemented by caches that must not survive a rolled-back transaction.
type CacheInvalidator interface {
	Clear()
}

// SkippedItemPayload is implemented by errors that carry the input that could not be read.
type SkippedItemPayload interface {
	Payload() interface{}
}

// NoopObserver implements Observer with empty methods. Embed it to implement a subset.
type NoopObserver struct{}

func (NoopObserver) OnJobStart(context.Context, string)                    {}
func (NoopObserver) OnSkip(context.Context, SkipPhase, interface{}, error) {}
func (NoopObserver) OnChunkRolledBack(context.Context)                     {}
func (NoopObserver) OnJobEnd(context.Context, model.Outcome)               {}
