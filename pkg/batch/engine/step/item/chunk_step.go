// Package item implements the chunk-oriented step: items are read and processed one at a
// time, gathered into chunks and written inside one transaction per chunk.
package item

import (
	"context"
	"errors"
	"reflect"

	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/core/domain/repository"
	"github.com/tigerroll/iconium/pkg/batch/core/metrics"
	tx "github.com/tigerroll/iconium/pkg/batch/core/tx"
	"github.com/tigerroll/iconium/pkg/batch/engine/step/skip"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// chunkEntry pairs a processed item with the item it was produced from,
// so a write skip can report the source record.
type chunkEntry[I, O any] struct {
	source I
	item   O
}

// ChunkStep drives a reader, a processor and a writer through the chunk state machine.
//
// A failed chunk is rolled back, every registered CacheInvalidator is cleared, the
// item named by a port.ItemWriteError is skipped and every other item is retried in
// a transaction of its own.
type ChunkStep[I, O any] struct {
	name      string
	reader    port.ItemReader[I]
	processor port.ItemProcessor[I, O]
	writer    port.ItemWriter[O]
	chunkSize int

	txManager      tx.TransactionManager
	checkpointRepo repository.CheckpointRepository
	skipPolicy     skip.SkipPolicy
	invalidators   []port.CacheInvalidator
	observers      []port.Observer

	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer

	state StepState
}

// Option configures optional collaborators of a ChunkStep.
type Option func(*options)

type options struct {
	chunkSize      int
	checkpointRepo repository.CheckpointRepository
	invalidators   []port.CacheInvalidator
	observers      []port.Observer
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// WithChunkSize sets the number of written items per transaction.
func WithChunkSize(size int) Option {
	return func(o *options) { o.chunkSize = size }
}

// WithCheckpointRepository enables saving the reader position with every commit.
func WithCheckpointRepository(repo repository.CheckpointRepository) Option {
	return func(o *options) { o.checkpointRepo = repo }
}

// WithCacheInvalidators registers caches cleared after every rollback.
func WithCacheInvalidators(invalidators ...port.CacheInvalidator) Option {
	return func(o *options) { o.invalidators = append(o.invalidators, invalidators...) }
}

// WithObservers registers observers notified of skips and rollbacks.
func WithObservers(observers ...port.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, observers...) }
}

// WithMetricRecorder sets the recorder of read, filter, write and commit counts.
func WithMetricRecorder(recorder metrics.MetricRecorder) Option {
	return func(o *options) { o.metricRecorder = recorder }
}

// WithTracer sets the tracer that opens the step span.
func WithTracer(tracer metrics.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// NewChunkStep creates a ChunkStep.
//
// Parameters:
//
//	name: The step name, used in logs, metrics and the checkpoint key.
//	reader, processor, writer: The item components.
//	txManager: Opens one transaction per chunk and per retried item.
//	skipPolicy: Classifies failures and bounds the number of skips.
//	opts: Optional collaborators.
//
// Returns:
//
//	A ChunkStep in StateIdle.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	txManager tx.TransactionManager,
	skipPolicy skip.SkipPolicy,
	opts ...Option,
) *ChunkStep[I, O] {
	o := options{
		chunkSize:      1,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.chunkSize < 1 {
		o.chunkSize = 1
	}

	return &ChunkStep[I, O]{
		name:           name,
		reader:         reader,
		processor:      processor,
		writer:         writer,
		chunkSize:      o.chunkSize,
		txManager:      txManager,
		checkpointRepo: o.checkpointRepo,
		skipPolicy:     skipPolicy,
		invalidators:   o.invalidators,
		observers:      o.observers,
		metricRecorder: o.metricRecorder,
		tracer:         o.tracer,
		state:          StateIdle,
	}
}

// StepName returns the step name.
func (s *ChunkStep[I, O]) StepName() string {
	return s.name
}

// State returns the current state of the step.
func (s *ChunkStep[I, O]) State() StepState {
	return s.state
}

func (s *ChunkStep[I, O]) transition(next StepState) {
	if s.state != next {
		logger.Debugf("ChunkStep '%s': %s -> %s", s.name, s.state, next)
		s.state = next
	}
}

// Execute runs the step until the input is exhausted or a fatal error occurs.
//
// Parameters:
//
//	ctx: Cancelling ctx stops the step between items; the last committed checkpoint stays intact.
//	jobExecution: The owning job execution.
//	restart: When true the reader is positioned from the saved checkpoint.
//
// Returns:
//
//	The StepExecution with the final counters, and the fatal error when the step ended in StateFailed.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, restart bool) (*model.StepExecution, error) {
	stepExecution := model.NewStepExecution(jobExecution, s.name)
	stepExecution.MarkAsStarted()

	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()

	logger.Infof("ChunkStep '%s' executing. Chunk size: %d, skip limit: %d", s.name, s.chunkSize, s.skipPolicy.GetSkipLimit())

	ec, err := s.loadCheckpoint(ctx, jobExecution.JobName, restart)
	if err != nil {
		return s.fail(ctx, stepExecution, err)
	}

	s.transition(StateReading)
	if err := s.reader.Open(ctx, ec); err != nil {
		return s.fail(ctx, stepExecution, err)
	}

	runErr := s.run(ctx, stepExecution)

	if closeErr := s.reader.Close(ctx); closeErr != nil {
		logger.Warnf("ChunkStep '%s': failed to close ItemReader: %v", s.name, closeErr)
	}
	if runErr != nil {
		return s.fail(ctx, stepExecution, runErr)
	}

	s.clearCheckpoint(ctx, jobExecution.JobName)
	s.transition(StateDone)
	stepExecution.MarkAsCompleted()
	logger.Infof("ChunkStep '%s' finished. Read: %d, Written: %d, Filtered: %d, Skipped: %d",
		s.name, stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.FilterCount, stepExecution.SkipCount())
	return stepExecution, nil
}

func (s *ChunkStep[I, O]) fail(ctx context.Context, stepExecution *model.StepExecution, err error) (*model.StepExecution, error) {
	s.transition(StateFailed)
	s.tracer.RecordError(ctx, s.name, err)
	stepExecution.MarkAsFailed()
	logger.Errorf("ChunkStep '%s' failed: %v", s.name, err)
	return stepExecution, err
}

// run is the Reading / ChunkOpen / Committing loop.
func (s *ChunkStep[I, O]) run(ctx context.Context, stepExecution *model.StepExecution) error {
	for {
		chunk, consumed, eof, err := s.readChunk(ctx, stepExecution)
		if err != nil {
			return err
		}
		if consumed > 0 {
			if err := s.commitChunk(ctx, stepExecution, chunk); err != nil {
				return err
			}
		}
		if eof {
			return nil
		}
		s.transition(StateReading)
	}
}

// readChunk reads and processes items until the chunk holds chunkSize items or the input ends.
// consumed counts every element taken from the reader, including filtered and skipped ones.
func (s *ChunkStep[I, O]) readChunk(ctx context.Context, stepExecution *model.StepExecution) (chunk []chunkEntry[I, O], consumed int, eof bool, err error) {
	for len(chunk) < s.chunkSize {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, consumed, false, ctxErr
		}

		item, readErr := s.reader.Read(ctx)
		if readErr != nil {
			if errors.Is(readErr, port.ErrNoMoreItems) {
				return chunk, consumed, true, nil
			}
			var payload interface{}
			var withPayload port.SkippedItemPayload
			if errors.As(readErr, &withPayload) {
				payload = withPayload.Payload()
			}
			if skipErr := s.skip(ctx, stepExecution, port.PhaseRead, payload, readErr); skipErr != nil {
				return nil, consumed, false, skipErr
			}
			consumed++
			continue
		}
		consumed++
		stepExecution.ReadCount++
		s.metricRecorder.RecordItemRead(ctx, s.name)

		out, processErr := s.processor.Process(ctx, item)
		if processErr != nil {
			if skipErr := s.skip(ctx, stepExecution, port.PhaseTransform, item, processErr); skipErr != nil {
				return nil, consumed, false, skipErr
			}
			continue
		}
		if isNil(out) {
			stepExecution.FilterCount++
			s.metricRecorder.RecordItemFilter(ctx, s.name)
			continue
		}
		chunk = append(chunk, chunkEntry[I, O]{source: item, item: out})
		s.transition(StateChunkOpen)
	}
	return chunk, consumed, false, nil
}

// skip applies the skip policy to err. It returns nil when the item was skipped and the
// error that ends the step otherwise.
func (s *ChunkStep[I, O]) skip(ctx context.Context, stepExecution *model.StepExecution, phase port.SkipPhase, payload interface{}, err error) error {
	if !s.skipPolicy.ShouldSkip(err) {
		return err
	}
	if !s.skipPolicy.CanSkip() {
		return exception.NewSkipLimitExceededError(s.skipPolicy.GetSkipLimit(), err)
	}

	previous := s.state
	s.transition(StateSkippingItem)
	s.skipPolicy.IncrementSkipCount()
	switch phase {
	case port.PhaseRead:
		stepExecution.SkipReadCount++
	case port.PhaseTransform:
		stepExecution.SkipProcessCount++
	case port.PhaseWrite:
		stepExecution.SkipWriteCount++
	}
	logger.Warnf("ChunkStep '%s': item skipped in %s phase (Skip Count: %d/%d): %v",
		s.name, phase, s.skipPolicy.GetSkipCount(), s.skipPolicy.GetSkipLimit(), err)
	for _, o := range s.observers {
		o.OnSkip(ctx, phase, payload, err)
	}
	s.transition(previous)
	return nil
}

// commitChunk writes chunk in one transaction together with the checkpoint. On a write
// failure it rolls back and falls back to writing items one by one.
func (s *ChunkStep[I, O]) commitChunk(ctx context.Context, stepExecution *model.StepExecution, chunk []chunkEntry[I, O]) error {
	s.transition(StateCommitting)

	t, err := s.txManager.Begin(ctx)
	if err != nil {
		return exception.NewBatchError(s.name, "failed to begin transaction for chunk", err, false, false)
	}

	var writeErr error
	if len(chunk) > 0 {
		writeErr = s.writer.Write(ctx, t, outputs(chunk))
	}
	if writeErr == nil {
		if err := s.saveCheckpoint(ctx, t, stepExecution); err != nil {
			s.rollback(ctx, stepExecution, t)
			return err
		}
		if err := s.txManager.Commit(t); err != nil {
			s.clearCaches()
			return exception.NewBatchError(s.name, "failed to commit transaction for chunk", err, false, false)
		}
		stepExecution.CommitCount++
		stepExecution.WriteCount += len(chunk)
		s.metricRecorder.RecordItemWrite(ctx, s.name, len(chunk))
		s.metricRecorder.RecordChunkCommit(ctx, s.name, len(chunk))
		logger.Debugf("ChunkStep '%s': chunk of %d items committed.", s.name, len(chunk))
		return nil
	}

	logger.Warnf("ChunkStep '%s': chunk of %d items failed, rolling back: %v", s.name, len(chunk), writeErr)
	s.rollback(ctx, stepExecution, t)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !s.skipPolicy.ShouldSkip(writeErr) {
		return writeErr
	}
	return s.retryIndividually(ctx, stepExecution, chunk, writeErr)
}

// retryIndividually skips the item blamed by writeErr and writes every other item in its
// own transaction. The checkpoint is saved once the pass is complete.
func (s *ChunkStep[I, O]) retryIndividually(ctx context.Context, stepExecution *model.StepExecution, chunk []chunkEntry[I, O], writeErr error) error {
	failed := -1
	var itemErr *port.ItemWriteError
	if errors.As(writeErr, &itemErr) && itemErr.Index >= 0 && itemErr.Index < len(chunk) {
		failed = itemErr.Index
		if err := s.skip(ctx, stepExecution, port.PhaseWrite, chunk[failed].source, itemErr.Err); err != nil {
			return err
		}
	}

	for i, entry := range chunk {
		if i == failed {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		s.transition(StateCommitting)
		t, err := s.txManager.Begin(ctx)
		if err != nil {
			return exception.NewBatchError(s.name, "failed to begin transaction for item retry", err, false, false)
		}
		if err := s.writer.Write(ctx, t, []O{entry.item}); err != nil {
			s.rollback(ctx, stepExecution, t)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if skipErr := s.skip(ctx, stepExecution, port.PhaseWrite, entry.source, unwrapItemError(err)); skipErr != nil {
				return skipErr
			}
			continue
		}
		if err := s.txManager.Commit(t); err != nil {
			s.clearCaches()
			return exception.NewBatchError(s.name, "failed to commit transaction for item retry", err, false, false)
		}
		stepExecution.WriteCount++
		s.metricRecorder.RecordItemWrite(ctx, s.name, 1)
	}

	t, err := s.txManager.Begin(ctx)
	if err != nil {
		return exception.NewBatchError(s.name, "failed to begin transaction for checkpoint", err, false, false)
	}
	if err := s.saveCheckpoint(ctx, t, stepExecution); err != nil {
		_ = s.txManager.Rollback(t)
		return err
	}
	if err := s.txManager.Commit(t); err != nil {
		return exception.NewBatchError(s.name, "failed to commit checkpoint", err, false, false)
	}
	stepExecution.CommitCount++
	return nil
}

// rollback discards t and clears every registered cache before any retry can read from it.
func (s *ChunkStep[I, O]) rollback(ctx context.Context, stepExecution *model.StepExecution, t tx.Tx) {
	s.transition(StateRollingBack)
	if err := s.txManager.Rollback(t); err != nil {
		logger.Warnf("ChunkStep '%s': rollback failed: %v", s.name, err)
	}
	stepExecution.RollbackCount++
	s.clearCaches()
	for _, o := range s.observers {
		o.OnChunkRolledBack(ctx)
	}
}

// clearCaches drops every entry computed under a transaction that did not commit.
func (s *ChunkStep[I, O]) clearCaches() {
	for _, inv := range s.invalidators {
		inv.Clear()
	}
}

func (s *ChunkStep[I, O]) loadCheckpoint(ctx context.Context, jobName string, restart bool) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	if !restart || s.checkpointRepo == nil {
		return ec, nil
	}

	t, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, exception.NewBatchError(s.name, "failed to begin transaction for checkpoint lookup", err, false, false)
	}
	data, err := s.checkpointRepo.FindCheckpointData(ctx, t, jobName, s.name)
	if rbErr := s.txManager.Rollback(t); rbErr != nil {
		logger.Debugf("ChunkStep '%s': closing checkpoint lookup transaction: %v", s.name, rbErr)
	}
	if errors.Is(err, repository.ErrCheckpointDataNotFound) {
		logger.Infof("ChunkStep '%s': no checkpoint found, starting from the beginning.", s.name)
		return ec, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Infof("ChunkStep '%s': checkpoint loaded (saved %s). Restoring state.", s.name, data.UpdatedAt.Format("2006-01-02 15:04:05"))
	return data.ExecutionContext, nil
}

func (s *ChunkStep[I, O]) saveCheckpoint(ctx context.Context, t tx.Tx, stepExecution *model.StepExecution) error {
	ec, err := s.reader.GetExecutionContext(ctx)
	if err != nil {
		return exception.NewBatchError(s.name, "failed to get ExecutionContext from ItemReader", err, false, false)
	}
	stepExecution.ExecutionContext = ec.Copy()
	if s.checkpointRepo == nil {
		return nil
	}
	return s.checkpointRepo.SaveCheckpointData(ctx, t, &model.CheckpointData{
		JobName:          stepExecution.JobExecution.JobName,
		StepName:         s.name,
		ExecutionContext: ec,
	})
}

// clearCheckpoint removes the checkpoint of a completed run so the next run starts over.
func (s *ChunkStep[I, O]) clearCheckpoint(ctx context.Context, jobName string) {
	if s.checkpointRepo == nil {
		return
	}
	t, err := s.txManager.Begin(ctx)
	if err != nil {
		logger.Warnf("ChunkStep '%s': failed to clear checkpoint: %v", s.name, err)
		return
	}
	if err := s.checkpointRepo.DeleteCheckpointData(ctx, t, jobName, s.name); err != nil {
		_ = s.txManager.Rollback(t)
		logger.Warnf("ChunkStep '%s': failed to clear checkpoint: %v", s.name, err)
		return
	}
	if err := s.txManager.Commit(t); err != nil {
		logger.Warnf("ChunkStep '%s': failed to clear checkpoint: %v", s.name, err)
	}
}

func outputs[I, O any](chunk []chunkEntry[I, O]) []O {
	items := make([]O, len(chunk))
	for i, e := range chunk {
		items[i] = e.item
	}
	return items
}

func unwrapItemError(err error) error {
	var itemErr *port.ItemWriteError
	if errors.As(err, &itemErr) {
		return itemErr.Err
	}
	return err
}

// isNil reports whether a processor output means "filtered".
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
