// Package importjob assembles the listing import pipeline from configuration.
package importjob

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tigerroll/iconium/internal/cache"
	"github.com/tigerroll/iconium/internal/domain/model"
	"github.com/tigerroll/iconium/internal/repository"
	"github.com/tigerroll/iconium/internal/resolver"
	"github.com/tigerroll/iconium/internal/skiplog"
	"github.com/tigerroll/iconium/internal/step/processor"
	"github.com/tigerroll/iconium/internal/step/reader"
	"github.com/tigerroll/iconium/internal/step/writer"
	"github.com/tigerroll/iconium/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm"
	storage "github.com/tigerroll/iconium/pkg/batch/adapter/storage"
	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	config "github.com/tigerroll/iconium/pkg/batch/core/config"
	batchmodel "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	batchrepo "github.com/tigerroll/iconium/pkg/batch/core/domain/repository"
	"github.com/tigerroll/iconium/pkg/batch/core/job"
	"github.com/tigerroll/iconium/pkg/batch/core/metrics"
	"github.com/tigerroll/iconium/pkg/batch/core/tx"
	"github.com/tigerroll/iconium/pkg/batch/engine/step/item"
	"github.com/tigerroll/iconium/pkg/batch/engine/step/skip"
	"github.com/tigerroll/iconium/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/iconium/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/iconium/pkg/batch/listener/logging"
	metricsobserver "github.com/tigerroll/iconium/pkg/batch/listener/metrics"
	"github.com/tigerroll/iconium/pkg/batch/listener/notification"
	"github.com/tigerroll/iconium/pkg/batch/listener/tracing"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// StepName is the name of the single chunk step. It is part of the checkpoint key.
const StepName = "listingImportStep"

const module = "ListingImportJob"

// Storage resolves input and skip-log locations.
type Storage interface {
	reader.LocationResolver
	skiplog.LocationResolver
}

// Dependencies are the collaborators the job is assembled from.
type Dependencies struct {
	Config     *config.Config
	DBResolver database.DBConnectionResolver
	Storage    Storage
	// MetricRecorder and Tracer may be nil.
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	// Notifier receives the final job report. It defaults to the log.
	Notifier notification.Notifier
	// AddressAuthority replaces the authority views of the configured schema when set.
	AddressAuthority resolver.AddressAuthority
}

// ListingImportJob is an assembled, runnable import.
type ListingImportJob struct {
	*job.SimpleJob
	restart bool
}

// Run executes the import with the restart flag it was built with.
func (j *ListingImportJob) Run(ctx context.Context) batchmodel.Outcome {
	return j.SimpleJob.Run(ctx, j.restart)
}

// Build wires reader, transformer, resolver, writer, skip log and observers into a
// chunk step run by a SimpleJob.
func Build(ctx context.Context, deps Dependencies) (*ListingImportJob, error) {
	cfg := deps.Config
	jc := cfg.Iconium.Job
	if jc.Input == "" {
		return nil, exception.NewBatchError(module, "no input location configured", nil, false, false)
	}
	if jc.SkipFile == "" {
		return nil, exception.NewBatchError(module, "no skip file location configured", nil, false, false)
	}
	ref := cfg.Surfin.Infrastructure.CheckpointDBRef
	if ref != "" && ref != config.CheckpointInMemory && ref != jc.WorkloadDBRef {
		return nil, exception.NewBatchError(module,
			fmt.Sprintf("checkpoint connection '%s' must be the workload connection '%s'", ref, jc.WorkloadDBRef), nil, false, false)
	}

	recorder := deps.MetricRecorder
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}

	skipPolicy, err := skip.NewDefaultSkipPolicyFactory().Create(jc.SkipLimit, jc.SkippableExceptions)
	if err != nil {
		return nil, err
	}
	lookups, err := cache.New(jc.CacheSize)
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to create lookup cache", err, false, false)
	}

	authority, err := authorityExecutor(ctx, deps.DBResolver, jc)
	if err != nil {
		return nil, err
	}
	addresses := deps.AddressAuthority
	if addresses == nil {
		addresses = repository.NewAddressRepository(jc.AuthoritySchema)
	}
	entityResolver := resolver.NewEntityResolver(
		addresses,
		repository.NewPropertyRepository(),
		repository.NewSchoolRepository(),
		lookups,
		authority,
	)

	var checkpoints batchrepo.CheckpointRepository = sqlrepo.NewSQLCheckpointRepository()
	if ref == config.CheckpointInMemory {
		checkpoints = inmemory.NewInMemoryCheckpointRepository()
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = notification.NewLogNotifier()
	}

	skipLog := skiplog.NewSkipLog(deps.Storage, jc.SkipFile, jc.StorageRef)
	observers := []port.Observer{
		skipLog,
		logging.NewLoggingObserver(jc.Name),
		notification.NewNotificationObserver(notifier, jc.Name),
		tracing.NewTracingObserver(tracer),
		metricsobserver.NewMetricsObserver(recorder, jc.Name, StepName, cfg.Surfin.Infrastructure.Metrics.PushgatewayURL),
	}

	step := item.NewChunkStep[json.RawMessage, *model.Listing](
		StepName,
		reader.NewListingReader(deps.Storage, jc.Input, jc.StorageRef),
		processor.NewListingProcessor(),
		writer.NewListingWriter(entityResolver),
		gormadapter.NewResolvingTransactionManager(deps.DBResolver, jc.WorkloadDBRef),
		skipPolicy,
		item.WithChunkSize(jc.ChunkSize),
		item.WithCheckpointRepository(checkpoints),
		item.WithCacheInvalidators(lookups),
		item.WithObservers(observers...),
		item.WithMetricRecorder(recorder),
		item.WithTracer(tracer),
	)

	logger.Debugf("%s: assembled '%s' (input: %s, skip file: %s, chunk size: %d, skip limit: %d).",
		module, jc.Name, jc.Input, jc.SkipFile, jc.ChunkSize, jc.SkipLimit)

	return &ListingImportJob{
		SimpleJob: job.NewSimpleJob(jc.Name, step, observers, []job.ScopedResource{skipLog}, recorder, tracer),
		restart:   jc.Restart,
	}, nil
}

// authorityExecutor returns the connection the authority views are read through, or nil
// when they live in the workload database and are read inside the chunk transaction.
func authorityExecutor(ctx context.Context, dbResolver database.DBConnectionResolver, jc config.JobConfig) (tx.TxExecutor, error) {
	if jc.AuthorityDBRef == "" || jc.AuthorityDBRef == jc.WorkloadDBRef {
		return nil, nil
	}
	conn, err := dbResolver.ResolveDBConnection(ctx, jc.AuthorityDBRef)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to resolve authority connection '%s'", jc.AuthorityDBRef), err, false, false)
	}
	return conn, nil
}

var _ Storage = (*storage.ConnectionResolver)(nil)
