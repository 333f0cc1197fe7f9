// Package app wires the import job and its infrastructure into an fx application.
package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/iconium/internal/importjob"
	"github.com/tigerroll/iconium/internal/migrations"
	"github.com/tigerroll/iconium/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/iconium/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm/sqlite"
	storage "github.com/tigerroll/iconium/pkg/batch/adapter/storage"
	"github.com/tigerroll/iconium/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/iconium/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/iconium/pkg/batch/component/tasklet/migration"
	config "github.com/tigerroll/iconium/pkg/batch/core/config"
	"github.com/tigerroll/iconium/pkg/batch/core/metrics"
	inframetrics "github.com/tigerroll/iconium/pkg/batch/infrastructure/metrics"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// DBProviderMap is used by main.go to select the database providers to register.
var DBProviderMap = map[string]func(cfg *config.Config) database.DBProvider{
	postgres.DBType: postgres.NewProvider,
	"redshift":      postgres.NewProvider,
	mysql.DBType:    mysql.NewProvider,
	sqlite.DBType:   sqlite.NewProvider,
}

// DBProviderOption registers one database provider in the provider group.
func DBProviderOption(provider func(cfg *config.Config) database.DBProvider) fx.Option {
	return fx.Provide(fx.Annotate(provider, fx.ResultTags(database.DBProviderGroup)))
}

// DBResolverParams are the dependencies of NewDBConnectionResolver.
type DBResolverParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
	Providers []database.DBProvider `group:"db_providers"`
}

// NewDBConnectionResolver resolves named connections through the registered providers and
// closes every connection when the application stops.
func NewDBConnectionResolver(p DBResolverParams) *gormadapter.GormDBConnectionResolver {
	resolver := gormadapter.NewGormDBConnectionResolver(p.Cfg, p.Providers...)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Debugf("Closing database connections.")
			return resolver.CloseAll()
		},
	})
	return resolver
}

// StorageResolverParams are the dependencies of NewStorageResolver.
type StorageResolverParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
	Providers []storage.StorageProvider `group:"storage_providers"`
}

// NewStorageResolver resolves input and skip-log locations.
func NewStorageResolver(p StorageResolverParams) *storage.ConnectionResolver {
	resolver := storage.NewConnectionResolver(p.Cfg, p.Providers...)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Debugf("Closing storage connections.")
			return resolver.CloseAll()
		},
	})
	return resolver
}

// NewMetricRecorder returns a Prometheus recorder when metrics are enabled.
func NewMetricRecorder(cfg *config.Config) metrics.MetricRecorder {
	if !cfg.Surfin.Infrastructure.Metrics.Enabled {
		return metrics.NewNoOpMetricRecorder()
	}
	logger.Infof("Prometheus metrics enabled (pushgateway: '%s').", cfg.Surfin.Infrastructure.Metrics.PushgatewayURL)
	return inframetrics.NewPrometheusRecorder()
}

// TracerParams are the dependencies of NewTracer.
type TracerParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
	AppCtx    context.Context `name:"appCtx"`
}

// NewTracer sets up the configured span exporter. Pending spans are flushed on stop.
func NewTracer(p TracerParams) (metrics.Tracer, error) {
	provider, shutdown, err := inframetrics.NewTracerProvider(p.AppCtx, p.Cfg.Surfin.Infrastructure.Tracing)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{OnStop: shutdown})
	return inframetrics.NewOpenTelemetryTracer(provider), nil
}

// WorkloadMigrator applies the embedded schema to the workload database.
type WorkloadMigrator struct {
	cfg       *config.Config
	providers map[string]database.DBProvider
}

// MigratorParams are the dependencies of NewWorkloadMigrator.
type MigratorParams struct {
	fx.In
	Cfg       *config.Config
	Providers []database.DBProvider `group:"db_providers"`
}

// NewWorkloadMigrator creates a WorkloadMigrator.
func NewWorkloadMigrator(p MigratorParams) *WorkloadMigrator {
	providers := make(map[string]database.DBProvider, len(p.Providers))
	for _, provider := range p.Providers {
		providers[provider.Type()] = provider
	}
	return &WorkloadMigrator{cfg: p.Cfg, providers: providers}
}

// Up applies every pending migration.
func (m *WorkloadMigrator) Up(ctx context.Context) error {
	name := m.cfg.Iconium.Job.WorkloadDBRef
	raw, err := m.cfg.AdapterConfig("database", name)
	if err != nil {
		return err
	}
	dbCfg, err := dbconfig.Decode(raw)
	if err != nil {
		return fmt.Errorf("connection '%s': %w", name, err)
	}
	provider, ok := m.providers[dbCfg.Type]
	if !ok {
		return fmt.Errorf("no database provider registered for type '%s' of connection '%s'", dbCfg.Type, name)
	}
	dir, err := migrations.Dir(dbCfg.Type)
	if err != nil {
		return err
	}
	return migration.NewMigrator(provider, name).Up(ctx, migrations.FS, dir, migration.DefaultMigrationsTable)
}

// ListingImportJobParams are the dependencies of NewListingImportJob.
type ListingImportJobParams struct {
	fx.In
	AppCtx     context.Context `name:"appCtx"`
	Cfg        *config.Config
	DBResolver *gormadapter.GormDBConnectionResolver
	Storage    *storage.ConnectionResolver
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer
}

// NewListingImportJob assembles the import job.
func NewListingImportJob(p ListingImportJobParams) (*importjob.ListingImportJob, error) {
	return importjob.Build(p.AppCtx, importjob.Dependencies{
		Config:         p.Cfg,
		DBResolver:     p.DBResolver,
		Storage:        p.Storage,
		MetricRecorder: p.Recorder,
		Tracer:         p.Tracer,
	})
}

// InfrastructureModule provides connections, migrations, metrics and tracing.
var InfrastructureModule = fx.Options(
	local.Module,
	gcs.Module,
	fx.Provide(
		NewDBConnectionResolver,
		NewStorageResolver,
		NewWorkloadMigrator,
	),
)

// ImportModule provides the import job and its observability collaborators.
var ImportModule = fx.Options(
	fx.Provide(
		NewMetricRecorder,
		NewTracer,
		NewListingImportJob,
	),
)
