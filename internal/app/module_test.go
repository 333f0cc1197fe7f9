package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/iconium/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/iconium/pkg/batch/core/config"
	"github.com/tigerroll/iconium/pkg/batch/core/metrics"
	inframetrics "github.com/tigerroll/iconium/pkg/batch/infrastructure/metrics"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Surfin.AdapterConfigs["database"] = map[string]interface{}{
		"workload": map[string]interface{}{
			"type":     sqlite.DBType,
			"database": filepath.Join(t.TempDir(), "workload.db"),
		},
	}
	return cfg
}

func TestWorkloadMigrator_Up(t *testing.T) {
	cfg := sqliteConfig(t)
	provider := sqlite.NewProvider(cfg)
	t.Cleanup(func() { _ = provider.CloseAll() })

	m := NewWorkloadMigrator(MigratorParams{Cfg: cfg, Providers: []database.DBProvider{provider}})
	require.NoError(t, m.Up(context.Background()))
	require.NoError(t, m.Up(context.Background()), "a second run finds nothing to apply")

	conn, err := gormadapter.NewGormDBConnectionResolver(cfg, provider).ResolveDBConnection(context.Background(), "workload")
	require.NoError(t, err)
	adapter, ok := conn.(*gormadapter.GormDBAdapter)
	require.True(t, ok)
	for _, table := range []string{"property_details", "schools", "schools_near_props", "property_sale_rent_hist", "comparable_properties", "data_acquisition", "batch_checkpoints"} {
		assert.True(t, adapter.GetGormDB().Migrator().HasTable(table), table)
	}
}

func TestWorkloadMigrator_UnknownProvider(t *testing.T) {
	cfg := sqliteConfig(t)
	m := NewWorkloadMigrator(MigratorParams{Cfg: cfg})
	assert.Error(t, m.Up(context.Background()))
}

func TestNewMetricRecorder(t *testing.T) {
	cfg := config.NewConfig()
	_, noop := NewMetricRecorder(cfg).(*metrics.NoOpMetricRecorder)
	assert.True(t, noop)

	cfg.Surfin.Infrastructure.Metrics.Enabled = true
	_, prom := NewMetricRecorder(cfg).(*inframetrics.PrometheusRecorder)
	assert.True(t, prom)
}

func TestDBProviderMap(t *testing.T) {
	cfg := config.NewConfig()
	for name, newProvider := range DBProviderMap {
		p := newProvider(cfg)
		require.NotNil(t, p, name)
	}
	assert.Equal(t, sqlite.DBType, DBProviderMap[sqlite.DBType](cfg).Type())
}
