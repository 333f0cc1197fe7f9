// Package testutil opens migrated SQLite workload databases for tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tigerroll/iconium/internal/migrations"
	gormadapter "github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/iconium/pkg/batch/component/tasklet/migration"
	config "github.com/tigerroll/iconium/pkg/batch/core/config"
)

// WorkloadDBName is the connection name used by Workload.
const WorkloadDBName = "workload"

// authorityDDL stands in for the address authority views. They live in the workload
// database, unqualified.
const authorityDDL = `
CREATE TABLE addr_txt_to_id_v (
    address_detail_pid TEXT NOT NULL,
    address            TEXT NOT NULL,
    state              TEXT NOT NULL,
    post_code          TEXT,
    locality           TEXT NOT NULL
);
CREATE TABLE street_locality_v (
    street_locality_pid TEXT NOT NULL,
    street_desc         TEXT NOT NULL,
    state               TEXT NOT NULL,
    post_code           TEXT,
    locality            TEXT NOT NULL
);`

// Workload is a migrated SQLite database that serves as both the workload and the
// authority connection.
type Workload struct {
	Config   *config.Config
	Resolver *gormadapter.GormDBConnectionResolver
	Conn     *gormadapter.GormDBAdapter
}

// NewWorkload creates a database file in a temporary directory and applies the
// embedded migrations to it.
func NewWorkload(t *testing.T) *Workload {
	t.Helper()
	ctx := context.Background()

	cfg := config.NewConfig()
	cfg.Surfin.AdapterConfigs["database"] = map[string]interface{}{
		WorkloadDBName: map[string]interface{}{
			"type":     sqlite.DBType,
			"database": filepath.Join(t.TempDir(), "workload.db"),
		},
	}
	cfg.Iconium.Job.WorkloadDBRef = WorkloadDBName
	cfg.Iconium.Job.AuthorityDBRef = WorkloadDBName
	cfg.Iconium.Job.AuthoritySchema = ""

	provider := sqlite.NewProvider(cfg)
	resolver := gormadapter.NewGormDBConnectionResolver(cfg, provider)
	t.Cleanup(func() { _ = resolver.CloseAll() })

	dir, err := migrations.Dir(sqlite.DBType)
	require.NoError(t, err)
	require.NoError(t, migration.NewMigrator(provider, WorkloadDBName).Up(ctx, migrations.FS, dir, migration.DefaultMigrationsTable))

	conn, err := resolver.ResolveDBConnection(ctx, WorkloadDBName)
	require.NoError(t, err)
	adapter, ok := conn.(*gormadapter.GormDBAdapter)
	require.True(t, ok)
	require.NoError(t, adapter.GetGormDB().Exec(authorityDDL).Error)

	return &Workload{Config: cfg, Resolver: resolver, Conn: adapter}
}

// AddAddress registers an address with the authority.
func (w *Workload) AddAddress(t *testing.T, pid, address, state, postCode, locality string) {
	t.Helper()
	require.NoError(t, w.Conn.GetGormDB().Exec(
		`INSERT INTO addr_txt_to_id_v (address_detail_pid, address, state, post_code, locality) VALUES (?, ?, ?, ?, ?)`,
		pid, address, state, postCode, locality).Error)
}

// AddStreetLocality registers a street with the authority.
func (w *Workload) AddStreetLocality(t *testing.T, pid, street, state, postCode, locality string) {
	t.Helper()
	require.NoError(t, w.Conn.GetGormDB().Exec(
		`INSERT INTO street_locality_v (street_locality_pid, street_desc, state, post_code, locality) VALUES (?, ?, ?, ?, ?)`,
		pid, street, state, postCode, locality).Error)
}

// Count returns the number of rows in table.
func (w *Workload) Count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, w.Conn.GetGormDB().Table(table).Count(&n).Error)
	return n
}
