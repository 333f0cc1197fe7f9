package gorm_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormadapter "github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/iconium/pkg/batch/core/config"
	"github.com/tigerroll/iconium/pkg/batch/core/tx"
)

type widget struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name"`
	Size *int   `gorm:"column:size"`
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Surfin.AdapterConfigs["database"] = map[string]interface{}{
		"workload": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(t.TempDir(), "workload.db"),
			"pool":     map[string]interface{}{"max_open_conns": "1"},
		},
	}
	return cfg
}

func openWorkload(t *testing.T) *gormadapter.GormDBAdapter {
	t.Helper()
	cfg := newTestConfig(t)
	resolver := gormadapter.NewGormDBConnectionResolver(cfg, sqlite.NewProvider(cfg))
	t.Cleanup(func() { _ = resolver.CloseAll() })

	conn, err := resolver.ResolveDBConnection(context.Background(), "workload")
	require.NoError(t, err)
	adapter, ok := conn.(*gormadapter.GormDBAdapter)
	require.True(t, ok)

	require.NoError(t, adapter.GetGormDB().Exec(
		`CREATE TABLE widgets (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE, size INTEGER)`).Error)
	return adapter
}

func TestExecutor_CreateUpdateQuery(t *testing.T) {
	ctx := context.Background()
	conn := openWorkload(t)

	row := &widget{Name: "bolt"}
	rows, err := conn.ExecuteUpdate(ctx, row, tx.OperationCreate, "widgets", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.NotZero(t, row.ID, "generated key must be written back")

	rows, err = conn.ExecuteUpdate(ctx, map[string]interface{}{"size": 3}, tx.OperationUpdate, "widgets", map[string]interface{}{"id": row.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	var found []widget
	n, err := conn.ExecuteRawQuery(ctx, &found, `SELECT id, name, size FROM widgets WHERE name = ?`, "bolt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, found, 1)
	require.NotNil(t, found[0].Size)
	assert.Equal(t, 3, *found[0].Size)
}

func TestExecutor_UpsertDoNothingReportsZeroRows(t *testing.T) {
	ctx := context.Background()
	conn := openWorkload(t)

	rows, err := conn.ExecuteUpsert(ctx, &widget{Name: "nut"}, "widgets", []string{"name"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = conn.ExecuteUpsert(ctx, &widget{Name: "nut"}, "widgets", []string{"name"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestExecutor_UpdateWithoutConditionsIsRejected(t *testing.T) {
	conn := openWorkload(t)
	_, err := conn.ExecuteUpdate(context.Background(), map[string]interface{}{"size": 1}, tx.OperationUpdate, "widgets", nil)
	assert.Error(t, err)
}

func TestTransactionManager_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	conn := openWorkload(t)
	tm := gormadapter.NewGormTransactionManager(conn)

	txn, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = txn.ExecuteUpdate(ctx, &widget{Name: "washer"}, tx.OperationCreate, "widgets", nil)
	require.NoError(t, err)
	require.NoError(t, tm.Rollback(txn))

	txn, err = tm.Begin(ctx)
	require.NoError(t, err)
	_, err = txn.ExecuteUpdate(ctx, &widget{Name: "screw"}, tx.OperationCreate, "widgets", nil)
	require.NoError(t, err)
	require.NoError(t, tm.Commit(txn))

	var names []string
	_, err = conn.ExecuteRawQuery(ctx, &names, `SELECT name FROM widgets ORDER BY name`)
	require.NoError(t, err)
	assert.Equal(t, []string{"screw"}, names)
}

func TestResolver_UnknownConnection(t *testing.T) {
	cfg := newTestConfig(t)
	resolver := gormadapter.NewGormDBConnectionResolver(cfg, sqlite.NewProvider(cfg))

	_, err := resolver.ResolveDBConnection(context.Background(), "authority")
	assert.Error(t, err)
}
