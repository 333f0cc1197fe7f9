package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/iconium/pkg/batch/adapter/database"
	"github.com/tigerroll/iconium/pkg/batch/core/tx"
)

// GormTxAdapter implements tx.Tx over an open GORM transaction.
type GormTxAdapter struct {
	executor
}

// GormTransactionManager implements tx.TransactionManager.
// With a resolver it looks the connection up on every Begin so that a dropped
// pool is re-established between chunks.
type GormTransactionManager struct {
	dbResolver database.DBConnectionResolver
	dbName     string
	conn       *GormDBAdapter
}

// NewGormTransactionManager creates a manager bound to a single connection.
func NewGormTransactionManager(conn *GormDBAdapter) *GormTransactionManager {
	return &GormTransactionManager{conn: conn, dbName: conn.Name()}
}

// NewResolvingTransactionManager creates a manager that resolves dbName through dbResolver.
func NewResolvingTransactionManager(dbResolver database.DBConnectionResolver, dbName string) *GormTransactionManager {
	return &GormTransactionManager{dbResolver: dbResolver, dbName: dbName}
}

func (m *GormTransactionManager) adapter(ctx context.Context) (*GormDBAdapter, error) {
	if m.dbResolver == nil {
		return m.conn, nil
	}
	conn, err := m.dbResolver.ResolveDBConnection(ctx, m.dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB connection '%s' for transaction: %w", m.dbName, err)
	}
	adapter, ok := conn.(*GormDBAdapter)
	if !ok {
		return nil, fmt.Errorf("internal error: DBConnection implementation is not *GormDBAdapter")
	}
	return adapter, nil
}

// Begin implements tx.TransactionManager.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	adapter, err := m.adapter(ctx)
	if err != nil {
		return nil, err
	}

	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}

	gormTx := adapter.GetGormDB().WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction on '%s': %w", m.dbName, gormTx.Error)
	}
	return &GormTxAdapter{executor: executor{db: gormTx}}, nil
}

// Commit implements tx.TransactionManager.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gormTx, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter")
	}
	return gormTx.db.Commit().Error
}

// Rollback implements tx.TransactionManager.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gormTx, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter")
	}
	return gormTx.db.Rollback().Error
}
