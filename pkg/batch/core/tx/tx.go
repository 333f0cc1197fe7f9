// Package tx provides the transaction abstraction the import pipeline writes through.
// A chunk of listings is resolved inside one Tx; committing or rolling it back is the
// unit of durability of a run.
package tx

import (
	"context"
	"database/sql"
)

// Operations accepted by TxExecutor.ExecuteUpdate.
const (
	OperationCreate = "CREATE"
	OperationUpdate = "UPDATE"
	OperationDelete = "DELETE"
)

// TxExecutor defines the statements that can be executed either on a connection or inside a transaction.
type TxExecutor interface {
	// ExecuteUpdate performs a write operation on tableName.
	//
	// Parameters:
	//
	//	ctx: The context for the operation.
	//	model: For CREATE, a pointer to a row struct; generated keys are written back into it.
	//	       For UPDATE, a map of column to value or a pointer to a row struct.
	//	       For DELETE, a pointer to a row struct.
	//	operation: One of OperationCreate, OperationUpdate, OperationDelete.
	//	tableName: The target table.
	//	query: Column conditions for UPDATE and DELETE, combined with AND.
	//
	// Returns:
	//
	//	The number of affected rows.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert inserts model into tableName with an ON CONFLICT clause on conflictColumns.
	// When updateColumns is empty the conflict is ignored (DO NOTHING) and zero rows are reported.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// ExecuteRawQuery runs a SELECT statement with positional arguments and scans the
	// result into target (a pointer to a struct, a slice or a scalar).
	// It returns the number of rows found.
	ExecuteRawQuery(ctx context.Context, target interface{}, query string, args ...interface{}) (rowsFound int64, err error)
}

// Tx represents an ongoing database transaction.
type Tx interface {
	TxExecutor
}

// TransactionManager manages the lifecycle of database transactions.
type TransactionManager interface {
	// Begin starts a new transaction.
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit persists every change made within t.
	Commit(t Tx) error
	// Rollback discards every change made within t.
	Rollback(t Tx) error
}
