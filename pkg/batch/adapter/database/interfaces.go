// Package database defines named database connections and the providers that open them.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/iconium/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/iconium/pkg/batch/core/adapter"
	"github.com/tigerroll/iconium/pkg/batch/core/tx"
)

// DBConnection represents a named, pooled database connection.
// Statements executed directly on it run outside of any managed transaction.
type DBConnection interface {
	coreAdapter.ResourceConnection
	tx.TxExecutor

	// RefreshConnection pings the pool to verify the connection is usable.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB.
	GetSQLDB() (*sql.DB, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider (e.g. "postgres").
	Type() string
	// ForceReconnect closes and re-establishes the named connection.
	ForceReconnect(name string) (DBConnection, error)
}

// DBConnectionResolver resolves a usable connection by name, reconnecting if necessary.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProviderGroup is the fx group tag of all DBProvider implementations.
const DBProviderGroup = `group:"db_providers"`
