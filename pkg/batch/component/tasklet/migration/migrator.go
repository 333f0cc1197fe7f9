// Package migration applies embedded SQL migrations with golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/iconium/pkg/batch/adapter/database"
	"github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// DefaultMigrationsTable tracks the applied schema version.
const DefaultMigrationsTable = "iconium_schema_migrations"

// Migrator runs migrations against one named connection of a provider.
// golang-migrate closes the connection pool it was given, so the connection is
// reopened through the provider once a migration has run.
type Migrator struct {
	provider database.DBProvider
	name     string
}

// NewMigrator creates a Migrator for the connection called name.
func NewMigrator(provider database.DBProvider, name string) *Migrator {
	return &Migrator{provider: provider, name: name}
}

// getDatabaseDriver returns the golang-migrate driver matching the connection type.
func getDatabaseDriver(dbType string, sqlDB *sql.DB, tableName string) (migratedb.Driver, error) {
	switch dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", dbType)
	}
}

func newInstance(conn database.DBConnection, migrationFS fs.FS, path, tableName string) (*migrate.Migrate, error) {
	sqlDB, err := conn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := getDatabaseDriver(conn.Type(), sqlDB, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	instance, err := migrate.NewWithInstance("iofs", sourceDriver, conn.Type(), dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return instance, nil
}

func (m *Migrator) run(ctx context.Context, migrationFS fs.FS, path, command, tableName string) error {
	logger.Infof("Executing migration '%s' on '%s' (Path: %s, Table: %s)", command, m.name, path, tableName)

	conn, err := m.provider.GetConnection(m.name)
	if err != nil {
		return fmt.Errorf("failed to get connection '%s': %w", m.name, err)
	}
	instance, err := newInstance(conn, migrationFS, path, tableName)
	if err != nil {
		return err
	}
	defer func() {
		if srcErr, dbErr := instance.Close(); srcErr != nil || dbErr != nil {
			logger.Debugf("Migrator: closing migrate instance: source=%v database=%v", srcErr, dbErr)
		}
		if _, err := m.provider.ForceReconnect(m.name); err != nil {
			logger.Errorf("Migrator: failed to reopen connection '%s' after migration: %v", m.name, err)
		}
	}()

	done := make(chan error, 1)
	go func() {
		switch command {
		case "up":
			done <- instance.Up()
		case "down":
			done <- instance.Down()
		default:
			done <- fmt.Errorf("unsupported migration command: %s", command)
		}
	}()

	var migrateErr error
	select {
	case migrateErr = <-done:
	case <-ctx.Done():
		instance.GracefulStop <- true
		migrateErr = <-done
		if migrateErr == nil {
			migrateErr = ctx.Err()
		}
	}

	if migrateErr != nil && !errors.Is(migrateErr, migrate.ErrNoChange) {
		return fmt.Errorf("migration '%s' failed (DB: %s, Path: %s): %w", command, conn.Type(), path, migrateErr)
	}

	version, dirty, verErr := instance.Version()
	if verErr == nil {
		logger.Infof("Migration '%s' completed. Schema version: %d (dirty: %t)", command, version, dirty)
	} else {
		logger.Infof("Migration '%s' completed.", command)
	}
	return nil
}

// Up applies every pending migration found under path in migrationFS.
func (m *Migrator) Up(ctx context.Context, migrationFS fs.FS, path, tableName string) error {
	return m.run(ctx, migrationFS, path, "up", tableName)
}

// Down reverts every applied migration.
func (m *Migrator) Down(ctx context.Context, migrationFS fs.FS, path, tableName string) error {
	return m.run(ctx, migrationFS, path, "down", tableName)
}
