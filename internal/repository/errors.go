// Package repository implements the storage ports of the listing import on top of
// tx.TxExecutor: address authority lookups, properties and schools.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/tigerroll/iconium/pkg/batch/core/tx"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

// ErrNoGeneratedKey is returned when an insert reports success but no surrogate key.
var ErrNoGeneratedKey = errors.New("insert returned no generated key")

const (
	pgUniqueViolation = "23505"
	mysqlDuplicateKey = 1062
)

// IsDuplicateKey reports whether err is a uniqueness violation raised by one of the
// supported drivers.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateKey
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// insertIgnoringConflict inserts row unless it collides with conflictColumns. A
// collision, whether reported as zero affected rows or as a driver error, is returned
// as a DuplicateKeyError.
func insertIgnoringConflict(ctx context.Context, exec tx.TxExecutor, row interface{}, table string, conflictColumns []string) error {
	n, err := exec.ExecuteUpsert(ctx, row, table, conflictColumns, nil)
	if err != nil {
		if IsDuplicateKey(err) {
			return exception.NewDuplicateKeyError(table, err)
		}
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	if n == 0 {
		return exception.NewDuplicateKeyError(table, fmt.Errorf("row with key (%s) already exists", strings.Join(conflictColumns, ", ")))
	}
	return nil
}
