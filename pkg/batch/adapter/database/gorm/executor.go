package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/iconium/pkg/batch/core/tx"
)

// executor runs tx.TxExecutor statements against a *gorm.DB, which is either a
// connection pool or an open transaction.
type executor struct {
	db *gorm.DB
}

func (e executor) session(ctx context.Context, tableName string) *gorm.DB {
	db := e.db.WithContext(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}
	return db
}

// ExecuteUpdate implements tx.TxExecutor.
func (e executor) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	db := e.session(ctx, tableName)

	var result *gorm.DB
	switch operation {
	case tx.OperationCreate:
		result = db.Create(model)

	case tx.OperationUpdate:
		if len(query) == 0 {
			return 0, fmt.Errorf("refusing UPDATE on '%s' without conditions", tableName)
		}
		if values, ok := model.(map[string]interface{}); ok {
			result = db.Where(query).Updates(values)
		} else {
			result = db.Model(model).Where(query).Updates(model)
		}

	case tx.OperationDelete:
		if query != nil {
			db = db.Where(query)
		}
		result = db.Delete(model)

	default:
		return 0, fmt.Errorf("unsupported update operation: %s", operation)
	}

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExecuteUpsert implements tx.TxExecutor.
func (e executor) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	db := e.session(ctx, tableName)

	onConflict := clause.OnConflict{}
	for _, col := range conflictColumns {
		onConflict.Columns = append(onConflict.Columns, clause.Column{Name: col})
	}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}

	result := db.Clauses(onConflict).Create(model)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExecuteRawQuery implements tx.TxExecutor.
func (e executor) ExecuteRawQuery(ctx context.Context, target interface{}, query string, args ...interface{}) (int64, error) {
	result := e.db.WithContext(ctx).Raw(query, args...).Scan(target)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
