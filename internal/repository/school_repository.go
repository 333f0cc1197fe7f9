package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tigerroll/iconium/internal/domain/entity"
	"github.com/tigerroll/iconium/pkg/batch/core/tx"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

var schoolKeyColumns = []string{"name", "type", "sector"}

// SchoolRepository reads and writes schools and their distance to properties.
type SchoolRepository struct{}

// NewSchoolRepository creates a SchoolRepository.
func NewSchoolRepository() *SchoolRepository {
	return &SchoolRepository{}
}

// FindID returns the id of the school with the given natural key.
func (r *SchoolRepository) FindID(ctx context.Context, exec tx.TxExecutor, name, schoolType, sector *string) (*int64, error) {
	c := (&criteria{}).equal("name", name).equal("type", schoolType).equal("sector", sector)
	var ids []int64
	if _, err := exec.ExecuteRawQuery(ctx, &ids, `SELECT school_id FROM schools WHERE `+c.String(), c.args...); err != nil {
		return nil, fmt.Errorf("school lookup failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

// Insert adds row and returns its id. When a school with the same natural key
// already exists its id is returned instead.
func (r *SchoolRepository) Insert(ctx context.Context, exec tx.TxExecutor, row *entity.SchoolRow) (int64, error) {
	err := insertIgnoringConflict(ctx, exec, row, row.TableName(), schoolKeyColumns)
	switch {
	case err == nil:
		if row.ID == 0 {
			return 0, ErrNoGeneratedKey
		}
		return row.ID, nil
	case !errors.Is(err, exception.ErrDuplicateKey):
		return 0, err
	}

	id, err := r.FindID(ctx, exec, row.Name, row.Type, row.Sector)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, ErrNoGeneratedKey
	}
	return *id, nil
}

// AddNearProperty records the distance from a property to a school. An existing
// record is a DuplicateKeyError.
func (r *SchoolRepository) AddNearProperty(ctx context.Context, exec tx.TxExecutor, row *entity.SchoolNearPropertyRow) error {
	return insertIgnoringConflict(ctx, exec, row, row.TableName(), []string{"prop_dtls_id", "school_id"})
}
