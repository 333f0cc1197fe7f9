package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/iconium/internal/domain/entity"
	"github.com/tigerroll/iconium/pkg/batch/core/tx"
	"github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// PropertyRepository reads and writes property_details and the rows hanging off it.
type PropertyRepository struct{}

// NewPropertyRepository creates a PropertyRepository.
func NewPropertyRepository() *PropertyRepository {
	return &PropertyRepository{}
}

// FindIDByAddressPID returns the id of the property recorded for pid on asAt.
func (r *PropertyRepository) FindIDByAddressPID(ctx context.Context, exec tx.TxExecutor, pid string, asAt time.Time) (*int64, error) {
	c := (&criteria{}).add("gnaf_addr_dtl_pid = ?", pid).add("as_at = ?", asAt)
	return r.findID(ctx, exec, c)
}

// FindIDByAddress returns the id of the property recorded for the denormalized
// address on asAt. It does not query when every address part is nil.
func (r *PropertyRepository) FindIDByAddress(ctx context.Context, exec tx.TxExecutor, address, state, postCode, locality *string, asAt time.Time) (*int64, error) {
	if address == nil && state == nil && postCode == nil && locality == nil {
		return nil, nil
	}
	c := (&criteria{}).
		equal("address", address).
		equal("state", state).
		postCode(postCode).
		equal("locality", locality).
		add("as_at = ?", asAt)
	return r.findID(ctx, exec, c)
}

func (r *PropertyRepository) findID(ctx context.Context, exec tx.TxExecutor, c *criteria) (*int64, error) {
	query := `SELECT prop_dtls_id FROM property_details WHERE ` + c.String() + ` ORDER BY prop_dtls_id`
	var ids []int64
	if _, err := exec.ExecuteRawQuery(ctx, &ids, query, c.args...); err != nil {
		return nil, fmt.Errorf("property lookup failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > 1 {
		logger.Warnf("%d properties match %s, using %d.", len(ids), c.String(), ids[0])
	}
	return &ids[0], nil
}

// Insert adds row and returns its generated id.
func (r *PropertyRepository) Insert(ctx context.Context, exec tx.TxExecutor, row *entity.PropertyRow) (int64, error) {
	if _, err := exec.ExecuteUpdate(ctx, row, tx.OperationCreate, row.TableName(), nil); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", row.TableName(), err)
	}
	if row.ID == 0 {
		return 0, ErrNoGeneratedKey
	}
	return row.ID, nil
}

// Update refreshes the mutable attributes of the property identified by id.
func (r *PropertyRepository) Update(ctx context.Context, exec tx.TxExecutor, id int64, row *entity.PropertyRow) error {
	n, err := exec.ExecuteUpdate(ctx, row.UpdateValues(), tx.OperationUpdate, row.TableName(),
		map[string]interface{}{"prop_dtls_id": id})
	if err != nil {
		return fmt.Errorf("update of property %d: %w", id, err)
	}
	if n == 0 {
		logger.Debugf("Update of property %d changed no rows.", id)
	}
	return nil
}

// AddComparable links two properties. An existing link is a DuplicateKeyError.
func (r *PropertyRepository) AddComparable(ctx context.Context, exec tx.TxExecutor, row *entity.ComparablePropertyRow) error {
	return insertIgnoringConflict(ctx, exec, row, row.TableName(),
		[]string{"prop_compared_id", "comparable_prop_id", "comparison_type", "compared_on"})
}

// AddEvent records a history event. An existing event is a DuplicateKeyError.
func (r *PropertyRepository) AddEvent(ctx context.Context, exec tx.TxExecutor, row *entity.EventRow) error {
	return insertIgnoringConflict(ctx, exec, row, row.TableName(),
		[]string{"prop_dtls_id", "event_year", "event_month", "event_type"})
}

// AddDataAcquisition records where a property was acquired from. An existing audit
// row is a DuplicateKeyError.
func (r *PropertyRepository) AddDataAcquisition(ctx context.Context, exec tx.TxExecutor, row *entity.DataAcquisitionRow) error {
	return insertIgnoringConflict(ctx, exec, row, row.TableName(),
		[]string{"url", "acquired_on", "prop_dtls_id"})
}
