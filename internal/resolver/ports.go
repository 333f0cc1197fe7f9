package resolver

import (
	"context"
	"time"

	"github.com/tigerroll/iconium/internal/domain/entity"
	"github.com/tigerroll/iconium/pkg/batch/core/tx"
)

// AddressAuthority resolves addresses and streets to authority identifiers. A nil
// identifier means no match.
type AddressAuthority interface {
	FindAddressDetailPID(ctx context.Context, exec tx.TxExecutor, address, state, postCode, locality *string) (*string, error)
	FindStreetLocalityPID(ctx context.Context, exec tx.TxExecutor, street, state, postCode, locality *string) (*string, error)
}

// PropertyStore persists properties and the rows that refer to them. The Add methods
// report an existing row with an exception.ErrDuplicateKey error.
type PropertyStore interface {
	FindIDByAddressPID(ctx context.Context, exec tx.TxExecutor, pid string, asAt time.Time) (*int64, error)
	FindIDByAddress(ctx context.Context, exec tx.TxExecutor, address, state, postCode, locality *string, asAt time.Time) (*int64, error)
	Insert(ctx context.Context, exec tx.TxExecutor, row *entity.PropertyRow) (int64, error)
	Update(ctx context.Context, exec tx.TxExecutor, id int64, row *entity.PropertyRow) error
	AddComparable(ctx context.Context, exec tx.TxExecutor, row *entity.ComparablePropertyRow) error
	AddEvent(ctx context.Context, exec tx.TxExecutor, row *entity.EventRow) error
	AddDataAcquisition(ctx context.Context, exec tx.TxExecutor, row *entity.DataAcquisitionRow) error
}

// SchoolStore persists schools and their distance to properties.
type SchoolStore interface {
	FindID(ctx context.Context, exec tx.TxExecutor, name, schoolType, sector *string) (*int64, error)
	Insert(ctx context.Context, exec tx.TxExecutor, row *entity.SchoolRow) (int64, error)
	AddNearProperty(ctx context.Context, exec tx.TxExecutor, row *entity.SchoolNearPropertyRow) error
}
