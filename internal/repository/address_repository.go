package repository

import (
	"context"
	"fmt"

	"github.com/tigerroll/iconium/pkg/batch/core/tx"
	"github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// AddressRepository queries the read-only address authority views.
type AddressRepository struct {
	addressView        string
	streetLocalityView string
}

// NewAddressRepository creates an AddressRepository reading the views of schema.
// An empty schema leaves the view names unqualified.
func NewAddressRepository(schema string) *AddressRepository {
	qualify := func(view string) string {
		if schema == "" {
			return view
		}
		return schema + "." + view
	}
	return &AddressRepository{
		addressView:        qualify("addr_txt_to_id_v"),
		streetLocalityView: qualify("street_locality_v"),
	}
}

// FindAddressDetailPID returns the identifier of the address whose text starts with
// address, or nil when nothing matches.
func (r *AddressRepository) FindAddressDetailPID(ctx context.Context, exec tx.TxExecutor, address, state, postCode, locality *string) (*string, error) {
	if address == nil {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT address_detail_pid FROM %s WHERE address LIKE UPPER(?) AND state = ? AND (post_code IS NULL OR post_code = ?) AND locality = UPPER(?)`, r.addressView)

	var pids []string
	if _, err := exec.ExecuteRawQuery(ctx, &pids, query, *address+"%", state, postCode, locality); err != nil {
		return nil, fmt.Errorf("address lookup failed: %w", err)
	}
	if len(pids) == 0 {
		logger.Debugf("No address authority match for address [%s], state [%s], postCode [%s], locality [%s].",
			*address, str(state), str(postCode), str(locality))
		return nil, nil
	}
	return &pids[0], nil
}

// FindStreetLocalityPID returns the identifier of the street within a locality, or
// nil when nothing matches.
func (r *AddressRepository) FindStreetLocalityPID(ctx context.Context, exec tx.TxExecutor, street, state, postCode, locality *string) (*string, error) {
	query := fmt.Sprintf(`SELECT street_locality_pid FROM %s WHERE state = ? AND (post_code IS NULL OR post_code = ?) AND locality = ? AND street_desc = ?`, r.streetLocalityView)

	var pids []string
	if _, err := exec.ExecuteRawQuery(ctx, &pids, query, state, postCode, locality, street); err != nil {
		return nil, fmt.Errorf("street locality lookup failed: %w", err)
	}
	if len(pids) == 0 {
		logger.Debugf("No street locality match for street [%s], state [%s], postCode [%s], locality [%s].",
			str(street), str(state), str(postCode), str(locality))
		return nil, nil
	}
	return &pids[0], nil
}

func str(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
