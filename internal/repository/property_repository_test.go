package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/iconium/internal/domain/entity"
	"github.com/tigerroll/iconium/internal/repository"
	"github.com/tigerroll/iconium/internal/testutil"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

var asAt = time.Date(2017, time.June, 1, 0, 0, 0, 0, time.UTC)

func ip(n int) *int { return &n }

func TestPropertyRepository_InsertFindUpdate(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewWorkload(t)
	repo := repository.NewPropertyRepository()

	byPID := &entity.PropertyRow{AddressPID: sp("GANSW1"), AsAt: asAt, Bedrooms: ip(3), PriceDesc: sp("$750,000"), SaleMethod: sp("Auction")}
	id, err := repo.Insert(ctx, w.Conn, byPID)
	require.NoError(t, err)
	assert.NotZero(t, id)

	found, err := repo.FindIDByAddressPID(ctx, w.Conn, "GANSW1", asAt)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, *found)

	found, err = repo.FindIDByAddressPID(ctx, w.Conn, "GANSW1", asAt.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, found, "a different as-at date is a different property row")

	require.NoError(t, repo.Update(ctx, w.Conn, id, &entity.PropertyRow{Bedrooms: ip(4), PropertyType: sp("House"), PriceDesc: sp("Contact agent")}))
	var row entity.PropertyRow
	require.NoError(t, w.Conn.GetGormDB().First(&row, id).Error)
	require.NotNil(t, row.Bedrooms)
	assert.Equal(t, 4, *row.Bedrooms)
	assert.Equal(t, "House", *row.PropertyType)
	assert.Equal(t, "GANSW1", *row.AddressPID, "identity columns are not updated")
	require.NotNil(t, row.PriceDesc)
	assert.Equal(t, "$750,000", *row.PriceDesc, "the price description keeps its first value")
	require.NotNil(t, row.SaleMethod)
	assert.Equal(t, "Auction", *row.SaleMethod)
}

func TestPropertyRepository_FindIDByAddress(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewWorkload(t)
	repo := repository.NewPropertyRepository()

	withoutPostCode := &entity.PropertyRow{AsAt: asAt, Address: sp("1 Main St"), State: sp("NSW"), Locality: sp("Sydney")}
	id, err := repo.Insert(ctx, w.Conn, withoutPostCode)
	require.NoError(t, err)

	found, err := repo.FindIDByAddress(ctx, w.Conn, sp("1 Main St"), sp("NSW"), nil, sp("Sydney"), asAt)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, *found)

	found, err = repo.FindIDByAddress(ctx, w.Conn, sp("1 Main St"), sp("NSW"), sp("2000"), sp("Sydney"), asAt)
	require.NoError(t, err)
	require.NotNil(t, found, "a stored row without post code matches any post code")
	assert.Equal(t, id, *found)

	found, err = repo.FindIDByAddress(ctx, w.Conn, sp("1 Main St"), nil, nil, sp("Sydney"), asAt)
	require.NoError(t, err)
	assert.Nil(t, found, "a missing state only matches rows without state")

	found, err = repo.FindIDByAddress(ctx, w.Conn, nil, nil, nil, nil, asAt)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestPropertyRepository_AssociationsReportDuplicates(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewWorkload(t)
	repo := repository.NewPropertyRepository()

	subject, err := repo.Insert(ctx, w.Conn, &entity.PropertyRow{AddressPID: sp("GANSW1"), AsAt: asAt})
	require.NoError(t, err)
	other, err := repo.Insert(ctx, w.Conn, &entity.PropertyRow{AddressPID: sp("GANSW2"), AsAt: asAt})
	require.NoError(t, err)

	insertTwice := func(name string, insert func() error) {
		require.NoError(t, insert(), name)
		err := insert()
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, exception.ErrDuplicateKey), name)
	}

	insertTwice("comparable", func() error {
		return repo.AddComparable(ctx, w.Conn, &entity.ComparablePropertyRow{
			PropertyID: subject, ComparableID: other, ComparisonType: "sold", ComparedOn: asAt,
		})
	})
	insertTwice("event", func() error {
		return repo.AddEvent(ctx, w.Conn, &entity.EventRow{
			PropertyID: subject, Year: 2015, Month: 3, Type: "sold", PriceDesc: sp("$750,000"),
		})
	})
	insertTwice("acquisition", func() error {
		return repo.AddDataAcquisition(ctx, w.Conn, &entity.DataAcquisitionRow{
			AddressPID: sp("GANSW1"), URL: sp("https://example.com/1"), AcquiredOn: asAt, PropertyID: subject,
		})
	})

	assert.Equal(t, int64(1), w.Count(t, "comparable_properties"))
	assert.Equal(t, int64(1), w.Count(t, "property_sale_rent_hist"))
	assert.Equal(t, int64(1), w.Count(t, "data_acquisition"))
}

func TestIsDuplicateKey_DriverError(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewWorkload(t)
	repo := repository.NewPropertyRepository()

	_, err := repo.Insert(ctx, w.Conn, &entity.PropertyRow{AddressPID: sp("GANSW1"), AsAt: asAt})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, w.Conn, &entity.PropertyRow{AddressPID: sp("GANSW1"), AsAt: asAt})
	require.Error(t, err)
	assert.True(t, repository.IsDuplicateKey(err))

	assert.False(t, repository.IsDuplicateKey(nil))
	assert.False(t, repository.IsDuplicateKey(errors.New("boom")))
}
