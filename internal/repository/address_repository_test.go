package repository_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/iconium/internal/repository"
	"github.com/tigerroll/iconium/internal/testutil"
	dbconfig "github.com/tigerroll/iconium/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm"
)

func sp(s string) *string { return &s }

func newMockAuthority(t *testing.T) (*gormadapter.GormDBAdapter, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(gormDB, dbconfig.DatabaseConfig{Type: "mysql"}, "authority")
	require.NoError(t, err)
	return conn, mock
}

func TestAddressRepository_QualifiesViewsWithSchema(t *testing.T) {
	conn, mock := newMockAuthority(t)
	repo := repository.NewAddressRepository("gnaf")

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT address_detail_pid FROM gnaf.addr_txt_to_id_v WHERE address LIKE UPPER(?) AND state = ? AND (post_code IS NULL OR post_code = ?) AND locality = UPPER(?)`)).
		WithArgs("1 Main St%", "NSW", "2000", "Sydney").
		WillReturnRows(sqlmock.NewRows([]string{"address_detail_pid"}).AddRow("GANSW1"))

	pid, err := repo.FindAddressDetailPID(context.Background(), conn, sp("1 Main St"), sp("NSW"), sp("2000"), sp("Sydney"))
	require.NoError(t, err)
	require.NotNil(t, pid)
	assert.Equal(t, "GANSW1", *pid)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT street_locality_pid FROM gnaf.street_locality_v WHERE state = ? AND (post_code IS NULL OR post_code = ?) AND locality = ? AND street_desc = ?`)).
		WithArgs("NSW", "2000", "Sydney", "George St").
		WillReturnRows(sqlmock.NewRows([]string{"street_locality_pid"}))

	street, err := repo.FindStreetLocalityPID(context.Background(), conn, sp("George St"), sp("NSW"), sp("2000"), sp("Sydney"))
	require.NoError(t, err)
	assert.Nil(t, street)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_NoAddressNoQuery(t *testing.T) {
	conn, mock := newMockAuthority(t)
	repo := repository.NewAddressRepository("gnaf")

	pid, err := repo.FindAddressDetailPID(context.Background(), conn, nil, sp("NSW"), nil, sp("Sydney"))
	require.NoError(t, err)
	assert.Nil(t, pid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_PrefixMatch(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewWorkload(t)
	w.AddAddress(t, "GANSW1", "1 MAIN ST, SYDNEY", "NSW", "2000", "SYDNEY")
	w.AddStreetLocality(t, "NSW2001", "GEORGE ST", "NSW", "2000", "SYDNEY")
	repo := repository.NewAddressRepository("")

	pid, err := repo.FindAddressDetailPID(ctx, w.Conn, sp("1 Main St"), sp("NSW"), sp("2000"), sp("Sydney"))
	require.NoError(t, err)
	require.NotNil(t, pid)
	assert.Equal(t, "GANSW1", *pid)

	pid, err = repo.FindAddressDetailPID(ctx, w.Conn, sp("2 Main St"), sp("NSW"), sp("2000"), sp("Sydney"))
	require.NoError(t, err)
	assert.Nil(t, pid)

	street, err := repo.FindStreetLocalityPID(ctx, w.Conn, sp("GEORGE ST"), sp("NSW"), sp("2000"), sp("SYDNEY"))
	require.NoError(t, err)
	require.NotNil(t, street)
	assert.Equal(t, "NSW2001", *street)
}
