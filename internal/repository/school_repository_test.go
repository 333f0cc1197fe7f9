package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/iconium/internal/domain/entity"
	"github.com/tigerroll/iconium/internal/repository"
	"github.com/tigerroll/iconium/internal/testutil"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

func TestSchoolRepository_InsertReturnsExistingID(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewWorkload(t)
	repo := repository.NewSchoolRepository()

	first, err := repo.Insert(ctx, w.Conn, &entity.SchoolRow{Name: sp("Sydney Public"), Type: sp("Primary"), Sector: sp("Government")})
	require.NoError(t, err)
	assert.NotZero(t, first)

	second, err := repo.Insert(ctx, w.Conn, &entity.SchoolRow{Name: sp("Sydney Public"), Type: sp("Primary"), Sector: sp("Government")})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), w.Count(t, "schools"))
}

func TestSchoolRepository_FindIDMatchesMissingParts(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewWorkload(t)
	repo := repository.NewSchoolRepository()

	id, err := repo.Insert(ctx, w.Conn, &entity.SchoolRow{Name: sp("Sydney Grammar"), Type: sp("Secondary")})
	require.NoError(t, err)

	found, err := repo.FindID(ctx, w.Conn, sp("Sydney Grammar"), sp("Secondary"), nil)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, *found)

	found, err = repo.FindID(ctx, w.Conn, sp("Sydney Grammar"), sp("Secondary"), sp("Independent"))
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSchoolRepository_AddNearPropertyDuplicate(t *testing.T) {
	ctx := context.Background()
	w := testutil.NewWorkload(t)
	schools := repository.NewSchoolRepository()
	properties := repository.NewPropertyRepository()

	propertyID, err := properties.Insert(ctx, w.Conn, &entity.PropertyRow{AddressPID: sp("GANSW1"), AsAt: asAt})
	require.NoError(t, err)
	schoolID, err := schools.Insert(ctx, w.Conn, &entity.SchoolRow{Name: sp("Sydney Public")})
	require.NoError(t, err)

	row := &entity.SchoolNearPropertyRow{PropertyID: propertyID, SchoolID: schoolID, DistanceDesc: sp("0.4 km")}
	require.NoError(t, schools.AddNearProperty(ctx, w.Conn, row))
	err = schools.AddNearProperty(ctx, w.Conn, row)
	assert.True(t, errors.Is(err, exception.ErrDuplicateKey))
}
