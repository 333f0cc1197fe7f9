package writer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/iconium/internal/domain/model"
	"github.com/tigerroll/iconium/internal/step/writer"
	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	"github.com/tigerroll/iconium/pkg/batch/core/tx"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
	mocktx "github.com/tigerroll/iconium/pkg/batch/test"
)

func listings(urls ...string) []*model.Listing {
	items := make([]*model.Listing, len(urls))
	for i := range urls {
		items[i] = &model.Listing{URL: &urls[i]}
	}
	return items
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, t tx.Tx, listing *model.Listing) (int64, error) {
	args := m.Called(ctx, t, listing)
	return args.Get(0).(int64), args.Error(1)
}

func TestListingWriter_ResolvesEveryListing(t *testing.T) {
	resolver := &mockResolver{}
	mtx := &mocktx.MockTx{}
	items := listings("a", "b")
	for _, l := range items {
		resolver.On("Resolve", mock.Anything, mtx, l).Return(int64(1), nil).Once()
	}

	require.NoError(t, writer.NewListingWriter(resolver).Write(context.Background(), mtx, items))
	resolver.AssertExpectations(t)
}

func TestListingWriter_NamesTheFailingListing(t *testing.T) {
	resolver := &mockResolver{}
	mtx := &mocktx.MockTx{}
	items := listings("a", "b", "c")
	cause := exception.NewResolutionError("property insert failed", errors.New("boom"))
	resolver.On("Resolve", mock.Anything, mtx, items[0]).Return(int64(1), nil).Once()
	resolver.On("Resolve", mock.Anything, mtx, items[1]).Return(int64(0), cause).Once()

	err := writer.NewListingWriter(resolver).Write(context.Background(), mtx, items)

	var itemErr *port.ItemWriteError
	require.True(t, errors.As(err, &itemErr))
	assert.Equal(t, 1, itemErr.Index)
	assert.True(t, exception.IsSkippable(err))
	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mtx, items[2])
}

func TestListingWriter_StopsWhenCancelled(t *testing.T) {
	resolver := &mockResolver{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := writer.NewListingWriter(resolver).Write(ctx, &mocktx.MockTx{}, listings("a"))
	assert.ErrorIs(t, err, context.Canceled)
	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
}
