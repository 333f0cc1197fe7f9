// Package writer persists chunks of listings.
package writer

import (
	"context"

	"github.com/tigerroll/iconium/internal/domain/model"
	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	"github.com/tigerroll/iconium/pkg/batch/core/tx"
)

// Resolver persists one listing through a transaction and returns its property id.
type Resolver interface {
	Resolve(ctx context.Context, t tx.Tx, listing *model.Listing) (int64, error)
}

// ListingWriter resolves the listings of a chunk one after another in the chunk's
// transaction.
type ListingWriter struct {
	resolver Resolver
}

var _ port.ItemWriter[*model.Listing] = (*ListingWriter)(nil)

// NewListingWriter creates a ListingWriter.
func NewListingWriter(resolver Resolver) *ListingWriter {
	return &ListingWriter{resolver: resolver}
}

// Write implements port.ItemWriter. The first failure stops the chunk and is returned
// as a *port.ItemWriteError naming the listing.
func (w *ListingWriter) Write(ctx context.Context, t tx.Tx, items []*model.Listing) error {
	for i, listing := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.resolver.Resolve(ctx, t, listing); err != nil {
			return &port.ItemWriteError{Index: i, Err: err}
		}
	}
	return nil
}
