// Package storage defines named object-storage connections used for job input and output,
// and the providers that open them.
package storage

import (
	"context"
	"io"

	coreAdapter "github.com/tigerroll/iconium/pkg/batch/core/adapter"
)

// StorageExecutor is the set of object operations a job performs against a storage backend.
type StorageExecutor interface {
	// Download opens the object for reading. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// NewWriter creates or truncates the object. The object is complete once the
	// returned writer has been closed without error.
	NewWriter(ctx context.Context, bucket, objectName string, contentType string) (io.WriteCloser, error)
	// DeleteObject removes the object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named connection to one storage backend.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor
}

// StorageProvider opens and caches connections of one storage type.
type StorageProvider interface {
	GetConnection(name string) (StorageConnection, error)
	CloseAll() error
	// Type returns the storage type handled by this provider (e.g. "local", "gcs").
	Type() string
	ForceReconnect(name string) (StorageConnection, error)
}

// StorageConnectionResolver resolves a storage connection by name.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup is the fx group tag of all StorageProvider implementations.
const StorageProviderGroup = `group:"storage_providers"`
