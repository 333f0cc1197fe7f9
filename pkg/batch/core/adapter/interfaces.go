// Package adapter defines the contract shared by every named connection to an external resource.
package adapter

// ResourceConnection represents a named connection to a resource such as a database or a bucket.
type ResourceConnection interface {
	// Close closes the resource connection.
	Close() error
	// Type returns the type of the resource (e.g. "sqlite", "gcs").
	Type() string
	// Name returns the connection name (e.g. "workload", "authority").
	Name() string
}
