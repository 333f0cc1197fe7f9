package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	storageConfig "github.com/tigerroll/iconium/pkg/batch/adapter/storage/config"
	config "github.com/tigerroll/iconium/pkg/batch/core/config"
)

// Provider types by location scheme.
const (
	TypeLocal = "local"
	TypeGCS   = "gcs"

	SchemeFile = "file"
	SchemeGS   = "gs"
)

// Location addresses one object: a plain path or file:// URI on the local file
// system, or a gs://bucket/object URI.
type Location struct {
	Scheme string
	Bucket string
	Object string
}

// String renders the location as a URI.
func (l Location) String() string {
	if l.Scheme == SchemeGS {
		return fmt.Sprintf("gs://%s/%s", l.Bucket, l.Object)
	}
	return l.Object
}

// ProviderType returns the storage type that serves the location's scheme.
func (l Location) ProviderType() string {
	if l.Scheme == SchemeGS {
		return TypeGCS
	}
	return TypeLocal
}

// ParseLocation parses a job input or output location.
func ParseLocation(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Location{}, fmt.Errorf("empty storage location")
	}
	if rest, ok := strings.CutPrefix(uri, "gs://"); ok {
		bucket, object, found := strings.Cut(rest, "/")
		if !found || bucket == "" || object == "" {
			return Location{}, fmt.Errorf("invalid GCS location '%s': expected gs://<bucket>/<object>", uri)
		}
		return Location{Scheme: SchemeGS, Bucket: bucket, Object: object}, nil
	}
	if i := strings.Index(uri, "://"); i >= 0 && !strings.HasPrefix(uri, "file://") {
		return Location{}, fmt.Errorf("unsupported storage scheme '%s' in '%s'", uri[:i], uri)
	}
	path := strings.TrimPrefix(uri, "file://")
	if path == "" {
		return Location{}, fmt.Errorf("invalid file location '%s'", uri)
	}
	return Location{Scheme: SchemeFile, Object: path}, nil
}

// ConnectionResolver dispatches named storage connections to the provider of
// their configured type.
type ConnectionResolver struct {
	providers map[string]StorageProvider
	cfg       *config.Config
}

var _ StorageConnectionResolver = (*ConnectionResolver)(nil)

// NewConnectionResolver creates a resolver over the given providers.
func NewConnectionResolver(cfg *config.Config, providers ...StorageProvider) *ConnectionResolver {
	m := make(map[string]StorageProvider, len(providers))
	for _, p := range providers {
		m[p.Type()] = p
	}
	return &ConnectionResolver{providers: m, cfg: cfg}
}

// ResolveStorageConnection returns the named connection.
func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	raw, err := r.cfg.AdapterConfig("storage", name)
	if err != nil {
		return nil, fmt.Errorf("StorageConnectionResolver: %w", err)
	}
	sc, err := storageConfig.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("StorageConnectionResolver: connection '%s': %w", name, err)
	}
	provider, ok := r.providers[sc.Type]
	if !ok {
		return nil, fmt.Errorf("StorageConnectionResolver: no storage provider for type '%s' (connection '%s')", sc.Type, name)
	}
	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("StorageConnectionResolver: failed to get connection '%s': %w", name, err)
	}
	return conn, nil
}

// ResolveLocation parses uri and returns the connection that serves it. When
// preferred names a connection of the right type it is used, otherwise the first
// configured connection of that type in name order.
func (r *ConnectionResolver) ResolveLocation(ctx context.Context, uri, preferred string) (StorageConnection, Location, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, Location{}, err
	}
	name, err := r.connectionFor(loc.ProviderType(), preferred)
	if err != nil {
		return nil, loc, fmt.Errorf("location '%s': %w", uri, err)
	}
	conn, err := r.ResolveStorageConnection(ctx, name)
	if err != nil {
		return nil, loc, err
	}
	return conn, loc, nil
}

// CloseAll closes the connections of every provider.
func (r *ConnectionResolver) CloseAll() error {
	var lastErr error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (r *ConnectionResolver) connectionFor(providerType, preferred string) (string, error) {
	section, _ := r.cfg.Surfin.AdapterConfigs["storage"].(map[string]interface{})
	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	sort.Strings(names)
	if preferred != "" {
		names = append([]string{preferred}, names...)
	}
	for _, name := range names {
		raw, ok := section[name]
		if !ok {
			continue
		}
		sc, err := storageConfig.Decode(raw)
		if err == nil && sc.Type == providerType {
			return name, nil
		}
	}
	return "", fmt.Errorf("no storage connection of type '%s' is configured", providerType)
}
