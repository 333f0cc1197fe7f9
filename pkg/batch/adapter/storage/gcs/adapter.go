// Package gcs implements the storage adapter over Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"go.uber.org/fx"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/iconium/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/iconium/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/iconium/pkg/batch/core/config"
	"github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

const (
	ProviderType = storageAdapter.TypeGCS
)

type gcsAdapter struct {
	cfg    storageConfig.StorageConfig
	name   string
	client *storage.Client
}

var _ storageAdapter.StorageConnection = (*gcsAdapter)(nil)

// NewGCSAdapter creates a connection with its own storage client. Without a
// credentials file the client uses application default credentials.
func NewGCSAdapter(ctx context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter '%s': failed to create client: %w", name, err)
	}
	return &gcsAdapter{cfg: cfg, name: name, client: client}, nil
}

func (a *gcsAdapter) Close() error {
	if err := a.client.Close(); err != nil {
		return fmt.Errorf("gcs storage adapter '%s': failed to close client: %w", a.name, err)
	}
	logger.Debugf("GCS storage adapter '%s' closed.", a.name)
	return nil
}

func (a *gcsAdapter) Type() string { return ProviderType }

func (a *gcsAdapter) Name() string { return a.name }

func (a *gcsAdapter) object(bucket, objectName string) (*storage.ObjectHandle, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	if bucket == "" || objectName == "" {
		return nil, fmt.Errorf("gcs storage adapter '%s': bucket and object name are required", a.name)
	}
	return a.client.Bucket(bucket).Object(objectName), nil
}

func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	obj, err := a.object(bucket, objectName)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", obj.BucketName(), obj.ObjectName(), err)
	}
	logger.Debugf("Opened gs://%s/%s for reading (gcs adapter '%s').", obj.BucketName(), obj.ObjectName(), a.name)
	return r, nil
}

// NewWriter returns a resumable upload writer. The object becomes visible when the
// writer is closed.
func (a *gcsAdapter) NewWriter(ctx context.Context, bucket, objectName string, contentType string) (io.WriteCloser, error) {
	obj, err := a.object(bucket, objectName)
	if err != nil {
		return nil, err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	logger.Debugf("Opened gs://%s/%s for writing (gcs adapter '%s').", obj.BucketName(), obj.ObjectName(), a.name)
	return w, nil
}

func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	obj, err := a.object(bucket, objectName)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete gs://%s/%s: %w", obj.BucketName(), obj.ObjectName(), err)
	}
	return nil
}

// GCSProvider opens and caches GCS connections.
type GCSProvider struct {
	cfg         *coreConfig.Config
	connections map[string]storageAdapter.StorageConnection
	mu          sync.Mutex
}

// NewGCSProvider creates a provider reading connection settings from cfg.
func NewGCSProvider(cfg *coreConfig.Config) *GCSProvider {
	return &GCSProvider{cfg: cfg, connections: make(map[string]storageAdapter.StorageConnection)}
}

func (p *GCSProvider) GetConnection(name string) (storageAdapter.StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connect(name)
}

func (p *GCSProvider) connect(name string) (storageAdapter.StorageConnection, error) {
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	raw, err := p.cfg.AdapterConfig("storage", name)
	if err != nil {
		return nil, err
	}
	storageCfg, err := storageConfig.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("storage config '%s': %w", name, err)
	}
	if storageCfg.Type != ProviderType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, ProviderType, storageCfg.Type)
	}
	conn, err := NewGCSAdapter(context.Background(), storageCfg, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Debugf("Created new GCS storage connection '%s'.", name)
	return conn, nil
}

func (p *GCSProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			lastErr = err
		}
		delete(p.connections, name)
	}
	return lastErr
}

func (p *GCSProvider) Type() string { return ProviderType }

func (p *GCSProvider) ForceReconnect(name string) (storageAdapter.StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to gracefully close GCS storage connection '%s' during force reconnect: %v", name, err)
		}
		delete(p.connections, name)
	}
	return p.connect(name)
}

// Module provides the GCS StorageProvider to the storage provider group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGCSProvider,
		fx.As(new(storageAdapter.StorageProvider)),
		fx.ResultTags(storageAdapter.StorageProviderGroup),
	)),
)
