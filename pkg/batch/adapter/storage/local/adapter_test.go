package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/iconium/pkg/batch/adapter/storage"
	"github.com/tigerroll/iconium/pkg/batch/adapter/storage/local"
	config "github.com/tigerroll/iconium/pkg/batch/core/config"
)

func newResolver(t *testing.T) (*storageAdapter.ConnectionResolver, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Surfin.AdapterConfigs["storage"] = map[string]interface{}{
		"local": map[string]interface{}{"type": "local", "base_dir": dir},
		"cloud": map[string]interface{}{"type": "gcs", "bucket_name": "b"},
	}
	r := storageAdapter.NewConnectionResolver(cfg, local.NewLocalProvider(cfg))
	t.Cleanup(func() { _ = r.CloseAll() })
	return r, dir
}

func TestLocalAdapter_WriteThenDownload(t *testing.T) {
	ctx := context.Background()
	r, dir := newResolver(t)

	conn, loc, err := r.ResolveLocation(ctx, "out/skips.json", "")
	require.NoError(t, err)
	assert.Equal(t, "local", conn.Name())

	w, err := conn.NewWriter(ctx, loc.Bucket, loc.Object, "application/json")
	require.NoError(t, err)
	_, err = io.WriteString(w, "[]")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "out", "skips.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	rc, err := conn.Download(ctx, "", filepath.Join(dir, "out", "skips.json"))
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))

	require.NoError(t, conn.DeleteObject(ctx, "", "out/skips.json"))
	require.NoError(t, conn.DeleteObject(ctx, "", "out/skips.json"))
}

func TestLocalAdapter_RejectsEscapingPathsAndDirectories(t *testing.T) {
	ctx := context.Background()
	r, _ := newResolver(t)
	conn, err := r.ResolveStorageConnection(ctx, "local")
	require.NoError(t, err)

	_, err = conn.Download(ctx, "", "../outside.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside of BaseDir")

	_, err = conn.Download(ctx, "", "missing.json")
	assert.Error(t, err)

	_, err = conn.Download(ctx, "", t.TempDir())
	assert.Error(t, err)
}

func TestParseLocation(t *testing.T) {
	loc, err := storageAdapter.ParseLocation("gs://listings/2024/01/crawl.json")
	require.NoError(t, err)
	assert.Equal(t, storageAdapter.Location{Scheme: "gs", Bucket: "listings", Object: "2024/01/crawl.json"}, loc)
	assert.Equal(t, "gcs", loc.ProviderType())
	assert.Equal(t, "gs://listings/2024/01/crawl.json", loc.String())

	loc, err = storageAdapter.ParseLocation("file:///data/crawl.json")
	require.NoError(t, err)
	assert.Equal(t, "/data/crawl.json", loc.Object)
	assert.Equal(t, "local", loc.ProviderType())

	for _, bad := range []string{"", "gs://bucket-only", "gs:///object", "s3://b/o"} {
		_, err := storageAdapter.ParseLocation(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolveLocation_PicksConnectionByScheme(t *testing.T) {
	r, _ := newResolver(t)
	// The gcs connection is configured but no gcs provider is registered.
	_, _, err := r.ResolveLocation(context.Background(), "gs://b/o.json", "")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no storage provider for type 'gcs'"))
}
