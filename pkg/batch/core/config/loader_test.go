package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

const testYAML = `
surfin:
  system:
    logging:
      level: DEBUG
  adapter:
    database:
      workload:
        type: sqlite
        database: ${ICONIUM_TEST_DB_PATH}
iconium:
  job:
    input: listings.json
    skip_file: skipped.json
    chunk_size: 100
`

func TestLoadConfig_DefaultsYAMLAndEnv(t *testing.T) {
	t.Setenv("ICONIUM_TEST_DB_PATH", "/tmp/iconium.db")
	t.Setenv("ICONIUM_JOB_SKIP_LIMIT", "7")
	t.Setenv("ICONIUM_JOB_RESTART", "true")
	t.Setenv("ICONIUM_JOB_SKIPPABLE_EXCEPTIONS", "ValidationError, ResolutionError")
	t.Setenv("SURFIN_ADAPTER_DATABASE_AUTHORITY_TYPE", "postgres")
	t.Setenv("SURFIN_ADAPTER_DATABASE_AUTHORITY_HOST", "gnaf.internal")

	cfg, err := LoadConfig("testdata/missing.env", EmbeddedConfig(testYAML))
	require.NoError(t, err)

	job := cfg.Iconium.Job
	assert.Equal(t, "listings.json", job.Input)
	assert.Equal(t, "skipped.json", job.SkipFile)
	assert.Equal(t, 100, job.ChunkSize)
	assert.Equal(t, 7, job.SkipLimit)
	assert.Equal(t, DefaultCacheSize, job.CacheSize)
	assert.True(t, job.Restart)
	assert.Equal(t, []string{"ValidationError", "ResolutionError"}, job.SkippableExceptions)
	assert.Equal(t, "DEBUG", cfg.Surfin.System.Logging.Level)

	workload, err := cfg.AdapterConfig("database", "workload")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/iconium.db", workload.(map[string]interface{})["database"])

	authority, err := cfg.AdapterConfig("database", "authority")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"type": "postgres", "host": "gnaf.internal"}, authority)
}

func TestLoadConfig_RejectsUnknownSkippableKind(t *testing.T) {
	t.Setenv("ICONIUM_JOB_SKIPPABLE_EXCEPTIONS", "NoSuchError")

	_, err := LoadConfig("testdata/missing.env", EmbeddedConfig(testYAML))
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))
	assert.Contains(t, err.Error(), "NoSuchError")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig("testdata/missing.env", EmbeddedConfig("iconium: [unclosed"))
	assert.Error(t, err)
}

func TestAdapterConfig_MissingConnection(t *testing.T) {
	cfg := NewConfig()
	_, err := cfg.AdapterConfig("storage", "input")
	assert.Error(t, err)
}
