package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/iconium/internal/app"
	config "github.com/tigerroll/iconium/pkg/batch/core/config"
)

func parse(t *testing.T, args ...string) (*cobra.Command, *importFlags) {
	t.Helper()
	cmd := &cobra.Command{Use: "import"}
	f := bindImportFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, f
}

func TestImportFlags_OnlySetFlagsOverride(t *testing.T) {
	cmd, f := parse(t, "--input", "gs://bucket/listings.json", "--restart")

	cfg := config.NewConfig()
	cfg.Iconium.Job.SkipFile = "skipped.json"
	cfg.Iconium.Job.ChunkSize = 100
	f.apply(cmd, cfg)

	assert.Equal(t, "gs://bucket/listings.json", cfg.Iconium.Job.Input)
	assert.True(t, cfg.Iconium.Job.Restart)
	assert.Equal(t, "skipped.json", cfg.Iconium.Job.SkipFile, "unset flags keep the configured value")
	assert.Equal(t, 100, cfg.Iconium.Job.ChunkSize)
}

func TestImportFlags_NumericOverrides(t *testing.T) {
	cmd, f := parse(t, "--chunk-size", "10", "--skip-limit", "0")

	cfg := config.NewConfig()
	f.apply(cmd, cfg)

	assert.Equal(t, 10, cfg.Iconium.Job.ChunkSize)
	assert.Equal(t, 0, cfg.Iconium.Job.SkipLimit)
}

func TestImportFlags_NonPositiveChunkSizeIsIgnored(t *testing.T) {
	cmd, f := parse(t, "--chunk-size", "0")

	cfg := config.NewConfig()
	f.apply(cmd, cfg)

	assert.Equal(t, config.DefaultChunkSize, cfg.Iconium.Job.ChunkSize)
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	root := newRootCommand(app.Options{}, new(int))
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"import", "migrate"}, names)
}
