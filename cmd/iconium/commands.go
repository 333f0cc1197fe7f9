package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tigerroll/iconium/internal/app"
	config "github.com/tigerroll/iconium/pkg/batch/core/config"
	"github.com/tigerroll/iconium/pkg/batch/core/job"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// importFlags are the job parameters that may be given on the command line.
// Flags left unset keep the configured value.
type importFlags struct {
	input     string
	skipFile  string
	chunkSize int
	skipLimit int
	restart   bool
}

// apply copies the flags that were set on cmd onto cfg.
func (f *importFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	jc := &cfg.Iconium.Job
	flags := cmd.Flags()
	if flags.Changed("input") {
		jc.Input = f.input
	}
	if flags.Changed("skip-file") {
		jc.SkipFile = f.skipFile
	}
	if flags.Changed("chunk-size") && f.chunkSize > 0 {
		jc.ChunkSize = f.chunkSize
	}
	if flags.Changed("skip-limit") && f.skipLimit >= 0 {
		jc.SkipLimit = f.skipLimit
	}
	if flags.Changed("restart") {
		jc.Restart = f.restart
	}
}

// execute runs the command named on the command line and returns the exit code.
func execute(ctx context.Context, opts app.Options) int {
	exitCode := job.ExitCodeCompleted
	root := newRootCommand(opts, &exitCode)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		return job.ExitCodeFailed
	}
	return exitCode
}

func newRootCommand(opts app.Options, exitCode *int) *cobra.Command {
	root := &cobra.Command{
		Use:           "iconium",
		Short:         "Import crawled real-estate listings into the property database",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(newImportCommand(opts, exitCode))
	root.AddCommand(newMigrateCommand(opts, exitCode))
	return root
}

func newImportCommand(opts app.Options, exitCode *int) *cobra.Command {
	var f *importFlags
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON array of listings",
		Long: `Reads the listings of the input document, resolves them against the address
authority and writes them chunk by chunk. Records that cannot be imported are
written to the skip file. Exit codes: 0 completed, 1 failed, 2 skip limit
exceeded, 3 unreadable input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Override = func(cfg *config.Config) { f.apply(cmd, cfg) }
			*exitCode = app.RunImport(cmd.Context(), opts)
			return nil
		},
	}
	f = bindImportFlags(cmd)
	return cmd
}

func bindImportFlags(cmd *cobra.Command) *importFlags {
	f := &importFlags{}
	cmd.Flags().StringVar(&f.input, "input", "", "location of the input document (path or gs:// URI)")
	cmd.Flags().StringVar(&f.skipFile, "skip-file", "", "location of the skip log (path or gs:// URI)")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", config.DefaultChunkSize, "number of listings committed per transaction")
	cmd.Flags().IntVar(&f.skipLimit, "skip-limit", config.DefaultSkipLimit, "number of records that may be skipped before the job fails")
	cmd.Flags().BoolVar(&f.restart, "restart", false, "resume after the last committed chunk")
	return f
}

func newMigrateCommand(opts app.Options, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the workload database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			*exitCode = app.RunMigrate(cmd.Context(), opts)
			return nil
		},
	}
}
