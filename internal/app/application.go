package app

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/iconium/internal/importjob"
	config "github.com/tigerroll/iconium/pkg/batch/core/config"
	"github.com/tigerroll/iconium/pkg/batch/core/job"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

const stopTimeout = 30 * time.Second

// Options are the inputs of a run that main.go collects.
type Options struct {
	EnvFilePath    string
	EmbeddedConfig config.EmbeddedConfig
	// DBProviders holds one DBProviderOption per database type to register.
	DBProviders []fx.Option
	// Override applies command-line parameters on top of the loaded configuration.
	Override func(cfg *config.Config)
}

// RunImport runs the listing import and returns the process exit code.
func RunImport(appCtx context.Context, opts Options) int {
	return run(appCtx, opts,
		ImportModule,
		fx.Invoke(startJobExecution),
	)
}

// RunMigrate applies the workload schema and returns the process exit code.
func RunMigrate(appCtx context.Context, opts Options) int {
	return run(appCtx, opts, fx.Invoke(startMigration))
}

func run(appCtx context.Context, opts Options, command ...fx.Option) int {
	cfg, err := config.LoadConfig(opts.EnvFilePath, opts.EmbeddedConfig)
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		return job.ExitCodeFailed
	}
	if opts.Override != nil {
		opts.Override(cfg)
	}

	app := fx.New(
		fx.Supply(
			cfg,
			fx.Annotate(
				appCtx,
				fx.As(new(context.Context)),
				fx.ResultTags(`name:"appCtx"`),
			),
		),
		fx.Options(opts.DBProviders...),
		logger.Module,
		config.Module,
		InfrastructureModule,
		fx.Options(command...),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Application start failed: %v", err)
		return job.ExitCodeFailed
	}

	done := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Application stop failed: %v", err)
	}
	return done.ExitCode
}

type jobParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Job        *importjob.ListingImportJob
	Migrator   *WorkloadMigrator
	Cfg        *config.Config
	AppCtx     context.Context `name:"appCtx"`
}

// startJobExecution runs the import once the application has started and shuts the
// application down with the job's exit code.
func startJobExecution(p jobParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				exitCode := job.ExitCodeFailed
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in job execution: %v", r)
					}
					logger.Infof("Requesting application shutdown after job completion (exit code %d).", exitCode)
					if err := p.Shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()

				if p.Cfg.Iconium.Job.AutoMigrate {
					if err := p.Migrator.Up(p.AppCtx); err != nil {
						logger.Errorf("Schema migration before import failed: %v", err)
						return
					}
				}
				outcome := p.Job.Run(p.AppCtx)
				exitCode = job.ExitCode(outcome)
			}()
			return nil
		},
		OnStop: onStopApplication(),
	})
}

type migrationParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Migrator   *WorkloadMigrator
	AppCtx     context.Context `name:"appCtx"`
}

// startMigration applies the workload schema and shuts the application down.
func startMigration(p migrationParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				exitCode := job.ExitCodeCompleted
				if err := p.Migrator.Up(p.AppCtx); err != nil {
					logger.Errorf("Schema migration failed: %v", err)
					exitCode = job.ExitCodeFailed
				} else {
					logger.Infof("Workload schema is up to date.")
				}
				if err := p.Shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
					logger.Errorf("Failed to shutdown application: %v", err)
				}
			}()
			return nil
		},
		OnStop: onStopApplication(),
	})
}

func onStopApplication() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		logger.Infof("Application is shutting down.")
		return nil
	}
}
