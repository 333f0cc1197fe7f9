package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/fx"

	"github.com/tigerroll/iconium/internal/app"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// embeddedConfig is the application configuration compiled into the binary.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// dbProviderOptions registers the database providers named in DB_ADAPTORS
// (comma separated). All supported providers are registered when it is unset.
func dbProviderOptions() []fx.Option {
	adaptors := os.Getenv("DB_ADAPTORS")
	if adaptors == "" {
		adaptors = "postgres,mysql,sqlite"
	}

	options := make([]fx.Option, 0)
	for _, name := range strings.Split(adaptors, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if provider, ok := app.DBProviderMap[name]; ok {
			options = append(options, app.DBProviderOption(provider))
			logger.Debugf("DB Provider '%s' selected and registered.", name)
		} else {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", name)
		}
	}
	return options
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the job...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	code := execute(ctx, app.Options{
		EnvFilePath:    envFilePath,
		EmbeddedConfig: embeddedConfig,
		DBProviders:    dbProviderOptions(),
	})
	cancel()
	os.Exit(code)
}
