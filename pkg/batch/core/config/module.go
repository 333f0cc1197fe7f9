package config

import (
	"go.uber.org/fx"

	"github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// NewLoggingConfigProvider extracts *LoggingConfig from *Config so components can depend
// on the logging section alone.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Surfin.System.Logging
}

// ApplyLogging configures the global logger with the level and format of lc.
func ApplyLogging(lc *LoggingConfig) {
	logger.Configure(lc.Level, lc.Format)
	logger.Infof("Logging configured (level: %s, format: %s).", lc.Level, lc.Format)
}

// Module provides the logging section and applies it before the components that
// follow it in the fx graph start.
var Module = fx.Options(
	fx.Provide(NewLoggingConfigProvider),
	fx.Invoke(ApplyLogging),
)
