// Package config provides the configuration structures of iconium and the loader that
// fills them from the embedded application.yaml, a .env file and the process environment.
package config

import (
	"fmt"
)

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g. "INFO", "DEBUG").
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
	// SQLLevel is the level GORM statements are logged at ("SILENT", "ERROR", "WARN", "INFO").
	SQLLevel string `yaml:"sql_level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g. "UTC", "Australia/Sydney").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig configures the Prometheus recorder.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	Enabled bool `yaml:"enabled"`
	// PushgatewayURL, when set, receives the collected metrics at job end.
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// TracingConfig configures the OpenTelemetry tracer provider.
type TracingConfig struct {
	// Exporter is "none", "otlphttp" or "otlpgrpc".
	Exporter string `yaml:"exporter"`
	// Endpoint is the collector endpoint (host:port).
	Endpoint string `yaml:"endpoint"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `yaml:"service_name"`
}

// CheckpointInMemory is the CheckpointDBRef value that disables the checkpoint table.
const CheckpointInMemory = "none"

// InfrastructureConfig holds logical dependency settings for infrastructure components.
type InfrastructureConfig struct {
	// CheckpointDBRef is the database connection holding the restart checkpoints.
	// CheckpointInMemory keeps them in process memory instead.
	CheckpointDBRef string `yaml:"checkpoint_db_ref"`
	// Metrics is the metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
	// Tracing is the tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// SurfinConfig holds all configuration under the "surfin" top-level key.
type SurfinConfig struct {
	// System contains system-wide configurations.
	System SystemConfig `yaml:"system"`
	// Infrastructure contains infrastructure-related configurations.
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	// AdapterConfigs holds named connections per adapter kind, e.g.
	// adapter.database.workload or adapter.storage.input.
	AdapterConfigs map[string]interface{} `yaml:"adapter"`
}

// JobConfig holds the parameters of the listing import job.
// They are read once before the pipeline starts and are immutable for the run.
type JobConfig struct {
	// Name identifies the job in logs, metrics and checkpoints.
	Name string `yaml:"name"`
	// Input is the location of the JSON array to import (a path or a gs:// URI).
	Input string `yaml:"input"`
	// SkipFile is the location of the skip log (a path or a gs:// URI).
	SkipFile string `yaml:"skip_file"`
	// ChunkSize is the commit interval.
	ChunkSize int `yaml:"chunk_size"`
	// SkipLimit is the number of records that may be skipped before the job fails.
	SkipLimit int `yaml:"skip_limit"`
	// SkippableExceptions narrows the skip policy to the named error kinds. Empty means every skippable error.
	SkippableExceptions []string `yaml:"skippable_exceptions"`
	// CacheSize bounds the lookup cache.
	CacheSize int `yaml:"cache_size"`
	// Restart resumes from the last committed checkpoint.
	Restart bool `yaml:"restart"`
	// AutoMigrate applies pending schema migrations before importing.
	AutoMigrate bool `yaml:"auto_migrate"`
	// WorkloadDBRef names the database connection the listings are written to.
	WorkloadDBRef string `yaml:"workload_db_ref"`
	// AuthorityDBRef names the read-only address authority connection.
	AuthorityDBRef string `yaml:"authority_db_ref"`
	// AuthoritySchema qualifies the address authority views.
	AuthoritySchema string `yaml:"authority_schema"`
	// StorageRef names the storage connection used for local paths.
	StorageRef string `yaml:"storage_ref"`
}

// IconiumConfig holds all configuration under the "iconium" top-level key.
type IconiumConfig struct {
	Job JobConfig `yaml:"job"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Surfin  SurfinConfig  `yaml:"surfin"`
	Iconium IconiumConfig `yaml:"iconium"`
	// EmbeddedConfig holds the raw configuration the values were loaded from.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// Default job parameters.
const (
	DefaultChunkSize = 2500
	DefaultSkipLimit = 5000
	DefaultCacheSize = 100000
)

// NewConfig returns a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Surfin: SurfinConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", Format: "console", SQLLevel: string(LogLevelSilent)},
			},
			Infrastructure: InfrastructureConfig{
				CheckpointDBRef: "workload",
				Tracing:         TracingConfig{Exporter: "none", ServiceName: "iconium"},
			},
			AdapterConfigs: map[string]interface{}{},
		},
		Iconium: IconiumConfig{
			Job: JobConfig{
				Name:            "listingImportJob",
				ChunkSize:       DefaultChunkSize,
				SkipLimit:       DefaultSkipLimit,
				CacheSize:       DefaultCacheSize,
				WorkloadDBRef:   "workload",
				AuthorityDBRef:  "authority",
				AuthoritySchema: "gnaf",
				StorageRef:      "local",
			},
		},
	}
}

// AdapterConfig returns the raw configuration of the named connection of the given
// adapter kind ("database" or "storage").
func (c *Config) AdapterConfig(kind, name string) (interface{}, error) {
	section, ok := c.Surfin.AdapterConfigs[kind]
	if !ok {
		return nil, fmt.Errorf("no '%s' adapter configuration found", kind)
	}
	named, ok := section.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid '%s' adapter configuration format: expected map[string]interface{} but got %T", kind, section)
	}
	raw, ok := named[name]
	if !ok {
		return nil, fmt.Errorf("%s configuration '%s' not found under 'adapter.%s'", kind, name, kind)
	}
	return raw, nil
}
