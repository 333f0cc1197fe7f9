// Package config holds the settings of a single database connection.
package config

import (
	"github.com/tigerroll/iconium/pkg/batch/support/util/configbinder"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`             // Database type ("postgres", "mysql", "sqlite").
	Host     string     `yaml:"host"`             // Database host address.
	Port     int        `yaml:"port"`             // Database port number.
	Database string     `yaml:"database"`         // Database name, or the file path for sqlite.
	User     string     `yaml:"user"`             // Database user.
	Password string     `yaml:"password"`         // Database password.
	Schema   string     `yaml:"schema,omitempty"` // Search path for PostgreSQL.
	Sslmode  string     `yaml:"sslmode"`          // SSL mode for PostgreSQL.
	Pool     PoolConfig `yaml:"pool"`             // Connection pool settings.
}

// Decode converts a raw adapter.database.<name> entry into a DatabaseConfig.
// Keys follow the yaml tags and string values are converted to the field types,
// so that overrides coming from the environment decode as well.
func Decode(raw interface{}) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	err := configbinder.Bind(raw, &cfg)
	return cfg, err
}
