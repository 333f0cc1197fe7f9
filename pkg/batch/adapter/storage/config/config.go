// Package config holds the settings of a single storage connection.
package config

import (
	"github.com/tigerroll/iconium/pkg/batch/support/util/configbinder"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage ("local" or "gcs").
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Service account key for GCS. Empty uses application default credentials.
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
}

// Decode converts a raw adapter.storage.<name> entry into a StorageConfig.
func Decode(raw interface{}) (StorageConfig, error) {
	var cfg StorageConfig
	err := configbinder.Bind(raw, &cfg)
	return cfg, err
}
