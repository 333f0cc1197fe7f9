// Package migrations embeds the workload schema for each supported database type.
package migrations

import (
	"embed"
	"fmt"
)

//go:embed postgres/*.sql mysql/*.sql sqlite/*.sql
var FS embed.FS

// Dir returns the directory of FS holding the migrations for dbType.
func Dir(dbType string) (string, error) {
	switch dbType {
	case "postgres", "mysql", "sqlite":
		return dbType, nil
	default:
		return "", fmt.Errorf("no migrations for database type '%s'", dbType)
	}
}
