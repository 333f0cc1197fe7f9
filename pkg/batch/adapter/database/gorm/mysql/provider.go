// Package mysql registers the MySQL dialect with the gorm adapter.
package mysql

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/iconium/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/iconium/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/iconium/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/iconium/pkg/batch/core/config"
)

// DBType is the database type handled by this package.
const DBType = "mysql"

func init() {
	gormadapter.RegisterDialector(DBType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString generates the DSN for MySQL connections:
// user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=UTC
func ConnectionString(c dbconfig.DatabaseConfig) string {
	var auth string
	if c.User != "" {
		auth = c.User
		if c.Password != "" {
			auth = fmt.Sprintf("%s:%s", c.User, c.Password)
		}
		auth += "@"
	}
	return fmt.Sprintf("%stcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		auth, c.Host, c.Port, c.Database)
}

// NewProvider creates a DBProvider for MySQL connections.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType)
}
