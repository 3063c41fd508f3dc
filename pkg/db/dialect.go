package db

import (
	"fmt"
	"net/url"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect picks the driver for cfg.Type. Every session is pinned to UTC so
// appointment and analytics windows compare in one zone.
func Dialect(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "postgres", "postgresql":
		return postgres.Open(postgresDSN(cfg)), nil
	case "mysql":
		return mysql.Open(mysqlDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(sqliteDSN(cfg.Name)), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

func postgresDSN(cfg Config) string {
	pairs := []string{
		"host=" + cfg.Host,
		"port=" + cfg.Port,
		"user=" + cfg.User,
		"password=" + cfg.Password,
		"dbname=" + cfg.Name,
		"sslmode=" + cfg.SSLMode,
		"TimeZone=UTC",
	}
	return strings.Join(pairs, " ")
}

func mysqlDSN(cfg Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
}

// sqliteDSN turns on foreign keys, which SQLite leaves off per connection.
func sqliteDSN(name string) string {
	if name == "" {
		name = "opensmile.db"
	}
	if strings.Contains(name, "_foreign_keys") {
		return name
	}
	sep := "?"
	if strings.Contains(name, "?") {
		sep = "&"
	}
	return name + sep + url.Values{"_foreign_keys": {"1"}}.Encode()
}
