// Package mysql opens metadata stores backed by a MySQL server.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/storage/rdbms"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 3306
	defaultUser = "root"
)

// databaseNamePattern keeps CREATE DATABASE free of backtick escapes; the
// name is interpolated into DDL below.
var databaseNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// New connects to a MySQL server and returns a store over the configured
// database, creating the database if it does not exist. New does not create
// the schema; callers run InitMetadataSource or InitMetadataSourceIfNotExists
// on the returned store.
func New(ctx context.Context, cfg storage.Config) (*rdbms.Store, error) {
	if cfg.Database == "" {
		return nil, status.InvalidArgumentf("mysql: database name is required")
	}
	if !databaseNamePattern.MatchString(cfg.Database) {
		return nil, status.InvalidArgumentf(
			"mysql: database name %q may only contain letters, digits, '_' and '-'", cfg.Database)
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.User == "" {
		cfg.User = defaultUser
	}

	if err := ensureDatabase(ctx, cfg); err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", buildDSN(cfg, cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("mysql: open connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return rdbms.NewStore(db, rdbms.MySQLDialect()), nil
}

// buildDSN constructs a go-sql-driver DSN. An empty database connects
// without selecting one, which ensureDatabase needs for CREATE DATABASE.
func buildDSN(cfg storage.Config, database string) string {
	userPart := cfg.User
	if cfg.Password != "" {
		userPart = fmt.Sprintf("%s:%s", cfg.User, cfg.Password)
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", userPart, cfg.Host, cfg.Port, database)
}

func ensureDatabase(ctx context.Context, cfg storage.Config) error {
	initDB, err := sql.Open("mysql", buildDSN(cfg, ""))
	if err != nil {
		return fmt.Errorf("mysql: open init connection: %w", err)
	}
	defer func() { _ = initDB.Close() }()

	_, err = initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
	if err != nil {
		errLower := strings.ToLower(err.Error())
		if strings.Contains(errLower, "database exists") {
			return nil
		}
		if strings.Contains(errLower, "connection refused") {
			return fmt.Errorf("mysql: cannot reach server at %s:%d (is it running?): %w",
				cfg.Host, cfg.Port, err)
		}
		return fmt.Errorf("mysql: create database %s: %w", cfg.Database, err)
	}
	return nil
}
