//go:build cgo

// Package dolt opens metadata stores backed by an embedded Dolt database.
//
// Dolt speaks MySQL syntax over a versioned storage engine, so the store
// reuses the MySQL dialect profile. The embedded engine runs in-process
// against a data directory and holds filesystem locks for its lifetime; to
// share one database between processes, run a dolt sql-server and use the
// mysql backend instead.
package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/storage/rdbms"
)

const (
	defaultDatabase    = "trellis"
	defaultCommitName  = "trellis"
	defaultCommitEmail = "trellis@localhost"

	openMaxElapsed = 30 * time.Second
)

var databaseNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// newOpenBackoff returns retry timing for embedded opens. BackOff
// implementations are stateful; always hand the driver a fresh one.
func newOpenBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = openMaxElapsed
	return bo
}

// Store is an rdbms store plus the embedded connector, which must be closed
// to release the engine's filesystem locks.
type Store struct {
	*rdbms.Store
	connector *embedded.Connector
}

// Close closes the connection pool first, then the connector. The engine's
// shutdown plumbing may surface context.Canceled from background goroutines;
// that is cleanup noise, not a failure.
func (s *Store) Close() error {
	err := ignoreContextCanceled(s.Store.Close())
	cerr := ignoreContextCanceled(s.connector.Close())
	return errors.Join(err, cerr)
}

func ignoreContextCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// New opens the Dolt database rooted at cfg.Path, creating the data
// directory and database if needed. CommitName and CommitEmail become the
// committer identity Dolt records on writes. New does not create the
// metadata schema; callers run InitMetadataSource or
// InitMetadataSourceIfNotExists on the returned store.
func New(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
	if cfg.Path == "" {
		return nil, status.InvalidArgumentf("dolt: data directory path is required")
	}
	database := cfg.Database
	if database == "" {
		database = defaultDatabase
	}
	if !databaseNamePattern.MatchString(database) {
		return nil, status.InvalidArgumentf(
			"dolt: database name %q may only contain letters, digits, '_' and '-'", database)
	}
	commitName := cfg.CommitName
	if commitName == "" {
		commitName = defaultCommitName
	}
	commitEmail := cfg.CommitEmail
	if commitEmail == "" {
		commitEmail = defaultCommitEmail
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("dolt: resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, fmt.Errorf("dolt: create data directory: %w", err)
	}

	initDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s", absPath, commitName, commitEmail)
	dbDSN := initDSN + "&database=" + database

	// Ensure the database exists as its own unit of work; the connector is
	// closed before the long-lived one opens so the engine never sees two
	// concurrent owners.
	err = withEmbedded(ctx, initDSN, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", database))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("dolt: create database %s: %w", database, err)
	}

	db, connector, err := openEmbedded(dbDSN)
	if err != nil {
		return nil, err
	}

	// Force the first connection open with a non-canceling context. The
	// embedded driver derives a session context from Connect and reuses it
	// across statements, so a caller context that ends soon after New
	// returns would poison the pooled connection.
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("dolt: ping %s: %w", absPath, err)
	}

	return &Store{Store: rdbms.NewStore(db, rdbms.MySQLDialect()), connector: connector}, nil
}

func openEmbedded(dsn string) (*sql.DB, *embedded.Connector, error) {
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("dolt: parse DSN: %w", err)
	}
	cfg.BackOff = newOpenBackoff()

	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dolt: create connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// The embedded engine is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, connector, nil
}

// withEmbedded runs exactly one unit of work on a short-lived embedded
// connector: parse, connect, ping (which performs open retries), fn, close.
func withEmbedded(ctx context.Context, dsn string, fn func(ctx context.Context, db *sql.DB) error) (err error) {
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return err
	}
	cfg.BackOff = newOpenBackoff()

	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return err
	}
	db := sql.OpenDB(connector)

	defer func() {
		cerr := errors.Join(
			ignoreContextCanceled(db.Close()),
			ignoreContextCanceled(connector.Close()),
		)
		err = errors.Join(err, cerr)
	}()

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	return fn(ctx, db)
}
