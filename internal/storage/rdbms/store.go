// Package rdbms implements the storage contracts on a relational database.
// One implementation serves every backend; the engine differences are
// isolated behind the Dialect interface, so sqlite, mysql, and dolt all run
// the same queries.
package rdbms

import (
	"context"
	"database/sql"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
)

// Verify Store implements storage.Storage at compile time.
var _ storage.Storage = (*Store)(nil)

// Store is a relational implementation of storage.Storage. It owns the
// connection pool for its lifetime.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore wraps an open connection pool. The caller chooses the dialect
// matching the driver behind db.
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Dialect exposes the engine profile, mostly for tests.
func (s *Store) Dialect() Dialect { return s.dialect }

// InitMetadataSource creates or upgrades the schema to the current version.
// Safe to call on an already-initialized database.
func (s *Store) InitMetadataSource(ctx context.Context) error {
	return s.runSchemaChange(ctx, func(ctx context.Context, conn *sql.Conn) error {
		v, err := readSchemaVersion(ctx, conn, s.dialect)
		if err != nil {
			return err
		}
		if v > schemaVersion {
			return errSchemaTooNew(v)
		}
		return migrateTo(ctx, conn, s.dialect, v, schemaVersion)
	})
}

// InitMetadataSourceIfNotExists verifies an existing schema or creates a
// missing one, migrating older schemas only when the caller allows it.
func (s *Store) InitMetadataSourceIfNotExists(ctx context.Context, enableUpgradeMigration bool) error {
	return s.runSchemaChange(ctx, func(ctx context.Context, conn *sql.Conn) error {
		v, err := readSchemaVersion(ctx, conn, s.dialect)
		if err != nil {
			return err
		}
		switch {
		case v == schemaVersion:
			return nil
		case v == 0:
			return migrateTo(ctx, conn, s.dialect, 0, schemaVersion)
		case v > schemaVersion:
			return errSchemaTooNew(v)
		case enableUpgradeMigration:
			return migrateTo(ctx, conn, s.dialect, v, schemaVersion)
		default:
			return status.FailedPreconditionf(
				"The database schema version %d is older than the library schema version %d. "+
					"Enable upgrade migration to migrate the database, or use an older library version.",
				v, schemaVersion)
		}
	})
}

// GetSchemaVersion returns the version recorded in schema_info; 0 means the
// database is uninitialized.
func (s *Store) GetSchemaVersion(ctx context.Context) (int64, error) {
	v, err := readSchemaVersion(ctx, s.db, s.dialect)
	if err != nil {
		return 0, s.wrapDBError("read schema version", err)
	}
	return v, nil
}

// DowngradeSchema rewinds the schema to toVersion. Downgrading to 0 removes
// the schema entirely.
func (s *Store) DowngradeSchema(ctx context.Context, toVersion int64) error {
	if toVersion < 0 {
		return status.InvalidArgumentf("downgrade schema version must be non-negative, got %d", toVersion)
	}
	return s.runSchemaChange(ctx, func(ctx context.Context, conn *sql.Conn) error {
		v, err := readSchemaVersion(ctx, conn, s.dialect)
		if err != nil {
			return err
		}
		if toVersion > v {
			return status.InvalidArgumentf(
				"cannot downgrade to schema version %d: the database is at version %d", toVersion, v)
		}
		return migrateTo(ctx, conn, s.dialect, v, toVersion)
	})
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func errSchemaTooNew(stored int64) error {
	return status.FailedPreconditionf(
		"The database schema version %d is newer than the library schema version %d. "+
			"Please upgrade the library before connecting to this database.",
		stored, schemaVersion)
}
