package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Queryer is the subset of database/sql execution methods shared by *sql.DB
// and *sql.Conn. Store-level code takes a Queryer so the same queries run
// inside and outside transactions.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect captures the SQL differences between the supported engines. All
// data queries are written once against the `?` placeholder form both
// engines accept; the dialect only supplies the pieces that genuinely
// diverge.
type Dialect interface {
	Name() string

	// BeginStmt opens a transaction. SQLite takes the write lock up front
	// with BEGIN IMMEDIATE; MySQL-family engines use START TRANSACTION.
	BeginStmt() string

	// AutoIncrementPK is the column definition for a server-assigned id.
	AutoIncrementPK() string

	// TextIndexColumn renders a text column reference inside an index
	// definition, applying a prefix length where the engine requires one.
	TextIndexColumn(column string, prefixLen int) string

	// DropIndexStmt drops an index. MySQL needs the owning table named.
	DropIndexStmt(table, index string) string

	TableExists(ctx context.Context, q Queryer, table string) (bool, error)
	TableColumns(ctx context.Context, q Queryer, table string) ([]string, error)
	IndexExists(ctx context.Context, q Queryer, table, index string) (bool, error)

	// IsRetryable reports whether an error is a transient driver failure
	// worth retrying with a fresh transaction.
	IsRetryable(err error) bool

	// IsUniqueViolation reports whether an error comes from a uniqueness
	// constraint.
	IsUniqueViolation(err error) bool
}

// SQLiteDialect returns the dialect for SQLite-compatible engines.
func SQLiteDialect() Dialect { return sqliteDialect{} }

// MySQLDialect returns the dialect for MySQL-compatible engines, including
// dolt, which speaks MySQL syntax.
func MySQLDialect() Dialect { return mysqlDialect{} }

type sqliteDialect struct{}

func (sqliteDialect) Name() string            { return "sqlite" }
func (sqliteDialect) BeginStmt() string       { return "BEGIN IMMEDIATE" }
func (sqliteDialect) AutoIncrementPK() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (sqliteDialect) TextIndexColumn(column string, _ int) string { return column }

func (sqliteDialect) DropIndexStmt(_, index string) string {
	return "DROP INDEX IF EXISTS " + index
}

func (sqliteDialect) TableExists(ctx context.Context, q Queryer, table string) (bool, error) {
	var name string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (sqliteDialect) TableColumns(ctx context.Context, q Queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []string
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

func (sqliteDialect) IndexExists(ctx context.Context, q Queryer, _, index string) (bool, error) {
	var name string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, index).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (sqliteDialect) IsRetryable(err error) bool {
	return matchesAny(err,
		"database is locked",
		"database table is locked",
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"driver: bad connection",
	)
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	return matchesAny(err, "UNIQUE constraint failed")
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string            { return "mysql" }
func (mysqlDialect) BeginStmt() string       { return "START TRANSACTION" }
func (mysqlDialect) AutoIncrementPK() string { return "BIGINT NOT NULL PRIMARY KEY AUTO_INCREMENT" }

func (mysqlDialect) TextIndexColumn(column string, prefixLen int) string {
	if prefixLen <= 0 {
		return column
	}
	return fmt.Sprintf("%s(%d)", column, prefixLen)
}

func (mysqlDialect) DropIndexStmt(table, index string) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", index, table)
}

func (mysqlDialect) TableExists(ctx context.Context, q Queryer, table string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
		table).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (mysqlDialect) TableColumns(ctx context.Context, q Queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = DATABASE() AND table_name = ?
		 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

func (mysqlDialect) IndexExists(ctx context.Context, q Queryer, table, index string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM information_schema.statistics
		 WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?
		 LIMIT 1`, table, index).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (mysqlDialect) IsRetryable(err error) bool {
	return matchesAny(err,
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection",
		"gone away",
		"i/o timeout",
		"deadlock found",
		"lock wait timeout",
		"try restarting transaction",
	)
}

func (mysqlDialect) IsUniqueViolation(err error) bool {
	return matchesAny(err, "duplicate entry", "duplicate unique key")
}

// matchesAny reports whether the error string contains any of the given
// fragments, compared case-insensitively.
func matchesAny(err error, fragments ...string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, f := range fragments {
		if strings.Contains(msg, strings.ToLower(f)) {
			return true
		}
	}
	return false
}
