package rdbms

import (
	"context"
	"fmt"
	"strings"
)

// schemaVersion is the version a fresh init produces. The history:
//
//	v1  core tables and lookup indexes
//	v2  unique identity index on events, deduplicating first
//	v3  create/update-time indexes on entity tables, artifact uri index
//	v4  struct_value column on the property tables
//
// Version 0 means an uninitialized database. Both init and downgrade walk
// the same migration chain, so a migrated database and a fresh one end up
// byte-compatible.
const schemaVersion = 4

// tableStatements returns the CREATE TABLE set as of v1. Later versions
// alter these tables rather than redefine them.
func tableStatements(d Dialect) []string {
	pk := d.AutoIncrementPK()
	propertyTable := func(table, owner string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			%s BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			is_custom_property TINYINT(1) NOT NULL,
			int_value BIGINT,
			double_value DOUBLE,
			string_value TEXT,
			PRIMARY KEY (%s, name, is_custom_property)
		)`, table, owner, owner)
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS types (
			id %s,
			name VARCHAR(255) NOT NULL,
			version VARCHAR(255) NOT NULL DEFAULT '',
			type_kind INT NOT NULL,
			description TEXT,
			UNIQUE (type_kind, name, version)
		)`, pk),
		`CREATE TABLE IF NOT EXISTS type_properties (
			type_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			data_type VARCHAR(16) NOT NULL,
			PRIMARY KEY (type_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS parent_types (
			type_id BIGINT NOT NULL,
			parent_type_id BIGINT NOT NULL,
			PRIMARY KEY (type_id, parent_type_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS artifacts (
			id %s,
			type_id BIGINT NOT NULL,
			uri TEXT,
			name VARCHAR(255),
			state VARCHAR(32),
			create_time_since_epoch BIGINT NOT NULL DEFAULT 0,
			last_update_time_since_epoch BIGINT NOT NULL DEFAULT 0,
			UNIQUE (type_id, name)
		)`, pk),
		propertyTable("artifact_properties", "artifact_id"),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS executions (
			id %s,
			type_id BIGINT NOT NULL,
			name VARCHAR(255),
			last_known_state VARCHAR(32),
			create_time_since_epoch BIGINT NOT NULL DEFAULT 0,
			last_update_time_since_epoch BIGINT NOT NULL DEFAULT 0,
			UNIQUE (type_id, name)
		)`, pk),
		propertyTable("execution_properties", "execution_id"),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS contexts (
			id %s,
			type_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			create_time_since_epoch BIGINT NOT NULL DEFAULT 0,
			last_update_time_since_epoch BIGINT NOT NULL DEFAULT 0,
			UNIQUE (type_id, name)
		)`, pk),
		propertyTable("context_properties", "context_id"),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS events (
			id %s,
			artifact_id BIGINT NOT NULL,
			execution_id BIGINT NOT NULL,
			type VARCHAR(32) NOT NULL,
			milliseconds_since_epoch BIGINT NOT NULL DEFAULT 0
		)`, pk),
		`CREATE TABLE IF NOT EXISTS event_paths (
			event_id BIGINT NOT NULL,
			position INT NOT NULL,
			step_index BIGINT,
			step_key TEXT,
			PRIMARY KEY (event_id, position)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS associations (
			id %s,
			context_id BIGINT NOT NULL,
			execution_id BIGINT NOT NULL,
			UNIQUE (context_id, execution_id)
		)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS attributions (
			id %s,
			context_id BIGINT NOT NULL,
			artifact_id BIGINT NOT NULL,
			UNIQUE (context_id, artifact_id)
		)`, pk),
		`CREATE TABLE IF NOT EXISTS parent_contexts (
			context_id BIGINT NOT NULL,
			parent_context_id BIGINT NOT NULL,
			PRIMARY KEY (context_id, parent_context_id)
		)`,
		`CREATE TABLE IF NOT EXISTS schema_info (
			schema_version BIGINT NOT NULL
		)`,
	}
}

// allTables lists every table the schema owns, in an order safe to drop.
var allTables = []string{
	"type_properties",
	"parent_types",
	"artifact_properties",
	"execution_properties",
	"context_properties",
	"event_paths",
	"events",
	"associations",
	"attributions",
	"parent_contexts",
	"artifacts",
	"executions",
	"contexts",
	"types",
	"schema_info",
}

// propertyTables are the tables extended by the v4 struct_value column.
var propertyTables = []string{"artifact_properties", "execution_properties", "context_properties"}

func ensureIndex(ctx context.Context, q Queryer, d Dialect, table, name string, unique bool, columns string) error {
	exists, err := d.IndexExists(ctx, q, table, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	form := "CREATE INDEX %s ON %s (%s)"
	if unique {
		form = "CREATE UNIQUE INDEX %s ON %s (%s)"
	}
	_, err = q.ExecContext(ctx, fmt.Sprintf(form, name, table, columns))
	return err
}

func dropIndex(ctx context.Context, q Queryer, d Dialect, table, name string) error {
	exists, err := d.IndexExists(ctx, q, table, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	_, err = q.ExecContext(ctx, d.DropIndexStmt(table, name))
	return err
}

func columnExists(ctx context.Context, q Queryer, d Dialect, table, column string) (bool, error) {
	columns, err := d.TableColumns(ctx, q, table)
	if err != nil {
		return false, err
	}
	for _, c := range columns {
		if strings.EqualFold(c, column) {
			return true, nil
		}
	}
	return false, nil
}

func readSchemaVersion(ctx context.Context, q Queryer, d Dialect) (int64, error) {
	exists, err := d.TableExists(ctx, q, "schema_info")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	rows, err := q.QueryContext(ctx, `SELECT schema_version FROM schema_info`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return 0, rows.Err()
	}
	var v int64
	if err := rows.Scan(&v); err != nil {
		return 0, err
	}
	return v, rows.Err()
}

func writeSchemaVersion(ctx context.Context, q Queryer, v int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM schema_info`); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `INSERT INTO schema_info (schema_version) VALUES (?)`, v)
	return err
}
