package rdbms

import (
	"context"
	"fmt"
)

// migration is one step of the schema chain. upgrade moves a database at
// version-1 to version; downgrade reverses it. Steps are written to be
// idempotent, so a re-run after a partial failure converges.
type migration struct {
	version   int64
	upgrade   func(ctx context.Context, q Queryer, d Dialect) error
	downgrade func(ctx context.Context, q Queryer, d Dialect) error
}

var migrations = []migration{
	{version: 1, upgrade: upgradeToV1, downgrade: downgradeToV0},
	{version: 2, upgrade: upgradeToV2, downgrade: downgradeToV1},
	{version: 3, upgrade: upgradeToV3, downgrade: downgradeToV2},
	{version: 4, upgrade: upgradeToV4, downgrade: downgradeToV3},
}

// migrateTo walks the chain from the stored version to target, in either
// direction, updating schema_info after every step.
func migrateTo(ctx context.Context, q Queryer, d Dialect, from, target int64) error {
	for from < target {
		step := migrations[from] // step.version == from+1
		if err := step.upgrade(ctx, q, d); err != nil {
			return fmt.Errorf("upgrade to schema version %d: %w", step.version, err)
		}
		from = step.version
		if err := writeSchemaVersion(ctx, q, from); err != nil {
			return err
		}
	}
	for from > target {
		step := migrations[from-1] // step.version == from
		if err := step.downgrade(ctx, q, d); err != nil {
			return fmt.Errorf("downgrade from schema version %d: %w", step.version, err)
		}
		from = step.version - 1
		if from > 0 {
			if err := writeSchemaVersion(ctx, q, from); err != nil {
				return err
			}
		}
	}
	return nil
}

// v1: the core tables plus the foreign-key lookup indexes.

func upgradeToV1(ctx context.Context, q Queryer, d Dialect) error {
	for _, stmt := range tableStatements(d) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	lookups := []struct {
		table, name, columns string
	}{
		{"events", "idx_events_artifact_id", "artifact_id"},
		{"events", "idx_events_execution_id", "execution_id"},
		{"associations", "idx_associations_execution_id", "execution_id"},
		{"attributions", "idx_attributions_artifact_id", "artifact_id"},
		{"parent_contexts", "idx_parent_contexts_parent_id", "parent_context_id"},
	}
	for _, ix := range lookups {
		if err := ensureIndex(ctx, q, d, ix.table, ix.name, false, ix.columns); err != nil {
			return err
		}
	}
	return nil
}

func downgradeToV0(ctx context.Context, q Queryer, _ Dialect) error {
	for _, table := range allTables {
		if _, err := q.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return err
		}
	}
	return nil
}

// v2: events get a unique identity. Duplicate rows inserted before the
// constraint existed are collapsed onto the earliest id first.

func upgradeToV2(ctx context.Context, q Queryer, d Dialect) error {
	// The derived table keeps MySQL from rejecting a delete that selects
	// from its own target.
	_, err := q.ExecContext(ctx, `
		DELETE FROM events WHERE id NOT IN (
			SELECT id FROM (
				SELECT MIN(id) AS id FROM events
				GROUP BY artifact_id, execution_id, type, milliseconds_since_epoch
			) AS keep
		)`)
	if err != nil {
		return err
	}
	return ensureIndex(ctx, q, d, "events", "uq_events_identity", true,
		"artifact_id, execution_id, type, milliseconds_since_epoch")
}

func downgradeToV1(ctx context.Context, q Queryer, d Dialect) error {
	return dropIndex(ctx, q, d, "events", "uq_events_identity")
}

// v3: range-scan indexes for ordered listings and uri lookups.

var timestampIndexes = []struct {
	table, name, column string
}{
	{"artifacts", "idx_artifacts_create_time", "create_time_since_epoch"},
	{"artifacts", "idx_artifacts_last_update_time", "last_update_time_since_epoch"},
	{"executions", "idx_executions_create_time", "create_time_since_epoch"},
	{"executions", "idx_executions_last_update_time", "last_update_time_since_epoch"},
	{"contexts", "idx_contexts_create_time", "create_time_since_epoch"},
	{"contexts", "idx_contexts_last_update_time", "last_update_time_since_epoch"},
}

func upgradeToV3(ctx context.Context, q Queryer, d Dialect) error {
	for _, ix := range timestampIndexes {
		if err := ensureIndex(ctx, q, d, ix.table, ix.name, false, ix.column); err != nil {
			return err
		}
	}
	return ensureIndex(ctx, q, d, "artifacts", "idx_artifacts_uri", false,
		d.TextIndexColumn("uri", 255))
}

func downgradeToV2(ctx context.Context, q Queryer, d Dialect) error {
	for _, ix := range timestampIndexes {
		if err := dropIndex(ctx, q, d, ix.table, ix.name); err != nil {
			return err
		}
	}
	return dropIndex(ctx, q, d, "artifacts", "idx_artifacts_uri")
}

// v4: STRUCT-typed property values land in a struct_value column.

func upgradeToV4(ctx context.Context, q Queryer, d Dialect) error {
	for _, table := range propertyTables {
		exists, err := columnExists(ctx, q, d, table, "struct_value")
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := q.ExecContext(ctx,
			fmt.Sprintf("ALTER TABLE %s ADD COLUMN struct_value TEXT", table)); err != nil {
			return err
		}
	}
	return nil
}

func downgradeToV3(ctx context.Context, q Queryer, d Dialect) error {
	for _, table := range propertyTables {
		exists, err := columnExists(ctx, q, d, table, "struct_value")
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if _, err := q.ExecContext(ctx,
			fmt.Sprintf("ALTER TABLE %s DROP COLUMN struct_value", table)); err != nil {
			return err
		}
	}
	return nil
}
