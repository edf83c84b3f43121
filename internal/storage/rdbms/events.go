package rdbms

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

// CreateEvent records one link between an existing artifact and an existing
// execution. Events are insert-only; writing a second event with the same
// (artifact, execution, type, time) identity returns AlreadyExists.
func (t *txn) CreateEvent(ctx context.Context, e *types.Event) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, status.InvalidArgumentf("create event: %v", err)
	}
	for _, ref := range []struct {
		table string
		id    int64
	}{
		{"artifacts", e.ArtifactID},
		{"executions", e.ExecutionID},
	} {
		ok, err := t.rowExists(ctx, ref.table, ref.id)
		if err != nil {
			return 0, t.store.wrapDBError("create event", err)
		}
		if !ok {
			return 0, status.InvalidArgumentf(
				"create event: no row in %s with id %d", ref.table, ref.id)
		}
	}
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO events (artifact_id, execution_id, type, milliseconds_since_epoch)
		 VALUES (?, ?, ?, ?)`,
		e.ArtifactID, e.ExecutionID, string(e.Type), e.MillisSinceEpoch)
	if err != nil {
		return 0, t.store.wrapDBError("create event", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, t.store.wrapDBError("create event id", err)
	}
	for i, step := range e.Path {
		if _, err := t.conn.ExecContext(ctx,
			`INSERT INTO event_paths (event_id, position, step_index, step_key)
			 VALUES (?, ?, ?, ?)`,
			id, i, step.Index, step.Key); err != nil {
			return 0, t.store.wrapDBError("create event path", err)
		}
	}
	return id, nil
}

// FindEventsByArtifactIDs returns every event touching the given artifacts,
// in id order. Artifacts without events contribute nothing.
func (t *txn) FindEventsByArtifactIDs(ctx context.Context, artifactIDs []int64) ([]*types.Event, error) {
	return t.findEvents(ctx, "artifact_id", artifactIDs)
}

// FindEventsByExecutionIDs returns every event touching the given
// executions, in id order.
func (t *txn) FindEventsByExecutionIDs(ctx context.Context, executionIDs []int64) ([]*types.Event, error) {
	return t.findEvents(ctx, "execution_id", executionIDs)
}

func (t *txn) findEvents(ctx context.Context, column string, ids []int64) ([]*types.Event, error) {
	ids = dedupeInt64s(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT id, artifact_id, execution_id, type, milliseconds_since_epoch
		 FROM events WHERE %s IN (%s) ORDER BY id`, column, inPlaceholders(len(ids)))
	rows, err := t.conn.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, t.store.wrapDBError("find events", err)
	}
	var found []*types.Event
	var eventIDs []int64
	for rows.Next() {
		var (
			e         types.Event
			id        int64
			eventType string
		)
		if err := rows.Scan(&id, &e.ArtifactID, &e.ExecutionID, &eventType, &e.MillisSinceEpoch); err != nil {
			_ = rows.Close()
			return nil, t.store.wrapDBError("scan event", err)
		}
		e.ID = &id
		e.Type = types.EventType(eventType)
		found = append(found, &e)
		eventIDs = append(eventIDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, t.store.wrapDBError("find events", err)
	}
	_ = rows.Close()

	if err := t.loadEventPaths(ctx, found, eventIDs); err != nil {
		return nil, t.store.wrapDBError("load event paths", err)
	}
	return found, nil
}

func (t *txn) loadEventPaths(ctx context.Context, events []*types.Event, eventIDs []int64) error {
	if len(eventIDs) == 0 {
		return nil
	}
	byID := make(map[int64]*types.Event, len(events))
	for _, e := range events {
		byID[*e.ID] = e
	}
	query := fmt.Sprintf(
		`SELECT event_id, step_index, step_key FROM event_paths
		 WHERE event_id IN (%s) ORDER BY event_id, position`, inPlaceholders(len(eventIDs)))
	rows, err := t.conn.QueryContext(ctx, query, int64Args(eventIDs)...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			eventID   int64
			stepIndex sql.NullInt64
			stepKey   sql.NullString
		)
		if err := rows.Scan(&eventID, &stepIndex, &stepKey); err != nil {
			return err
		}
		var step types.PathStep
		if stepIndex.Valid {
			step.Index = &stepIndex.Int64
		}
		if stepKey.Valid {
			step.Key = &stepKey.String
		}
		if e := byID[eventID]; e != nil {
			e.Path = append(e.Path, step)
		}
	}
	return rows.Err()
}

// rowExists reports whether a table has a row with the given id. The table
// name is always one of the schema's own.
func (t *txn) rowExists(ctx context.Context, table string, id int64) (bool, error) {
	var one int64
	err := t.conn.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table), id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
