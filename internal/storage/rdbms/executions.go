package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

const executionColumns = "id, type_id, name, last_known_state, create_time_since_epoch, last_update_time_since_epoch"

func (t *txn) CreateExecution(ctx context.Context, e *types.Execution) (int64, error) {
	if e.TypeID == 0 {
		return 0, status.InvalidArgumentf("create execution: type_id is required")
	}
	if err := e.Validate(); err != nil {
		return 0, status.InvalidArgumentf("create execution: %v", err)
	}
	typ, err := t.FindTypeByID(ctx, types.ExecutionTypeKind, e.TypeID)
	if err != nil {
		return 0, err
	}
	if err := validatePropertiesWithType("execution", e.Properties, typ); err != nil {
		return 0, err
	}
	now := nowMillis()
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO executions (type_id, name, last_known_state, create_time_since_epoch, last_update_time_since_epoch)
		 VALUES (?, ?, ?, ?, ?)`,
		e.TypeID, e.Name, stateArg(string(e.LastKnownState)), now, now)
	if err != nil {
		return 0, t.store.wrapDBError("create execution", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, t.store.wrapDBError("create execution id", err)
	}
	if err := t.insertProperties(ctx, "execution_properties", "execution_id", id, e.Properties, false); err != nil {
		return 0, t.store.wrapDBError("create execution properties", err)
	}
	if err := t.insertProperties(ctx, "execution_properties", "execution_id", id, e.CustomProperties, true); err != nil {
		return 0, t.store.wrapDBError("create execution custom properties", err)
	}
	return id, nil
}

func (t *txn) UpdateExecution(ctx context.Context, e *types.Execution) error {
	if e.ID == nil {
		return status.InvalidArgumentf("update execution: no id")
	}
	if err := e.Validate(); err != nil {
		return status.InvalidArgumentf("update execution %d: %v", *e.ID, err)
	}
	var (
		storedTypeID     int64
		storedLastUpdate int64
	)
	err := t.conn.QueryRowContext(ctx,
		`SELECT type_id, last_update_time_since_epoch FROM executions WHERE id = ?`, *e.ID).
		Scan(&storedTypeID, &storedLastUpdate)
	if err == sql.ErrNoRows {
		return status.InvalidArgumentf("update execution: no execution with id %d", *e.ID)
	}
	if err != nil {
		return t.store.wrapDBErrorf(err, "update execution %d", *e.ID)
	}
	if e.TypeID != 0 && e.TypeID != storedTypeID {
		return status.InvalidArgumentf(
			"update execution %d: type_id cannot change from %d to %d", *e.ID, storedTypeID, e.TypeID)
	}
	typ, err := t.FindTypeByID(ctx, types.ExecutionTypeKind, storedTypeID)
	if err != nil {
		return err
	}
	if err := validatePropertiesWithType("execution", e.Properties, typ); err != nil {
		return err
	}
	lastUpdate := nowMillis()
	if lastUpdate <= storedLastUpdate {
		lastUpdate = storedLastUpdate + 1
	}
	if _, err := t.conn.ExecContext(ctx,
		`UPDATE executions SET name = ?, last_known_state = ?, last_update_time_since_epoch = ? WHERE id = ?`,
		e.Name, stateArg(string(e.LastKnownState)), lastUpdate, *e.ID); err != nil {
		return t.store.wrapDBErrorf(err, "update execution %d", *e.ID)
	}
	if err := t.replaceProperties(ctx, "execution_properties", "execution_id", *e.ID, e.Properties, e.CustomProperties); err != nil {
		return t.store.wrapDBErrorf(err, "update execution %d properties", *e.ID)
	}
	return nil
}

func (t *txn) FindExecutionsByID(ctx context.Context, ids []int64) ([]*types.Execution, error) {
	ids = dedupeInt64s(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM executions WHERE id IN (%s) ORDER BY id`,
		executionColumns, inPlaceholders(len(ids)))
	found, err := t.queryExecutions(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, t.store.wrapDBError("find executions by ids", err)
	}
	if missing := missingIDs(ids, executionIDs(found)); len(missing) > 0 {
		return found, status.NotFoundf("executions not found for ids %v", missing)
	}
	return found, nil
}

func (t *txn) ListExecutions(ctx context.Context, opts *types.ListOptions) ([]*types.Execution, string, error) {
	return t.listExecutions(ctx, opts, nil, nil)
}

func (t *txn) FindExecutionsByTypeID(ctx context.Context, typeID int64, opts *types.ListOptions) ([]*types.Execution, string, error) {
	return t.listExecutions(ctx, opts, []string{"type_id = ?"}, []any{typeID})
}

func (t *txn) FindExecutionByTypeIDAndName(ctx context.Context, typeID int64, name string) (*types.Execution, error) {
	query := fmt.Sprintf(`SELECT %s FROM executions WHERE type_id = ? AND name = ?`, executionColumns)
	found, err := t.queryExecutions(ctx, query, typeID, name)
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find execution %q", name)
	}
	if len(found) == 0 {
		return nil, status.NotFoundf("no execution named %q with type id %d", name, typeID)
	}
	return found[0], nil
}

func (t *txn) FindExecutionsByContext(ctx context.Context, contextID int64, opts *types.ListOptions) ([]*types.Execution, string, error) {
	return t.listExecutions(ctx, opts,
		[]string{"id IN (SELECT execution_id FROM associations WHERE context_id = ?)"},
		[]any{contextID})
}

func (t *txn) listExecutions(ctx context.Context, opts *types.ListOptions, where []string, args []any) ([]*types.Execution, string, error) {
	sp, err := resolveListOptions(opts)
	if err != nil {
		return nil, "", err
	}
	query := `SELECT ` + executionColumns + ` FROM executions`
	if sp != nil && sp.token != nil {
		cond, condArgs := sp.keysetCondition()
		where = append(where, cond)
		args = append(args, condArgs...)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if sp != nil {
		query += sp.orderLimit()
	} else {
		query += " ORDER BY id"
	}
	found, err := t.queryExecutions(ctx, query, args...)
	if err != nil {
		return nil, "", t.store.wrapDBError("list executions", err)
	}
	nextToken := ""
	if sp != nil && len(found) > sp.limit {
		found = found[:sp.limit]
		last := found[len(found)-1]
		nextToken = sp.tokenAfter(executionOrderValue(sp.field, last), *last.ID)
	}
	return found, nextToken, nil
}

func (t *txn) queryExecutions(ctx context.Context, query string, args ...any) ([]*types.Execution, error) {
	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var found []*types.Execution
	var ids []int64
	for rows.Next() {
		var (
			e     types.Execution
			id    int64
			name  sql.NullString
			state sql.NullString
		)
		if err := rows.Scan(&id, &e.TypeID, &name, &state,
			&e.CreateTimeSinceEpoch, &e.LastUpdateTimeSinceEpoch); err != nil {
			_ = rows.Close()
			return nil, err
		}
		e.ID = &id
		if name.Valid {
			e.Name = &name.String
		}
		e.LastKnownState = types.ExecutionState(state.String)
		found = append(found, &e)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	props, custom, err := t.loadProperties(ctx, "execution_properties", "execution_id", ids)
	if err != nil {
		return nil, err
	}
	for _, e := range found {
		e.Properties = props[*e.ID]
		e.CustomProperties = custom[*e.ID]
	}
	return found, nil
}

func executionIDs(executions []*types.Execution) []int64 {
	ids := make([]int64, len(executions))
	for i, e := range executions {
		ids[i] = *e.ID
	}
	return ids
}

func executionOrderValue(field types.OrderField, e *types.Execution) int64 {
	switch field {
	case types.OrderByCreateTime:
		return e.CreateTimeSinceEpoch
	case types.OrderByLastUpdateTime:
		return e.LastUpdateTimeSinceEpoch
	default:
		return *e.ID
	}
}
