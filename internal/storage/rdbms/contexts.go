package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

const contextColumns = "id, type_id, name, create_time_since_epoch, last_update_time_since_epoch"

func (t *txn) CreateContext(ctx context.Context, c *types.Context) (int64, error) {
	if c.TypeID == 0 {
		return 0, status.InvalidArgumentf("create context: type_id is required")
	}
	if err := c.Validate(); err != nil {
		return 0, status.InvalidArgumentf("create context: %v", err)
	}
	typ, err := t.FindTypeByID(ctx, types.ContextTypeKind, c.TypeID)
	if err != nil {
		return 0, err
	}
	if err := validatePropertiesWithType("context", c.Properties, typ); err != nil {
		return 0, err
	}
	now := nowMillis()
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO contexts (type_id, name, create_time_since_epoch, last_update_time_since_epoch)
		 VALUES (?, ?, ?, ?)`,
		c.TypeID, c.Name, now, now)
	if err != nil {
		return 0, t.store.wrapDBError("create context", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, t.store.wrapDBError("create context id", err)
	}
	if err := t.insertProperties(ctx, "context_properties", "context_id", id, c.Properties, false); err != nil {
		return 0, t.store.wrapDBError("create context properties", err)
	}
	if err := t.insertProperties(ctx, "context_properties", "context_id", id, c.CustomProperties, true); err != nil {
		return 0, t.store.wrapDBError("create context custom properties", err)
	}
	return id, nil
}

func (t *txn) UpdateContext(ctx context.Context, c *types.Context) error {
	if c.ID == nil {
		return status.InvalidArgumentf("update context: no id")
	}
	if err := c.Validate(); err != nil {
		return status.InvalidArgumentf("update context %d: %v", *c.ID, err)
	}
	var (
		storedTypeID     int64
		storedLastUpdate int64
	)
	err := t.conn.QueryRowContext(ctx,
		`SELECT type_id, last_update_time_since_epoch FROM contexts WHERE id = ?`, *c.ID).
		Scan(&storedTypeID, &storedLastUpdate)
	if err == sql.ErrNoRows {
		return status.InvalidArgumentf("update context: no context with id %d", *c.ID)
	}
	if err != nil {
		return t.store.wrapDBErrorf(err, "update context %d", *c.ID)
	}
	if c.TypeID != 0 && c.TypeID != storedTypeID {
		return status.InvalidArgumentf(
			"update context %d: type_id cannot change from %d to %d", *c.ID, storedTypeID, c.TypeID)
	}
	typ, err := t.FindTypeByID(ctx, types.ContextTypeKind, storedTypeID)
	if err != nil {
		return err
	}
	if err := validatePropertiesWithType("context", c.Properties, typ); err != nil {
		return err
	}
	lastUpdate := nowMillis()
	if lastUpdate <= storedLastUpdate {
		lastUpdate = storedLastUpdate + 1
	}
	if _, err := t.conn.ExecContext(ctx,
		`UPDATE contexts SET name = ?, last_update_time_since_epoch = ? WHERE id = ?`,
		c.Name, lastUpdate, *c.ID); err != nil {
		return t.store.wrapDBErrorf(err, "update context %d", *c.ID)
	}
	if err := t.replaceProperties(ctx, "context_properties", "context_id", *c.ID, c.Properties, c.CustomProperties); err != nil {
		return t.store.wrapDBErrorf(err, "update context %d properties", *c.ID)
	}
	return nil
}

func (t *txn) FindContextsByID(ctx context.Context, ids []int64) ([]*types.Context, error) {
	ids = dedupeInt64s(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM contexts WHERE id IN (%s) ORDER BY id`,
		contextColumns, inPlaceholders(len(ids)))
	found, err := t.queryContexts(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, t.store.wrapDBError("find contexts by ids", err)
	}
	if missing := missingIDs(ids, contextIDs(found)); len(missing) > 0 {
		return found, status.NotFoundf("contexts not found for ids %v", missing)
	}
	return found, nil
}

func (t *txn) ListContexts(ctx context.Context, opts *types.ListOptions) ([]*types.Context, string, error) {
	return t.listContexts(ctx, opts, nil, nil)
}

func (t *txn) FindContextsByTypeID(ctx context.Context, typeID int64, opts *types.ListOptions) ([]*types.Context, string, error) {
	return t.listContexts(ctx, opts, []string{"type_id = ?"}, []any{typeID})
}

func (t *txn) FindContextByTypeIDAndName(ctx context.Context, typeID int64, name string) (*types.Context, error) {
	query := fmt.Sprintf(`SELECT %s FROM contexts WHERE type_id = ? AND name = ?`, contextColumns)
	found, err := t.queryContexts(ctx, query, typeID, name)
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find context %q", name)
	}
	if len(found) == 0 {
		return nil, status.NotFoundf("no context named %q with type id %d", name, typeID)
	}
	return found[0], nil
}

// FindContextsByArtifact returns the contexts an artifact is attributed to.
func (t *txn) FindContextsByArtifact(ctx context.Context, artifactID int64) ([]*types.Context, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM contexts WHERE id IN (SELECT context_id FROM attributions WHERE artifact_id = ?) ORDER BY id`,
		contextColumns)
	found, err := t.queryContexts(ctx, query, artifactID)
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find contexts by artifact %d", artifactID)
	}
	return found, nil
}

// FindContextsByExecution returns the contexts an execution is associated
// with.
func (t *txn) FindContextsByExecution(ctx context.Context, executionID int64) ([]*types.Context, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM contexts WHERE id IN (SELECT context_id FROM associations WHERE execution_id = ?) ORDER BY id`,
		contextColumns)
	found, err := t.queryContexts(ctx, query, executionID)
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find contexts by execution %d", executionID)
	}
	return found, nil
}

// CreateParentContext links a child context under a parent. Both ends must
// exist and a context cannot be its own parent.
func (t *txn) CreateParentContext(ctx context.Context, pc *types.ParentContext) error {
	if err := pc.Validate(); err != nil {
		return status.InvalidArgumentf("create parent context: %v", err)
	}
	for _, id := range []int64{pc.ChildID, pc.ParentID} {
		if _, err := t.FindContextsByID(ctx, []int64{id}); err != nil {
			return status.InvalidArgumentf("create parent context: context %d: %v", id, err)
		}
	}
	if _, err := t.conn.ExecContext(ctx,
		`INSERT INTO parent_contexts (context_id, parent_context_id) VALUES (?, ?)`,
		pc.ChildID, pc.ParentID); err != nil {
		return t.store.wrapDBErrorf(err, "create parent context %d -> %d", pc.ChildID, pc.ParentID)
	}
	return nil
}

func (t *txn) FindParentContextsByContextID(ctx context.Context, contextID int64) ([]*types.Context, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM contexts WHERE id IN (SELECT parent_context_id FROM parent_contexts WHERE context_id = ?) ORDER BY id`,
		contextColumns)
	found, err := t.queryContexts(ctx, query, contextID)
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find parent contexts of %d", contextID)
	}
	return found, nil
}

func (t *txn) FindChildContextsByContextID(ctx context.Context, contextID int64) ([]*types.Context, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM contexts WHERE id IN (SELECT context_id FROM parent_contexts WHERE parent_context_id = ?) ORDER BY id`,
		contextColumns)
	found, err := t.queryContexts(ctx, query, contextID)
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find child contexts of %d", contextID)
	}
	return found, nil
}

func (t *txn) listContexts(ctx context.Context, opts *types.ListOptions, where []string, args []any) ([]*types.Context, string, error) {
	sp, err := resolveListOptions(opts)
	if err != nil {
		return nil, "", err
	}
	query := `SELECT ` + contextColumns + ` FROM contexts`
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
	found, err := t.queryContexts(ctx, query, args...)
	if err != nil {
		return nil, "", t.store.wrapDBError("list contexts", err)
	}
	nextToken := ""
	if sp != nil && len(found) > sp.limit {
		found = found[:sp.limit]
		last := found[len(found)-1]
		nextToken = sp.tokenAfter(contextOrderValue(sp.field, last), *last.ID)
	}
	return found, nextToken, nil
}

func (t *txn) queryContexts(ctx context.Context, query string, args ...any) ([]*types.Context, error) {
	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var found []*types.Context
	var ids []int64
	for rows.Next() {
		var (
			c  types.Context
			id int64
		)
		if err := rows.Scan(&id, &c.TypeID, &c.Name,
			&c.CreateTimeSinceEpoch, &c.LastUpdateTimeSinceEpoch); err != nil {
			_ = rows.Close()
			return nil, err
		}
		c.ID = &id
		found = append(found, &c)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	props, custom, err := t.loadProperties(ctx, "context_properties", "context_id", ids)
	if err != nil {
		return nil, err
	}
	for _, c := range found {
		c.Properties = props[*c.ID]
		c.CustomProperties = custom[*c.ID]
	}
	return found, nil
}

func contextIDs(contexts []*types.Context) []int64 {
	ids := make([]int64, len(contexts))
	for i, c := range contexts {
		ids[i] = *c.ID
	}
	return ids
}

func contextOrderValue(field types.OrderField, c *types.Context) int64 {
	switch field {
	case types.OrderByCreateTime:
		return c.CreateTimeSinceEpoch
	case types.OrderByLastUpdateTime:
		return c.LastUpdateTimeSinceEpoch
	default:
		return *c.ID
	}
}
