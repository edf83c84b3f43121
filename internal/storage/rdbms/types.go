package rdbms

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

// CreateType inserts a new type and its declared properties. The
// (kind, name, version) triple is unique; a second insert surfaces as
// AlreadyExists.
func (t *txn) CreateType(ctx context.Context, kind types.TypeKind, typ *types.Type) (int64, error) {
	if err := typ.Validate(); err != nil {
		return 0, status.InvalidArgumentf("create type: %v", err)
	}
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO types (name, version, type_kind, description) VALUES (?, ?, ?, ?)`,
		typ.Name, typ.Version, int(kind), typ.Description)
	if err != nil {
		return 0, t.store.wrapDBErrorf(err, "create type %q", typ.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, t.store.wrapDBError("create type id", err)
	}
	for name, pt := range typ.Properties {
		if _, err := t.conn.ExecContext(ctx,
			`INSERT INTO type_properties (type_id, name, data_type) VALUES (?, ?, ?)`,
			id, name, string(pt)); err != nil {
			return 0, t.store.wrapDBErrorf(err, "create type %q property %q", typ.Name, name)
		}
	}
	return id, nil
}

// UpdateType refreshes the description and inserts properties the stored
// type does not have yet. Stored properties are never removed or retyped
// here; compatibility is the caller's concern.
func (t *txn) UpdateType(ctx context.Context, kind types.TypeKind, typ *types.Type) error {
	if typ.ID == nil {
		return status.InvalidArgumentf("update type %q: no id", typ.Name)
	}
	stored, err := t.FindTypeByID(ctx, kind, *typ.ID)
	if err != nil {
		return err
	}
	if _, err := t.conn.ExecContext(ctx,
		`UPDATE types SET description = ? WHERE id = ?`, typ.Description, *typ.ID); err != nil {
		return t.store.wrapDBErrorf(err, "update type %d", *typ.ID)
	}
	for name, pt := range typ.Properties {
		if _, ok := stored.Properties[name]; ok {
			continue
		}
		if _, err := t.conn.ExecContext(ctx,
			`INSERT INTO type_properties (type_id, name, data_type) VALUES (?, ?, ?)`,
			*typ.ID, name, string(pt)); err != nil {
			return t.store.wrapDBErrorf(err, "update type %d property %q", *typ.ID, name)
		}
	}
	return nil
}

// FindTypeByID returns the type with the given id and kind, or NotFound.
func (t *txn) FindTypeByID(ctx context.Context, kind types.TypeKind, id int64) (*types.Type, error) {
	typ, err := t.scanTypeRow(t.conn.QueryRowContext(ctx,
		`SELECT id, name, version, description FROM types WHERE id = ? AND type_kind = ?`,
		id, int(kind)))
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find type %d", id)
	}
	props, err := t.loadTypeProperties(ctx, []int64{id})
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find type %d properties", id)
	}
	typ.Properties = props[id]
	return typ, nil
}

// FindTypesByIDs returns the found subset in id order. Missing ids are
// silently absent.
func (t *txn) FindTypesByIDs(ctx context.Context, kind types.TypeKind, ids []int64) ([]*types.Type, error) {
	ids = dedupeInt64s(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT id, name, version, description FROM types
		 WHERE id IN (%s) AND type_kind = ? ORDER BY id`, inPlaceholders(len(ids)))
	args := append(int64Args(ids), int(kind))
	found, err := t.queryTypes(ctx, query, args...)
	if err != nil {
		return nil, t.store.wrapDBError("find types by ids", err)
	}
	return found, nil
}

// FindTypeByNameAndVersion returns the type with the given identity, or
// NotFound. The empty version selects the unversioned type.
func (t *txn) FindTypeByNameAndVersion(ctx context.Context, kind types.TypeKind, name, version string) (*types.Type, error) {
	typ, err := t.scanTypeRow(t.conn.QueryRowContext(ctx,
		`SELECT id, name, version, description FROM types
		 WHERE type_kind = ? AND name = ? AND version = ?`,
		int(kind), name, version))
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find type %q", name)
	}
	props, err := t.loadTypeProperties(ctx, []int64{*typ.ID})
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find type %q properties", name)
	}
	typ.Properties = props[*typ.ID]
	return typ, nil
}

// FindAllTypes returns every stored type of the kind, in id order.
func (t *txn) FindAllTypes(ctx context.Context, kind types.TypeKind) ([]*types.Type, error) {
	found, err := t.queryTypes(ctx,
		`SELECT id, name, version, description FROM types WHERE type_kind = ? ORDER BY id`,
		int(kind))
	if err != nil {
		return nil, t.store.wrapDBError("find all types", err)
	}
	return found, nil
}

// CreateParentTypeLink records that typeID inherits from parentTypeID.
// The pair is unique; a duplicate surfaces as AlreadyExists.
func (t *txn) CreateParentTypeLink(ctx context.Context, typeID, parentTypeID int64) error {
	if typeID == parentTypeID {
		return status.InvalidArgumentf("type %d cannot be its own parent", typeID)
	}
	_, err := t.conn.ExecContext(ctx,
		`INSERT INTO parent_types (type_id, parent_type_id) VALUES (?, ?)`,
		typeID, parentTypeID)
	return t.store.wrapDBErrorf(err, "create parent type link %d -> %d", typeID, parentTypeID)
}

// FindParentTypesByTypeIDs returns the parent types per requested id. Ids
// without parents are absent from the map.
func (t *txn) FindParentTypesByTypeIDs(ctx context.Context, typeIDs []int64) (map[int64][]*types.Type, error) {
	typeIDs = dedupeInt64s(typeIDs)
	if len(typeIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT type_id, parent_type_id FROM parent_types WHERE type_id IN (%s) ORDER BY type_id, parent_type_id`,
		inPlaceholders(len(typeIDs)))
	rows, err := t.conn.QueryContext(ctx, query, int64Args(typeIDs)...)
	if err != nil {
		return nil, t.store.wrapDBError("find parent type links", err)
	}
	links := make(map[int64][]int64)
	var parentIDs []int64
	for rows.Next() {
		var child, parent int64
		if err := rows.Scan(&child, &parent); err != nil {
			_ = rows.Close()
			return nil, t.store.wrapDBError("scan parent type link", err)
		}
		links[child] = append(links[child], parent)
		parentIDs = append(parentIDs, parent)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, t.store.wrapDBError("scan parent type links", err)
	}
	_ = rows.Close()

	if len(parentIDs) == 0 {
		return nil, nil
	}
	parentIDs = dedupeInt64s(parentIDs)
	query = fmt.Sprintf(
		`SELECT id, name, version, description FROM types WHERE id IN (%s) ORDER BY id`,
		inPlaceholders(len(parentIDs)))
	parents, err := t.queryTypes(ctx, query, int64Args(parentIDs)...)
	if err != nil {
		return nil, t.store.wrapDBError("find parent types", err)
	}
	byID := make(map[int64]*types.Type, len(parents))
	for _, p := range parents {
		byID[*p.ID] = p
	}
	out := make(map[int64][]*types.Type, len(links))
	for child, ids := range links {
		for _, pid := range ids {
			if p, ok := byID[pid]; ok {
				out[child] = append(out[child], p)
			}
		}
	}
	return out, nil
}

func (t *txn) scanTypeRow(row *sql.Row) (*types.Type, error) {
	var (
		typ         types.Type
		id          int64
		description sql.NullString
	)
	if err := row.Scan(&id, &typ.Name, &typ.Version, &description); err != nil {
		return nil, err
	}
	typ.ID = &id
	typ.Description = description.String
	return &typ, nil
}

// queryTypes runs a multi-row type query and hydrates properties in one
// batch.
func (t *txn) queryTypes(ctx context.Context, query string, args ...any) ([]*types.Type, error) {
	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var found []*types.Type
	var ids []int64
	for rows.Next() {
		var (
			typ         types.Type
			id          int64
			description sql.NullString
		)
		if err := rows.Scan(&id, &typ.Name, &typ.Version, &description); err != nil {
			_ = rows.Close()
			return nil, err
		}
		typ.ID = &id
		typ.Description = description.String
		found = append(found, &typ)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	props, err := t.loadTypeProperties(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, typ := range found {
		typ.Properties = props[*typ.ID]
	}
	return found, nil
}

func (t *txn) loadTypeProperties(ctx context.Context, ids []int64) (map[int64]map[string]types.PropertyType, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT type_id, name, data_type FROM type_properties WHERE type_id IN (%s)`,
		inPlaceholders(len(ids)))
	rows, err := t.conn.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64]map[string]types.PropertyType)
	for rows.Next() {
		var (
			typeID   int64
			name     string
			dataType string
		)
		if err := rows.Scan(&typeID, &name, &dataType); err != nil {
			return nil, err
		}
		if out[typeID] == nil {
			out[typeID] = make(map[string]types.PropertyType)
		}
		out[typeID][name] = types.PropertyType(dataType)
	}
	return out, rows.Err()
}
