package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

const artifactColumns = "id, type_id, uri, name, state, create_time_since_epoch, last_update_time_since_epoch"

// CreateArtifact inserts a new artifact after validating its properties
// against the declared type. Returns NotFound when the type does not exist
// and AlreadyExists when the (type, name) pair is taken.
func (t *txn) CreateArtifact(ctx context.Context, a *types.Artifact) (int64, error) {
	if a.TypeID == 0 {
		return 0, status.InvalidArgumentf("create artifact: type_id is required")
	}
	if err := a.Validate(); err != nil {
		return 0, status.InvalidArgumentf("create artifact: %v", err)
	}
	typ, err := t.FindTypeByID(ctx, types.ArtifactTypeKind, a.TypeID)
	if err != nil {
		return 0, err
	}
	if err := validatePropertiesWithType("artifact", a.Properties, typ); err != nil {
		return 0, err
	}
	now := nowMillis()
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO artifacts (type_id, uri, name, state, create_time_since_epoch, last_update_time_since_epoch)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.TypeID, a.URI, a.Name, stateArg(string(a.State)), now, now)
	if err != nil {
		return 0, t.store.wrapDBError("create artifact", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, t.store.wrapDBError("create artifact id", err)
	}
	if err := t.insertProperties(ctx, "artifact_properties", "artifact_id", id, a.Properties, false); err != nil {
		return 0, t.store.wrapDBError("create artifact properties", err)
	}
	if err := t.insertProperties(ctx, "artifact_properties", "artifact_id", id, a.CustomProperties, true); err != nil {
		return 0, t.store.wrapDBError("create artifact custom properties", err)
	}
	return id, nil
}

// UpdateArtifact replaces the stored artifact with the given one. The id
// must reference an existing artifact, the type cannot change, and the
// creation time is preserved. The update timestamp always moves forward.
func (t *txn) UpdateArtifact(ctx context.Context, a *types.Artifact) error {
	if a.ID == nil {
		return status.InvalidArgumentf("update artifact: no id")
	}
	if err := a.Validate(); err != nil {
		return status.InvalidArgumentf("update artifact %d: %v", *a.ID, err)
	}
	var (
		storedTypeID     int64
		storedLastUpdate int64
	)
	err := t.conn.QueryRowContext(ctx,
		`SELECT type_id, last_update_time_since_epoch FROM artifacts WHERE id = ?`, *a.ID).
		Scan(&storedTypeID, &storedLastUpdate)
	if err == sql.ErrNoRows {
		return status.InvalidArgumentf("update artifact: no artifact with id %d", *a.ID)
	}
	if err != nil {
		return t.store.wrapDBErrorf(err, "update artifact %d", *a.ID)
	}
	if a.TypeID != 0 && a.TypeID != storedTypeID {
		return status.InvalidArgumentf(
			"update artifact %d: type_id cannot change from %d to %d", *a.ID, storedTypeID, a.TypeID)
	}
	typ, err := t.FindTypeByID(ctx, types.ArtifactTypeKind, storedTypeID)
	if err != nil {
		return err
	}
	if err := validatePropertiesWithType("artifact", a.Properties, typ); err != nil {
		return err
	}
	lastUpdate := nowMillis()
	if lastUpdate <= storedLastUpdate {
		lastUpdate = storedLastUpdate + 1
	}
	if _, err := t.conn.ExecContext(ctx,
		`UPDATE artifacts SET uri = ?, name = ?, state = ?, last_update_time_since_epoch = ? WHERE id = ?`,
		a.URI, a.Name, stateArg(string(a.State)), lastUpdate, *a.ID); err != nil {
		return t.store.wrapDBErrorf(err, "update artifact %d", *a.ID)
	}
	if err := t.replaceProperties(ctx, "artifact_properties", "artifact_id", *a.ID, a.Properties, a.CustomProperties); err != nil {
		return t.store.wrapDBErrorf(err, "update artifact %d properties", *a.ID)
	}
	return nil
}

// FindArtifactsByID returns the found artifacts in id order. When any
// requested id is missing the found subset is returned together with a
// NotFound error naming the gaps; callers that tolerate partial results
// ignore the error.
func (t *txn) FindArtifactsByID(ctx context.Context, ids []int64) ([]*types.Artifact, error) {
	ids = dedupeInt64s(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM artifacts WHERE id IN (%s) ORDER BY id`,
		artifactColumns, inPlaceholders(len(ids)))
	found, err := t.queryArtifacts(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, t.store.wrapDBError("find artifacts by ids", err)
	}
	if missing := missingIDs(ids, artifactIDs(found)); len(missing) > 0 {
		return found, status.NotFoundf("artifacts not found for ids %v", missing)
	}
	return found, nil
}

// ListArtifacts returns one page of artifacts ordered by the list options,
// with a token for the next page when more rows exist.
func (t *txn) ListArtifacts(ctx context.Context, opts *types.ListOptions) ([]*types.Artifact, string, error) {
	return t.listArtifacts(ctx, opts, nil, nil)
}

// FindArtifactsByTypeID lists the artifacts of one type.
func (t *txn) FindArtifactsByTypeID(ctx context.Context, typeID int64, opts *types.ListOptions) ([]*types.Artifact, string, error) {
	return t.listArtifacts(ctx, opts, []string{"type_id = ?"}, []any{typeID})
}

// FindArtifactByTypeIDAndName returns the artifact with the given name in
// the type's namespace, or NotFound.
func (t *txn) FindArtifactByTypeIDAndName(ctx context.Context, typeID int64, name string) (*types.Artifact, error) {
	query := fmt.Sprintf(`SELECT %s FROM artifacts WHERE type_id = ? AND name = ?`, artifactColumns)
	found, err := t.queryArtifacts(ctx, query, typeID, name)
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find artifact %q", name)
	}
	if len(found) == 0 {
		return nil, status.NotFoundf("no artifact named %q with type id %d", name, typeID)
	}
	return found[0], nil
}

// FindArtifactsByURI returns every artifact stored under the uri.
func (t *txn) FindArtifactsByURI(ctx context.Context, uri string) ([]*types.Artifact, error) {
	query := fmt.Sprintf(`SELECT %s FROM artifacts WHERE uri = ? ORDER BY id`, artifactColumns)
	found, err := t.queryArtifacts(ctx, query, uri)
	if err != nil {
		return nil, t.store.wrapDBErrorf(err, "find artifacts by uri %q", uri)
	}
	return found, nil
}

// FindArtifactsByContext lists the artifacts attributed to a context.
func (t *txn) FindArtifactsByContext(ctx context.Context, contextID int64, opts *types.ListOptions) ([]*types.Artifact, string, error) {
	return t.listArtifacts(ctx, opts,
		[]string{"id IN (SELECT artifact_id FROM attributions WHERE context_id = ?)"},
		[]any{contextID})
}

func (t *txn) listArtifacts(ctx context.Context, opts *types.ListOptions, where []string, args []any) ([]*types.Artifact, string, error) {
	sp, err := resolveListOptions(opts)
	if err != nil {
		return nil, "", err
	}
	query := `SELECT ` + artifactColumns + ` FROM artifacts`
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
	found, err := t.queryArtifacts(ctx, query, args...)
	if err != nil {
		return nil, "", t.store.wrapDBError("list artifacts", err)
	}
	nextToken := ""
	if sp != nil && len(found) > sp.limit {
		found = found[:sp.limit]
		last := found[len(found)-1]
		nextToken = sp.tokenAfter(artifactOrderValue(sp.field, last), *last.ID)
	}
	return found, nextToken, nil
}

// queryArtifacts runs a multi-row artifact query and hydrates properties in
// one batch.
func (t *txn) queryArtifacts(ctx context.Context, query string, args ...any) ([]*types.Artifact, error) {
	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var found []*types.Artifact
	var ids []int64
	for rows.Next() {
		var (
			a     types.Artifact
			id    int64
			uri   sql.NullString
			name  sql.NullString
			state sql.NullString
		)
		if err := rows.Scan(&id, &a.TypeID, &uri, &name, &state,
			&a.CreateTimeSinceEpoch, &a.LastUpdateTimeSinceEpoch); err != nil {
			_ = rows.Close()
			return nil, err
		}
		a.ID = &id
		if uri.Valid {
			a.URI = &uri.String
		}
		if name.Valid {
			a.Name = &name.String
		}
		a.State = types.ArtifactState(state.String)
		found = append(found, &a)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	props, custom, err := t.loadProperties(ctx, "artifact_properties", "artifact_id", ids)
	if err != nil {
		return nil, err
	}
	for _, a := range found {
		a.Properties = props[*a.ID]
		a.CustomProperties = custom[*a.ID]
	}
	return found, nil
}

func artifactIDs(artifacts []*types.Artifact) []int64 {
	ids := make([]int64, len(artifacts))
	for i, a := range artifacts {
		ids[i] = *a.ID
	}
	return ids
}

func artifactOrderValue(field types.OrderField, a *types.Artifact) int64 {
	switch field {
	case types.OrderByCreateTime:
		return a.CreateTimeSinceEpoch
	case types.OrderByLastUpdateTime:
		return a.LastUpdateTimeSinceEpoch
	default:
		return *a.ID
	}
}
