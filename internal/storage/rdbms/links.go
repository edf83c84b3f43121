package rdbms

import (
	"context"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

// CreateAssociation links a context to an execution. Both ends must exist;
// relinking the same pair returns AlreadyExists.
func (t *txn) CreateAssociation(ctx context.Context, a *types.Association) (int64, error) {
	if a.ContextID <= 0 || a.ExecutionID <= 0 {
		return 0, status.InvalidArgumentf(
			"create association: context_id and execution_id are required")
	}
	for _, ref := range []struct {
		table string
		id    int64
	}{
		{"contexts", a.ContextID},
		{"executions", a.ExecutionID},
	} {
		ok, err := t.rowExists(ctx, ref.table, ref.id)
		if err != nil {
			return 0, t.store.wrapDBError("create association", err)
		}
		if !ok {
			return 0, status.InvalidArgumentf(
				"create association: no row in %s with id %d", ref.table, ref.id)
		}
	}
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO associations (context_id, execution_id) VALUES (?, ?)`,
		a.ContextID, a.ExecutionID)
	if err != nil {
		return 0, t.store.wrapDBError("create association", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, t.store.wrapDBError("create association id", err)
	}
	return id, nil
}

// CreateAttribution links a context to an artifact. Both ends must exist;
// relinking the same pair returns AlreadyExists.
func (t *txn) CreateAttribution(ctx context.Context, a *types.Attribution) (int64, error) {
	if a.ContextID <= 0 || a.ArtifactID <= 0 {
		return 0, status.InvalidArgumentf(
			"create attribution: context_id and artifact_id are required")
	}
	for _, ref := range []struct {
		table string
		id    int64
	}{
		{"contexts", a.ContextID},
		{"artifacts", a.ArtifactID},
	} {
		ok, err := t.rowExists(ctx, ref.table, ref.id)
		if err != nil {
			return 0, t.store.wrapDBError("create attribution", err)
		}
		if !ok {
			return 0, status.InvalidArgumentf(
				"create attribution: no row in %s with id %d", ref.table, ref.id)
		}
	}
	res, err := t.conn.ExecContext(ctx,
		`INSERT INTO attributions (context_id, artifact_id) VALUES (?, ?)`,
		a.ContextID, a.ArtifactID)
	if err != nil {
		return 0, t.store.wrapDBError("create attribution", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, t.store.wrapDBError("create attribution id", err)
	}
	return id, nil
}
