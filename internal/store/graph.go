package store

import (
	"context"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/types"
)

// PutExecution writes an execution and its surrounding graph in one
// transaction: the artifact/event pairs, the contexts grouping the run, and
// the association and attribution links between them. If any step fails the
// whole write rolls back.
//
// Events may name their execution only by the id of the execution being
// written; the resolved id is stamped on every event. Contexts are upserted
// by id presence like everywhere else, except under
// ReuseContextIfAlreadyExist, where an id-less context that matches a stored
// (type, name) is adopted as-is. When two writers race to create the same
// context for the first time under that option, the loser reports Aborted
// and its transaction can be retried to pick up the winner's row.
func (s *Store) PutExecution(ctx context.Context, req *PutExecutionRequest) (*PutExecutionResponse, error) {
	resp := &PutExecutionResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		*resp = PutExecutionResponse{}
		if req.Execution == nil {
			return status.InvalidArgumentf("No execution is found: %s", requestString(req))
		}
		executionID, err := upsertExecution(ctx, tx, req.Execution)
		if err != nil {
			return err
		}
		resp.ExecutionID = executionID

		for _, pair := range req.ArtifactEventPairs {
			if pair.Event != nil {
				if pair.Event.ExecutionID != 0 &&
					(req.Execution.ID == nil || *req.Execution.ID != pair.Event.ExecutionID) {
					return status.InvalidArgumentf("Request's event.execution_id does not match with the given execution: %s", requestString(req))
				}
				event := *pair.Event
				event.ExecutionID = executionID
				pair.Event = &event
			}
			artifactID, err := upsertArtifactAndEvent(ctx, tx, pair)
			if err != nil {
				return err
			}
			resp.ArtifactIDs = append(resp.ArtifactIDs, artifactID)
		}

		for _, c := range req.Contexts {
			if c == nil {
				c = &types.Context{}
			}
			contextID := int64(-1)
			if req.Options.ReuseContextIfAlreadyExist && c.ID == nil {
				existing, err := tx.FindContextByTypeIDAndName(ctx, c.TypeID, c.Name)
				if err != nil && !status.IsNotFound(err) {
					return err
				}
				if err == nil {
					contextID = *existing.ID
				}
			}
			if contextID == -1 {
				id, err := upsertContext(ctx, tx, c)
				if err != nil {
					// Under the reuse option two writers can race to create
					// the same context; the loser's insert hits the unique
					// constraint. Report it as retryable.
					if req.Options.ReuseContextIfAlreadyExist && status.IsAlreadyExists(err) {
						return status.Abortedf("Concurrent creation of the same context at the first time. Retry the transaction to reuse the context: %s", requestString(c))
					}
					return err
				}
				contextID = id
			}
			resp.ContextIDs = append(resp.ContextIDs, contextID)
			if err := insertAssociationIfNotExist(ctx, tx, contextID, executionID); err != nil {
				return err
			}
			for _, artifactID := range resp.ArtifactIDs {
				if err := insertAttributionIfNotExist(ctx, tx, contextID, artifactID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
