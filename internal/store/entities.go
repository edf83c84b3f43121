package store

import (
	"context"
	"time"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/types"
)

// upsertArtifact writes a through its id-presence mode: update when the id
// is set, create otherwise. Returns the stored id.
func upsertArtifact(ctx context.Context, tx storage.Transaction, a *types.Artifact) (int64, error) {
	if a.ID != nil {
		if err := tx.UpdateArtifact(ctx, a); err != nil {
			return 0, err
		}
		return *a.ID, nil
	}
	return tx.CreateArtifact(ctx, a)
}

func upsertExecution(ctx context.Context, tx storage.Transaction, e *types.Execution) (int64, error) {
	if e.ID != nil {
		if err := tx.UpdateExecution(ctx, e); err != nil {
			return 0, err
		}
		return *e.ID, nil
	}
	return tx.CreateExecution(ctx, e)
}

func upsertContext(ctx context.Context, tx storage.Transaction, c *types.Context) (int64, error) {
	if c.ID != nil {
		if err := tx.UpdateContext(ctx, c); err != nil {
			return 0, err
		}
		return *c.ID, nil
	}
	return tx.CreateContext(ctx, c)
}

// insertAssociationIfNotExist records the (context, execution) link,
// treating an existing row as success.
func insertAssociationIfNotExist(ctx context.Context, tx storage.Transaction, contextID, executionID int64) error {
	_, err := tx.CreateAssociation(ctx, &types.Association{ContextID: contextID, ExecutionID: executionID})
	if err != nil && !status.IsAlreadyExists(err) {
		return err
	}
	return nil
}

// insertAttributionIfNotExist records the (context, artifact) link, treating
// an existing row as success.
func insertAttributionIfNotExist(ctx context.Context, tx storage.Transaction, contextID, artifactID int64) error {
	_, err := tx.CreateAttribution(ctx, &types.Attribution{ContextID: contextID, ArtifactID: artifactID})
	if err != nil && !status.IsAlreadyExists(err) {
		return err
	}
	return nil
}

// upsertArtifactAndEvent writes one artifact/event pair and returns the
// artifact id the pair resolved to, or -1 when the pair is empty. An event
// must identify its artifact either through the paired artifact or its own
// artifact_id, and when both are given they must agree.
func upsertArtifactAndEvent(ctx context.Context, tx storage.Transaction, pair ArtifactAndEvent) (int64, error) {
	if pair.Artifact == nil && pair.Event == nil {
		return -1, nil
	}
	eventHasArtifactID := pair.Event != nil && pair.Event.ArtifactID != 0
	if pair.Artifact == nil && !eventHasArtifactID {
		return -1, status.InvalidArgumentf("If no artifact is present, given event must have an artifact_id: %s", requestString(pair))
	}
	if pair.Artifact != nil && eventHasArtifactID &&
		(pair.Artifact.ID == nil || *pair.Artifact.ID != pair.Event.ArtifactID) {
		return -1, status.InvalidArgumentf("Given event.artifact_id is not aligned with the artifact: %s", requestString(pair))
	}
	artifactID := int64(-1)
	if pair.Artifact != nil {
		id, err := upsertArtifact(ctx, tx, pair.Artifact)
		if err != nil {
			return -1, err
		}
		artifactID = id
	}
	if pair.Event == nil {
		return artifactID, nil
	}
	event := *pair.Event
	if pair.Artifact != nil {
		event.ArtifactID = artifactID
	} else {
		artifactID = event.ArtifactID
	}
	if _, err := tx.CreateEvent(ctx, &event); err != nil {
		return -1, err
	}
	return artifactID, nil
}

// PutArtifacts inserts or updates a batch of artifacts in one transaction
// and returns their ids in request order. See PutArtifactsOptions for the
// optimistic-concurrency mode.
func (s *Store) PutArtifacts(ctx context.Context, req *PutArtifactsRequest) (*PutArtifactsResponse, error) {
	resp := &PutArtifactsResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		*resp = PutArtifactsResponse{}
		for _, artifact := range req.Artifacts {
			if artifact == nil {
				artifact = &types.Artifact{}
			}
			if artifact.ID != nil && req.Options.AbortIfLatestUpdatedTimeChanged {
				found, err := tx.FindArtifactsByID(ctx, []int64{*artifact.ID})
				if err != nil && !status.IsNotFound(err) {
					return err
				}
				if err == nil {
					stored := found[0]
					if artifact.LastUpdateTimeSinceEpoch != stored.LastUpdateTimeSinceEpoch {
						return status.FailedPreconditionf(
							"`abort_if_latest_updated_time_changed` is set, and the stored artifact with id = %d has a different last_update_time_since_epoch: %d from the one in the given artifact: %d",
							*artifact.ID, stored.LastUpdateTimeSinceEpoch, artifact.LastUpdateTimeSinceEpoch)
					}
					// Stored timestamps have millisecond grain; wait one out
					// so the rewrite lands on a strictly larger value.
					time.Sleep(time.Millisecond)
				}
			}
			id, err := upsertArtifact(ctx, tx, artifact)
			if err != nil {
				return err
			}
			resp.ArtifactIDs = append(resp.ArtifactIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PutExecutions inserts or updates a batch of executions in one transaction
// and returns their ids in request order.
func (s *Store) PutExecutions(ctx context.Context, req *PutExecutionsRequest) (*PutExecutionsResponse, error) {
	resp := &PutExecutionsResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		*resp = PutExecutionsResponse{}
		for _, execution := range req.Executions {
			if execution == nil {
				execution = &types.Execution{}
			}
			id, err := upsertExecution(ctx, tx, execution)
			if err != nil {
				return err
			}
			resp.ExecutionIDs = append(resp.ExecutionIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PutContexts inserts or updates a batch of contexts in one transaction and
// returns their ids in request order.
func (s *Store) PutContexts(ctx context.Context, req *PutContextsRequest) (*PutContextsResponse, error) {
	resp := &PutContextsResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		*resp = PutContextsResponse{}
		for _, c := range req.Contexts {
			if c == nil {
				c = &types.Context{}
			}
			id, err := upsertContext(ctx, tx, c)
			if err != nil {
				return err
			}
			resp.ContextIDs = append(resp.ContextIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PutEvents records a batch of events in one transaction. Both endpoints of
// every event must already exist.
func (s *Store) PutEvents(ctx context.Context, req *PutEventsRequest) (*PutEventsResponse, error) {
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		for _, event := range req.Events {
			if event == nil {
				event = &types.Event{}
			}
			if _, err := tx.CreateEvent(ctx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &PutEventsResponse{}, nil
}

// PutAttributionsAndAssociations records grouping links in one transaction,
// attributions first. Links that already exist are kept as they are, so
// replaying a request succeeds.
func (s *Store) PutAttributionsAndAssociations(ctx context.Context, req *PutAttributionsAndAssociationsRequest) (*PutAttributionsAndAssociationsResponse, error) {
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		for _, attribution := range req.Attributions {
			if attribution == nil {
				attribution = &types.Attribution{}
			}
			if err := insertAttributionIfNotExist(ctx, tx, attribution.ContextID, attribution.ArtifactID); err != nil {
				return err
			}
		}
		for _, association := range req.Associations {
			if association == nil {
				association = &types.Association{}
			}
			if err := insertAssociationIfNotExist(ctx, tx, association.ContextID, association.ExecutionID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &PutAttributionsAndAssociationsResponse{}, nil
}

// PutParentContexts records parent links between existing contexts in one
// transaction.
func (s *Store) PutParentContexts(ctx context.Context, req *PutParentContextsRequest) (*PutParentContextsResponse, error) {
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		for _, parentContext := range req.ParentContexts {
			if parentContext == nil {
				parentContext = &types.ParentContext{}
			}
			if err := tx.CreateParentContext(ctx, parentContext); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &PutParentContextsResponse{}, nil
}
