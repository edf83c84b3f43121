package store

import (
	"context"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/types"
)

// GetArtifactsByID returns the artifacts for the requested ids. Ids that do
// not exist are skipped rather than failing the read. With
// PopulateArtifactTypes set, the types of the returned artifacts ride along.
func (s *Store) GetArtifactsByID(ctx context.Context, req *GetArtifactsByIDRequest) (*GetArtifactsByIDResponse, error) {
	resp := &GetArtifactsByIDResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		artifacts, err := tx.FindArtifactsByID(ctx, req.ArtifactIDs)
		if err != nil && !status.IsNotFound(err) {
			return err
		}
		resp.Artifacts = artifacts
		if !req.PopulateArtifactTypes {
			return nil
		}
		typeIDs := make([]int64, 0, len(artifacts))
		seen := make(map[int64]bool, len(artifacts))
		for _, a := range artifacts {
			if !seen[a.TypeID] {
				seen[a.TypeID] = true
				typeIDs = append(typeIDs, a.TypeID)
			}
		}
		resp.ArtifactTypes, err = tx.FindTypesByIDs(ctx, types.ArtifactTypeKind, typeIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetExecutionsByID returns the executions for the requested ids, skipping
// ids that do not exist.
func (s *Store) GetExecutionsByID(ctx context.Context, req *GetExecutionsByIDRequest) (*GetExecutionsByIDResponse, error) {
	resp := &GetExecutionsByIDResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		executions, err := tx.FindExecutionsByID(ctx, req.ExecutionIDs)
		if err != nil && !status.IsNotFound(err) {
			return err
		}
		resp.Executions = executions
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetContextsByID returns the contexts for the requested ids, skipping ids
// that do not exist.
func (s *Store) GetContextsByID(ctx context.Context, req *GetContextsByIDRequest) (*GetContextsByIDResponse, error) {
	resp := &GetContextsByIDResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		contexts, err := tx.FindContextsByID(ctx, req.ContextIDs)
		if err != nil && !status.IsNotFound(err) {
			return err
		}
		resp.Contexts = contexts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetArtifacts lists artifacts, paged when the request carries options.
func (s *Store) GetArtifacts(ctx context.Context, req *GetArtifactsRequest) (*GetArtifactsResponse, error) {
	resp := &GetArtifactsResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		artifacts, token, err := tx.ListArtifacts(ctx, req.Options)
		if err != nil {
			return err
		}
		resp.Artifacts = artifacts
		if req.Options != nil {
			resp.NextPageToken = token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetExecutions lists executions, paged when the request carries options.
func (s *Store) GetExecutions(ctx context.Context, req *GetExecutionsRequest) (*GetExecutionsResponse, error) {
	resp := &GetExecutionsResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		executions, token, err := tx.ListExecutions(ctx, req.Options)
		if err != nil {
			return err
		}
		resp.Executions = executions
		if req.Options != nil {
			resp.NextPageToken = token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetContexts lists contexts, paged when the request carries options.
func (s *Store) GetContexts(ctx context.Context, req *GetContextsRequest) (*GetContextsResponse, error) {
	resp := &GetContextsResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		contexts, token, err := tx.ListContexts(ctx, req.Options)
		if err != nil {
			return err
		}
		resp.Contexts = contexts
		if req.Options != nil {
			resp.NextPageToken = token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetArtifactsByType lists the artifacts of one type. An unknown type yields
// an empty response rather than an error.
func (s *Store) GetArtifactsByType(ctx context.Context, req *GetArtifactsByTypeRequest) (*GetArtifactsByTypeResponse, error) {
	resp := &GetArtifactsByTypeResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		t, err := tx.FindTypeByNameAndVersion(ctx, types.ArtifactTypeKind, req.TypeName, req.TypeVersion)
		if status.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		artifacts, token, err := tx.FindArtifactsByTypeID(ctx, *t.ID, req.Options)
		if err != nil {
			return err
		}
		resp.Artifacts = artifacts
		if req.Options != nil {
			resp.NextPageToken = token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetExecutionsByType lists the executions of one type. An unknown type
// yields an empty response rather than an error.
func (s *Store) GetExecutionsByType(ctx context.Context, req *GetExecutionsByTypeRequest) (*GetExecutionsByTypeResponse, error) {
	resp := &GetExecutionsByTypeResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		t, err := tx.FindTypeByNameAndVersion(ctx, types.ExecutionTypeKind, req.TypeName, req.TypeVersion)
		if status.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		executions, token, err := tx.FindExecutionsByTypeID(ctx, *t.ID, req.Options)
		if err != nil {
			return err
		}
		resp.Executions = executions
		if req.Options != nil {
			resp.NextPageToken = token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetContextsByType lists the contexts of one type. An unknown type yields
// an empty response rather than an error.
func (s *Store) GetContextsByType(ctx context.Context, req *GetContextsByTypeRequest) (*GetContextsByTypeResponse, error) {
	resp := &GetContextsByTypeResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		t, err := tx.FindTypeByNameAndVersion(ctx, types.ContextTypeKind, req.TypeName, req.TypeVersion)
		if status.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		contexts, token, err := tx.FindContextsByTypeID(ctx, *t.ID, req.Options)
		if err != nil {
			return err
		}
		resp.Contexts = contexts
		if req.Options != nil {
			resp.NextPageToken = token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetArtifactByTypeAndName resolves one artifact by type and name. Both an
// unknown type and an unknown name yield an empty response.
func (s *Store) GetArtifactByTypeAndName(ctx context.Context, req *GetArtifactByTypeAndNameRequest) (*GetArtifactByTypeAndNameResponse, error) {
	resp := &GetArtifactByTypeAndNameResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		t, err := tx.FindTypeByNameAndVersion(ctx, types.ArtifactTypeKind, req.TypeName, req.TypeVersion)
		if status.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		artifact, err := tx.FindArtifactByTypeIDAndName(ctx, *t.ID, req.ArtifactName)
		if status.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		resp.Artifact = artifact
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetExecutionByTypeAndName resolves one execution by type and name. Both an
// unknown type and an unknown name yield an empty response.
func (s *Store) GetExecutionByTypeAndName(ctx context.Context, req *GetExecutionByTypeAndNameRequest) (*GetExecutionByTypeAndNameResponse, error) {
	resp := &GetExecutionByTypeAndNameResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		t, err := tx.FindTypeByNameAndVersion(ctx, types.ExecutionTypeKind, req.TypeName, req.TypeVersion)
		if status.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		execution, err := tx.FindExecutionByTypeIDAndName(ctx, *t.ID, req.ExecutionName)
		if status.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		resp.Execution = execution
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetContextByTypeAndName resolves one context by type and name. Both an
// unknown type and an unknown name yield an empty response.
func (s *Store) GetContextByTypeAndName(ctx context.Context, req *GetContextByTypeAndNameRequest) (*GetContextByTypeAndNameResponse, error) {
	resp := &GetContextByTypeAndNameResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		t, err := tx.FindTypeByNameAndVersion(ctx, types.ContextTypeKind, req.TypeName, req.TypeVersion)
		if status.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		c, err := tx.FindContextByTypeIDAndName(ctx, *t.ID, req.ContextName)
		if status.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		resp.Context = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetArtifactsByURI returns the artifacts stored under the requested uris.
// Duplicate uris are looked up once; uris with no artifacts contribute
// nothing.
func (s *Store) GetArtifactsByURI(ctx context.Context, req *GetArtifactsByURIRequest) (*GetArtifactsByURIResponse, error) {
	if req.URI != nil {
		return nil, status.InvalidArgumentf("The request contains deprecated field `uri`. Please upgrade the client library version above 0.21.0. GetArtifactsByURIRequest: %s", requestString(req))
	}
	resp := &GetArtifactsByURIResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		*resp = GetArtifactsByURIResponse{}
		seen := make(map[string]bool, len(req.URIs))
		for _, uri := range req.URIs {
			if seen[uri] {
				continue
			}
			seen[uri] = true
			artifacts, err := tx.FindArtifactsByURI(ctx, uri)
			if err != nil && !status.IsNotFound(err) {
				return err
			}
			resp.Artifacts = append(resp.Artifacts, artifacts...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetArtifactsByContext lists the artifacts attributed to a context, paged
// when the request carries options.
func (s *Store) GetArtifactsByContext(ctx context.Context, req *GetArtifactsByContextRequest) (*GetArtifactsByContextResponse, error) {
	resp := &GetArtifactsByContextResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		artifacts, token, err := tx.FindArtifactsByContext(ctx, req.ContextID, req.Options)
		if err != nil {
			return err
		}
		resp.Artifacts = artifacts
		if req.Options != nil {
			resp.NextPageToken = token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetExecutionsByContext lists the executions associated with a context,
// paged when the request carries options.
func (s *Store) GetExecutionsByContext(ctx context.Context, req *GetExecutionsByContextRequest) (*GetExecutionsByContextResponse, error) {
	resp := &GetExecutionsByContextResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		executions, token, err := tx.FindExecutionsByContext(ctx, req.ContextID, req.Options)
		if err != nil {
			return err
		}
		resp.Executions = executions
		if req.Options != nil {
			resp.NextPageToken = token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetEventsByArtifactIDs returns every event touching the given artifacts.
func (s *Store) GetEventsByArtifactIDs(ctx context.Context, req *GetEventsByArtifactIDsRequest) (*GetEventsByArtifactIDsResponse, error) {
	resp := &GetEventsByArtifactIDsResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		events, err := tx.FindEventsByArtifactIDs(ctx, req.ArtifactIDs)
		if err != nil && !status.IsNotFound(err) {
			return err
		}
		resp.Events = events
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetEventsByExecutionIDs returns every event touching the given executions.
func (s *Store) GetEventsByExecutionIDs(ctx context.Context, req *GetEventsByExecutionIDsRequest) (*GetEventsByExecutionIDsResponse, error) {
	resp := &GetEventsByExecutionIDsResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		events, err := tx.FindEventsByExecutionIDs(ctx, req.ExecutionIDs)
		if err != nil && !status.IsNotFound(err) {
			return err
		}
		resp.Events = events
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetContextsByArtifact returns the contexts an artifact is attributed to.
func (s *Store) GetContextsByArtifact(ctx context.Context, req *GetContextsByArtifactRequest) (*GetContextsByArtifactResponse, error) {
	resp := &GetContextsByArtifactResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		contexts, err := tx.FindContextsByArtifact(ctx, req.ArtifactID)
		if err != nil {
			return err
		}
		resp.Contexts = contexts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetContextsByExecution returns the contexts an execution is associated
// with.
func (s *Store) GetContextsByExecution(ctx context.Context, req *GetContextsByExecutionRequest) (*GetContextsByExecutionResponse, error) {
	resp := &GetContextsByExecutionResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		contexts, err := tx.FindContextsByExecution(ctx, req.ExecutionID)
		if err != nil {
			return err
		}
		resp.Contexts = contexts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetParentContextsByContext returns the parents of a context.
func (s *Store) GetParentContextsByContext(ctx context.Context, req *GetParentContextsByContextRequest) (*GetParentContextsByContextResponse, error) {
	resp := &GetParentContextsByContextResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		contexts, err := tx.FindParentContextsByContextID(ctx, req.ContextID)
		if err != nil {
			return err
		}
		resp.Contexts = contexts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetChildrenContextsByContext returns the children of a context.
func (s *Store) GetChildrenContextsByContext(ctx context.Context, req *GetChildrenContextsByContextRequest) (*GetChildrenContextsByContextResponse, error) {
	resp := &GetChildrenContextsByContextResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		contexts, err := tx.FindChildContextsByContextID(ctx, req.ContextID)
		if err != nil {
			return err
		}
		resp.Contexts = contexts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
