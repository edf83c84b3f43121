package store

import (
	"context"
	"sort"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/types"
)

// maxLineageGraphQueryHops caps how far a lineage traversal may walk from its
// query nodes, whatever the request asks for.
const maxLineageGraphQueryHops = int64(20)

// GetLineageGraph expands the provenance subgraph reachable from the
// artifacts matched by the request's query conditions. StopConditions bound
// the walk: MaxNumHops limits the distance from the query nodes (clamped to
// maxLineageGraphQueryHops) and the boundary type lists name node types the
// walk keeps but does not expand through. MaxNodeSize, when positive, caps
// the total number of returned nodes; the query nodes themselves count
// against it and are truncated first when they alone exceed it.
func (s *Store) GetLineageGraph(ctx context.Context, req *GetLineageGraphRequest) (*GetLineageGraphResponse, error) {
	opts := req.Options
	if opts == nil || opts.ArtifactsOptions.Empty() {
		return nil, status.InvalidArgumentf("Missing query_nodes conditions")
	}
	maxHops := maxLineageGraphQueryHops
	var boundaryArtifactTypes, boundaryExecutionTypes []string
	if sc := opts.StopConditions; sc != nil {
		if sc.MaxNumHops != nil {
			if *sc.MaxNumHops < 0 {
				return nil, status.InvalidArgumentf("max_num_hops cannot be negative: max_num_hops =%d", *sc.MaxNumHops)
			}
			if *sc.MaxNumHops < maxHops {
				maxHops = *sc.MaxNumHops
			}
		}
		boundaryArtifactTypes = sc.BoundaryArtifactTypes
		boundaryExecutionTypes = sc.BoundaryExecutionTypes
	}
	resp := &GetLineageGraphResponse{}
	err := s.storage.ExecuteTransaction(ctx, req.TransactionOptions, func(tx storage.Transaction) error {
		seeds, err := resolveLineageSeeds(ctx, tx, opts.ArtifactsOptions)
		if err != nil {
			return err
		}
		if len(seeds) == 0 {
			return status.NotFoundf("The query_nodes condition does not match any nodes to do traversal.")
		}
		var maxExtraNodes *int64
		if opts.MaxNodeSize > 0 {
			if int64(len(seeds)) > opts.MaxNodeSize {
				seeds = seeds[:opts.MaxNodeSize]
			}
			extra := opts.MaxNodeSize - int64(len(seeds))
			maxExtraNodes = &extra
		}
		graph, err := tx.QueryLineageGraph(ctx, seeds, maxHops, maxExtraNodes, boundaryArtifactTypes, boundaryExecutionTypes)
		if err != nil {
			return err
		}
		resp.Subgraph = graph
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// resolveLineageSeeds materializes the artifacts matching a query. The
// query's conditions combine with AND: the most selective one drives the
// lookup and the rest narrow its matches. Results are deduplicated and
// ordered by id so seed truncation is deterministic. The caller guarantees
// the query is non-empty.
func resolveLineageSeeds(ctx context.Context, tx storage.Transaction, q *types.ArtifactQuery) ([]*types.Artifact, error) {
	// An unknown type means nothing can match, whatever else the query says.
	var typeID *int64
	if q.TypeName != "" {
		t, err := tx.FindTypeByNameAndVersion(ctx, types.ArtifactTypeKind, q.TypeName, q.TypeVersion)
		if status.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		typeID = t.ID
	}

	var candidates []*types.Artifact
	switch {
	case len(q.IDs) > 0:
		found, err := tx.FindArtifactsByID(ctx, q.IDs)
		if err != nil && !status.IsNotFound(err) {
			return nil, err
		}
		candidates = found
	case len(q.URIs) > 0:
		seen := make(map[int64]bool)
		for _, uri := range q.URIs {
			found, err := tx.FindArtifactsByURI(ctx, uri)
			if err != nil {
				return nil, err
			}
			for _, a := range found {
				if !seen[*a.ID] {
					seen[*a.ID] = true
					candidates = append(candidates, a)
				}
			}
		}
	default:
		found, _, err := tx.FindArtifactsByTypeID(ctx, *typeID, nil)
		if err != nil {
			return nil, err
		}
		candidates = found
	}

	uriSet := make(map[string]bool, len(q.URIs))
	for _, uri := range q.URIs {
		uriSet[uri] = true
	}
	seeds := make([]*types.Artifact, 0, len(candidates))
	for _, a := range candidates {
		if typeID != nil && a.TypeID != *typeID {
			continue
		}
		if len(q.IDs) > 0 && len(uriSet) > 0 && (a.URI == nil || !uriSet[*a.URI]) {
			continue
		}
		seeds = append(seeds, a)
	}
	sort.Slice(seeds, func(i, j int) bool { return *seeds[i].ID < *seeds[j].ID })
	return seeds, nil
}
