package rdbms

import (
	"context"
	"fmt"
	"sort"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

// QueryLineageGraph walks the provenance graph outward from the seed
// artifacts, alternating artifact-to-execution and execution-to-artifact
// hops through events. Traversal stops at maxHops, when the extra-node
// budget runs out, or when a frontier empties. Boundary-typed nodes are
// recorded in the graph but never expanded through.
func (t *txn) QueryLineageGraph(ctx context.Context, seeds []*types.Artifact, maxHops int64, maxExtraNodes *int64, boundaryArtifactTypes, boundaryExecutionTypes []string) (*types.LineageGraph, error) {
	if len(seeds) == 0 {
		return nil, status.InvalidArgumentf("query lineage graph: no seed artifacts")
	}
	artifactBoundary, err := t.typeIDSet(ctx, types.ArtifactTypeKind, boundaryArtifactTypes)
	if err != nil {
		return nil, err
	}
	executionBoundary, err := t.typeIDSet(ctx, types.ExecutionTypeKind, boundaryExecutionTypes)
	if err != nil {
		return nil, err
	}

	visitedArtifacts := make(map[int64]*types.Artifact)
	visitedExecutions := make(map[int64]*types.Execution)
	var artifactFrontier, executionFrontier []int64
	for _, a := range seeds {
		if a.ID == nil || visitedArtifacts[*a.ID] != nil {
			continue
		}
		visitedArtifacts[*a.ID] = a
		if !artifactBoundary[a.TypeID] {
			artifactFrontier = append(artifactFrontier, *a.ID)
		}
	}

	// budget counts nodes admitted beyond the seeds; -1 is unbounded.
	budget := int64(-1)
	if maxExtraNodes != nil {
		budget = *maxExtraNodes
		if budget < 0 {
			budget = 0
		}
	}

	seenEvents := make(map[int64]bool)
	var events []*types.Event
	collect := func(batch []*types.Event) {
		for _, e := range batch {
			if !seenEvents[*e.ID] {
				seenEvents[*e.ID] = true
				events = append(events, e)
			}
		}
	}

	for hop := int64(0); hop < maxHops && budget != 0; hop++ {
		if hop%2 == 0 {
			if len(artifactFrontier) == 0 {
				break
			}
			batch, err := t.findEvents(ctx, "artifact_id", artifactFrontier)
			if err != nil {
				return nil, err
			}
			collect(batch)
			var discovered []int64
			for _, e := range batch {
				if visitedExecutions[e.ExecutionID] == nil {
					discovered = append(discovered, e.ExecutionID)
				}
			}
			discovered = dedupeInt64s(discovered)
			if budget >= 0 && int64(len(discovered)) > budget {
				discovered = discovered[:budget]
			}
			found, err := t.FindExecutionsByID(ctx, discovered)
			if err != nil && status.CodeOf(err) != status.NotFound {
				return nil, err
			}
			executionFrontier = executionFrontier[:0]
			for _, e := range found {
				visitedExecutions[*e.ID] = e
				if budget > 0 {
					budget--
				}
				if !executionBoundary[e.TypeID] {
					executionFrontier = append(executionFrontier, *e.ID)
				}
			}
		} else {
			if len(executionFrontier) == 0 {
				break
			}
			batch, err := t.findEvents(ctx, "execution_id", executionFrontier)
			if err != nil {
				return nil, err
			}
			collect(batch)
			var discovered []int64
			for _, e := range batch {
				if visitedArtifacts[e.ArtifactID] == nil {
					discovered = append(discovered, e.ArtifactID)
				}
			}
			discovered = dedupeInt64s(discovered)
			if budget >= 0 && int64(len(discovered)) > budget {
				discovered = discovered[:budget]
			}
			found, err := t.FindArtifactsByID(ctx, discovered)
			if err != nil && status.CodeOf(err) != status.NotFound {
				return nil, err
			}
			artifactFrontier = artifactFrontier[:0]
			for _, a := range found {
				visitedArtifacts[*a.ID] = a
				if budget > 0 {
					budget--
				}
				if !artifactBoundary[a.TypeID] {
					artifactFrontier = append(artifactFrontier, *a.ID)
				}
			}
		}
	}

	return t.assembleLineageGraph(ctx, visitedArtifacts, visitedExecutions, events)
}

// assembleLineageGraph orders the visited nodes, keeps only events whose
// both endpoints made it into the graph, and hydrates the node types.
func (t *txn) assembleLineageGraph(ctx context.Context, visitedArtifacts map[int64]*types.Artifact, visitedExecutions map[int64]*types.Execution, events []*types.Event) (*types.LineageGraph, error) {
	graph := &types.LineageGraph{}

	artifactTypeIDs := make(map[int64]bool)
	for _, a := range visitedArtifacts {
		graph.Artifacts = append(graph.Artifacts, a)
		artifactTypeIDs[a.TypeID] = true
	}
	sort.Slice(graph.Artifacts, func(i, j int) bool {
		return *graph.Artifacts[i].ID < *graph.Artifacts[j].ID
	})

	executionTypeIDs := make(map[int64]bool)
	for _, e := range visitedExecutions {
		graph.Executions = append(graph.Executions, e)
		executionTypeIDs[e.TypeID] = true
	}
	sort.Slice(graph.Executions, func(i, j int) bool {
		return *graph.Executions[i].ID < *graph.Executions[j].ID
	})

	for _, e := range events {
		if visitedArtifacts[e.ArtifactID] != nil && visitedExecutions[e.ExecutionID] != nil {
			graph.Events = append(graph.Events, e)
		}
	}
	sort.Slice(graph.Events, func(i, j int) bool {
		return *graph.Events[i].ID < *graph.Events[j].ID
	})

	var err error
	if graph.ArtifactTypes, err = t.FindTypesByIDs(ctx, types.ArtifactTypeKind, setToSlice(artifactTypeIDs)); err != nil {
		return nil, err
	}
	if graph.ExecutionTypes, err = t.FindTypesByIDs(ctx, types.ExecutionTypeKind, setToSlice(executionTypeIDs)); err != nil {
		return nil, err
	}
	return graph, nil
}

// typeIDSet resolves type names of one kind to their stored ids. Names with
// no stored type resolve to nothing.
func (t *txn) typeIDSet(ctx context.Context, kind types.TypeKind, names []string) (map[int64]bool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := []any{int(kind)}
	for _, name := range names {
		args = append(args, name)
	}
	query := fmt.Sprintf(
		`SELECT id FROM types WHERE type_kind = ? AND name IN (%s)`, inPlaceholders(len(names)))
	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, t.store.wrapDBError("resolve boundary types", err)
	}
	defer func() { _ = rows.Close() }()
	set := make(map[int64]bool, len(names))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, t.store.wrapDBError("scan boundary type", err)
		}
		set[id] = true
	}
	return set, rows.Err()
}

func setToSlice(set map[int64]bool) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
