package sqlite

import (
	"context"
	"testing"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/storage/rdbms"
	"github.com/trellisml/trellis/internal/types"
)

// lineageFixture is a linear provenance chain
//
//	a1 -> e1 -> a2 -> e2 -> a3
//
// where e1 is a Trainer and e2 a Deployer, so boundary constraints can
// split the chain by type.
type lineageFixture struct {
	a1, a2, a3 int64
	e1, e2     int64
}

func seedLineageChain(t *testing.T, store *rdbms.Store) lineageFixture {
	t.Helper()
	ctx := context.Background()
	atype := seedArtifactType(t, store, "Dataset")
	trainer := seedExecutionType(t, store, "Trainer")
	deployer := seedExecutionType(t, store, "Deployer")

	var fx lineageFixture
	fx.a1 = createArtifact(t, store, &types.Artifact{TypeID: atype})
	fx.a2 = createArtifact(t, store, &types.Artifact{TypeID: atype})
	fx.a3 = createArtifact(t, store, &types.Artifact{TypeID: atype})
	fx.e1 = createExecution(t, store, &types.Execution{TypeID: trainer})
	fx.e2 = createExecution(t, store, &types.Execution{TypeID: deployer})

	inTx(t, store, func(tx storage.Transaction) error {
		links := []struct {
			artifact, execution int64
			typ                 types.EventType
		}{
			{fx.a1, fx.e1, types.EventTypeInput},
			{fx.a2, fx.e1, types.EventTypeOutput},
			{fx.a2, fx.e2, types.EventTypeInput},
			{fx.a3, fx.e2, types.EventTypeOutput},
		}
		for i, l := range links {
			if _, err := tx.CreateEvent(ctx, &types.Event{
				ArtifactID:       l.artifact,
				ExecutionID:      l.execution,
				Type:             l.typ,
				MillisSinceEpoch: int64(1000 + i),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return fx
}

func queryLineage(t *testing.T, store *rdbms.Store, seeds []int64, maxHops int64, maxExtra *int64, boundaryArtifacts, boundaryExecutions []string) *types.LineageGraph {
	t.Helper()
	ctx := context.Background()
	var graph *types.LineageGraph
	inTx(t, store, func(tx storage.Transaction) error {
		seedArtifacts, err := tx.FindArtifactsByID(ctx, seeds)
		if err != nil {
			return err
		}
		graph, err = tx.QueryLineageGraph(ctx, seedArtifacts, maxHops, maxExtra,
			boundaryArtifacts, boundaryExecutions)
		return err
	})
	return graph
}

func artifactGraphIDs(nodes []*types.Artifact) []int64 {
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = *n.ID
	}
	return out
}

func executionGraphIDs(nodes []*types.Execution) []int64 {
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = *n.ID
	}
	return out
}

func sameIDs(got, want []int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestLineageHopLimits(t *testing.T) {
	store := newTestStore(t)
	fx := seedLineageChain(t, store)

	tests := []struct {
		name           string
		maxHops        int64
		wantArtifacts  []int64
		wantExecutions []int64
		wantEvents     int
	}{
		{"no hops", 0, []int64{fx.a1}, nil, 0},
		{"one hop", 1, []int64{fx.a1}, []int64{fx.e1}, 1},
		{"two hops", 2, []int64{fx.a1, fx.a2}, []int64{fx.e1}, 2},
		{"full chain", 4, []int64{fx.a1, fx.a2, fx.a3}, []int64{fx.e1, fx.e2}, 4},
		{"beyond the chain", 10, []int64{fx.a1, fx.a2, fx.a3}, []int64{fx.e1, fx.e2}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := queryLineage(t, store, []int64{fx.a1}, tt.maxHops, nil, nil, nil)
			gotArtifacts := artifactGraphIDs(graph.Artifacts)
			if !sameIDs(gotArtifacts, tt.wantArtifacts) {
				t.Errorf("artifacts = %v, want %v", gotArtifacts, tt.wantArtifacts)
			}
			gotExecutions := executionGraphIDs(graph.Executions)
			if !sameIDs(gotExecutions, tt.wantExecutions) {
				t.Errorf("executions = %v, want %v", gotExecutions, tt.wantExecutions)
			}
			if len(graph.Events) != tt.wantEvents {
				t.Errorf("events = %d, want %d", len(graph.Events), tt.wantEvents)
			}
		})
	}
}

func TestLineageEventsRequireBothEndpoints(t *testing.T) {
	store := newTestStore(t)
	fx := seedLineageChain(t, store)

	// One hop discovers e1 and both its events, but the (a2, e1) edge points
	// at an artifact outside the graph and must be dropped.
	graph := queryLineage(t, store, []int64{fx.a1}, 1, nil, nil, nil)
	if len(graph.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(graph.Events))
	}
	if graph.Events[0].ArtifactID != fx.a1 || graph.Events[0].ExecutionID != fx.e1 {
		t.Errorf("event = (%d, %d), want (%d, %d)",
			graph.Events[0].ArtifactID, graph.Events[0].ExecutionID, fx.a1, fx.e1)
	}
}

func TestLineageNodeBudget(t *testing.T) {
	store := newTestStore(t)
	fx := seedLineageChain(t, store)

	// Two extra nodes beyond the seed: e1 and a2, then the budget is spent.
	budget := int64(2)
	graph := queryLineage(t, store, []int64{fx.a1}, 10, &budget, nil, nil)
	gotArtifacts := artifactGraphIDs(graph.Artifacts)
	if !sameIDs(gotArtifacts, []int64{fx.a1, fx.a2}) {
		t.Errorf("artifacts = %v, want [%d %d]", gotArtifacts, fx.a1, fx.a2)
	}
	gotExecutions := executionGraphIDs(graph.Executions)
	if !sameIDs(gotExecutions, []int64{fx.e1}) {
		t.Errorf("executions = %v, want [%d]", gotExecutions, fx.e1)
	}

	// A zero budget keeps the graph to the seeds.
	budget = 0
	graph = queryLineage(t, store, []int64{fx.a1}, 10, &budget, nil, nil)
	if len(graph.Artifacts) != 1 || len(graph.Executions) != 0 {
		t.Errorf("zero budget graph = %d artifacts, %d executions, want seeds only",
			len(graph.Artifacts), len(graph.Executions))
	}
}

func TestLineageBoundaryTypes(t *testing.T) {
	store := newTestStore(t)
	fx := seedLineageChain(t, store)

	// Deployer executions are kept but not expanded through: a3 stays out.
	graph := queryLineage(t, store, []int64{fx.a1}, 10, nil, nil, []string{"Deployer"})
	gotArtifacts := artifactGraphIDs(graph.Artifacts)
	if !sameIDs(gotArtifacts, []int64{fx.a1, fx.a2}) {
		t.Errorf("artifacts = %v, want [%d %d]", gotArtifacts, fx.a1, fx.a2)
	}
	gotExecutions := executionGraphIDs(graph.Executions)
	if !sameIDs(gotExecutions, []int64{fx.e1, fx.e2}) {
		t.Errorf("executions = %v, want [%d %d]", gotExecutions, fx.e1, fx.e2)
	}
	if len(graph.Events) != 3 {
		t.Errorf("events = %d, want 3", len(graph.Events))
	}

	// Boundary names with no stored type constrain nothing.
	graph = queryLineage(t, store, []int64{fx.a1}, 10, nil, []string{"NoSuchType"}, nil)
	if len(graph.Artifacts) != 3 {
		t.Errorf("unknown boundary type pruned the graph: %d artifacts", len(graph.Artifacts))
	}
}

func TestLineageTypesHydrated(t *testing.T) {
	store := newTestStore(t)
	fx := seedLineageChain(t, store)

	graph := queryLineage(t, store, []int64{fx.a1}, 10, nil, nil, nil)
	if len(graph.ArtifactTypes) != 1 || graph.ArtifactTypes[0].Name != "Dataset" {
		t.Errorf("artifact types = %+v, want [Dataset]", graph.ArtifactTypes)
	}
	names := make(map[string]bool)
	for _, et := range graph.ExecutionTypes {
		names[et.Name] = true
	}
	if !names["Trainer"] || !names["Deployer"] {
		t.Errorf("execution types = %+v, want Trainer and Deployer", graph.ExecutionTypes)
	}
}

func TestLineageRequiresSeeds(t *testing.T) {
	store := newTestStore(t)
	seedLineageChain(t, store)

	err := txErr(store, func(tx storage.Transaction) error {
		_, err := tx.QueryLineageGraph(context.Background(), nil, 10, nil, nil, nil)
		return err
	})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("no seeds = %v, want InvalidArgument", err)
	}
}
