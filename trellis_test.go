package trellis_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/trellisml/trellis"
)

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "meta.db")

	s, err := trellis.OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	// The schema is created on first contact.
	version, err := s.GetSchemaVersion(ctx)
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if version <= 0 {
		t.Errorf("schema version = %d, want > 0", version)
	}
}

// TestRecordPipelineStep exercises the embedding path end to end: register
// types, record a training step with its input and output in a single
// transaction, and read the lineage back.
func TestRecordPipelineStep(t *testing.T) {
	ctx := context.Background()
	s, err := trellis.OpenSQLite(ctx, filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	datasetType, err := s.PutArtifactType(ctx, &trellis.PutArtifactTypeRequest{
		ArtifactType: &trellis.Type{Name: "Dataset"},
	})
	if err != nil {
		t.Fatalf("put Dataset type: %v", err)
	}
	modelType, err := s.PutArtifactType(ctx, &trellis.PutArtifactTypeRequest{
		ArtifactType: &trellis.Type{
			Name:       "Model",
			Properties: map[string]trellis.PropertyType{"accuracy": trellis.DoubleType},
		},
	})
	if err != nil {
		t.Fatalf("put Model type: %v", err)
	}
	trainerType, err := s.PutExecutionType(ctx, &trellis.PutExecutionTypeRequest{
		ExecutionType: &trellis.Type{Name: "Trainer"},
	})
	if err != nil {
		t.Fatalf("put Trainer type: %v", err)
	}
	if _, err := s.PutContextType(ctx, &trellis.PutContextTypeRequest{
		ContextType: &trellis.Type{Name: "Experiment"},
	}); err != nil {
		t.Fatalf("put Experiment type: %v", err)
	}

	datasetURI := "s3://data/train.tfrecord"
	dataset, err := s.PutArtifacts(ctx, &trellis.PutArtifactsRequest{
		Artifacts: []*trellis.Artifact{{
			TypeID: datasetType.TypeID,
			URI:    &datasetURI,
			State:  trellis.ArtifactLive,
		}},
	})
	if err != nil {
		t.Fatalf("put dataset: %v", err)
	}

	// One transaction: the execution, its input and output events, the
	// produced model, and the experiment context.
	modelURI := "s3://models/fraud/v1"
	resp, err := s.PutExecution(ctx, &trellis.PutExecutionRequest{
		Execution: &trellis.Execution{
			TypeID:         trainerType.TypeID,
			LastKnownState: trellis.ExecutionComplete,
		},
		ArtifactEventPairs: []trellis.ArtifactAndEvent{
			{
				Artifact: &trellis.Artifact{ID: &dataset.ArtifactIDs[0], TypeID: datasetType.TypeID},
				Event:    &trellis.Event{Type: trellis.EventInput, MillisSinceEpoch: 100},
			},
			{
				Artifact: &trellis.Artifact{
					TypeID:     modelType.TypeID,
					URI:        &modelURI,
					State:      trellis.ArtifactLive,
					Properties: map[string]*trellis.Value{"accuracy": trellis.DoubleValue(0.97)},
				},
				Event: &trellis.Event{Type: trellis.EventOutput, MillisSinceEpoch: 200},
			},
		},
		Contexts: []*trellis.Context{{TypeID: contextTypeID(t, s), Name: "fraud-v1"}},
		Options:  trellis.PutExecutionOptions{ReuseContextIfAlreadyExist: true},
	})
	if err != nil {
		t.Fatalf("PutExecution: %v", err)
	}
	if resp.ExecutionID <= 0 {
		t.Fatalf("execution id = %d", resp.ExecutionID)
	}
	if len(resp.ArtifactIDs) != 2 {
		t.Fatalf("artifact ids = %v, want 2", resp.ArtifactIDs)
	}
	modelID := resp.ArtifactIDs[1]

	// The run's artifacts are reachable through the context.
	inCtx, err := s.GetArtifactsByContext(ctx, &trellis.GetArtifactsByContextRequest{
		ContextID: resp.ContextIDs[0],
	})
	if err != nil {
		t.Fatalf("GetArtifactsByContext: %v", err)
	}
	if len(inCtx.Artifacts) != 2 {
		t.Errorf("artifacts in context = %d, want 2", len(inCtx.Artifacts))
	}

	// Lineage from the model reaches back to the dataset.
	graph, err := s.GetLineageGraph(ctx, &trellis.GetLineageGraphRequest{
		Options: &trellis.LineageGraphQueryOptions{
			ArtifactsOptions: &trellis.ArtifactQuery{IDs: []int64{modelID}},
		},
	})
	if err != nil {
		t.Fatalf("GetLineageGraph: %v", err)
	}
	if len(graph.Subgraph.Artifacts) != 2 || len(graph.Subgraph.Executions) != 1 {
		t.Errorf("subgraph = %d artifacts, %d executions, want 2 and 1",
			len(graph.Subgraph.Artifacts), len(graph.Subgraph.Executions))
	}
}

func contextTypeID(t *testing.T, s *trellis.Store) int64 {
	t.Helper()
	resp, err := s.GetContextType(context.Background(), &trellis.GetContextTypeRequest{TypeName: "Experiment"})
	if err != nil {
		t.Fatalf("GetContextType: %v", err)
	}
	return *resp.ContextType.ID
}

func TestConstants(t *testing.T) {
	if trellis.ArtifactLive != "LIVE" {
		t.Errorf("ArtifactLive = %q", trellis.ArtifactLive)
	}
	if trellis.ExecutionComplete != "COMPLETE" {
		t.Errorf("ExecutionComplete = %q", trellis.ExecutionComplete)
	}
	if trellis.EventOutput != "OUTPUT" {
		t.Errorf("EventOutput = %q", trellis.EventOutput)
	}
	if trellis.BackendSQLite != "sqlite" {
		t.Errorf("BackendSQLite = %q", trellis.BackendSQLite)
	}
}
