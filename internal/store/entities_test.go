package store

import (
	"context"
	"strings"
	"testing"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

func strptr(s string) *string { return &s }

func int64ptr(v int64) *int64 { return &v }

// createArtifact writes one artifact of the given type and returns its id.
func createArtifact(t *testing.T, s *Store, typeID int64, uri string) int64 {
	t.Helper()
	resp, err := s.PutArtifacts(context.Background(), &PutArtifactsRequest{
		Artifacts: []*types.Artifact{{TypeID: typeID, URI: &uri}},
	})
	if err != nil {
		t.Fatalf("PutArtifacts: %v", err)
	}
	return resp.ArtifactIDs[0]
}

func createExecution(t *testing.T, s *Store, typeID int64) int64 {
	t.Helper()
	resp, err := s.PutExecutions(context.Background(), &PutExecutionsRequest{
		Executions: []*types.Execution{{TypeID: typeID}},
	})
	if err != nil {
		t.Fatalf("PutExecutions: %v", err)
	}
	return resp.ExecutionIDs[0]
}

func createContext(t *testing.T, s *Store, typeID int64, name string) int64 {
	t.Helper()
	resp, err := s.PutContexts(context.Background(), &PutContextsRequest{
		Contexts: []*types.Context{{TypeID: typeID, Name: name}},
	})
	if err != nil {
		t.Fatalf("PutContexts: %v", err)
	}
	return resp.ContextIDs[0]
}

// getArtifact fetches one artifact by id and fails the test if it is absent.
func getArtifact(t *testing.T, s *Store, id int64) *types.Artifact {
	t.Helper()
	resp, err := s.GetArtifactsByID(context.Background(), &GetArtifactsByIDRequest{ArtifactIDs: []int64{id}})
	if err != nil {
		t.Fatalf("GetArtifactsByID(%d): %v", id, err)
	}
	if len(resp.Artifacts) != 1 {
		t.Fatalf("GetArtifactsByID(%d) returned %d artifacts", id, len(resp.Artifacts))
	}
	return resp.Artifacts[0]
}

func TestPutArtifactsCreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	typeID := putArtifactType(t, s, &types.Type{
		Name:       "Dataset",
		Properties: map[string]types.PropertyType{"split": types.StringType},
	})

	uri := "s3://bucket/train"
	resp, err := s.PutArtifacts(ctx, &PutArtifactsRequest{
		Artifacts: []*types.Artifact{{
			TypeID:           typeID,
			URI:              &uri,
			State:            types.ArtifactStateLive,
			Properties:       map[string]*types.Value{"split": types.StringValue("train")},
			CustomProperties: map[string]*types.Value{"rows": types.IntValue(1000)},
		}},
	})
	if err != nil {
		t.Fatalf("PutArtifacts: %v", err)
	}
	if len(resp.ArtifactIDs) != 1 || resp.ArtifactIDs[0] <= 0 {
		t.Fatalf("ArtifactIDs = %v", resp.ArtifactIDs)
	}

	stored := getArtifact(t, s, resp.ArtifactIDs[0])
	if stored.URI == nil || *stored.URI != uri {
		t.Errorf("uri = %v, want %q", stored.URI, uri)
	}
	if stored.State != types.ArtifactStateLive {
		t.Errorf("state = %q, want LIVE", stored.State)
	}
	if !stored.Properties["split"].Equal(types.StringValue("train")) {
		t.Errorf("property split = %+v", stored.Properties["split"])
	}
	if !stored.CustomProperties["rows"].Equal(types.IntValue(1000)) {
		t.Errorf("custom property rows = %+v", stored.CustomProperties["rows"])
	}
	if stored.CreateTimeSinceEpoch <= 0 || stored.LastUpdateTimeSinceEpoch < stored.CreateTimeSinceEpoch {
		t.Errorf("timestamps: create=%d update=%d", stored.CreateTimeSinceEpoch, stored.LastUpdateTimeSinceEpoch)
	}

	// Update through the same operation: ids switch it to a rewrite.
	newURI := "s3://bucket/train-v2"
	stored.URI = &newURI
	if _, err := s.PutArtifacts(ctx, &PutArtifactsRequest{Artifacts: []*types.Artifact{stored}}); err != nil {
		t.Fatalf("PutArtifacts (update): %v", err)
	}
	updated := getArtifact(t, s, *stored.ID)
	if updated.URI == nil || *updated.URI != newURI {
		t.Errorf("updated uri = %v, want %q", updated.URI, newURI)
	}
	if updated.CreateTimeSinceEpoch != stored.CreateTimeSinceEpoch {
		t.Errorf("create time changed on update: %d -> %d", stored.CreateTimeSinceEpoch, updated.CreateTimeSinceEpoch)
	}
	if updated.LastUpdateTimeSinceEpoch <= stored.LastUpdateTimeSinceEpoch {
		t.Errorf("last update time did not increase: %d -> %d",
			stored.LastUpdateTimeSinceEpoch, updated.LastUpdateTimeSinceEpoch)
	}
}

func TestPutArtifactsOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	typeID := putArtifactType(t, s, &types.Type{Name: "Dataset"})
	id := createArtifact(t, s, typeID, "s3://bucket/a")
	stored := getArtifact(t, s, id)

	opts := PutArtifactsOptions{AbortIfLatestUpdatedTimeChanged: true}

	// Presenting the stored timestamp wins the write.
	if _, err := s.PutArtifacts(ctx, &PutArtifactsRequest{
		Artifacts: []*types.Artifact{stored}, Options: opts,
	}); err != nil {
		t.Fatalf("optimistic update with fresh timestamp: %v", err)
	}

	after := getArtifact(t, s, id)
	if after.LastUpdateTimeSinceEpoch <= stored.LastUpdateTimeSinceEpoch {
		t.Fatalf("last update time did not increase: %d -> %d",
			stored.LastUpdateTimeSinceEpoch, after.LastUpdateTimeSinceEpoch)
	}

	// Replaying the now-stale snapshot is rejected.
	_, err := s.PutArtifacts(ctx, &PutArtifactsRequest{
		Artifacts: []*types.Artifact{stored}, Options: opts,
	})
	if status.CodeOf(err) != status.FailedPrecondition {
		t.Fatalf("stale update: code = %v, want FAILED_PRECONDITION (%v)", status.CodeOf(err), err)
	}
	if !strings.Contains(err.Error(), "`abort_if_latest_updated_time_changed` is set") {
		t.Errorf("stale update message = %q", err.Error())
	}

	// The rejected write must not have landed.
	unchanged := getArtifact(t, s, id)
	if unchanged.LastUpdateTimeSinceEpoch != after.LastUpdateTimeSinceEpoch {
		t.Errorf("rejected write changed the artifact: %d -> %d",
			after.LastUpdateTimeSinceEpoch, unchanged.LastUpdateTimeSinceEpoch)
	}
}

func TestPutArtifactsOptimisticUnknownID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	typeID := putArtifactType(t, s, &types.Type{Name: "Dataset"})

	// The precheck tolerates a missing row; the update itself then fails.
	_, err := s.PutArtifacts(ctx, &PutArtifactsRequest{
		Artifacts: []*types.Artifact{{ID: int64ptr(4242), TypeID: typeID}},
		Options:   PutArtifactsOptions{AbortIfLatestUpdatedTimeChanged: true},
	})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("update of unknown id: code = %v, want INVALID_ARGUMENT (%v)", status.CodeOf(err), err)
	}
}

func TestPutExecutionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	typeID := putExecutionType(t, s, &types.Type{
		Name:       "Trainer",
		Properties: map[string]types.PropertyType{"step": types.IntType},
	})

	resp, err := s.PutExecutions(ctx, &PutExecutionsRequest{
		Executions: []*types.Execution{{
			TypeID:         typeID,
			LastKnownState: types.ExecutionStateRunning,
			Properties:     map[string]*types.Value{"step": types.IntValue(1)},
		}},
	})
	if err != nil {
		t.Fatalf("PutExecutions: %v", err)
	}
	id := resp.ExecutionIDs[0]

	got, err := s.GetExecutionsByID(ctx, &GetExecutionsByIDRequest{ExecutionIDs: []int64{id}})
	if err != nil {
		t.Fatalf("GetExecutionsByID: %v", err)
	}
	if len(got.Executions) != 1 || got.Executions[0].LastKnownState != types.ExecutionStateRunning {
		t.Fatalf("executions = %+v", got.Executions)
	}

	// Flip the state through an update.
	e := got.Executions[0]
	e.LastKnownState = types.ExecutionStateComplete
	if _, err := s.PutExecutions(ctx, &PutExecutionsRequest{Executions: []*types.Execution{e}}); err != nil {
		t.Fatalf("PutExecutions (update): %v", err)
	}
	got, err = s.GetExecutionsByID(ctx, &GetExecutionsByIDRequest{ExecutionIDs: []int64{id}})
	if err != nil {
		t.Fatalf("GetExecutionsByID: %v", err)
	}
	if got.Executions[0].LastKnownState != types.ExecutionStateComplete {
		t.Errorf("state = %q, want COMPLETE", got.Executions[0].LastKnownState)
	}
}

func TestPutContextsNameUniqueWithinType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	expType := putContextType(t, s, &types.Type{Name: "Experiment"})
	runType := putContextType(t, s, &types.Type{Name: "Run"})

	createContext(t, s, expType, "shared-name")

	_, err := s.PutContexts(ctx, &PutContextsRequest{
		Contexts: []*types.Context{{TypeID: expType, Name: "shared-name"}},
	})
	if status.CodeOf(err) != status.AlreadyExists {
		t.Fatalf("duplicate name: code = %v, want ALREADY_EXISTS (%v)", status.CodeOf(err), err)
	}

	// The same name under another type is a different context.
	if _, err := s.PutContexts(ctx, &PutContextsRequest{
		Contexts: []*types.Context{{TypeID: runType, Name: "shared-name"}},
	}); err != nil {
		t.Fatalf("same name, other type: %v", err)
	}
}

func TestPutEventsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	aType := putArtifactType(t, s, &types.Type{Name: "Dataset"})
	eType := putExecutionType(t, s, &types.Type{Name: "Trainer"})
	artifactID := createArtifact(t, s, aType, "s3://bucket/in")
	executionID := createExecution(t, s, eType)

	events := []*types.Event{
		{
			ArtifactID:       artifactID,
			ExecutionID:      executionID,
			Type:             types.EventTypeInput,
			Path:             []types.PathStep{{Index: int64ptr(0)}, {Key: strptr("features")}},
			MillisSinceEpoch: 111,
		},
		{
			ArtifactID:       artifactID,
			ExecutionID:      executionID,
			Type:             types.EventTypeOutput,
			MillisSinceEpoch: 222,
		},
	}
	if _, err := s.PutEvents(ctx, &PutEventsRequest{Events: events}); err != nil {
		t.Fatalf("PutEvents: %v", err)
	}

	byArtifact, err := s.GetEventsByArtifactIDs(ctx, &GetEventsByArtifactIDsRequest{ArtifactIDs: []int64{artifactID}})
	if err != nil {
		t.Fatalf("GetEventsByArtifactIDs: %v", err)
	}
	if len(byArtifact.Events) != 2 {
		t.Fatalf("events by artifact = %d, want 2", len(byArtifact.Events))
	}
	input := byArtifact.Events[0]
	if input.Type != types.EventTypeInput || input.MillisSinceEpoch != 111 {
		t.Errorf("first event = %+v", input)
	}
	if len(input.Path) != 2 || input.Path[0].Index == nil || *input.Path[0].Index != 0 ||
		input.Path[1].Key == nil || *input.Path[1].Key != "features" {
		t.Errorf("event path = %+v", input.Path)
	}

	byExecution, err := s.GetEventsByExecutionIDs(ctx, &GetEventsByExecutionIDsRequest{ExecutionIDs: []int64{executionID}})
	if err != nil {
		t.Fatalf("GetEventsByExecutionIDs: %v", err)
	}
	if len(byExecution.Events) != 2 {
		t.Errorf("events by execution = %d, want 2", len(byExecution.Events))
	}

	// Unknown endpoints read as empty, not as an error.
	empty, err := s.GetEventsByArtifactIDs(ctx, &GetEventsByArtifactIDsRequest{ArtifactIDs: []int64{artifactID + 999}})
	if err != nil {
		t.Fatalf("GetEventsByArtifactIDs (unknown): %v", err)
	}
	if len(empty.Events) != 0 {
		t.Errorf("events for unknown artifact = %d, want 0", len(empty.Events))
	}
}

func TestPutEventsUnknownEndpoint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	eType := putExecutionType(t, s, &types.Type{Name: "Trainer"})
	executionID := createExecution(t, s, eType)

	_, err := s.PutEvents(ctx, &PutEventsRequest{
		Events: []*types.Event{{
			ArtifactID:  9999,
			ExecutionID: executionID,
			Type:        types.EventTypeInput,
		}},
	})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("event to unknown artifact: code = %v, want INVALID_ARGUMENT (%v)", status.CodeOf(err), err)
	}
}

func TestPutAttributionsAndAssociationsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	aType := putArtifactType(t, s, &types.Type{Name: "Dataset"})
	eType := putExecutionType(t, s, &types.Type{Name: "Trainer"})
	cType := putContextType(t, s, &types.Type{Name: "Experiment"})
	artifactID := createArtifact(t, s, aType, "s3://bucket/a")
	executionID := createExecution(t, s, eType)
	contextID := createContext(t, s, cType, "exp-1")

	req := &PutAttributionsAndAssociationsRequest{
		Attributions: []*types.Attribution{{ContextID: contextID, ArtifactID: artifactID}},
		Associations: []*types.Association{{ContextID: contextID, ExecutionID: executionID}},
	}
	if _, err := s.PutAttributionsAndAssociations(ctx, req); err != nil {
		t.Fatalf("PutAttributionsAndAssociations: %v", err)
	}
	// Replaying the same links succeeds.
	if _, err := s.PutAttributionsAndAssociations(ctx, req); err != nil {
		t.Fatalf("PutAttributionsAndAssociations (replay): %v", err)
	}

	byArtifact, err := s.GetContextsByArtifact(ctx, &GetContextsByArtifactRequest{ArtifactID: artifactID})
	if err != nil {
		t.Fatalf("GetContextsByArtifact: %v", err)
	}
	if len(byArtifact.Contexts) != 1 || *byArtifact.Contexts[0].ID != contextID {
		t.Errorf("contexts by artifact = %+v", byArtifact.Contexts)
	}

	byExecution, err := s.GetContextsByExecution(ctx, &GetContextsByExecutionRequest{ExecutionID: executionID})
	if err != nil {
		t.Fatalf("GetContextsByExecution: %v", err)
	}
	if len(byExecution.Contexts) != 1 || *byExecution.Contexts[0].ID != contextID {
		t.Errorf("contexts by execution = %+v", byExecution.Contexts)
	}
}

func TestPutAttributionsUnknownContext(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	aType := putArtifactType(t, s, &types.Type{Name: "Dataset"})
	artifactID := createArtifact(t, s, aType, "s3://bucket/a")

	_, err := s.PutAttributionsAndAssociations(ctx, &PutAttributionsAndAssociationsRequest{
		Attributions: []*types.Attribution{{ContextID: 9999, ArtifactID: artifactID}},
	})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("attribution to unknown context: code = %v, want INVALID_ARGUMENT (%v)", status.CodeOf(err), err)
	}
}

func TestPutParentContexts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	cType := putContextType(t, s, &types.Type{Name: "Experiment"})
	parent := createContext(t, s, cType, "parent")
	child := createContext(t, s, cType, "child")

	if _, err := s.PutParentContexts(ctx, &PutParentContextsRequest{
		ParentContexts: []*types.ParentContext{{ChildID: child, ParentID: parent}},
	}); err != nil {
		t.Fatalf("PutParentContexts: %v", err)
	}

	parents, err := s.GetParentContextsByContext(ctx, &GetParentContextsByContextRequest{ContextID: child})
	if err != nil {
		t.Fatalf("GetParentContextsByContext: %v", err)
	}
	if len(parents.Contexts) != 1 || *parents.Contexts[0].ID != parent {
		t.Errorf("parents = %+v, want [%d]", parents.Contexts, parent)
	}

	children, err := s.GetChildrenContextsByContext(ctx, &GetChildrenContextsByContextRequest{ContextID: parent})
	if err != nil {
		t.Fatalf("GetChildrenContextsByContext: %v", err)
	}
	if len(children.Contexts) != 1 || *children.Contexts[0].ID != child {
		t.Errorf("children = %+v, want [%d]", children.Contexts, child)
	}

	// Unlike grouping links, parent links do not tolerate replays.
	_, err = s.PutParentContexts(ctx, &PutParentContextsRequest{
		ParentContexts: []*types.ParentContext{{ChildID: child, ParentID: parent}},
	})
	if status.CodeOf(err) != status.AlreadyExists {
		t.Errorf("replayed parent link: code = %v, want ALREADY_EXISTS (%v)", status.CodeOf(err), err)
	}

	// A context cannot be its own parent.
	_, err = s.PutParentContexts(ctx, &PutParentContextsRequest{
		ParentContexts: []*types.ParentContext{{ChildID: child, ParentID: child}},
	})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Errorf("self parent: code = %v, want INVALID_ARGUMENT (%v)", status.CodeOf(err), err)
	}
}
