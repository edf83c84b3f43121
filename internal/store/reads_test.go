package store

import (
	"context"
	"testing"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/types"
)

func TestGetArtifactsByIDSkipsMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	datasetType := putArtifactType(t, s, &types.Type{Name: "Dataset"})
	a1 := createArtifact(t, s, datasetType, "s3://bucket/1")
	a2 := createArtifact(t, s, datasetType, "s3://bucket/2")

	resp, err := s.GetArtifactsByID(ctx, &GetArtifactsByIDRequest{
		ArtifactIDs: []int64{a1, a2, a2 + 999},
	})
	if err != nil {
		t.Fatalf("GetArtifactsByID: %v", err)
	}
	if len(resp.Artifacts) != 2 {
		t.Errorf("artifacts = %d, want 2", len(resp.Artifacts))
	}
	if len(resp.ArtifactTypes) != 0 {
		t.Errorf("types populated without the option: %+v", resp.ArtifactTypes)
	}
}

func TestGetArtifactsByIDPopulatesTypes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	datasetType := putArtifactType(t, s, &types.Type{Name: "Dataset"})
	modelType := putArtifactType(t, s, &types.Type{Name: "Model"})
	a1 := createArtifact(t, s, datasetType, "s3://bucket/1")
	a2 := createArtifact(t, s, datasetType, "s3://bucket/2")
	m1 := createArtifact(t, s, modelType, "s3://bucket/m")

	resp, err := s.GetArtifactsByID(ctx, &GetArtifactsByIDRequest{
		ArtifactIDs:           []int64{a1, a2, m1},
		PopulateArtifactTypes: true,
	})
	if err != nil {
		t.Fatalf("GetArtifactsByID: %v", err)
	}
	if len(resp.Artifacts) != 3 {
		t.Fatalf("artifacts = %d, want 3", len(resp.Artifacts))
	}
	// One type per distinct type id, not per artifact.
	if got := typeNames(resp.ArtifactTypes); len(got) != 2 || got[0] != "Dataset" || got[1] != "Model" {
		t.Errorf("ArtifactTypes = %v, want [Dataset Model]", got)
	}
}

func TestGetArtifactsPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	datasetType := putArtifactType(t, s, &types.Type{Name: "Dataset"})
	for i := 0; i < 5; i++ {
		createArtifact(t, s, datasetType, "s3://bucket/page")
	}

	// A nil Options lists everything with no token.
	all, err := s.GetArtifacts(ctx, &GetArtifactsRequest{})
	if err != nil {
		t.Fatalf("GetArtifacts: %v", err)
	}
	if len(all.Artifacts) != 5 || all.NextPageToken != "" {
		t.Fatalf("unpaged: %d artifacts, token %q", len(all.Artifacts), all.NextPageToken)
	}

	opts := &types.ListOptions{MaxResultSize: 2}
	var ids []int64
	pages := 0
	for {
		resp, err := s.GetArtifacts(ctx, &GetArtifactsRequest{Options: opts})
		if err != nil {
			t.Fatalf("GetArtifacts page %d: %v", pages, err)
		}
		pages++
		for _, a := range resp.Artifacts {
			ids = append(ids, *a.ID)
		}
		if resp.NextPageToken == "" {
			break
		}
		opts.NextPageToken = resp.NextPageToken
	}
	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
	if len(ids) != 5 {
		t.Fatalf("ids = %v, want 5 entries", ids)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not strictly ascending: %v", ids)
		}
	}
}

func TestGetArtifactsByType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	datasetType := putArtifactType(t, s, &types.Type{Name: "Dataset"})
	putArtifactType(t, s, &types.Type{Name: "Model"})
	createArtifact(t, s, datasetType, "s3://bucket/1")
	createArtifact(t, s, datasetType, "s3://bucket/2")

	resp, err := s.GetArtifactsByType(ctx, &GetArtifactsByTypeRequest{TypeName: "Dataset"})
	if err != nil {
		t.Fatalf("GetArtifactsByType: %v", err)
	}
	if len(resp.Artifacts) != 2 {
		t.Errorf("Dataset artifacts = %d, want 2", len(resp.Artifacts))
	}

	// A type with no instances reads as empty.
	resp, err = s.GetArtifactsByType(ctx, &GetArtifactsByTypeRequest{TypeName: "Model"})
	if err != nil {
		t.Fatalf("GetArtifactsByType(Model): %v", err)
	}
	if len(resp.Artifacts) != 0 {
		t.Errorf("Model artifacts = %d, want 0", len(resp.Artifacts))
	}

	// So does a type that does not exist at all.
	resp, err = s.GetArtifactsByType(ctx, &GetArtifactsByTypeRequest{TypeName: "NoSuchType"})
	if err != nil {
		t.Fatalf("GetArtifactsByType(NoSuchType): %v", err)
	}
	if len(resp.Artifacts) != 0 {
		t.Errorf("NoSuchType artifacts = %d, want 0", len(resp.Artifacts))
	}
}

func TestGetByTypeAndName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	datasetType := putArtifactType(t, s, &types.Type{Name: "Dataset"})
	trainerType := putExecutionType(t, s, &types.Type{Name: "Trainer"})
	putContextType(t, s, &types.Type{Name: "Experiment"})

	if _, err := s.PutArtifacts(ctx, &PutArtifactsRequest{
		Artifacts: []*types.Artifact{{TypeID: datasetType, Name: strptr("mnist")}},
	}); err != nil {
		t.Fatalf("PutArtifacts: %v", err)
	}
	if _, err := s.PutExecutions(ctx, &PutExecutionsRequest{
		Executions: []*types.Execution{{TypeID: trainerType, Name: strptr("run-1")}},
	}); err != nil {
		t.Fatalf("PutExecutions: %v", err)
	}

	artifact, err := s.GetArtifactByTypeAndName(ctx, &GetArtifactByTypeAndNameRequest{
		TypeName: "Dataset", ArtifactName: "mnist",
	})
	if err != nil {
		t.Fatalf("GetArtifactByTypeAndName: %v", err)
	}
	if artifact.Artifact == nil || artifact.Artifact.Name == nil || *artifact.Artifact.Name != "mnist" {
		t.Errorf("artifact = %+v", artifact.Artifact)
	}

	execution, err := s.GetExecutionByTypeAndName(ctx, &GetExecutionByTypeAndNameRequest{
		TypeName: "Trainer", ExecutionName: "run-1",
	})
	if err != nil {
		t.Fatalf("GetExecutionByTypeAndName: %v", err)
	}
	if execution.Execution == nil || execution.Execution.Name == nil || *execution.Execution.Name != "run-1" {
		t.Errorf("execution = %+v", execution.Execution)
	}

	// Unknown names and unknown types resolve to an empty response.
	missing, err := s.GetArtifactByTypeAndName(ctx, &GetArtifactByTypeAndNameRequest{
		TypeName: "Dataset", ArtifactName: "no-such",
	})
	if err != nil {
		t.Fatalf("GetArtifactByTypeAndName (unknown name): %v", err)
	}
	if missing.Artifact != nil {
		t.Errorf("artifact for unknown name = %+v", missing.Artifact)
	}
	missing, err = s.GetArtifactByTypeAndName(ctx, &GetArtifactByTypeAndNameRequest{
		TypeName: "NoSuchType", ArtifactName: "mnist",
	})
	if err != nil {
		t.Fatalf("GetArtifactByTypeAndName (unknown type): %v", err)
	}
	if missing.Artifact != nil {
		t.Errorf("artifact for unknown type = %+v", missing.Artifact)
	}

	c, err := s.GetContextByTypeAndName(ctx, &GetContextByTypeAndNameRequest{
		TypeName: "Experiment", ContextName: "no-such",
	})
	if err != nil {
		t.Fatalf("GetContextByTypeAndName: %v", err)
	}
	if c.Context != nil {
		t.Errorf("context for unknown name = %+v", c.Context)
	}
}

func TestGetArtifactsByURI(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	datasetType := putArtifactType(t, s, &types.Type{Name: "Dataset"})
	createArtifact(t, s, datasetType, "s3://bucket/shared")
	createArtifact(t, s, datasetType, "s3://bucket/shared")
	createArtifact(t, s, datasetType, "s3://bucket/only")

	// Duplicate and unknown uris in the request change nothing.
	resp, err := s.GetArtifactsByURI(ctx, &GetArtifactsByURIRequest{
		URIs: []string{"s3://bucket/shared", "s3://bucket/shared", "s3://bucket/only", "s3://bucket/missing"},
	})
	if err != nil {
		t.Fatalf("GetArtifactsByURI: %v", err)
	}
	if len(resp.Artifacts) != 3 {
		t.Errorf("artifacts = %d, want 3", len(resp.Artifacts))
	}
}

func TestGetArtifactsByURIDeprecatedField(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetArtifactsByURI(context.Background(), &GetArtifactsByURIRequest{
		URI: strptr("s3://bucket/old"),
	})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("code = %v, want INVALID_ARGUMENT (%v)", status.CodeOf(err), err)
	}
	want := "The request contains deprecated field `uri`. Please upgrade the client library version above 0.21.0."
	if got := err.Error(); len(got) < len(want) || got[:len(want)] != want {
		t.Errorf("message = %q, want prefix %q", got, want)
	}
}

func TestGetArtifactsAndExecutionsByContext(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	datasetType := putArtifactType(t, s, &types.Type{Name: "Dataset"})
	trainerType := putExecutionType(t, s, &types.Type{Name: "Trainer"})
	expType := putContextType(t, s, &types.Type{Name: "Experiment"})
	contextID := createContext(t, s, expType, "exp-1")

	var artifactIDs []int64
	for i := 0; i < 3; i++ {
		artifactIDs = append(artifactIDs, createArtifact(t, s, datasetType, "s3://bucket/ctx"))
	}
	executionID := createExecution(t, s, trainerType)

	req := &PutAttributionsAndAssociationsRequest{
		Associations: []*types.Association{{ContextID: contextID, ExecutionID: executionID}},
	}
	for _, id := range artifactIDs {
		req.Attributions = append(req.Attributions, &types.Attribution{ContextID: contextID, ArtifactID: id})
	}
	if _, err := s.PutAttributionsAndAssociations(ctx, req); err != nil {
		t.Fatalf("PutAttributionsAndAssociations: %v", err)
	}

	page, err := s.GetArtifactsByContext(ctx, &GetArtifactsByContextRequest{
		ContextID: contextID,
		Options:   &types.ListOptions{MaxResultSize: 2},
	})
	if err != nil {
		t.Fatalf("GetArtifactsByContext: %v", err)
	}
	if len(page.Artifacts) != 2 || page.NextPageToken == "" {
		t.Fatalf("first page: %d artifacts, token %q", len(page.Artifacts), page.NextPageToken)
	}
	rest, err := s.GetArtifactsByContext(ctx, &GetArtifactsByContextRequest{
		ContextID: contextID,
		Options:   &types.ListOptions{MaxResultSize: 2, NextPageToken: page.NextPageToken},
	})
	if err != nil {
		t.Fatalf("GetArtifactsByContext (page 2): %v", err)
	}
	if len(rest.Artifacts) != 1 || rest.NextPageToken != "" {
		t.Errorf("second page: %d artifacts, token %q", len(rest.Artifacts), rest.NextPageToken)
	}

	executions, err := s.GetExecutionsByContext(ctx, &GetExecutionsByContextRequest{ContextID: contextID})
	if err != nil {
		t.Fatalf("GetExecutionsByContext: %v", err)
	}
	if len(executions.Executions) != 1 || *executions.Executions[0].ID != executionID {
		t.Errorf("executions = %+v", executions.Executions)
	}
}
