package sqlite

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/storage/rdbms"
	"github.com/trellisml/trellis/internal/types"
)

func strptr(s string) *string { return &s }

// seedArtifactType creates an artifact type with a few declared properties
// and returns its id.
func seedArtifactType(t *testing.T, store *rdbms.Store, name string) int64 {
	t.Helper()
	var id int64
	inTx(t, store, func(tx storage.Transaction) error {
		var err error
		id, err = tx.CreateType(context.Background(), types.ArtifactTypeKind, &types.Type{
			Name: name,
			Properties: map[string]types.PropertyType{
				"rows":     types.IntType,
				"score":    types.DoubleType,
				"format":   types.StringType,
				"metadata": types.StructType,
			},
		})
		return err
	})
	return id
}

func seedExecutionType(t *testing.T, store *rdbms.Store, name string) int64 {
	t.Helper()
	var id int64
	inTx(t, store, func(tx storage.Transaction) error {
		var err error
		id, err = tx.CreateType(context.Background(), types.ExecutionTypeKind, &types.Type{
			Name:       name,
			Properties: map[string]types.PropertyType{"step": types.IntType},
		})
		return err
	})
	return id
}

func seedContextType(t *testing.T, store *rdbms.Store, name string) int64 {
	t.Helper()
	var id int64
	inTx(t, store, func(tx storage.Transaction) error {
		var err error
		id, err = tx.CreateType(context.Background(), types.ContextTypeKind, &types.Type{
			Name:       name,
			Properties: map[string]types.PropertyType{"owner": types.StringType},
		})
		return err
	})
	return id
}

func createArtifact(t *testing.T, store *rdbms.Store, a *types.Artifact) int64 {
	t.Helper()
	var id int64
	inTx(t, store, func(tx storage.Transaction) error {
		var err error
		id, err = tx.CreateArtifact(context.Background(), a)
		return err
	})
	return id
}

func createExecution(t *testing.T, store *rdbms.Store, e *types.Execution) int64 {
	t.Helper()
	var id int64
	inTx(t, store, func(tx storage.Transaction) error {
		var err error
		id, err = tx.CreateExecution(context.Background(), e)
		return err
	})
	return id
}

func createContext(t *testing.T, store *rdbms.Store, c *types.Context) int64 {
	t.Helper()
	var id int64
	inTx(t, store, func(tx storage.Transaction) error {
		var err error
		id, err = tx.CreateContext(context.Background(), c)
		return err
	})
	return id
}

func TestArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedArtifactType(t, store, "Dataset")

	id := createArtifact(t, store, &types.Artifact{
		TypeID: typeID,
		URI:    strptr("s3://bucket/train.tfrecord"),
		Name:   strptr("train-split"),
		State:  types.ArtifactStateLive,
		Properties: map[string]*types.Value{
			"rows":     types.IntValue(10000),
			"score":    types.DoubleValue(0.98),
			"format":   types.StringValue("tfrecord"),
			"metadata": types.StructValue(json.RawMessage(`{"shards":4}`)),
		},
		CustomProperties: map[string]*types.Value{
			"pipeline": types.StringValue("daily"),
		},
	})

	inTx(t, store, func(tx storage.Transaction) error {
		found, err := tx.FindArtifactsByID(ctx, []int64{id})
		if err != nil {
			return err
		}
		if len(found) != 1 {
			t.Fatalf("found %d artifacts, want 1", len(found))
		}
		got := found[0]
		if got.TypeID != typeID {
			t.Errorf("type id = %d, want %d", got.TypeID, typeID)
		}
		if got.URI == nil || *got.URI != "s3://bucket/train.tfrecord" {
			t.Errorf("uri = %v, want s3://bucket/train.tfrecord", got.URI)
		}
		if got.Name == nil || *got.Name != "train-split" {
			t.Errorf("name = %v, want train-split", got.Name)
		}
		if got.State != types.ArtifactStateLive {
			t.Errorf("state = %q, want LIVE", got.State)
		}
		if got.CreateTimeSinceEpoch <= 0 {
			t.Errorf("create time = %d, want > 0", got.CreateTimeSinceEpoch)
		}
		if got.LastUpdateTimeSinceEpoch < got.CreateTimeSinceEpoch {
			t.Errorf("last update %d before create %d",
				got.LastUpdateTimeSinceEpoch, got.CreateTimeSinceEpoch)
		}
		if v := got.Properties["rows"]; v == nil || *v.IntValue != 10000 {
			t.Errorf("rows = %+v, want 10000", v)
		}
		if v := got.Properties["score"]; v == nil || *v.DoubleValue != 0.98 {
			t.Errorf("score = %+v, want 0.98", v)
		}
		if v := got.Properties["metadata"]; v == nil || string(v.StructValue) != `{"shards":4}` {
			t.Errorf("metadata = %+v, want struct payload", v)
		}
		if v := got.CustomProperties["pipeline"]; v == nil || *v.StringValue != "daily" {
			t.Errorf("custom pipeline = %+v, want daily", v)
		}
		return nil
	})
}

func TestCreateArtifactValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedArtifactType(t, store, "Dataset")

	tests := []struct {
		name     string
		artifact *types.Artifact
		code     status.Code
	}{
		{
			name:     "missing type id",
			artifact: &types.Artifact{URI: strptr("s3://x")},
			code:     status.InvalidArgument,
		},
		{
			name:     "unknown type",
			artifact: &types.Artifact{TypeID: 9999},
			code:     status.NotFound,
		},
		{
			name: "undeclared property",
			artifact: &types.Artifact{
				TypeID:     typeID,
				Properties: map[string]*types.Value{"nope": types.IntValue(1)},
			},
			code: status.InvalidArgument,
		},
		{
			name: "property type mismatch",
			artifact: &types.Artifact{
				TypeID:     typeID,
				Properties: map[string]*types.Value{"rows": types.StringValue("ten")},
			},
			code: status.InvalidArgument,
		},
		{
			name: "empty property value",
			artifact: &types.Artifact{
				TypeID:     typeID,
				Properties: map[string]*types.Value{"rows": {}},
			},
			code: status.InvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := txErr(store, func(tx storage.Transaction) error {
				_, err := tx.CreateArtifact(ctx, tt.artifact)
				return err
			})
			if status.CodeOf(err) != tt.code {
				t.Errorf("CreateArtifact = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestArtifactNameUniquePerType(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	datasetID := seedArtifactType(t, store, "Dataset")
	modelID := seedArtifactType(t, store, "Model")

	createArtifact(t, store, &types.Artifact{TypeID: datasetID, Name: strptr("gold")})

	err := txErr(store, func(tx storage.Transaction) error {
		_, err := tx.CreateArtifact(ctx, &types.Artifact{TypeID: datasetID, Name: strptr("gold")})
		return err
	})
	if status.CodeOf(err) != status.AlreadyExists {
		t.Errorf("duplicate name in type = %v, want AlreadyExists", err)
	}

	// The same name under a different type is fine, and unnamed artifacts
	// never collide.
	createArtifact(t, store, &types.Artifact{TypeID: modelID, Name: strptr("gold")})
	createArtifact(t, store, &types.Artifact{TypeID: datasetID})
	createArtifact(t, store, &types.Artifact{TypeID: datasetID})
}

func TestUpdateArtifactReplacesState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedArtifactType(t, store, "Dataset")

	id := createArtifact(t, store, &types.Artifact{
		TypeID: typeID,
		URI:    strptr("s3://bucket/v1"),
		State:  types.ArtifactStatePending,
		Properties: map[string]*types.Value{
			"rows":   types.IntValue(5),
			"format": types.StringValue("csv"),
		},
	})

	var createTime, lastUpdate int64
	inTx(t, store, func(tx storage.Transaction) error {
		found, err := tx.FindArtifactsByID(ctx, []int64{id})
		if err != nil {
			return err
		}
		createTime = found[0].CreateTimeSinceEpoch
		lastUpdate = found[0].LastUpdateTimeSinceEpoch
		return nil
	})

	// A full-replacement update: fields and properties not carried are
	// cleared.
	inTx(t, store, func(tx storage.Transaction) error {
		return tx.UpdateArtifact(ctx, &types.Artifact{
			ID:         &id,
			TypeID:     typeID,
			State:      types.ArtifactStateLive,
			Properties: map[string]*types.Value{"rows": types.IntValue(6)},
		})
	})

	inTx(t, store, func(tx storage.Transaction) error {
		found, err := tx.FindArtifactsByID(ctx, []int64{id})
		if err != nil {
			return err
		}
		got := found[0]
		if got.URI != nil {
			t.Errorf("uri = %q, want cleared", *got.URI)
		}
		if got.State != types.ArtifactStateLive {
			t.Errorf("state = %q, want LIVE", got.State)
		}
		if _, ok := got.Properties["format"]; ok {
			t.Errorf("format property survived a replacement update")
		}
		if v := got.Properties["rows"]; v == nil || *v.IntValue != 6 {
			t.Errorf("rows = %+v, want 6", v)
		}
		if got.CreateTimeSinceEpoch != createTime {
			t.Errorf("create time changed: %d -> %d", createTime, got.CreateTimeSinceEpoch)
		}
		if got.LastUpdateTimeSinceEpoch <= lastUpdate {
			t.Errorf("last update did not advance: %d -> %d", lastUpdate, got.LastUpdateTimeSinceEpoch)
		}
		return nil
	})
}

func TestUpdateArtifactValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedArtifactType(t, store, "Dataset")
	otherID := seedArtifactType(t, store, "Model")
	id := createArtifact(t, store, &types.Artifact{TypeID: typeID})

	missing := int64(9999)
	tests := []struct {
		name     string
		artifact *types.Artifact
	}{
		{"no id", &types.Artifact{TypeID: typeID}},
		{"unknown id", &types.Artifact{ID: &missing, TypeID: typeID}},
		{"type change", &types.Artifact{ID: &id, TypeID: otherID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := txErr(store, func(tx storage.Transaction) error {
				return tx.UpdateArtifact(ctx, tt.artifact)
			})
			if status.CodeOf(err) != status.InvalidArgument {
				t.Errorf("UpdateArtifact = %v, want InvalidArgument", err)
			}
		})
	}
}

func TestFindArtifactsByIDPartial(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedArtifactType(t, store, "Dataset")
	a := createArtifact(t, store, &types.Artifact{TypeID: typeID})
	b := createArtifact(t, store, &types.Artifact{TypeID: typeID})

	err := txErr(store, func(tx storage.Transaction) error {
		found, err := tx.FindArtifactsByID(ctx, []int64{a, 777, b})
		if len(found) != 2 {
			t.Errorf("found %d artifacts, want 2 alongside the error", len(found))
		}
		return err
	})
	if status.CodeOf(err) != status.NotFound {
		t.Fatalf("partial find = %v, want NotFound", err)
	}
}

func TestFindArtifactByTypeIDAndName(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedArtifactType(t, store, "Dataset")
	id := createArtifact(t, store, &types.Artifact{TypeID: typeID, Name: strptr("gold")})

	inTx(t, store, func(tx storage.Transaction) error {
		got, err := tx.FindArtifactByTypeIDAndName(ctx, typeID, "gold")
		if err != nil {
			return err
		}
		if *got.ID != id {
			t.Errorf("id = %d, want %d", *got.ID, id)
		}
		return nil
	})

	err := txErr(store, func(tx storage.Transaction) error {
		_, err := tx.FindArtifactByTypeIDAndName(ctx, typeID, "silver")
		return err
	})
	if status.CodeOf(err) != status.NotFound {
		t.Errorf("unknown name = %v, want NotFound", err)
	}
}

func TestFindArtifactsByURI(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedArtifactType(t, store, "Dataset")
	a := createArtifact(t, store, &types.Artifact{TypeID: typeID, URI: strptr("s3://x")})
	b := createArtifact(t, store, &types.Artifact{TypeID: typeID, URI: strptr("s3://x")})
	createArtifact(t, store, &types.Artifact{TypeID: typeID, URI: strptr("s3://y")})

	inTx(t, store, func(tx storage.Transaction) error {
		got, err := tx.FindArtifactsByURI(ctx, "s3://x")
		if err != nil {
			return err
		}
		if len(got) != 2 || *got[0].ID != a || *got[1].ID != b {
			t.Errorf("FindArtifactsByURI = %d results, want ids [%d %d]", len(got), a, b)
		}
		// No match is an empty result, not an error.
		none, err := tx.FindArtifactsByURI(ctx, "s3://absent")
		if err != nil || len(none) != 0 {
			t.Errorf("absent uri = (%v, %v), want empty", none, err)
		}
		return nil
	})
}

func TestListArtifactsPagination(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedArtifactType(t, store, "Dataset")
	for i := 0; i < 7; i++ {
		createArtifact(t, store, &types.Artifact{TypeID: typeID})
	}

	var pages []int
	seen := make(map[int64]bool)
	token := ""
	for page := 0; ; page++ {
		if page > 5 {
			t.Fatalf("pagination did not terminate")
		}
		var got []*types.Artifact
		var next string
		inTx(t, store, func(tx storage.Transaction) error {
			var err error
			got, next, err = tx.ListArtifacts(ctx, &types.ListOptions{
				MaxResultSize: 3,
				NextPageToken: token,
			})
			return err
		})
		pages = append(pages, len(got))
		for _, a := range got {
			if seen[*a.ID] {
				t.Errorf("artifact %d returned twice", *a.ID)
			}
			seen[*a.ID] = true
		}
		if next == "" {
			break
		}
		token = next
	}

	if len(seen) != 7 {
		t.Errorf("pagination visited %d artifacts, want 7", len(seen))
	}
	if len(pages) != 3 || pages[0] != 3 || pages[1] != 3 || pages[2] != 1 {
		t.Errorf("page sizes = %v, want [3 3 1]", pages)
	}
}

func TestListArtifactsDescendingByLastUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedArtifactType(t, store, "Dataset")
	for i := 0; i < 4; i++ {
		createArtifact(t, store, &types.Artifact{TypeID: typeID})
	}

	inTx(t, store, func(tx storage.Transaction) error {
		got, _, err := tx.ListArtifacts(ctx, &types.ListOptions{
			MaxResultSize: 10,
			OrderBy:       &types.OrderByField{Field: types.OrderByLastUpdateTime, IsAsc: false},
		})
		if err != nil {
			return err
		}
		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1], got[i]
			if cur.LastUpdateTimeSinceEpoch > prev.LastUpdateTimeSinceEpoch {
				t.Errorf("results not descending by last update at %d", i)
			}
			if cur.LastUpdateTimeSinceEpoch == prev.LastUpdateTimeSinceEpoch && *cur.ID > *prev.ID {
				t.Errorf("tie at %d not broken by descending id", i)
			}
		}
		return nil
	})
}

func TestListArtifactsUnpaged(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedArtifactType(t, store, "Dataset")
	for i := 0; i < 3; i++ {
		createArtifact(t, store, &types.Artifact{TypeID: typeID})
	}

	inTx(t, store, func(tx storage.Transaction) error {
		got, token, err := tx.ListArtifacts(ctx, nil)
		if err != nil {
			return err
		}
		if len(got) != 3 {
			t.Errorf("unpaged list = %d artifacts, want 3", len(got))
		}
		if token != "" {
			t.Errorf("unpaged list produced a token %q", token)
		}
		return nil
	})
}

func TestFindArtifactsByTypeID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	datasetID := seedArtifactType(t, store, "Dataset")
	modelID := seedArtifactType(t, store, "Model")
	a := createArtifact(t, store, &types.Artifact{TypeID: datasetID})
	createArtifact(t, store, &types.Artifact{TypeID: modelID})

	inTx(t, store, func(tx storage.Transaction) error {
		got, _, err := tx.FindArtifactsByTypeID(ctx, datasetID, nil)
		if err != nil {
			return err
		}
		if len(got) != 1 || *got[0].ID != a {
			t.Errorf("FindArtifactsByTypeID = %d results, want just %d", len(got), a)
		}
		return nil
	})
}

func TestExecutionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedExecutionType(t, store, "Trainer")

	id := createExecution(t, store, &types.Execution{
		TypeID:         typeID,
		Name:           strptr("run-1"),
		LastKnownState: types.ExecutionStateRunning,
		Properties:     map[string]*types.Value{"step": types.IntValue(1)},
	})

	inTx(t, store, func(tx storage.Transaction) error {
		return tx.UpdateExecution(ctx, &types.Execution{
			ID:             &id,
			TypeID:         typeID,
			Name:           strptr("run-1"),
			LastKnownState: types.ExecutionStateComplete,
			Properties:     map[string]*types.Value{"step": types.IntValue(100)},
		})
	})

	inTx(t, store, func(tx storage.Transaction) error {
		found, err := tx.FindExecutionsByID(ctx, []int64{id})
		if err != nil {
			return err
		}
		got := found[0]
		if got.LastKnownState != types.ExecutionStateComplete {
			t.Errorf("state = %q, want COMPLETE", got.LastKnownState)
		}
		if v := got.Properties["step"]; v == nil || *v.IntValue != 100 {
			t.Errorf("step = %+v, want 100", v)
		}

		byName, err := tx.FindExecutionByTypeIDAndName(ctx, typeID, "run-1")
		if err != nil {
			return err
		}
		if *byName.ID != id {
			t.Errorf("by name id = %d, want %d", *byName.ID, id)
		}
		return nil
	})

	err := txErr(store, func(tx storage.Transaction) error {
		_, err := tx.CreateExecution(ctx, &types.Execution{TypeID: typeID, Name: strptr("run-1")})
		return err
	})
	if status.CodeOf(err) != status.AlreadyExists {
		t.Errorf("duplicate execution name = %v, want AlreadyExists", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedContextType(t, store, "Experiment")

	err := txErr(store, func(tx storage.Transaction) error {
		_, err := tx.CreateContext(ctx, &types.Context{TypeID: typeID})
		return err
	})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("context without name = %v, want InvalidArgument", err)
	}

	id := createContext(t, store, &types.Context{
		TypeID:     typeID,
		Name:       "exp-1",
		Properties: map[string]*types.Value{"owner": types.StringValue("mle-team")},
	})

	err = txErr(store, func(tx storage.Transaction) error {
		_, err := tx.CreateContext(ctx, &types.Context{TypeID: typeID, Name: "exp-1"})
		return err
	})
	if status.CodeOf(err) != status.AlreadyExists {
		t.Errorf("duplicate context name = %v, want AlreadyExists", err)
	}

	inTx(t, store, func(tx storage.Transaction) error {
		return tx.UpdateContext(ctx, &types.Context{
			ID:         &id,
			TypeID:     typeID,
			Name:       "exp-1-renamed",
			Properties: map[string]*types.Value{"owner": types.StringValue("platform")},
		})
	})

	inTx(t, store, func(tx storage.Transaction) error {
		got, err := tx.FindContextByTypeIDAndName(ctx, typeID, "exp-1-renamed")
		if err != nil {
			return err
		}
		if *got.ID != id {
			t.Errorf("renamed context id = %d, want %d", *got.ID, id)
		}
		if v := got.Properties["owner"]; v == nil || *v.StringValue != "platform" {
			t.Errorf("owner = %+v, want platform", v)
		}
		return nil
	})
}

func TestParentContexts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	typeID := seedContextType(t, store, "Experiment")
	parent := createContext(t, store, &types.Context{TypeID: typeID, Name: "parent"})
	child := createContext(t, store, &types.Context{TypeID: typeID, Name: "child"})

	inTx(t, store, func(tx storage.Transaction) error {
		return tx.CreateParentContext(ctx, &types.ParentContext{ChildID: child, ParentID: parent})
	})

	err := txErr(store, func(tx storage.Transaction) error {
		return tx.CreateParentContext(ctx, &types.ParentContext{ChildID: child, ParentID: parent})
	})
	if status.CodeOf(err) != status.AlreadyExists {
		t.Errorf("duplicate parent context = %v, want AlreadyExists", err)
	}

	for _, pc := range []*types.ParentContext{
		{ChildID: child, ParentID: child},
		{ChildID: child},
		{ChildID: child, ParentID: 9999},
	} {
		err := txErr(store, func(tx storage.Transaction) error {
			return tx.CreateParentContext(ctx, pc)
		})
		if status.CodeOf(err) != status.InvalidArgument {
			t.Errorf("CreateParentContext(%+v) = %v, want InvalidArgument", pc, err)
		}
	}

	inTx(t, store, func(tx storage.Transaction) error {
		parents, err := tx.FindParentContextsByContextID(ctx, child)
		if err != nil {
			return err
		}
		if len(parents) != 1 || parents[0].Name != "parent" {
			t.Errorf("parents = %+v, want [parent]", parents)
		}
		children, err := tx.FindChildContextsByContextID(ctx, parent)
		if err != nil {
			return err
		}
		if len(children) != 1 || children[0].Name != "child" {
			t.Errorf("children = %+v, want [child]", children)
		}
		return nil
	})
}
