//go:build cgo

package dolt_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/storage/dolt"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/types"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  storage.Config
	}{
		{name: "missing path", cfg: storage.Config{Backend: storage.BackendDolt}},
		{name: "bad database name", cfg: storage.Config{
			Backend:  storage.BackendDolt,
			Path:     t.TempDir(),
			Database: "no spaces allowed",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dolt.New(context.Background(), tt.cfg)
			require.Error(t, err)
			require.True(t, status.IsInvalidArgument(err), "want InvalidArgument, got %v", err)
		})
	}
}

// TestEmbeddedRoundTrip runs the store stack against the in-process engine.
// Starting the engine takes seconds, so the test is skipped in short mode.
func TestEmbeddedRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded dolt test: skipped in short mode")
	}

	ctx := context.Background()
	cfg := storage.Config{
		Backend:     storage.BackendDolt,
		Path:        t.TempDir(),
		Database:    "metadata",
		CommitName:  "trellis-test",
		CommitEmail: "test@trellis.local",
	}

	s, err := store.Open(ctx, cfg, nil)
	require.NoError(t, err)

	require.NoError(t, s.InitMetadataStoreIfNotExists(ctx, false))
	// A second init against the existing schema is a no-op.
	require.NoError(t, s.InitMetadataStoreIfNotExists(ctx, false))

	version, err := s.GetSchemaVersion(ctx)
	require.NoError(t, err)
	require.Greater(t, version, int64(0))

	typeResp, err := s.PutArtifactType(ctx, &store.PutArtifactTypeRequest{
		ArtifactType: &types.Type{
			Name:       "Model",
			Properties: map[string]types.PropertyType{"accuracy": types.DoubleType},
		},
	})
	require.NoError(t, err)

	uri := "s3://models/resnet"
	putResp, err := s.PutArtifacts(ctx, &store.PutArtifactsRequest{
		Artifacts: []*types.Artifact{{
			TypeID:     typeResp.TypeID,
			URI:        &uri,
			State:      types.ArtifactStateLive,
			Properties: map[string]*types.Value{"accuracy": types.DoubleValue(0.93)},
		}},
	})
	require.NoError(t, err)
	require.Len(t, putResp.ArtifactIDs, 1)
	require.NoError(t, s.Close())

	// Reopening the same data directory sees the committed rows, which also
	// proves the first Close released the engine's filesystem locks.
	s, err = store.Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.InitMetadataStoreIfNotExists(ctx, false))

	got, err := s.GetArtifactsByID(ctx, &store.GetArtifactsByIDRequest{
		ArtifactIDs: putResp.ArtifactIDs,
	})
	require.NoError(t, err)
	require.Len(t, got.Artifacts, 1)
	require.Equal(t, uri, *got.Artifacts[0].URI)
	require.Equal(t, 0.93, *got.Artifacts[0].Properties["accuracy"].DoubleValue)
}
