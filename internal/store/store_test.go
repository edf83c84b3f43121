package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/storage/sqlite"
	"github.com/trellisml/trellis/internal/types"
)

// newTestStore opens a facade over a fresh in-memory database with the
// schema created and the built-in catalog seeded.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	backend, err := sqlite.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	s, err := New(ctx, backend, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitMetadataStore(ctx); err != nil {
		t.Fatalf("InitMetadataStore: %v", err)
	}
	return s
}

func TestInitMetadataStoreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.InitMetadataStore(ctx); err != nil {
		t.Fatalf("second InitMetadataStore: %v", err)
	}
	if err := s.InitMetadataStoreIfNotExists(ctx, false); err != nil {
		t.Fatalf("InitMetadataStoreIfNotExists on current schema: %v", err)
	}

	v, err := s.GetSchemaVersion(ctx)
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if v < 1 {
		t.Errorf("schema version = %d, want >= 1", v)
	}
}

func TestInitSeedsSimpleTypes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, name := range []string{"mlmd.Dataset", "mlmd.Model", "mlmd.Metrics", "mlmd.Statistics"} {
		resp, err := s.GetArtifactType(ctx, &GetArtifactTypeRequest{TypeName: name})
		if err != nil {
			t.Fatalf("GetArtifactType(%s): %v", name, err)
		}
		if resp.ArtifactType == nil || resp.ArtifactType.ID == nil {
			t.Errorf("built-in artifact type %s not seeded", name)
		}
	}
	for _, name := range []string{"mlmd.Train", "mlmd.Transform", "mlmd.Process", "mlmd.Evaluate", "mlmd.Deploy"} {
		resp, err := s.GetExecutionType(ctx, &GetExecutionTypeRequest{TypeName: name})
		if err != nil {
			t.Fatalf("GetExecutionType(%s): %v", name, err)
		}
		if resp.ExecutionType == nil || resp.ExecutionType.ID == nil {
			t.Errorf("built-in execution type %s not seeded", name)
		}
	}
}

func TestNewDowngradeRefusesConnection(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "meta.db")

	backend, err := sqlite.New(ctx, path)
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	s, err := New(ctx, backend, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.InitMetadataStore(ctx); err != nil {
		t.Fatalf("InitMetadataStore: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	backend, err = sqlite.New(ctx, path)
	if err != nil {
		t.Fatalf("sqlite.New (reopen): %v", err)
	}
	to := int64(2)
	downgraded, err := New(ctx, backend, &MigrationOptions{DowngradeToSchemaVersion: &to})
	if downgraded != nil {
		t.Fatalf("New with downgrade returned a usable store")
	}
	if status.CodeOf(err) != status.Cancelled {
		t.Fatalf("New with downgrade: code = %v, want CANCELLED (%v)", status.CodeOf(err), err)
	}
	if !strings.Contains(err.Error(), "Downgrade migration was performed") ||
		!strings.Contains(err.Error(), "schema version 2") {
		t.Errorf("downgrade error = %q", err.Error())
	}

	// New closed the backend after downgrading; reopen to inspect.
	backend, err = sqlite.New(ctx, path)
	if err != nil {
		t.Fatalf("sqlite.New (inspect): %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	v, err := backend.GetSchemaVersion(ctx)
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("schema version after downgrade = %d, want 2", v)
	}
}

func TestNewDowngradeNegativeVersion(t *testing.T) {
	ctx := context.Background()
	backend, err := sqlite.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	to := int64(-1)
	_, err = New(ctx, backend, &MigrationOptions{DowngradeToSchemaVersion: &to})
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("downgrade to -1: code = %v, want INVALID_ARGUMENT (%v)", status.CodeOf(err), err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), storage.Config{Backend: "postgres"}, nil)
	if status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("Open(postgres): code = %v, want INVALID_ARGUMENT (%v)", status.CodeOf(err), err)
	}
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, storage.Config{Path: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitMetadataStore(ctx); err != nil {
		t.Fatalf("InitMetadataStore: %v", err)
	}
	if _, err := s.GetSchemaVersion(ctx); err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
}

func TestTransactionOptionsTagAccepted(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// The tag rides to the executor; the operation itself is unaffected.
	resp, err := s.GetArtifactTypes(ctx, &GetArtifactTypesRequest{
		TransactionOptions: &types.TransactionOptions{Tag: "list types"},
	})
	if err != nil {
		t.Fatalf("GetArtifactTypes: %v", err)
	}
	if len(resp.ArtifactTypes) != 0 {
		t.Errorf("fresh store lists %d artifact types, want 0", len(resp.ArtifactTypes))
	}
}
