// Package store implements the transactional facade over a metadata storage
// backend: typed request/response operations for the type catalog, the
// artifact/execution/context graph, and lineage queries, each executed as a
// single transaction.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trellisml/trellis/internal/simpletypes"
	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/storage/factory"
	"github.com/trellisml/trellis/internal/telemetry"
	"github.com/trellisml/trellis/internal/types"
)

// Store executes metadata operations against one storage backend. It owns
// the backend for its lifetime and holds no request state of its own, so a
// single Store may serve concurrent callers.
type Store struct {
	storage storage.Storage
}

// MigrationOptions alter how New connects to an existing database.
type MigrationOptions struct {
	// DowngradeToSchemaVersion, when non-nil, rewinds the schema to the given
	// version instead of opening a store. New performs the downgrade, closes
	// the backend, and reports Cancelled; reconnect with a library release
	// that speaks the downgraded version.
	DowngradeToSchemaVersion *int64 `json:"downgrade_to_schema_version,omitempty"`
}

// New wraps an already-open backend, taking ownership of it. The backend is
// closed when the returned store is closed, and immediately when a downgrade
// was requested.
func New(ctx context.Context, st storage.Storage, opts *MigrationOptions) (*Store, error) {
	if opts != nil && opts.DowngradeToSchemaVersion != nil {
		to := *opts.DowngradeToSchemaVersion
		err := st.DowngradeSchema(ctx, to)
		_ = st.Close()
		if err != nil {
			return nil, err
		}
		return nil, status.Cancelledf("Downgrade migration was performed. Connection to the downgraded database is Cancelled. Now the database is at schema version %d. Please refer to the migration guide and use lower version of the library to connect to the metadata store.", to)
	}
	return &Store{storage: st}, nil
}

// Open opens the backend selected by cfg and wraps it in a store. When
// telemetry is enabled the backend is instrumented with spans and metrics.
func Open(ctx context.Context, cfg storage.Config, opts *MigrationOptions) (*Store, error) {
	st, err := factory.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(ctx, telemetry.WrapStorage(st), opts)
}

// InitMetadataStore creates the schema from scratch and seeds the built-in
// type catalog. It is safe to call against an already-initialized database
// of the current schema version.
func (s *Store) InitMetadataStore(ctx context.Context) error {
	if err := s.storage.InitMetadataSource(ctx); err != nil {
		return err
	}
	return s.seedSimpleTypes(ctx)
}

// InitMetadataStoreIfNotExists verifies an existing schema or creates a
// missing one, then seeds the built-in type catalog. An older stored schema
// is migrated forward only when enableUpgradeMigration is set; a newer one
// always fails.
func (s *Store) InitMetadataStoreIfNotExists(ctx context.Context, enableUpgradeMigration bool) error {
	if err := s.storage.InitMetadataSourceIfNotExists(ctx, enableUpgradeMigration); err != nil {
		return err
	}
	return s.seedSimpleTypes(ctx)
}

// seedSimpleTypes upserts the built-in catalog in its own transaction. Both
// evolution flags are on so seeding succeeds against catalogs written by any
// library generation.
func (s *Store) seedSimpleTypes(ctx context.Context) error {
	artifactTypes := simpletypes.ArtifactTypes()
	executionTypes := simpletypes.ExecutionTypes()
	artifacts := make([]*types.Type, len(artifactTypes))
	for i := range artifactTypes {
		artifacts[i] = &artifactTypes[i]
	}
	executions := make([]*types.Type, len(executionTypes))
	for i := range executionTypes {
		executions[i] = &executionTypes[i]
	}
	return s.storage.ExecuteTransaction(ctx, nil, func(tx storage.Transaction) error {
		_, _, _, err := upsertTypes(ctx, tx, artifacts, executions, nil, true, true)
		return err
	})
}

// GetSchemaVersion reports the schema version recorded in the database.
func (s *Store) GetSchemaVersion(ctx context.Context) (int64, error) {
	return s.storage.GetSchemaVersion(ctx)
}

// Close releases the backend. The store is unusable afterwards.
func (s *Store) Close() error {
	return s.storage.Close()
}

// allFieldsMatch reads a request's all_fields_match flag; an unset flag
// defaults to true.
func allFieldsMatch(v *bool) bool {
	return v == nil || *v
}

// requestString renders a request or entity for an error message.
func requestString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
