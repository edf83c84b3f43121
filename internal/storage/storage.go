// Package storage defines the contracts between the metadata store facade
// and its database backends.
//
// The concrete implementations live in the sqlite, mysql, and dolt
// sub-packages, all of which delegate to the shared rdbms access layer. This
// package holds only the interfaces and option types referenced by both
// sides, so the facade never imports a driver.
package storage

import (
	"context"

	"github.com/trellisml/trellis/internal/types"
)

// Storage is the interface satisfied by every backend. All data access goes
// through ExecuteTransaction; the remaining methods manage the schema and
// the connection lifecycle.
//
// Errors returned by Storage and Transaction methods carry canonical codes
// from internal/status. Callers branch on status.CodeOf, never on error
// strings.
type Storage interface {
	// InitMetadataSource creates the schema from scratch. It is idempotent:
	// running it against an existing database of the current version is a
	// no-op.
	InitMetadataSource(ctx context.Context) error

	// InitMetadataSourceIfNotExists verifies an existing schema or creates a
	// missing one. When the stored schema is older than the library and
	// enableUpgradeMigration is true, it migrates forward; when the flag is
	// false it fails with FailedPrecondition. A stored schema newer than the
	// library always fails with FailedPrecondition.
	InitMetadataSourceIfNotExists(ctx context.Context, enableUpgradeMigration bool) error

	// GetSchemaVersion returns the version recorded in schema_info.
	GetSchemaVersion(ctx context.Context) (int64, error)

	// DowngradeSchema rewinds the schema to an earlier version. Downgrading
	// to a version below the oldest supported one fails with
	// InvalidArgument.
	DowngradeSchema(ctx context.Context, toVersion int64) error

	// ExecuteTransaction runs fn inside one database transaction. The
	// transaction commits when fn returns nil and rolls back when fn returns
	// an error or panics. Driver-transient failures are retried with a fresh
	// transaction, so fn must be safe to run more than once; errors carrying
	// a status code are never retried.
	ExecuteTransaction(ctx context.Context, opts *types.TransactionOptions, fn func(tx Transaction) error) error

	// Close releases the underlying connections.
	Close() error
}

// Transaction is the data-access contract available inside
// ExecuteTransaction. One instance is only valid for the duration of the
// callback it was handed to.
//
// Reads return NotFound when nothing matches a point lookup; list methods
// return empty slices. Writes that violate a uniqueness constraint return
// AlreadyExists.
type Transaction interface {
	// Types. A Type's identity is (kind, name, version); ids are assigned on
	// create. FindParentTypesByTypeIDs returns, for each requested id that
	// has one, the parent types it inherits from.
	CreateType(ctx context.Context, kind types.TypeKind, t *types.Type) (int64, error)
	UpdateType(ctx context.Context, kind types.TypeKind, t *types.Type) error
	FindTypeByID(ctx context.Context, kind types.TypeKind, id int64) (*types.Type, error)
	FindTypesByIDs(ctx context.Context, kind types.TypeKind, ids []int64) ([]*types.Type, error)
	FindTypeByNameAndVersion(ctx context.Context, kind types.TypeKind, name, version string) (*types.Type, error)
	FindAllTypes(ctx context.Context, kind types.TypeKind) ([]*types.Type, error)
	CreateParentTypeLink(ctx context.Context, typeID, parentTypeID int64) error
	FindParentTypesByTypeIDs(ctx context.Context, typeIDs []int64) (map[int64][]*types.Type, error)

	// Artifacts.
	CreateArtifact(ctx context.Context, a *types.Artifact) (int64, error)
	UpdateArtifact(ctx context.Context, a *types.Artifact) error
	FindArtifactsByID(ctx context.Context, ids []int64) ([]*types.Artifact, error)
	ListArtifacts(ctx context.Context, opts *types.ListOptions) ([]*types.Artifact, string, error)
	FindArtifactsByTypeID(ctx context.Context, typeID int64, opts *types.ListOptions) ([]*types.Artifact, string, error)
	FindArtifactByTypeIDAndName(ctx context.Context, typeID int64, name string) (*types.Artifact, error)
	FindArtifactsByURI(ctx context.Context, uri string) ([]*types.Artifact, error)
	FindArtifactsByContext(ctx context.Context, contextID int64, opts *types.ListOptions) ([]*types.Artifact, string, error)

	// Executions.
	CreateExecution(ctx context.Context, e *types.Execution) (int64, error)
	UpdateExecution(ctx context.Context, e *types.Execution) error
	FindExecutionsByID(ctx context.Context, ids []int64) ([]*types.Execution, error)
	ListExecutions(ctx context.Context, opts *types.ListOptions) ([]*types.Execution, string, error)
	FindExecutionsByTypeID(ctx context.Context, typeID int64, opts *types.ListOptions) ([]*types.Execution, string, error)
	FindExecutionByTypeIDAndName(ctx context.Context, typeID int64, name string) (*types.Execution, error)
	FindExecutionsByContext(ctx context.Context, contextID int64, opts *types.ListOptions) ([]*types.Execution, string, error)

	// Contexts.
	CreateContext(ctx context.Context, c *types.Context) (int64, error)
	UpdateContext(ctx context.Context, c *types.Context) error
	FindContextsByID(ctx context.Context, ids []int64) ([]*types.Context, error)
	ListContexts(ctx context.Context, opts *types.ListOptions) ([]*types.Context, string, error)
	FindContextsByTypeID(ctx context.Context, typeID int64, opts *types.ListOptions) ([]*types.Context, string, error)
	FindContextByTypeIDAndName(ctx context.Context, typeID int64, name string) (*types.Context, error)
	FindContextsByArtifact(ctx context.Context, artifactID int64) ([]*types.Context, error)
	FindContextsByExecution(ctx context.Context, executionID int64) ([]*types.Context, error)
	CreateParentContext(ctx context.Context, pc *types.ParentContext) error
	FindParentContextsByContextID(ctx context.Context, contextID int64) ([]*types.Context, error)
	FindChildContextsByContextID(ctx context.Context, contextID int64) ([]*types.Context, error)

	// Events. Insert-only; identity is (artifact, execution, type, time).
	CreateEvent(ctx context.Context, e *types.Event) (int64, error)
	FindEventsByArtifactIDs(ctx context.Context, artifactIDs []int64) ([]*types.Event, error)
	FindEventsByExecutionIDs(ctx context.Context, executionIDs []int64) ([]*types.Event, error)

	// Grouping links.
	CreateAssociation(ctx context.Context, a *types.Association) (int64, error)
	CreateAttribution(ctx context.Context, a *types.Attribution) (int64, error)

	// QueryLineageGraph expands the provenance subgraph reachable from the
	// seed artifacts within maxHops. maxExtraNodes, when non-nil, caps how
	// many nodes may be added beyond the seeds; zero means the seeds exhaust
	// the budget. Nodes whose type name appears in a boundary list are kept
	// but not expanded through.
	QueryLineageGraph(ctx context.Context, seeds []*types.Artifact, maxHops int64, maxExtraNodes *int64, boundaryArtifactTypes, boundaryExecutionTypes []string) (*types.LineageGraph, error)
}
