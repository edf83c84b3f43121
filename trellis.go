// Package trellis provides a minimal public API for embedding the metadata
// store in Go programs.
//
// Most integrations should run the trellis daemon and use the CLI or the
// socket protocol. This package exports only the essential types and
// functions for pipelines that want to record metadata in-process through
// the storage layer directly.
package trellis

import (
	"context"

	"github.com/trellisml/trellis/internal/storage"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/types"
)

// Core entity types.
type (
	Type      = types.Type
	Artifact  = types.Artifact
	Execution = types.Execution
	Context   = types.Context
	Event     = types.Event
	Value     = types.Value
)

// Artifact lifecycle states.
const (
	ArtifactPending           = types.ArtifactStatePending
	ArtifactLive              = types.ArtifactStateLive
	ArtifactMarkedForDeletion = types.ArtifactStateMarkedForDeletion
	ArtifactDeleted           = types.ArtifactStateDeleted
)

// Execution lifecycle states.
const (
	ExecutionNew      = types.ExecutionStateNew
	ExecutionRunning  = types.ExecutionStateRunning
	ExecutionComplete = types.ExecutionStateComplete
	ExecutionFailed   = types.ExecutionStateFailed
	ExecutionCached   = types.ExecutionStateCached
	ExecutionCanceled = types.ExecutionStateCanceled
)

// Event types.
const (
	EventInput          = types.EventTypeInput
	EventOutput         = types.EventTypeOutput
	EventDeclaredInput  = types.EventTypeDeclaredInput
	EventDeclaredOutput = types.EventTypeDeclaredOutput
)

// PropertyType is the declared primitive type of a type property.
type PropertyType = types.PropertyType

// Property primitive types for type schemas.
const (
	IntType    = types.IntType
	DoubleType = types.DoubleType
	StringType = types.StringType
	StructType = types.StructType
)

// Value constructors for property maps.
var (
	IntValue    = types.IntValue
	DoubleValue = types.DoubleValue
	StringValue = types.StringValue
	StructValue = types.StructValue
)

// Store is the transactional facade over a metadata database. Its methods
// carry the full operation surface; the request aliases below cover the
// calls an embedding pipeline typically makes.
type Store = store.Store

// Config selects and configures a storage backend.
type Config = storage.Config

// Backend names for Config.
const (
	BackendSQLite = storage.BackendSQLite
	BackendMySQL  = storage.BackendMySQL
	BackendDolt   = storage.BackendDolt
)

// Request types for the common embedding calls.
type (
	PutArtifactTypeRequest  = store.PutArtifactTypeRequest
	PutExecutionTypeRequest = store.PutExecutionTypeRequest
	PutContextTypeRequest   = store.PutContextTypeRequest

	PutArtifactsRequest  = store.PutArtifactsRequest
	PutExecutionsRequest = store.PutExecutionsRequest
	PutContextsRequest   = store.PutContextsRequest
	PutEventsRequest     = store.PutEventsRequest

	// PutExecutionRequest records a complete pipeline step in one
	// transaction: the execution, its artifacts and events, and the
	// contexts it belongs to.
	PutExecutionRequest = store.PutExecutionRequest
	ArtifactAndEvent    = store.ArtifactAndEvent
	PutExecutionOptions = store.PutExecutionOptions

	GetArtifactTypeRequest  = store.GetArtifactTypeRequest
	GetExecutionTypeRequest = store.GetExecutionTypeRequest
	GetContextTypeRequest   = store.GetContextTypeRequest

	GetArtifactsRequest             = store.GetArtifactsRequest
	GetArtifactsByIDRequest         = store.GetArtifactsByIDRequest
	GetArtifactByTypeAndNameRequest = store.GetArtifactByTypeAndNameRequest
	GetArtifactsByContextRequest    = store.GetArtifactsByContextRequest
	GetLineageGraphRequest          = store.GetLineageGraphRequest
)

// Traversal options for GetLineageGraphRequest.
type (
	ArtifactQuery             = types.ArtifactQuery
	LineageGraphQueryOptions  = types.LineageGraphQueryOptions
	LineageBoundaryConstraint = types.LineageBoundaryConstraint
)

// ListOptions pages and orders list calls.
type ListOptions = types.ListOptions

// Open opens a metadata store and verifies its schema, creating the schema
// when the database is new. The caller owns the returned store and must
// Close it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	s, err := store.Open(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	if err := s.InitMetadataStoreIfNotExists(ctx, false); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens a SQLite-backed store at path. Pass ":memory:" for a
// throwaway in-process database.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	return Open(ctx, Config{Backend: BackendSQLite, Path: path})
}
