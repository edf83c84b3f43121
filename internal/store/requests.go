package store

import (
	"github.com/trellisml/trellis/internal/types"
)

// Type write operations.

// PutArtifactTypeRequest carries one artifact type to insert or update.
// AllFieldsMatch defaults to true when unset; only the all-fields-match mode
// is implemented. CanAddFields and CanOmitFields relax the compatibility
// check against a stored type with the same name and version.
type PutArtifactTypeRequest struct {
	ArtifactType       *types.Type               `json:"artifact_type,omitempty"`
	CanAddFields       bool                      `json:"can_add_fields,omitempty"`
	CanOmitFields      bool                      `json:"can_omit_fields,omitempty"`
	AllFieldsMatch     *bool                     `json:"all_fields_match,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type PutArtifactTypeResponse struct {
	TypeID int64 `json:"type_id,omitempty"`
}

// PutExecutionTypeRequest mirrors PutArtifactTypeRequest for execution types.
type PutExecutionTypeRequest struct {
	ExecutionType      *types.Type               `json:"execution_type,omitempty"`
	CanAddFields       bool                      `json:"can_add_fields,omitempty"`
	CanOmitFields      bool                      `json:"can_omit_fields,omitempty"`
	AllFieldsMatch     *bool                     `json:"all_fields_match,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type PutExecutionTypeResponse struct {
	TypeID int64 `json:"type_id,omitempty"`
}

// PutContextTypeRequest mirrors PutArtifactTypeRequest for context types.
type PutContextTypeRequest struct {
	ContextType        *types.Type               `json:"context_type,omitempty"`
	CanAddFields       bool                      `json:"can_add_fields,omitempty"`
	CanOmitFields      bool                      `json:"can_omit_fields,omitempty"`
	AllFieldsMatch     *bool                     `json:"all_fields_match,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type PutContextTypeResponse struct {
	TypeID int64 `json:"type_id,omitempty"`
}

// PutTypesRequest batches type upserts of all three kinds into one
// transaction. Types are written in artifact, execution, context order and
// the response ids are grouped the same way.
type PutTypesRequest struct {
	ArtifactTypes      []*types.Type             `json:"artifact_types,omitempty"`
	ExecutionTypes     []*types.Type             `json:"execution_types,omitempty"`
	ContextTypes       []*types.Type             `json:"context_types,omitempty"`
	CanAddFields       bool                      `json:"can_add_fields,omitempty"`
	CanOmitFields      bool                      `json:"can_omit_fields,omitempty"`
	AllFieldsMatch     *bool                     `json:"all_fields_match,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type PutTypesResponse struct {
	ArtifactTypeIDs  []int64 `json:"artifact_type_ids,omitempty"`
	ExecutionTypeIDs []int64 `json:"execution_type_ids,omitempty"`
	ContextTypeIDs   []int64 `json:"context_type_ids,omitempty"`
}

// Type read operations. An empty TypeVersion addresses the unversioned type.

type GetArtifactTypeRequest struct {
	TypeName           string                    `json:"type_name,omitempty"`
	TypeVersion        string                    `json:"type_version,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetArtifactTypeResponse struct {
	ArtifactType *types.Type `json:"artifact_type,omitempty"`
}

type GetExecutionTypeRequest struct {
	TypeName           string                    `json:"type_name,omitempty"`
	TypeVersion        string                    `json:"type_version,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetExecutionTypeResponse struct {
	ExecutionType *types.Type `json:"execution_type,omitempty"`
}

type GetContextTypeRequest struct {
	TypeName           string                    `json:"type_name,omitempty"`
	TypeVersion        string                    `json:"type_version,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetContextTypeResponse struct {
	ContextType *types.Type `json:"context_type,omitempty"`
}

// GetArtifactTypesByIDRequest looks up types by id. Missing ids are skipped,
// so the response may hold fewer types than ids requested.
type GetArtifactTypesByIDRequest struct {
	TypeIDs            []int64                   `json:"type_ids,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetArtifactTypesByIDResponse struct {
	ArtifactTypes []*types.Type `json:"artifact_types,omitempty"`
}

type GetExecutionTypesByIDRequest struct {
	TypeIDs            []int64                   `json:"type_ids,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetExecutionTypesByIDResponse struct {
	ExecutionTypes []*types.Type `json:"execution_types,omitempty"`
}

type GetContextTypesByIDRequest struct {
	TypeIDs            []int64                   `json:"type_ids,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetContextTypesByIDResponse struct {
	ContextTypes []*types.Type `json:"context_types,omitempty"`
}

// GetArtifactTypesRequest lists every user-defined artifact type. Built-in
// catalog types are omitted; fetch those by name instead.
type GetArtifactTypesRequest struct {
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetArtifactTypesResponse struct {
	ArtifactTypes []*types.Type `json:"artifact_types,omitempty"`
}

type GetExecutionTypesRequest struct {
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetExecutionTypesResponse struct {
	ExecutionTypes []*types.Type `json:"execution_types,omitempty"`
}

type GetContextTypesRequest struct {
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetContextTypesResponse struct {
	ContextTypes []*types.Type `json:"context_types,omitempty"`
}

// Entity write operations.

// PutArtifactsOptions tunes PutArtifacts. With
// AbortIfLatestUpdatedTimeChanged set, updates are optimistic: the caller
// must present the stored last_update_time_since_epoch or the transaction
// fails with FailedPrecondition.
type PutArtifactsOptions struct {
	AbortIfLatestUpdatedTimeChanged bool `json:"abort_if_latest_updated_time_changed,omitempty"`
}

// PutArtifactsRequest inserts artifacts without ids and updates those with
// ids, all in one transaction.
type PutArtifactsRequest struct {
	Artifacts          []*types.Artifact         `json:"artifacts,omitempty"`
	Options            PutArtifactsOptions       `json:"options,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type PutArtifactsResponse struct {
	ArtifactIDs []int64 `json:"artifact_ids,omitempty"`
}

type PutExecutionsRequest struct {
	Executions         []*types.Execution        `json:"executions,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type PutExecutionsResponse struct {
	ExecutionIDs []int64 `json:"execution_ids,omitempty"`
}

type PutContextsRequest struct {
	Contexts           []*types.Context          `json:"contexts,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type PutContextsResponse struct {
	ContextIDs []int64 `json:"context_ids,omitempty"`
}

// PutEventsRequest records events between existing artifacts and executions.
type PutEventsRequest struct {
	Events             []*types.Event            `json:"events,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type PutEventsResponse struct{}

// ArtifactAndEvent pairs an artifact with the event that links it to the
// execution being written. Either half may be omitted: an event without an
// artifact must name an existing artifact id, an artifact without an event
// is upserted on its own.
type ArtifactAndEvent struct {
	Artifact *types.Artifact `json:"artifact,omitempty"`
	Event    *types.Event    `json:"event,omitempty"`
}

// PutExecutionOptions tunes PutExecution. ReuseContextIfAlreadyExist adopts
// an existing context with the same type and name instead of failing the
// insert; a concurrent first creation then surfaces as Aborted so the caller
// can retry and reuse.
type PutExecutionOptions struct {
	ReuseContextIfAlreadyExist bool `json:"reuse_context_if_already_exist,omitempty"`
}

// PutExecutionRequest writes one execution together with its artifacts,
// events, contexts, associations, and attributions in a single transaction.
type PutExecutionRequest struct {
	Execution          *types.Execution          `json:"execution,omitempty"`
	ArtifactEventPairs []ArtifactAndEvent        `json:"artifact_event_pairs,omitempty"`
	Contexts           []*types.Context          `json:"contexts,omitempty"`
	Options            PutExecutionOptions       `json:"options,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

// PutExecutionResponse returns the resolved ids. ArtifactIDs holds one entry
// per request pair, in order; a pair with neither artifact nor event yields
// -1.
type PutExecutionResponse struct {
	ExecutionID int64   `json:"execution_id,omitempty"`
	ArtifactIDs []int64 `json:"artifact_ids,omitempty"`
	ContextIDs  []int64 `json:"context_ids,omitempty"`
}

// PutAttributionsAndAssociationsRequest records grouping links. Existing
// links are tolerated, so the operation is idempotent.
type PutAttributionsAndAssociationsRequest struct {
	Attributions       []*types.Attribution      `json:"attributions,omitempty"`
	Associations       []*types.Association      `json:"associations,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type PutAttributionsAndAssociationsResponse struct{}

type PutParentContextsRequest struct {
	ParentContexts     []*types.ParentContext    `json:"parent_contexts,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type PutParentContextsResponse struct{}

// Entity read operations.

// GetArtifactsByIDRequest fetches artifacts by id. Missing ids are skipped.
// With PopulateArtifactTypes set, the response also carries the types of the
// returned artifacts.
type GetArtifactsByIDRequest struct {
	ArtifactIDs           []int64                   `json:"artifact_ids,omitempty"`
	PopulateArtifactTypes bool                      `json:"populate_artifact_types,omitempty"`
	TransactionOptions    *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetArtifactsByIDResponse struct {
	Artifacts     []*types.Artifact `json:"artifacts,omitempty"`
	ArtifactTypes []*types.Type     `json:"artifact_types,omitempty"`
}

type GetExecutionsByIDRequest struct {
	ExecutionIDs       []int64                   `json:"execution_ids,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetExecutionsByIDResponse struct {
	Executions []*types.Execution `json:"executions,omitempty"`
}

type GetContextsByIDRequest struct {
	ContextIDs         []int64                   `json:"context_ids,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetContextsByIDResponse struct {
	Contexts []*types.Context `json:"contexts,omitempty"`
}

// GetArtifactsRequest lists artifacts. A nil Options returns everything;
// otherwise the listing is ordered and paged and the response carries a
// token for the next page.
type GetArtifactsRequest struct {
	Options            *types.ListOptions        `json:"options,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetArtifactsResponse struct {
	Artifacts     []*types.Artifact `json:"artifacts,omitempty"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type GetExecutionsRequest struct {
	Options            *types.ListOptions        `json:"options,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetExecutionsResponse struct {
	Executions    []*types.Execution `json:"executions,omitempty"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type GetContextsRequest struct {
	Options            *types.ListOptions        `json:"options,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetContextsResponse struct {
	Contexts      []*types.Context `json:"contexts,omitempty"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type GetArtifactsByTypeRequest struct {
	TypeName           string                    `json:"type_name,omitempty"`
	TypeVersion        string                    `json:"type_version,omitempty"`
	Options            *types.ListOptions        `json:"options,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetArtifactsByTypeResponse struct {
	Artifacts     []*types.Artifact `json:"artifacts,omitempty"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type GetExecutionsByTypeRequest struct {
	TypeName           string                    `json:"type_name,omitempty"`
	TypeVersion        string                    `json:"type_version,omitempty"`
	Options            *types.ListOptions        `json:"options,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetExecutionsByTypeResponse struct {
	Executions    []*types.Execution `json:"executions,omitempty"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type GetContextsByTypeRequest struct {
	TypeName           string                    `json:"type_name,omitempty"`
	TypeVersion        string                    `json:"type_version,omitempty"`
	Options            *types.ListOptions        `json:"options,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetContextsByTypeResponse struct {
	Contexts      []*types.Context `json:"contexts,omitempty"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

// GetArtifactByTypeAndNameRequest resolves one artifact by its type and
// name. An unknown type or name yields an empty response, not an error.
type GetArtifactByTypeAndNameRequest struct {
	TypeName           string                    `json:"type_name,omitempty"`
	TypeVersion        string                    `json:"type_version,omitempty"`
	ArtifactName       string                    `json:"artifact_name,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetArtifactByTypeAndNameResponse struct {
	Artifact *types.Artifact `json:"artifact,omitempty"`
}

type GetExecutionByTypeAndNameRequest struct {
	TypeName           string                    `json:"type_name,omitempty"`
	TypeVersion        string                    `json:"type_version,omitempty"`
	ExecutionName      string                    `json:"execution_name,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetExecutionByTypeAndNameResponse struct {
	Execution *types.Execution `json:"execution,omitempty"`
}

type GetContextByTypeAndNameRequest struct {
	TypeName           string                    `json:"type_name,omitempty"`
	TypeVersion        string                    `json:"type_version,omitempty"`
	ContextName        string                    `json:"context_name,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetContextByTypeAndNameResponse struct {
	Context *types.Context `json:"context,omitempty"`
}

// GetArtifactsByURIRequest fetches artifacts by uri. URIs are deduplicated
// before lookup. The singular URI field is retired; requests that set it are
// rejected.
type GetArtifactsByURIRequest struct {
	URI                *string                   `json:"uri,omitempty"`
	URIs               []string                  `json:"uris,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetArtifactsByURIResponse struct {
	Artifacts []*types.Artifact `json:"artifacts,omitempty"`
}

type GetArtifactsByContextRequest struct {
	ContextID          int64                     `json:"context_id,omitempty"`
	Options            *types.ListOptions        `json:"options,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetArtifactsByContextResponse struct {
	Artifacts     []*types.Artifact `json:"artifacts,omitempty"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type GetExecutionsByContextRequest struct {
	ContextID          int64                     `json:"context_id,omitempty"`
	Options            *types.ListOptions        `json:"options,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetExecutionsByContextResponse struct {
	Executions    []*types.Execution `json:"executions,omitempty"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type GetEventsByArtifactIDsRequest struct {
	ArtifactIDs        []int64                   `json:"artifact_ids,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetEventsByArtifactIDsResponse struct {
	Events []*types.Event `json:"events,omitempty"`
}

type GetEventsByExecutionIDsRequest struct {
	ExecutionIDs       []int64                   `json:"execution_ids,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetEventsByExecutionIDsResponse struct {
	Events []*types.Event `json:"events,omitempty"`
}

type GetContextsByArtifactRequest struct {
	ArtifactID         int64                     `json:"artifact_id,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetContextsByArtifactResponse struct {
	Contexts []*types.Context `json:"contexts,omitempty"`
}

type GetContextsByExecutionRequest struct {
	ExecutionID        int64                     `json:"execution_id,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetContextsByExecutionResponse struct {
	Contexts []*types.Context `json:"contexts,omitempty"`
}

type GetParentContextsByContextRequest struct {
	ContextID          int64                     `json:"context_id,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetParentContextsByContextResponse struct {
	Contexts []*types.Context `json:"contexts,omitempty"`
}

type GetChildrenContextsByContextRequest struct {
	ContextID          int64                     `json:"context_id,omitempty"`
	TransactionOptions *types.TransactionOptions `json:"transaction_options,omitempty"`
}

type GetChildrenContextsByContextResponse struct {
	Contexts []*types.Context `json:"contexts,omitempty"`
}

// Lineage.

// GetLineageGraphRequest asks for the provenance subgraph reachable from the
// artifacts matching Options.ArtifactsOptions, subject to the hop, node, and
// boundary limits in Options.
type GetLineageGraphRequest struct {
	Options            *types.LineageGraphQueryOptions `json:"options,omitempty"`
	TransactionOptions *types.TransactionOptions       `json:"transaction_options,omitempty"`
}

type GetLineageGraphResponse struct {
	Subgraph *types.LineageGraph `json:"subgraph,omitempty"`
}
