package types

// OrderField names a sortable column for paginated list calls.
type OrderField string

const (
	OrderByID             OrderField = "ID"
	OrderByCreateTime     OrderField = "CREATE_TIME"
	OrderByLastUpdateTime OrderField = "LAST_UPDATE_TIME"
)

// Valid reports whether f names a known sort field.
func (f OrderField) Valid() bool {
	switch f {
	case OrderByID, OrderByCreateTime, OrderByLastUpdateTime:
		return true
	}
	return false
}

// OrderByField selects the sort column and direction for a list call.
type OrderByField struct {
	Field OrderField `json:"field,omitempty"`
	IsAsc bool       `json:"is_asc,omitempty"`
}

// ListOptions drives paginated list calls. MaxResultSize caps the page;
// NextPageToken, when set, resumes a previous listing and must have been
// produced with the same field and direction.
type ListOptions struct {
	MaxResultSize int           `json:"max_result_size,omitempty"`
	OrderBy       *OrderByField `json:"order_by,omitempty"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// ArtifactQuery selects the starting artifacts of a lineage traversal.
// Fields combine with AND; a zero query matches nothing.
type ArtifactQuery struct {
	IDs         []int64  `json:"ids,omitempty"`
	URIs        []string `json:"uris,omitempty"`
	TypeName    string   `json:"type_name,omitempty"`
	TypeVersion string   `json:"type_version,omitempty"`
}

// Empty reports whether the query carries no conditions at all.
func (q *ArtifactQuery) Empty() bool {
	return q == nil || (len(q.IDs) == 0 && len(q.URIs) == 0 && q.TypeName == "")
}

// LineageBoundaryConstraint stops a lineage traversal early. MaxNumHops
// bounds the distance from the query nodes; the type lists name node types
// the traversal must not expand through.
type LineageBoundaryConstraint struct {
	MaxNumHops             *int64   `json:"max_num_hops,omitempty"`
	BoundaryArtifactTypes  []string `json:"boundary_artifact_types,omitempty"`
	BoundaryExecutionTypes []string `json:"boundary_execution_types,omitempty"`
}

// LineageGraphQueryOptions selects the seed artifacts of a lineage query and
// bounds the traversal.
type LineageGraphQueryOptions struct {
	ArtifactsOptions *ArtifactQuery             `json:"artifacts_options,omitempty"`
	MaxNodeSize      int64                      `json:"max_node_size,omitempty"`
	StopConditions   *LineageBoundaryConstraint `json:"stop_conditions,omitempty"`
}

// LineageGraph is a provenance subgraph: the visited artifacts and
// executions, the events connecting them, and the types the nodes refer to.
type LineageGraph struct {
	ArtifactTypes  []*Type      `json:"artifact_types,omitempty"`
	ExecutionTypes []*Type      `json:"execution_types,omitempty"`
	Artifacts      []*Artifact  `json:"artifacts,omitempty"`
	Executions     []*Execution `json:"executions,omitempty"`
	Events         []*Event     `json:"events,omitempty"`
}
