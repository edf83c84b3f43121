// Package types defines the entities tracked by trellis: typed artifacts,
// executions, and contexts, the events linking artifacts to executions, and
// the membership links between contexts and the rest of the graph.
//
// Conventions shared by every entity:
//   - IDs are server-assigned, start at 1, and are carried as *int64 so that
//     "no id yet" (create) is distinguishable from an id.
//   - Timestamps are milliseconds since the Unix epoch, assigned by the
//     storage layer, never by callers.
//   - Enum-like fields are typed strings so they read well in JSON and in
//     SQL rows without a translation table.
package types

import (
	"encoding/json"
	"fmt"
)

// TypeKind discriminates the three type namespaces. The numeric values are
// stable storage values and must not be reordered.
type TypeKind int

const (
	ExecutionTypeKind TypeKind = 0
	ArtifactTypeKind  TypeKind = 1
	ContextTypeKind   TypeKind = 2
)

func (k TypeKind) String() string {
	switch k {
	case ExecutionTypeKind:
		return "EXECUTION_TYPE"
	case ArtifactTypeKind:
		return "ARTIFACT_TYPE"
	case ContextTypeKind:
		return "CONTEXT_TYPE"
	default:
		return fmt.Sprintf("TYPE_KIND(%d)", int(k))
	}
}

// Valid reports whether k is one of the three known kinds.
func (k TypeKind) Valid() bool {
	return k == ExecutionTypeKind || k == ArtifactTypeKind || k == ContextTypeKind
}

// PropertyType is the declared primitive type of a type property.
type PropertyType string

const (
	IntType    PropertyType = "INT"
	DoubleType PropertyType = "DOUBLE"
	StringType PropertyType = "STRING"
	StructType PropertyType = "STRUCT"
)

// Valid reports whether p names a known primitive type.
func (p PropertyType) Valid() bool {
	switch p {
	case IntType, DoubleType, StringType, StructType:
		return true
	}
	return false
}

// SystemType names a built-in base type. A *SystemType field distinguishes
// three states: nil (no base type given), SystemTypeUnset (explicit request
// to remove the link, which the store rejects as unimplemented), and a
// concrete value.
type SystemType string

const (
	SystemTypeUnset SystemType = "UNSET"

	// Artifact base types.
	SystemTypeDataset    SystemType = "DATASET"
	SystemTypeModel      SystemType = "MODEL"
	SystemTypeMetrics    SystemType = "METRICS"
	SystemTypeStatistics SystemType = "STATISTICS"

	// Execution base types.
	SystemTypeTrain     SystemType = "TRAIN"
	SystemTypeTransform SystemType = "TRANSFORM"
	SystemTypeProcess   SystemType = "PROCESS"
	SystemTypeEvaluate  SystemType = "EVALUATE"
	SystemTypeDeploy    SystemType = "DEPLOY"
)

// Type is the schema of one artifact, execution, or context kind. The same
// struct serves all three kinds; the kind travels as a separate argument or
// is implied by the operation. Identity is (kind, name, version), with the
// empty version meaning "unversioned".
type Type struct {
	ID          *int64                  `json:"id,omitempty"`
	Name        string                  `json:"name"`
	Version     string                  `json:"version,omitempty"`
	Description string                  `json:"description,omitempty"`
	Properties  map[string]PropertyType `json:"properties,omitempty"`
	BaseType    *SystemType             `json:"base_type,omitempty"`
}

// Validate checks the fields a caller controls. Storage-derived fields (id)
// are not inspected.
func (t *Type) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("type name is required")
	}
	for name, pt := range t.Properties {
		if name == "" {
			return fmt.Errorf("type %q has a property with an empty name", t.Name)
		}
		if !pt.Valid() {
			return fmt.Errorf("type %q property %q has unknown property type %q", t.Name, name, pt)
		}
	}
	return nil
}

// HasBaseType reports whether the type carries any base-type field,
// including the explicit UNSET sentinel.
func (t *Type) HasBaseType() bool { return t.BaseType != nil }

// Value is a property value: exactly one of the fields is set. StructValue
// holds arbitrary JSON for STRUCT-typed properties.
type Value struct {
	IntValue    *int64          `json:"int_value,omitempty"`
	DoubleValue *float64        `json:"double_value,omitempty"`
	StringValue *string         `json:"string_value,omitempty"`
	StructValue json.RawMessage `json:"struct_value,omitempty"`
}

// IntValue returns a Value holding v.
func IntValue(v int64) *Value { return &Value{IntValue: &v} }

// DoubleValue returns a Value holding v.
func DoubleValue(v float64) *Value { return &Value{DoubleValue: &v} }

// StringValue returns a Value holding v.
func StringValue(v string) *Value { return &Value{StringValue: &v} }

// StructValue returns a Value holding raw JSON.
func StructValue(raw json.RawMessage) *Value { return &Value{StructValue: raw} }

// Type returns the primitive type of the populated field, or "" for an
// empty value.
func (v *Value) Type() PropertyType {
	switch {
	case v == nil:
		return ""
	case v.IntValue != nil:
		return IntType
	case v.DoubleValue != nil:
		return DoubleType
	case v.StringValue != nil:
		return StringType
	case len(v.StructValue) > 0:
		return StructType
	default:
		return ""
	}
}

// Validate checks that exactly one field is populated.
func (v *Value) Validate() error {
	n := 0
	if v.IntValue != nil {
		n++
	}
	if v.DoubleValue != nil {
		n++
	}
	if v.StringValue != nil {
		n++
	}
	if len(v.StructValue) > 0 {
		n++
	}
	if n != 1 {
		return fmt.Errorf("property value must set exactly one field, got %d", n)
	}
	return nil
}

// Equal reports whether two values hold the same payload.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.Type() != o.Type() {
		return false
	}
	switch v.Type() {
	case IntType:
		return *v.IntValue == *o.IntValue
	case DoubleType:
		return *v.DoubleValue == *o.DoubleValue
	case StringType:
		return *v.StringValue == *o.StringValue
	case StructType:
		return string(v.StructValue) == string(o.StructValue)
	}
	return true
}

func validateProperties(owner string, props map[string]*Value) error {
	for name, v := range props {
		if name == "" {
			return fmt.Errorf("%s has a property with an empty name", owner)
		}
		if v == nil {
			return fmt.Errorf("%s property %q has no value", owner, name)
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%s property %q: %w", owner, name, err)
		}
	}
	return nil
}

// ArtifactState tracks the lifecycle of an artifact's payload.
type ArtifactState string

const (
	ArtifactStateUnknown           ArtifactState = "UNKNOWN"
	ArtifactStatePending           ArtifactState = "PENDING"
	ArtifactStateLive              ArtifactState = "LIVE"
	ArtifactStateMarkedForDeletion ArtifactState = "MARKED_FOR_DELETION"
	ArtifactStateDeleted           ArtifactState = "DELETED"
)

// Artifact is a data object produced or consumed by an execution. Name, when
// present, is unique within the artifact's type.
type Artifact struct {
	ID                       *int64            `json:"id,omitempty"`
	TypeID                   int64             `json:"type_id,omitempty"`
	URI                      *string           `json:"uri,omitempty"`
	Name                     *string           `json:"name,omitempty"`
	State                    ArtifactState     `json:"state,omitempty"`
	Properties               map[string]*Value `json:"properties,omitempty"`
	CustomProperties         map[string]*Value `json:"custom_properties,omitempty"`
	CreateTimeSinceEpoch     int64             `json:"create_time_since_epoch,omitempty"`
	LastUpdateTimeSinceEpoch int64             `json:"last_update_time_since_epoch,omitempty"`
}

func (a *Artifact) Validate() error {
	if err := validateProperties("artifact", a.Properties); err != nil {
		return err
	}
	return validateProperties("artifact", a.CustomProperties)
}

// ExecutionState is the last known state of a pipeline step run.
type ExecutionState string

const (
	ExecutionStateUnknown  ExecutionState = "UNKNOWN"
	ExecutionStateNew      ExecutionState = "NEW"
	ExecutionStateRunning  ExecutionState = "RUNNING"
	ExecutionStateComplete ExecutionState = "COMPLETE"
	ExecutionStateFailed   ExecutionState = "FAILED"
	ExecutionStateCached   ExecutionState = "CACHED"
	ExecutionStateCanceled ExecutionState = "CANCELED"
)

// Execution is one run of a pipeline step. Name, when present, is unique
// within the execution's type.
type Execution struct {
	ID                       *int64            `json:"id,omitempty"`
	TypeID                   int64             `json:"type_id,omitempty"`
	Name                     *string           `json:"name,omitempty"`
	LastKnownState           ExecutionState    `json:"last_known_state,omitempty"`
	Properties               map[string]*Value `json:"properties,omitempty"`
	CustomProperties         map[string]*Value `json:"custom_properties,omitempty"`
	CreateTimeSinceEpoch     int64             `json:"create_time_since_epoch,omitempty"`
	LastUpdateTimeSinceEpoch int64             `json:"last_update_time_since_epoch,omitempty"`
}

func (e *Execution) Validate() error {
	if err := validateProperties("execution", e.Properties); err != nil {
		return err
	}
	return validateProperties("execution", e.CustomProperties)
}

// Context is a grouping (experiment, run, project) of artifacts and
// executions. Unlike the other entities its name is required and unique
// within the context's type.
type Context struct {
	ID                       *int64            `json:"id,omitempty"`
	TypeID                   int64             `json:"type_id,omitempty"`
	Name                     string            `json:"name,omitempty"`
	Properties               map[string]*Value `json:"properties,omitempty"`
	CustomProperties         map[string]*Value `json:"custom_properties,omitempty"`
	CreateTimeSinceEpoch     int64             `json:"create_time_since_epoch,omitempty"`
	LastUpdateTimeSinceEpoch int64             `json:"last_update_time_since_epoch,omitempty"`
}

func (c *Context) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("context name is required")
	}
	if err := validateProperties("context", c.Properties); err != nil {
		return err
	}
	return validateProperties("context", c.CustomProperties)
}

// EventType is the role an artifact played for an execution.
type EventType string

const (
	EventTypeUnknown        EventType = "UNKNOWN"
	EventTypeDeclaredOutput EventType = "DECLARED_OUTPUT"
	EventTypeDeclaredInput  EventType = "DECLARED_INPUT"
	EventTypeInput          EventType = "INPUT"
	EventTypeOutput         EventType = "OUTPUT"
	EventTypeInternalInput  EventType = "INTERNAL_INPUT"
	EventTypeInternalOutput EventType = "INTERNAL_OUTPUT"
)

// PathStep is one step in an event path: either a positional index or a
// named key.
type PathStep struct {
	Index *int64  `json:"index,omitempty"`
	Key   *string `json:"key,omitempty"`
}

// Event is a directed link between an execution and an artifact. Identity is
// the (artifact_id, execution_id, type, millis_since_epoch) tuple; events are
// insert-only. A zero ArtifactID or ExecutionID means "not set"; valid ids
// start at 1.
type Event struct {
	ID               *int64     `json:"id,omitempty"`
	ArtifactID       int64      `json:"artifact_id,omitempty"`
	ExecutionID      int64      `json:"execution_id,omitempty"`
	Type             EventType  `json:"type,omitempty"`
	Path             []PathStep `json:"path,omitempty"`
	MillisSinceEpoch int64      `json:"milliseconds_since_epoch,omitempty"`
}

func (e *Event) Validate() error {
	if e.ArtifactID <= 0 {
		return fmt.Errorf("event artifact_id is required")
	}
	if e.ExecutionID <= 0 {
		return fmt.Errorf("event execution_id is required")
	}
	if e.Type == "" || e.Type == EventTypeUnknown {
		return fmt.Errorf("event type is required")
	}
	for _, step := range e.Path {
		if (step.Index == nil) == (step.Key == nil) {
			return fmt.Errorf("event path step must set exactly one of index or key")
		}
	}
	return nil
}

// Association links a context to an execution. The pair is unique.
type Association struct {
	ContextID   int64 `json:"context_id,omitempty"`
	ExecutionID int64 `json:"execution_id,omitempty"`
}

// Attribution links a context to an artifact. The pair is unique.
type Attribution struct {
	ContextID  int64 `json:"context_id,omitempty"`
	ArtifactID int64 `json:"artifact_id,omitempty"`
}

// ParentContext links a child context to a parent context. Insert-only; the
// graph is acyclic by contract.
type ParentContext struct {
	ChildID  int64 `json:"child_id,omitempty"`
	ParentID int64 `json:"parent_id,omitempty"`
}

func (p *ParentContext) Validate() error {
	if p.ChildID <= 0 || p.ParentID <= 0 {
		return fmt.Errorf("parent context requires both child_id and parent_id")
	}
	if p.ChildID == p.ParentID {
		return fmt.Errorf("context %d cannot be its own parent", p.ChildID)
	}
	return nil
}

// TransactionOptions travel with every request and are handed to the
// transaction executor verbatim. Tag shows up on the transaction's trace
// span for correlation.
type TransactionOptions struct {
	Tag string `json:"tag,omitempty"`
}
