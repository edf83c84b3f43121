// Package rpc implements the line-oriented JSON protocol between the trellis
// CLI and the trellis daemon.
//
// Each request is a single JSON object on one line; the daemon answers with
// a single JSON response line on the same connection. Connections are
// persistent: a client may issue any number of requests before closing.
// Operation arguments and results reuse the store package's request and
// response types verbatim, so daemon mode and direct mode speak the same
// structures.
package rpc

import (
	"encoding/json"

	"github.com/trellisml/trellis/internal/status"
)

// Operation names. Store operations carry the store request struct of the
// same name as args and return the matching response struct as data.
const (
	// Daemon control.
	OpPing     = "ping"
	OpStatus   = "status"
	OpShutdown = "shutdown"

	// Type writes.
	OpPutArtifactType  = "put_artifact_type"
	OpPutExecutionType = "put_execution_type"
	OpPutContextType   = "put_context_type"
	OpPutTypes         = "put_types"

	// Type reads.
	OpGetArtifactType       = "get_artifact_type"
	OpGetExecutionType      = "get_execution_type"
	OpGetContextType        = "get_context_type"
	OpGetArtifactTypes      = "get_artifact_types"
	OpGetExecutionTypes     = "get_execution_types"
	OpGetContextTypes       = "get_context_types"
	OpGetArtifactTypesByID  = "get_artifact_types_by_id"
	OpGetExecutionTypesByID = "get_execution_types_by_id"
	OpGetContextTypesByID   = "get_context_types_by_id"

	// Entity writes.
	OpPutArtifacts                   = "put_artifacts"
	OpPutExecutions                  = "put_executions"
	OpPutContexts                    = "put_contexts"
	OpPutEvents                      = "put_events"
	OpPutExecution                   = "put_execution"
	OpPutAttributionsAndAssociations = "put_attributions_and_associations"
	OpPutParentContexts              = "put_parent_contexts"

	// Entity reads.
	OpGetArtifacts              = "get_artifacts"
	OpGetArtifactsByID          = "get_artifacts_by_id"
	OpGetArtifactsByType        = "get_artifacts_by_type"
	OpGetArtifactByTypeAndName  = "get_artifact_by_type_and_name"
	OpGetArtifactsByURI         = "get_artifacts_by_uri"
	OpGetExecutions             = "get_executions"
	OpGetExecutionsByID         = "get_executions_by_id"
	OpGetExecutionsByType       = "get_executions_by_type"
	OpGetExecutionByTypeAndName = "get_execution_by_type_and_name"
	OpGetContexts               = "get_contexts"
	OpGetContextsByID           = "get_contexts_by_id"
	OpGetContextsByType         = "get_contexts_by_type"
	OpGetContextByTypeAndName   = "get_context_by_type_and_name"

	// Events.
	OpGetEventsByArtifactIDs  = "get_events_by_artifact_ids"
	OpGetEventsByExecutionIDs = "get_events_by_execution_ids"

	// Graph neighborhood reads.
	OpGetArtifactsByContext        = "get_artifacts_by_context"
	OpGetExecutionsByContext       = "get_executions_by_context"
	OpGetContextsByArtifact        = "get_contexts_by_artifact"
	OpGetContextsByExecution       = "get_contexts_by_execution"
	OpGetParentContextsByContext   = "get_parent_contexts_by_context"
	OpGetChildrenContextsByContext = "get_children_contexts_by_context"

	// Lineage.
	OpGetLineageGraph = "get_lineage_graph"
)

// Request is one operation sent from client to daemon.
type Request struct {
	Operation     string          `json:"operation"`
	Args          json.RawMessage `json:"args,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	ClientVersion string          `json:"client_version,omitempty"`
}

// Response is the daemon's answer. Data holds the store response struct for
// the operation. On failure, Error carries the message and Code the canonical
// status code name so clients can rebuild the coded error.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// Err rebuilds the coded error carried by a failed response. It returns nil
// for successful responses.
func (r *Response) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return status.Errorf(status.ParseCode(r.Code), "%s", r.Error)
}

// StatusResult is the data payload of the status operation.
type StatusResult struct {
	PID           int     `json:"pid"`
	Version       string  `json:"version,omitempty"`
	Backend       string  `json:"backend,omitempty"`
	Database      string  `json:"database,omitempty"`
	SocketPath    string  `json:"socket_path,omitempty"`
	SchemaVersion int64   `json:"schema_version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ActiveConns   int     `json:"active_conns"`
}

func successResponse(v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResponse(status.Internalf("marshal response: %v", err))
	}
	return &Response{Success: true, Data: data}
}

func errorResponse(err error) *Response {
	return &Response{
		Success: false,
		Error:   err.Error(),
		Code:    status.CodeOf(err).String(),
	}
}
