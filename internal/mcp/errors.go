package mcp

import (
	"encoding/json"
	"errors"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/schema"
	"github.com/meitarbe/cognetivy/internal/service/nodes"
	"github.com/meitarbe/cognetivy/internal/storage"
)

// Error kinds reported in the "error" field of a failed tool result.
const (
	kindNotFound        = "not_found"
	kindConflict        = "conflict"
	kindInvalidState    = "invalid_state"
	kindPatch           = "patch_error"
	kindInvalidWorkflow = "invalid_workflow"
	kindUnknownKind     = "unknown_kind"
	kindMissingFields   = "missing_required_fields"
	kindInvalidSchema   = "invalid_schema"
	kindInvalidID       = "invalid_id"
	kindInvalidWrite    = "invalid_write"
	kindIntegrity       = "integrity"
	kindInternal        = "internal"
)

// errorBody classifies err into a JSON-serialisable object carrying the
// error kind plus whatever structured detail the agent needs to self-correct.
func errorBody(err error) map[string]any {
	body := map[string]any{"error": kindInternal, "message": err.Error()}

	var (
		unknownKind *schema.UnknownKindError
		missing     *schema.MissingFieldsError
		stateErr    *storage.InvalidStateError
		patchErr    *storage.PatchError
		shapeErr    *storage.WorkflowShapeError
	)
	switch {
	case errors.As(err, &unknownKind):
		body["error"] = kindUnknownKind
		body["kind"] = unknownKind.Kind
		body["known_kinds"] = nonNil(unknownKind.Known)
	case errors.As(err, &missing):
		body["error"] = kindMissingFields
		body["kind"] = missing.Kind
		body["missing"] = missing.Missing
	case errors.As(err, &stateErr):
		body["error"] = kindInvalidState
		body["entity"] = stateErr.Entity
		body["id"] = stateErr.ID
		body["status"] = stateErr.Status
		if stateErr.Expected != "" {
			body["expected"] = stateErr.Expected
		}
	case errors.As(err, &patchErr):
		body["error"] = kindPatch
		body["workflow_id"] = patchErr.WorkflowID
		body["from_version"] = patchErr.FromVersion
	case errors.As(err, &shapeErr):
		body["error"] = kindInvalidWorkflow
		body["problems"] = shapeErr.Problems
	case errors.Is(err, storage.ErrPatch):
		body["error"] = kindPatch
	case errors.Is(err, storage.ErrNotFound):
		body["error"] = kindNotFound
	case errors.Is(err, storage.ErrConflict):
		body["error"] = kindConflict
	case errors.Is(err, storage.ErrIntegrity):
		body["error"] = kindIntegrity
	case errors.Is(err, schema.ErrInvalidSchema):
		body["error"] = kindInvalidSchema
	case errors.Is(err, model.ErrInvalidID):
		body["error"] = kindInvalidID
	case errors.Is(err, nodes.ErrInvalidWrite):
		body["error"] = kindInvalidWrite
	}
	return body
}

// toolError converts a core error into an MCP tool error result.
func toolError(err error) *mcplib.CallToolResult {
	data, _ := json.Marshal(errorBody(err))
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
		IsError: true,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
