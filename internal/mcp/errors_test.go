package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/schema"
	"github.com/meitarbe/cognetivy/internal/service/nodes"
	"github.com/meitarbe/cognetivy/internal/storage"
)

func TestErrorBody(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   string
		fields map[string]any
	}{
		{name: "not found", err: fmt.Errorf("read run: %w", storage.ErrNotFound), kind: kindNotFound},
		{name: "conflict", err: storage.ErrConflict, kind: kindConflict},
		{name: "integrity", err: storage.ErrIntegrity, kind: kindIntegrity},
		{name: "invalid schema", err: schema.ErrInvalidSchema, kind: kindInvalidSchema},
		{name: "invalid id", err: model.ErrInvalidID, kind: kindInvalidID},
		{name: "invalid write", err: nodes.ErrInvalidWrite, kind: kindInvalidWrite},
		{name: "bare patch", err: storage.ErrPatch, kind: kindPatch},
		{name: "unclassified", err: errors.New("disk full"), kind: kindInternal},
		{
			name:   "unknown kind",
			err:    &schema.UnknownKindError{Kind: "nope"},
			kind:   kindUnknownKind,
			fields: map[string]any{"kind": "nope", "known_kinds": []string{}},
		},
		{
			name:   "missing fields",
			err:    fmt.Errorf("wrap: %w", &schema.MissingFieldsError{Kind: "sources", Missing: []string{"url"}}),
			kind:   kindMissingFields,
			fields: map[string]any{"kind": "sources", "missing": []string{"url"}},
		},
		{
			name:   "invalid state",
			err:    &storage.InvalidStateError{Entity: "run", ID: "run-1", Status: "completed", Expected: "running"},
			kind:   kindInvalidState,
			fields: map[string]any{"entity": "run", "id": "run-1", "status": "completed", "expected": "running"},
		},
		{
			name:   "patch",
			err:    &storage.PatchError{WorkflowID: "wf", FromVersion: "v3", Err: errors.New("bad op")},
			kind:   kindPatch,
			fields: map[string]any{"workflow_id": "wf", "from_version": "v3"},
		},
		{
			name:   "workflow shape",
			err:    &storage.WorkflowShapeError{WorkflowID: "wf", Problems: []string{"duplicate node a"}},
			kind:   kindInvalidWorkflow,
			fields: map[string]any{"problems": []string{"duplicate node a"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := errorBody(tt.err)
			assert.Equal(t, tt.kind, body["error"])
			assert.Equal(t, tt.err.Error(), body["message"])
			for k, v := range tt.fields {
				assert.Equal(t, v, body[k], k)
			}
		})
	}
}

func TestErrorBody_OmitsEmptyExpected(t *testing.T) {
	body := errorBody(&storage.InvalidStateError{Entity: "node_result", ID: "nr_1", Status: "completed"})
	assert.NotContains(t, body, "expected")
}

func TestToolError(t *testing.T) {
	result := toolError(storage.ErrNotFound)
	require.True(t, result.IsError)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &body))
	assert.Equal(t, kindNotFound, body["error"])
}
