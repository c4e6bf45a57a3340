package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/schema"
	"github.com/meitarbe/cognetivy/internal/testutil"
)

func TestParseResourceURI(t *testing.T) {
	tests := []struct {
		name     string
		template string
		uri      string
		want     []string
		wantErr  string
	}{
		{name: "single param", template: workflowCurrentRT, uri: "cognetivy://workflows/research/current", want: []string{"research"}},
		{name: "two params", template: runCollectionRT, uri: "cognetivy://runs/run-1/collections/sources", want: []string{"run-1", "sources"}},
		{name: "wrong scheme", template: runEventsRT, uri: "other://runs/run-1/events", wantErr: "invalid resource URI"},
		{name: "wrong literal", template: runEventsRT, uri: "cognetivy://runs/run-1/logs", wantErr: "invalid resource URI"},
		{name: "extra segment", template: runEventsRT, uri: "cognetivy://runs/a/b/events", wantErr: "invalid resource URI"},
		{name: "empty param", template: runEventsRT, uri: "cognetivy://runs//events", wantErr: "empty id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResourceURI(tt.template, tt.uri)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func readRequest(uri string) mcplib.ReadResourceRequest {
	return mcplib.ReadResourceRequest{Params: mcplib.ReadResourceParams{URI: uri}}
}

func resourceText(t *testing.T, contents []mcplib.ResourceContents) string {
	t.Helper()
	require.Len(t, contents, 1)
	tc, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok, "expected TextResourceContents")
	assert.Equal(t, "application/json", tc.MIMEType)
	return tc.Text
}

func TestResources(t *testing.T) {
	s, ws := newTestServer(t)
	testutil.SeedWorkflow(t, ws, "research", "retrieve", "synthesize")
	testutil.SeedRun(t, ws, "research", "run-1")
	ctx := context.Background()

	contents, err := s.handleWorkflowCurrentResource(ctx, readRequest("cognetivy://workflows/research/current"))
	require.NoError(t, err)
	var version model.WorkflowVersion
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &version))
	assert.Equal(t, "v1", version.VersionID)
	assert.Len(t, version.Nodes, 2)

	_, err = ws.AppendEvent(ctx, "run-1", model.Event{Type: model.EventArtifact, By: "tester"})
	require.NoError(t, err)
	contents, err = s.handleRunEventsResource(ctx, readRequest("cognetivy://runs/run-1/events"))
	require.NoError(t, err)
	var events struct {
		RunID  string        `json:"run_id"`
		Events []model.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &events))
	assert.Equal(t, "run-1", events.RunID)
	require.Len(t, events.Events, 1)
	assert.Equal(t, model.EventArtifact, events.Events[0].Type)

	_, err = ws.AddKind(ctx, "research", "notes", schema.KindSpec{Required: []string{"text"}})
	require.NoError(t, err)
	_, err = ws.Append(ctx, "run-1", "notes", map[string]any{"text": "hi"}, model.Provenance{NodeID: "retrieve", NodeResultID: "nr_1"}, "")
	require.NoError(t, err)
	contents, err = s.handleRunCollectionResource(ctx, readRequest("cognetivy://runs/run-1/collections/notes"))
	require.NoError(t, err)
	var c model.Collection
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &c))
	require.Len(t, c.Items, 1)
	assert.Equal(t, "retrieve", c.Items[0].CreatedByNodeID())

	contents, err = s.handleWorkspaceResource(ctx, readRequest(workspaceURI))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &body))
	assert.Equal(t, ws.Root(), body["root"])
	assert.NotContains(t, body, "client_roots", "no client session means no roots")

	_, err = s.handleWorkflowCurrentResource(ctx, readRequest("cognetivy://workflows/ghost/current"))
	assert.Error(t, err)
	_, err = s.handleRunEventsResource(ctx, readRequest("cognetivy://runs//events"))
	assert.Error(t, err)
}
