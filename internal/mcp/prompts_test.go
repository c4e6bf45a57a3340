package mcp

import (
	"context"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/schema"
	"github.com/meitarbe/cognetivy/internal/testutil"
)

func TestExecutionOrder(t *testing.T) {
	tests := []struct {
		name    string
		version model.WorkflowVersion
		want    []string
	}{
		{
			name:    "linear",
			version: testutil.LinearWorkflow("a", "b", "c"),
			want:    []string{"a", "b", "c"},
		},
		{
			name: "declared out of order",
			version: model.WorkflowVersion{
				Nodes: []model.Node{{ID: "write"}, {ID: "plan"}, {ID: "research"}},
				Edges: []model.Edge{{From: "plan", To: "research"}, {From: "research", To: "write"}},
			},
			want: []string{"plan", "research", "write"},
		},
		{
			name: "diamond",
			version: model.WorkflowVersion{
				Nodes: []model.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
				Edges: []model.Edge{{From: "a", To: "b"}, {From: "a", To: "c"}, {From: "b", To: "d"}, {From: "c", To: "d"}},
			},
			want: []string{"a", "b", "c", "d"},
		},
		{
			name: "cycle falls back to declaration order",
			version: model.WorkflowVersion{
				Nodes: []model.Node{{ID: "start"}, {ID: "x"}, {ID: "y"}},
				Edges: []model.Edge{{From: "start", To: "x"}, {From: "x", To: "y"}, {From: "y", To: "x"}},
			},
			want: []string{"start", "x", "y"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, executionOrder(tt.version))
		})
	}
}

func promptRequest(args map[string]string) mcplib.GetPromptRequest {
	return mcplib.GetPromptRequest{Params: mcplib.GetPromptParams{Arguments: args}}
}

func promptText(t *testing.T, result *mcplib.GetPromptResult) string {
	t.Helper()
	require.Len(t, result.Messages, 1)
	tc, ok := result.Messages[0].Content.(mcplib.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestRunWorkflowPrompt(t *testing.T) {
	s, ws := newTestServer(t)
	testutil.SeedWorkflow(t, ws, "research", "retrieve", "synthesize")

	result, err := s.handleRunWorkflowPrompt(context.Background(), promptRequest(map[string]string{"workflow_id": "research"}))
	require.NoError(t, err)
	text := promptText(t, result)
	assert.Contains(t, result.Description, "research (v1)")
	assert.Contains(t, text, `workflow_id="research"`)
	retrieve := strings.Index(text, "- retrieve (TASK)")
	synthesize := strings.Index(text, "- synthesize (TASK)")
	require.NotEqual(t, -1, retrieve)
	require.NotEqual(t, -1, synthesize)
	assert.Less(t, retrieve, synthesize)

	_, err = s.handleRunWorkflowPrompt(context.Background(), promptRequest(nil))
	assert.ErrorContains(t, err, "workflow_id argument is required")
	_, err = s.handleRunWorkflowPrompt(context.Background(), promptRequest(map[string]string{"workflow_id": "ghost"}))
	assert.Error(t, err)
}

func TestCompleteStepPrompt(t *testing.T) {
	s, ws := newTestServer(t)
	ctx := context.Background()
	v := testutil.LinearWorkflow("retrieve")
	v.Nodes[0].OutputCollections = []string{"sources", "quotes"}
	_, err := ws.CreateWorkflow(ctx, "research", "Research", v)
	require.NoError(t, err)
	_, err = ws.AddKind(ctx, "research", "sources", schema.KindSpec{Description: "Web sources", Required: []string{"url", "title"}})
	require.NoError(t, err)
	testutil.SeedRun(t, ws, "research", "run-1")

	result, err := s.handleCompleteStepPrompt(ctx, promptRequest(map[string]string{"run_id": "run-1", "node_id": "retrieve"}))
	require.NoError(t, err)
	text := promptText(t, result)
	assert.Contains(t, text, "- sources: Web sources (required: url, title)")
	assert.Contains(t, text, "- quotes: not defined in the schema yet")

	_, err = s.handleCompleteStepPrompt(ctx, promptRequest(map[string]string{"run_id": "run-1", "node_id": "ghost"}))
	assert.ErrorContains(t, err, "node ghost is not in research@v1")
	_, err = s.handleCompleteStepPrompt(ctx, promptRequest(map[string]string{"run_id": "run-1"}))
	assert.ErrorContains(t, err, "run_id and node_id arguments are required")
}

func TestAgentSetupPrompt(t *testing.T) {
	s, _ := newTestServer(t)
	result, err := s.handleAgentSetupPrompt(context.Background(), promptRequest(nil))
	require.NoError(t, err)
	text := promptText(t, result)
	for _, name := range []string{"cognetivy_node_start", "cognetivy_mutation_propose", "missing_required_fields"} {
		assert.Contains(t, text, name)
	}
}
