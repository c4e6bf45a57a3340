package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/meitarbe/cognetivy/internal/model"
)

func (s *Server) registerPrompts() {
	// run-workflow: walks the agent through executing every step of a workflow.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("run-workflow",
			mcplib.WithPromptDescription("Execute a workflow step by step, recording every step in the ledger"),
			mcplib.WithArgument("workflow_id",
				mcplib.ArgumentDescription("The workflow to run"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleRunWorkflowPrompt,
	)

	// complete-step: the contract and collection requirements of one node.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("complete-step",
			mcplib.WithPromptDescription("What a step must produce and how to record it"),
			mcplib.WithArgument("run_id",
				mcplib.ArgumentDescription("The run the step belongs to"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("node_id",
				mcplib.ArgumentDescription("The node being executed"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleCompleteStepPrompt,
	)

	// agent-setup: system prompt snippet explaining the ledger workflow.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("agent-setup",
			mcplib.WithPromptDescription("System prompt snippet explaining the Cognetivy ledger workflow (start, record, complete)"),
		),
		s.handleAgentSetupPrompt,
	)
}

// executionOrder returns node ids in dependency order. Nodes on a cycle or
// otherwise unreachable by the ordering are appended in declaration order.
func executionOrder(v model.WorkflowVersion) []string {
	indegree := make(map[string]int, len(v.Nodes))
	next := make(map[string][]string, len(v.Nodes))
	for _, n := range v.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range v.Edges {
		next[e.From] = append(next[e.From], e.To)
		indegree[e.To]++
	}

	var queue, order []string
	for _, n := range v.Nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	seen := make(map[string]bool, len(v.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		seen[id] = true
		for _, to := range next[id] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	for _, n := range v.Nodes {
		if !seen[n.ID] {
			order = append(order, n.ID)
		}
	}
	return order
}

func describeNode(n model.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s (%s)", n.ID, n.Type)
	if n.Description != "" {
		fmt.Fprintf(&b, ": %s", n.Description)
	}
	if len(n.Contract.Input) > 0 {
		fmt.Fprintf(&b, "\n    input: %s", strings.Join(n.Contract.Input, ", "))
	}
	if len(n.Contract.Output) > 0 {
		fmt.Fprintf(&b, "\n    output: %s", strings.Join(n.Contract.Output, ", "))
	}
	if len(n.OutputCollections) > 0 {
		fmt.Fprintf(&b, "\n    writes collections: %s", strings.Join(n.OutputCollections, ", "))
	}
	return b.String()
}

func userPrompt(description, text string) *mcplib.GetPromptResult {
	return &mcplib.GetPromptResult{
		Description: description,
		Messages: []mcplib.PromptMessage{
			{
				Role:    mcplib.RoleUser,
				Content: mcplib.TextContent{Type: "text", Text: text},
			},
		},
	}
}

func (s *Server) handleRunWorkflowPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	workflowID := request.Params.Arguments["workflow_id"]
	if workflowID == "" {
		return nil, fmt.Errorf("workflow_id argument is required")
	}
	version, err := s.ws.GetCurrent(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("mcp: run-workflow prompt: %w", err)
	}

	byID := make(map[string]model.Node, len(version.Nodes))
	for _, n := range version.Nodes {
		byID[n.ID] = n
	}
	steps := make([]string, 0, len(version.Nodes))
	for _, id := range executionOrder(version) {
		steps = append(steps, describeNode(byID[id]))
	}

	return userPrompt(
		fmt.Sprintf("Run workflow %s (%s)", workflowID, version.VersionID),
		fmt.Sprintf(`Run workflow %[1]s, version %[2]s. Record every step in the ledger.

1. CALL cognetivy_schema_get with workflow_id="%[1]s" to learn each collection
   kind's required fields.

2. CALL cognetivy_run_start with workflow_id="%[1]s" and the task input.
   Keep the returned run_id.

3. For each step below, in order:
   a. CALL cognetivy_node_start with the run_id and node_id.
      Keep the returned node_result_id.
   b. Do the work. Read earlier steps' output with cognetivy_collection_read.
   c. CALL cognetivy_node_complete with status, output, the node_result_id and,
      when the step writes a collection, collection_kind + payload.
      If it reports missing_required_fields or unknown_kind, fix the payload
      and call it again.

Steps:
%[3]s

4. CALL cognetivy_run_complete with the run_id and final_answer.`, workflowID, version.VersionID, strings.Join(steps, "\n")),
	), nil
}

func (s *Server) handleCompleteStepPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	runID := request.Params.Arguments["run_id"]
	nodeID := request.Params.Arguments["node_id"]
	if runID == "" || nodeID == "" {
		return nil, fmt.Errorf("run_id and node_id arguments are required")
	}

	run, err := s.ws.ReadRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("mcp: complete-step prompt: %w", err)
	}
	version, err := s.ws.GetVersion(ctx, run.WorkflowID, run.WorkflowVersionID)
	if err != nil {
		return nil, fmt.Errorf("mcp: complete-step prompt: %w", err)
	}
	node, ok := version.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("mcp: complete-step prompt: node %s is not in %s@%s", nodeID, run.WorkflowID, run.WorkflowVersionID)
	}
	cfg, err := s.ws.ReadSchema(ctx, run.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("mcp: complete-step prompt: %w", err)
	}

	var kinds []string
	for _, kind := range node.OutputCollections {
		ks, ok := cfg.Kinds[kind]
		if !ok {
			kinds = append(kinds, fmt.Sprintf("- %s: not defined in the schema yet; add it with cognetivy_schema_add_kind", kind))
			continue
		}
		required := "none"
		if len(ks.Required) > 0 {
			required = strings.Join(ks.Required, ", ")
		}
		kinds = append(kinds, fmt.Sprintf("- %s: %s (required: %s)", kind, ks.Description, required))
	}
	writes := "This step writes no collections."
	if len(kinds) > 0 {
		writes = "Collections this step writes:\n" + strings.Join(kinds, "\n")
	}

	return userPrompt(
		fmt.Sprintf("Complete step %s of run %s", nodeID, runID),
		fmt.Sprintf(`You are executing step %[1]s of run %[2]s.

%[3]s

%[4]s

When done, CALL cognetivy_node_complete with run_id="%[2]s", node_id="%[1]s",
status (completed, failed or needs_human), your output, and for each
collection a collection_kind + payload. A single object is appended; an
array replaces the collection. Provenance is stamped for you.`,
			nodeID, runID, describeNode(node), writes),
	), nil
}

func (s *Server) handleAgentSetupPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return userPrompt("Cognetivy ledger workflow for AI agents", `You have access to Cognetivy, a durable ledger for agent workflows. It stores
versioned workflow graphs, and for every run: an append-only event log, the
result of each step, and schema-validated collections of structured output
with provenance back to the step that produced them.

## The Pattern: Start, Record, Complete

### Before a run:
Call cognetivy_workflow_get to see the steps and cognetivy_schema_get to see
what each collection kind requires.

### For each step:
Call cognetivy_node_start, do the work, then cognetivy_node_complete with the
step's output and collection writes. Writes are validated before anything is
stored; fix the payload and retry when validation fails.

### After the run:
Call cognetivy_run_complete with the final answer.

## Changing the workflow

Do not rewrite workflows in place. Propose a JSON Patch with
cognetivy_mutation_propose and apply it with cognetivy_mutation_apply. Every
change produces a new immutable version; running runs keep their version.

## Available Tools

- cognetivy_workflow_get / _list / _versions / _set / _set_current
- cognetivy_run_start / _complete / _get / _list
- cognetivy_event_append / _list / _digest
- cognetivy_node_start / _complete, cognetivy_node_result_get / _list
- cognetivy_collection_read / _append / _replace / _list_kinds / _summary
- cognetivy_schema_get / _set / _add_kind
- cognetivy_mutation_propose / _apply / _get / _list

## Errors

Failed calls return {"error": <kind>, "message": ...}. Kinds: not_found,
conflict, invalid_state, patch_error, invalid_workflow, unknown_kind (with
known_kinds), missing_required_fields (with missing), invalid_id,
invalid_write.`), nil
}
