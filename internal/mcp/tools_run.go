package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/service/runs"
)

func (s *Server) registerRunTools() {
	s.mcpServer.AddTool(
		tool("cognetivy_run_start",
			`Start a run of a workflow version.

WHEN TO USE: once per task, before any cognetivy_node_start. The run pins the
workflow version so later edits to the workflow do not affect it. The input is
stored on the run and seeded into the run_input collection.`,
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			workflowIDArg(),
			mcplib.WithString("version_id", mcplib.Description("Workflow version to pin. Defaults to the current version.")),
			mcplib.WithString("run_id", mcplib.Description("Caller-chosen run id. Generated when omitted.")),
			mcplib.WithString("name", mcplib.Description("Human-readable run name")),
			mcplib.WithObject("input", mcplib.Description("Run input, e.g. {\"topic\": \"...\"}")),
			byArg(),
		),
		s.handleRunStart,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_run_complete",
			"Mark a run completed and record its final answer. A run can be completed once.",
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id", mcplib.Description("Run to complete"), mcplib.Required()),
			mcplib.WithString("final_answer", mcplib.Description("Final answer or outcome of the run")),
			byArg(),
		),
		s.handleRunComplete,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_run_get",
			"Get a run with its node results, collection sizes and a short status summary.",
			append(readOnly(),
				mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
			)...,
		),
		s.handleRunGet,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_run_list",
			"List runs, oldest first, optionally filtered by workflow and status.",
			append(readOnly(),
				mcplib.WithString("workflow_id", mcplib.Description("Only runs of this workflow")),
				mcplib.WithString("status", mcplib.Description("Only runs with this status"), mcplib.Enum("running", "completed")),
			)...,
		),
		s.handleRunList,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_event_append",
			`Append an event to a run's log. Events are immutable and ordered.

Step lifecycle events are written by cognetivy_node_start and
cognetivy_node_complete; use this for everything else (artifacts, notes,
tool calls). Put the step id in data.step to correlate with a node.`,
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
			mcplib.WithString("type", mcplib.Description("Event type, e.g. artifact"), mcplib.Required()),
			mcplib.WithObject("data", mcplib.Description("Event payload")),
			byArg(),
		),
		s.handleEventAppend,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_event_list",
			"List a run's events in append order, optionally filtered by type or step.",
			append(readOnly(),
				mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
				mcplib.WithString("type", mcplib.Description("Only events of this type")),
				mcplib.WithString("step", mcplib.Description("Only events whose data.step or data.step_id matches")),
				mcplib.WithBoolean("compact", mcplib.Description("Truncate long string values in event data")),
			)...,
		),
		s.handleEventList,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_event_digest",
			"Compute a Merkle root over a run's event log, for detecting later edits to the log.",
			append(readOnly(),
				mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
			)...,
		),
		s.handleEventDigest,
	)
}

func (s *Server) handleRunStart(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	in := runs.StartInput{
		WorkflowID: request.GetString("workflow_id", ""),
		VersionID:  request.GetString("version_id", ""),
		RunID:      request.GetString("run_id", ""),
		Name:       request.GetString("name", ""),
		By:         s.actor(ctx, request),
	}
	if _, err := decodeArg(request, "input", &in.Input); err != nil {
		return errorResult(err.Error()), nil
	}

	run, err := s.runs.Start(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(run), nil
}

func (s *Server) handleRunComplete(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id"); res != nil {
		return res, nil
	}
	var answer *string
	if v, ok := request.GetArguments()["final_answer"].(string); ok {
		answer = &v
	}
	run, err := s.runs.Complete(ctx, request.GetString("run_id", ""), answer, s.actor(ctx, request))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(run), nil
}

func (s *Server) handleRunGet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id"); res != nil {
		return res, nil
	}
	runID := request.GetString("run_id", "")

	run, err := s.ws.ReadRun(ctx, runID)
	if err != nil {
		return toolError(err), nil
	}
	results, err := s.ws.ListNodeResults(ctx, runID)
	if err != nil {
		return toolError(err), nil
	}
	counts, err := s.ws.CollectionSummary(ctx, runID)
	if err != nil {
		return toolError(err), nil
	}
	events, err := s.ws.ListEvents(ctx, runID, model.EventFilter{})
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]any{
		"run":          run,
		"node_results": results,
		"collections":  counts,
		"event_count":  len(events),
		"summary":      generateRunSummary(run, results, counts, len(events)),
	}), nil
}

func (s *Server) handleRunList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	filter := model.RunFilter{
		WorkflowID: request.GetString("workflow_id", ""),
		Status:     model.RunStatus(request.GetString("status", "")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return errorResult("status must be running or completed"), nil
	}
	list, err := s.ws.ListRuns(ctx, filter)
	if err != nil {
		return toolError(err), nil
	}
	out := make([]map[string]any, len(list))
	for i, r := range list {
		out[i] = compactRun(r)
	}
	return jsonResult(map[string]any{
		"runs":  out,
		"total": len(out),
	}), nil
}

func (s *Server) handleEventAppend(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id", "type"); res != nil {
		return res, nil
	}
	ev := model.Event{
		Type: model.EventType(request.GetString("type", "")),
		By:   s.actor(ctx, request),
	}
	if _, err := decodeArg(request, "data", &ev.Data); err != nil {
		return errorResult(err.Error()), nil
	}
	appended, err := s.ws.AppendEvent(ctx, request.GetString("run_id", ""), ev)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(appended), nil
}

func (s *Server) handleEventList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id"); res != nil {
		return res, nil
	}
	filter := model.EventFilter{
		Type: model.EventType(request.GetString("type", "")),
		Step: request.GetString("step", ""),
	}
	events, err := s.ws.ListEvents(ctx, request.GetString("run_id", ""), filter)
	if err != nil {
		return toolError(err), nil
	}

	if events == nil {
		events = []model.Event{}
	}
	var out any = events
	if request.GetBool("compact", false) {
		compacted := make([]map[string]any, len(events))
		for i, e := range events {
			compacted[i] = compactEvent(e)
		}
		out = compacted
	}
	return jsonResult(map[string]any{
		"events": out,
		"total":  len(events),
	}), nil
}

func (s *Server) handleEventDigest(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id"); res != nil {
		return res, nil
	}
	runID := request.GetString("run_id", "")
	root, count, err := s.ws.EventLogDigest(ctx, runID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"run_id":      runID,
		"merkle_root": root,
		"event_count": count,
	}), nil
}
