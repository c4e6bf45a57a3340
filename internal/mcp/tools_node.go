package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/service/nodes"
)

func (s *Server) registerNodeTools() {
	s.mcpServer.AddTool(
		tool("cognetivy_node_start",
			`Start a workflow step in a run.

WHEN TO USE: immediately before doing the work of a node. Returns the
node_result_id to pass to cognetivy_node_complete and to use as provenance
for any collection items the step writes. Starting a step again replaces
its snapshot.`,
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
			mcplib.WithString("node_id", mcplib.Description("Node id from the run's workflow version"), mcplib.Required()),
			byArg(),
		),
		s.handleNodeStart,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_node_complete",
			`Complete a workflow step, optionally writing its output collection in the same call.

The collection write is validated against the workflow's collection schema
before anything is persisted; on a validation error nothing is written and
the step stays started. Provenance (created_by_node_id,
created_by_node_result_id) is stamped on every written item.

PAYLOAD: a single object is appended, an array replaces the whole collection.
Pass mode to override.`,
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
			mcplib.WithString("node_id", mcplib.Description("Node being completed"), mcplib.Required()),
			mcplib.WithString("status",
				mcplib.Description("Terminal status"),
				mcplib.Enum(string(model.NodeStatusCompleted), string(model.NodeStatusFailed), string(model.NodeStatusNeedsHuman)),
				mcplib.DefaultString(string(model.NodeStatusCompleted)),
			),
			mcplib.WithString("node_result_id", mcplib.Description("The id returned by cognetivy_node_start; rejected if stale")),
			mcplib.WithString("output", mcplib.Description("Step output; any JSON value")),
			mcplib.WithString("collection_kind", mcplib.Description("Collection kind to write")),
			mcplib.WithString("payload", mcplib.Description("Item object or array of item objects (JSON)")),
			mcplib.WithString("mode", mcplib.Description("Write mode"), mcplib.Enum(string(nodes.WriteModeAppend), string(nodes.WriteModeReplace))),
			mcplib.WithString("item_id", mcplib.Description("Id for a single appended item. Generated when omitted.")),
			byArg(),
		),
		s.handleNodeComplete,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_node_result_get",
			"Get the current result snapshot of one node in a run.",
			append(readOnly(),
				mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
				mcplib.WithString("node_id", mcplib.Description("Node identifier"), mcplib.Required()),
			)...,
		),
		s.handleNodeResultGet,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_node_result_list",
			"List the current result snapshot of every node in a run, ordered by start time.",
			append(readOnly(),
				mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
			)...,
		),
		s.handleNodeResultList,
	)
}

func (s *Server) handleNodeStart(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id", "node_id"); res != nil {
		return res, nil
	}
	res, err := s.nodes.Start(ctx, request.GetString("run_id", ""), request.GetString("node_id", ""), s.actor(ctx, request))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) handleNodeComplete(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id", "node_id"); res != nil {
		return res, nil
	}
	actor := s.actor(ctx, request)
	in := nodes.CompleteInput{
		RunID:        request.GetString("run_id", ""),
		NodeID:       request.GetString("node_id", ""),
		Status:       model.NodeStatus(request.GetString("status", string(model.NodeStatusCompleted))),
		Output:       request.GetArguments()["output"],
		NodeResultID: request.GetString("node_result_id", ""),
		By:           actor,
	}

	if kind := request.GetString("collection_kind", ""); kind != "" {
		w := &nodes.CollectionWrite{
			Kind:   kind,
			Mode:   nodes.WriteMode(request.GetString("mode", "")),
			ItemID: request.GetString("item_id", ""),
		}
		if _, err := decodeArg(request, "payload", &w.Payload); err != nil {
			return errorResult(err.Error()), nil
		}
		in.Write = w
	}

	res, err := s.nodes.Complete(ctx, in)
	if err != nil {
		return toolError(err), nil
	}

	out := map[string]any{"node_result": res}
	if in.Write != nil {
		out = withHint(out, s.schemaHint(actor, res.WorkflowID))
	}
	return jsonResult(out), nil
}

func (s *Server) handleNodeResultGet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id", "node_id"); res != nil {
		return res, nil
	}
	res, err := s.ws.ReadNodeResult(ctx, request.GetString("run_id", ""), request.GetString("node_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) handleNodeResultList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id"); res != nil {
		return res, nil
	}
	results, err := s.ws.ListNodeResults(ctx, request.GetString("run_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"node_results": results,
		"total":        len(results),
	}), nil
}
