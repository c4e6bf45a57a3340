package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/schema"
)

func (s *Server) registerCollectionTools() {
	s.mcpServer.AddTool(
		tool("cognetivy_collection_list_kinds",
			"List the collection kinds that have items in a run.",
			append(readOnly(),
				mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
			)...,
		),
		s.handleCollectionListKinds,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_collection_read",
			"Read every item of one collection kind in a run, in insertion order.",
			append(readOnly(),
				mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
				mcplib.WithString("kind", mcplib.Description("Collection kind"), mcplib.Required()),
			)...,
		),
		s.handleCollectionRead,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_collection_summary",
			"Count items per collection kind in a run.",
			append(readOnly(),
				mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
			)...,
		),
		s.handleCollectionSummary,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_collection_append",
			`Append one item to a run's collection.

The item must satisfy the kind's required fields and carry provenance: the
node_id and node_result_id of the step that produced it. Prefer writing through
cognetivy_node_complete, which stamps provenance for you.`,
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
			mcplib.WithString("kind", mcplib.Description("Collection kind"), mcplib.Required()),
			mcplib.WithObject("item", mcplib.Description("Item payload"), mcplib.Required()),
			mcplib.WithString("node_id", mcplib.Description("Producing node id")),
			mcplib.WithString("node_result_id", mcplib.Description("Producing node result id")),
			mcplib.WithString("item_id", mcplib.Description("Item id. Falls back to item.id, then a generated id.")),
			byArg(),
		),
		s.handleCollectionAppend,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_collection_replace",
			"Replace all items of a run's collection. Every item is validated before anything is written.",
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
			mcplib.WithString("kind", mcplib.Description("Collection kind"), mcplib.Required()),
			mcplib.WithArray("items", mcplib.Description("Item payloads"), mcplib.Required()),
			mcplib.WithString("node_id", mcplib.Description("Producing node id")),
			mcplib.WithString("node_result_id", mcplib.Description("Producing node result id")),
			byArg(),
		),
		s.handleCollectionReplace,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_schema_get",
			`Get a workflow's collection schema: each kind's description, item_schema and
required fields. Call before writing collections.`,
			append(readOnly(), workflowIDArg(), byArg())...,
		),
		s.handleSchemaGet,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_schema_set",
			"Replace a workflow's whole collection schema. Missing parts are filled from the default template.",
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			workflowIDArg(),
			mcplib.WithObject("schema", mcplib.Description(`Schema document: {"kinds": {"<kind>": {"description", "item_schema", "required", "references", "global"}}}`), mcplib.Required()),
		),
		s.handleSchemaSet,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_schema_add_kind",
			"Add a collection kind or extend an existing one. Properties and references merge; required fields are unioned.",
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			workflowIDArg(),
			mcplib.WithString("kind", mcplib.Description("Kind name"), mcplib.Required()),
			mcplib.WithString("description", mcplib.Description("What items of this kind represent")),
			mcplib.WithArray("required", mcplib.Description("Required field names"), mcplib.WithStringItems()),
			mcplib.WithObject("properties", mcplib.Description("Field name to JSON-schema-like property description")),
			mcplib.WithObject("references", mcplib.Description("Field name to referenced kind")),
			mcplib.WithBoolean("global", mcplib.Description("Items are shared across runs")),
		),
		s.handleSchemaAddKind,
	)
}

func provenanceArgs(request mcplib.CallToolRequest) model.Provenance {
	return model.Provenance{
		NodeID:       request.GetString("node_id", ""),
		NodeResultID: request.GetString("node_result_id", ""),
	}
}

func (s *Server) handleCollectionListKinds(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id"); res != nil {
		return res, nil
	}
	kinds, err := s.ws.ListKinds(ctx, request.GetString("run_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"kinds": nonNil(kinds)}), nil
}

func (s *Server) handleCollectionRead(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id", "kind"); res != nil {
		return res, nil
	}
	c, err := s.ws.ReadCollection(ctx, request.GetString("run_id", ""), request.GetString("kind", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(c), nil
}

func (s *Server) handleCollectionSummary(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id"); res != nil {
		return res, nil
	}
	runID := request.GetString("run_id", "")
	counts, err := s.ws.CollectionSummary(ctx, runID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"run_id": runID, "kinds": counts}), nil
}

func (s *Server) handleCollectionAppend(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id", "kind"); res != nil {
		return res, nil
	}
	var payload map[string]any
	ok, err := decodeArg(request, "item", &payload)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if !ok || payload == nil {
		return errorResult("item is required"), nil
	}

	runID := request.GetString("run_id", "")
	item, err := s.ws.Append(ctx, runID, request.GetString("kind", ""), payload, provenanceArgs(request), request.GetString("item_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(withHint(map[string]any{"item": item}, s.runSchemaHint(ctx, request, runID))), nil
}

func (s *Server) handleCollectionReplace(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "run_id", "kind"); res != nil {
		return res, nil
	}
	var items []map[string]any
	ok, err := decodeArg(request, "items", &items)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if !ok {
		return errorResult("items is required"), nil
	}
	if items == nil {
		items = []map[string]any{}
	}

	runID := request.GetString("run_id", "")
	c, err := s.ws.ReplaceAll(ctx, runID, request.GetString("kind", ""), items, provenanceArgs(request))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(withHint(map[string]any{
		"collection": c,
		"item_ids":   c.ItemIDs(),
	}, s.runSchemaHint(ctx, request, runID))), nil
}

// runSchemaHint resolves the run's workflow for schemaHint. Lookup failures
// yield no hint.
func (s *Server) runSchemaHint(ctx context.Context, request mcplib.CallToolRequest, runID string) string {
	run, err := s.ws.ReadRun(ctx, runID)
	if err != nil {
		return ""
	}
	return s.schemaHint(s.actor(ctx, request), run.WorkflowID)
}

func (s *Server) handleSchemaGet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	workflowID, err := s.workflowID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	cfg, err := s.ws.ReadSchema(ctx, workflowID)
	if err != nil {
		return toolError(err), nil
	}
	s.schemaChecks.Record(s.actor(ctx, request), workflowID)
	return jsonResult(cfg), nil
}

func (s *Server) handleSchemaSet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	workflowID, err := s.workflowID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	var cfg model.CollectionSchema
	ok, err := decodeArg(request, "schema", &cfg)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if !ok {
		return errorResult("schema is required"), nil
	}
	saved, err := s.ws.WriteSchema(ctx, workflowID, cfg)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(saved), nil
}

func (s *Server) handleSchemaAddKind(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "kind"); res != nil {
		return res, nil
	}
	workflowID, err := s.workflowID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	spec := schema.KindSpec{Description: request.GetString("description", "")}
	if spec.Required, err = stringListArg(request, "required"); err != nil {
		return errorResult(err.Error()), nil
	}
	if _, err := decodeArg(request, "properties", &spec.Properties); err != nil {
		return errorResult(err.Error()), nil
	}
	if _, err := decodeArg(request, "references", &spec.References); err != nil {
		return errorResult(err.Error()), nil
	}
	if v, ok := request.GetArguments()["global"].(bool); ok {
		spec.Global = &v
	}

	saved, err := s.ws.AddKind(ctx, workflowID, request.GetString("kind", ""), spec)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(saved), nil
}
