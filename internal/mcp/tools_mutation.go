package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/service/mutations"
)

func (s *Server) registerMutationTools() {
	s.mcpServer.AddTool(
		tool("cognetivy_mutation_propose",
			`Propose a change to a workflow as an RFC 6902 JSON Patch against its current version.

Nothing changes until the mutation is applied. The patch is checked for
syntax now and applied against the version it was proposed on, so later
workflow edits do not change what it does.

EXAMPLE: add a review node:
[{"op":"add","path":"/nodes/-","value":{"id":"review","type":"TASK","contract":{"input":["summary"],"output":["approval"]}}}]`,
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			workflowIDArg(),
			mcplib.WithArray("patch", mcplib.Description("JSON Patch operations"), mcplib.Required()),
			mcplib.WithString("reason", mcplib.Description("Why the workflow should change")),
			byArg(),
		),
		s.handleMutationPropose,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_mutation_apply",
			"Apply a proposed mutation: writes a new workflow version and makes it current. A mutation applies once.",
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("mutation_id", mcplib.Description("Mutation identifier"), mcplib.Required()),
		),
		s.handleMutationApply,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_mutation_get",
			"Get a mutation by id.",
			append(readOnly(),
				mcplib.WithString("mutation_id", mcplib.Description("Mutation identifier"), mcplib.Required()),
			)...,
		),
		s.handleMutationGet,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_mutation_list",
			"List mutations, oldest first, optionally filtered by workflow and status.",
			append(readOnly(),
				mcplib.WithString("workflow_id", mcplib.Description("Only mutations targeting this workflow")),
				mcplib.WithString("status", mcplib.Description("Only mutations with this status"), mcplib.Enum("proposed", "applied")),
			)...,
		),
		s.handleMutationList,
	)
}

func (s *Server) handleMutationPropose(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	workflowID, err := s.workflowID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	patch, ok, err := rawArg(request, "patch")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if !ok {
		return errorResult("patch is required"), nil
	}

	m, err := s.mutations.Propose(ctx, mutations.ProposeInput{
		WorkflowID: workflowID,
		Patch:      patch,
		Reason:     request.GetString("reason", ""),
		By:         s.actor(ctx, request),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(m), nil
}

func (s *Server) handleMutationApply(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "mutation_id"); res != nil {
		return res, nil
	}
	m, err := s.mutations.Apply(ctx, request.GetString("mutation_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(m), nil
}

func (s *Server) handleMutationGet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "mutation_id"); res != nil {
		return res, nil
	}
	m, err := s.mutations.Get(ctx, request.GetString("mutation_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(m), nil
}

func (s *Server) handleMutationList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	filter := model.MutationFilter{
		WorkflowID: request.GetString("workflow_id", ""),
		Status:     model.MutationStatus(request.GetString("status", "")),
	}
	list, err := s.mutations.List(ctx, filter)
	if err != nil {
		return toolError(err), nil
	}
	if list == nil {
		list = []model.Mutation{}
	}
	return jsonResult(map[string]any{
		"mutations": list,
		"total":     len(list),
	}), nil
}
