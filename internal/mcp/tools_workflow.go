package mcp

import (
	"context"
	"errors"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/storage"
)

func (s *Server) registerWorkflowTools() {
	s.mcpServer.AddTool(
		tool("cognetivy_workflow_list",
			"List workflows in the workspace with their current version pointer.",
			readOnly()...,
		),
		s.handleWorkflowList,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_workflow_get",
			`Get a workflow version: the node graph with each node's input/output contract.

Without version_id the current version is returned. Pass verify=true to also
check the stored version against its recorded content hash.`,
			append(readOnly(),
				workflowIDArg(),
				mcplib.WithString("version_id", mcplib.Description("Version to read, e.g. v3. Defaults to the current version.")),
				mcplib.WithBoolean("verify", mcplib.Description("Verify the version's content hash")),
			)...,
		),
		s.handleWorkflowGet,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_workflow_versions",
			"List every version id of a workflow in ascending order, plus the current pointer.",
			append(readOnly(), workflowIDArg())...,
		),
		s.handleWorkflowVersions,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_workflow_set",
			`Write a new immutable workflow version and make it current.

The first write creates the workflow. Every node needs a unique id and every
edge must reference existing nodes. Prefer cognetivy_mutation_propose for
changes to an existing workflow so the change is reviewable.`,
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			workflowIDArg(),
			mcplib.WithString("name", mcplib.Description("Human-readable workflow name")),
			mcplib.WithObject("workflow",
				mcplib.Description(`Workflow document: {"nodes":[{"id","type","contract":{"input":[],"output":[]},"output_collections":[]}],"edges":[{"from","to"}]}`),
				mcplib.Required(),
			),
		),
		s.handleWorkflowSet,
	)

	s.mcpServer.AddTool(
		tool("cognetivy_workflow_set_current",
			"Point a workflow at an existing version, e.g. to roll back. Versions themselves are never modified.",
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			workflowIDArg(),
			mcplib.WithString("version_id", mcplib.Description("Existing version id"), mcplib.Required()),
		),
		s.handleWorkflowSetCurrent,
	)
}

func (s *Server) handleWorkflowList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	workflows, err := s.ws.ListWorkflows(ctx)
	if err != nil {
		return toolError(err), nil
	}
	settings, err := s.ws.Settings()
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"workflows":           workflows,
		"default_workflow_id": settings.DefaultWorkflowID,
		"total":               len(workflows),
	}), nil
}

func (s *Server) handleWorkflowGet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	workflowID, err := s.workflowID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	var version model.WorkflowVersion
	if versionID := request.GetString("version_id", ""); versionID != "" {
		version, err = s.ws.GetVersion(ctx, workflowID, versionID)
	} else {
		version, err = s.ws.GetCurrent(ctx, workflowID)
	}
	if err != nil {
		return toolError(err), nil
	}

	if request.GetBool("verify", false) {
		if err := s.ws.VerifyVersion(ctx, workflowID, version.VersionID); err != nil {
			return toolError(err), nil
		}
	}
	return jsonResult(version), nil
}

func (s *Server) handleWorkflowVersions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	workflowID, err := s.workflowID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	wf, err := s.ws.GetWorkflow(ctx, workflowID)
	if err != nil {
		return toolError(err), nil
	}
	versions, err := s.ws.ListVersions(ctx, workflowID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"workflow_id":        workflowID,
		"current_version_id": wf.CurrentVersionID,
		"versions":           versions,
	}), nil
}

func (s *Server) handleWorkflowSet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	workflowID, err := s.workflowID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	var doc model.WorkflowVersion
	ok, err := decodeArg(request, "workflow", &doc)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if !ok {
		return errorResult("workflow is required"), nil
	}
	name := request.GetString("name", "")
	if name != "" {
		doc.Name = name
	}

	created := false
	var versionID string
	_, err = s.ws.GetWorkflow(ctx, workflowID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		wf, cerr := s.ws.CreateWorkflow(ctx, workflowID, name, doc)
		if cerr != nil {
			return toolError(cerr), nil
		}
		created, versionID = true, wf.CurrentVersionID
	case err != nil:
		return toolError(err), nil
	default:
		versionID, err = s.ws.SetVersion(ctx, workflowID, doc)
		if err != nil {
			return toolError(err), nil
		}
	}

	return jsonResult(map[string]any{
		"workflow_id": workflowID,
		"version_id":  versionID,
		"created":     created,
	}), nil
}

func (s *Server) handleWorkflowSetCurrent(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if res := requireStrings(request, "version_id"); res != nil {
		return res, nil
	}
	workflowID, err := s.workflowID(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	versionID := request.GetString("version_id", "")
	if err := s.ws.SetCurrent(ctx, workflowID, versionID); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"workflow_id":        workflowID,
		"current_version_id": versionID,
	}), nil
}
