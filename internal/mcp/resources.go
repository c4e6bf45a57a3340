package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/meitarbe/cognetivy/internal/model"
)

const (
	resourceScheme    = "cognetivy://"
	workspaceURI      = resourceScheme + "workspace"
	workflowCurrentRT = resourceScheme + "workflows/{id}/current"
	runEventsRT       = resourceScheme + "runs/{id}/events"
	runCollectionRT   = resourceScheme + "runs/{id}/collections/{kind}"
)

func (s *Server) registerResources() {
	// cognetivy://workspace: workspace location, settings and client roots.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			workspaceURI,
			"Workspace",
			mcplib.WithResourceDescription("Workspace location, settings, and workflows"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleWorkspaceResource,
	)

	// cognetivy://workflows/{id}/current: the current version of a workflow.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			workflowCurrentRT,
			"Current Workflow Version",
			mcplib.WithTemplateDescription("The current version of a workflow"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleWorkflowCurrentResource,
	)

	// cognetivy://runs/{id}/events: a run's event log.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			runEventsRT,
			"Run Events",
			mcplib.WithTemplateDescription("A run's events in append order"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleRunEventsResource,
	)

	// cognetivy://runs/{id}/collections/{kind}: one collection of a run.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			runCollectionRT,
			"Run Collection",
			mcplib.WithTemplateDescription("The items of one collection kind in a run"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleRunCollectionResource,
	)
}

// parseResourceURI matches uri against a template of the form
// "cognetivy://a/{x}/b/{y}" and returns the path parameters in order.
// Parameters must be non-empty and may not contain '/'.
func parseResourceURI(template, uri string) ([]string, error) {
	tparts := strings.Split(strings.TrimPrefix(template, resourceScheme), "/")
	rest, ok := strings.CutPrefix(uri, resourceScheme)
	if !ok {
		return nil, fmt.Errorf("mcp: invalid resource URI: %s", uri)
	}
	uparts := strings.Split(rest, "/")
	if len(uparts) != len(tparts) {
		return nil, fmt.Errorf("mcp: invalid resource URI: %s", uri)
	}
	var params []string
	for i, tp := range tparts {
		if strings.HasPrefix(tp, "{") && strings.HasSuffix(tp, "}") {
			if uparts[i] == "" {
				return nil, fmt.Errorf("mcp: empty %s in resource URI: %s", strings.Trim(tp, "{}"), uri)
			}
			params = append(params, uparts[i])
			continue
		}
		if uparts[i] != tp {
			return nil, fmt.Errorf("mcp: invalid resource URI: %s", uri)
		}
	}
	return params, nil
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleWorkspaceResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	settings, err := s.ws.Settings()
	if err != nil {
		return nil, fmt.Errorf("mcp: workspace settings: %w", err)
	}
	workflows, err := s.ws.ListWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: list workflows: %w", err)
	}

	body := map[string]any{
		"root":        s.ws.Root(),
		"project_dir": s.ws.ProjectDir(),
		"settings":    settings,
		"workflows":   workflows,
	}
	if roots := s.rootsFor(ctx); len(roots.URIs) > 0 {
		body["client_roots"] = roots.URIs
		if roots.conflictsWith(s.ws.ProjectDir()) {
			body["warning"] = fmt.Sprintf("client root %s differs from the workspace project directory %s", roots.ProjectDir, s.ws.ProjectDir())
		}
	}
	return jsonResource(workspaceURI, body)
}

func (s *Server) handleWorkflowCurrentResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	params, err := parseResourceURI(workflowCurrentRT, uri)
	if err != nil {
		return nil, err
	}
	version, err := s.ws.GetCurrent(ctx, params[0])
	if err != nil {
		return nil, fmt.Errorf("mcp: current workflow: %w", err)
	}
	return jsonResource(uri, version)
}

func (s *Server) handleRunEventsResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	params, err := parseResourceURI(runEventsRT, uri)
	if err != nil {
		return nil, err
	}
	events, err := s.ws.ListEvents(ctx, params[0], model.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("mcp: run events: %w", err)
	}
	return jsonResource(uri, map[string]any{
		"run_id": params[0],
		"events": events,
	})
}

func (s *Server) handleRunCollectionResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	params, err := parseResourceURI(runCollectionRT, uri)
	if err != nil {
		return nil, err
	}
	c, err := s.ws.ReadCollection(ctx, params[0], params[1])
	if err != nil {
		return nil, fmt.Errorf("mcp: run collection: %w", err)
	}
	return jsonResource(uri, c)
}
