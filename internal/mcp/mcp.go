// Package mcp implements the Model Context Protocol server for Cognetivy.
//
// The MCP server is the agent-facing surface of the state ledger: every
// workspace operation (workflow versions, runs, events, node results,
// collections, schemas and mutations) is exposed as a tool, and the most
// common reads are also available as resources.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/meitarbe/cognetivy/internal/ctxutil"
	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/service/mutations"
	"github.com/meitarbe/cognetivy/internal/service/nodes"
	"github.com/meitarbe/cognetivy/internal/service/runs"
	"github.com/meitarbe/cognetivy/internal/storage"
)

// schemaCheckWindow is how long a cognetivy_schema_get call counts as
// "recent" when deciding whether to nudge a writer.
const schemaCheckWindow = 30 * time.Minute

// Server wraps the MCP server with Cognetivy's service layer.
type Server struct {
	mcpServer    *mcpserver.MCPServer
	ws           *storage.Workspace
	runs         *runs.Service
	nodes        *nodes.Service
	mutations    *mutations.Service
	logger       *slog.Logger
	defaultActor string
	roots        *sessionRoots
	schemaChecks *schemaTracker
}

// New creates and configures a new MCP server with all resources, tools and prompts.
func New(ws *storage.Workspace, runSvc *runs.Service, nodeSvc *nodes.Service, mutationSvc *mutations.Service, logger *slog.Logger, version, defaultActor string) *Server {
	if defaultActor == "" {
		defaultActor = model.DefaultActor
	}
	s := &Server{
		ws:           ws,
		runs:         runSvc,
		nodes:        nodeSvc,
		mutations:    mutationSvc,
		logger:       logger,
		defaultActor: defaultActor,
		roots:        newSessionRoots(),
		schemaChecks: newSchemaTracker(schemaCheckWindow),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"cognetivy",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithHooks(s.roots.hooks()),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// actor resolves who is acting: an explicit "by" argument wins, then the
// transport-provided identity, then the configured default.
func (s *Server) actor(ctx context.Context, request mcplib.CallToolRequest) string {
	return ctxutil.ResolveActor(ctx, request.GetString("by", ""), s.defaultActor)
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	data, _ := json.Marshal(map[string]any{"error": "invalid_argument", "message": msg})
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
		IsError: true,
	}
}
