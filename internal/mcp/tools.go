package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTools() {
	s.registerWorkflowTools()
	s.registerRunTools()
	s.registerNodeTools()
	s.registerCollectionTools()
	s.registerMutationTools()
}

// byArg is the optional actor override accepted by every mutating tool.
func byArg() mcplib.ToolOption {
	return mcplib.WithString("by",
		mcplib.Description("Who is acting. Defaults to the identity of the connection, then the workspace actor."),
	)
}

// workflowIDArg is the optional workflow selector; omitted means the
// workspace's default_workflow_id.
func workflowIDArg() mcplib.ToolOption {
	return mcplib.WithString("workflow_id",
		mcplib.Description("Workflow identifier. Defaults to default_workflow_id from the workspace config.yaml."),
	)
}

// workflowID returns the workflow_id argument, falling back to the
// workspace default.
func (s *Server) workflowID(request mcplib.CallToolRequest) (string, error) {
	if id := strings.TrimSpace(request.GetString("workflow_id", "")); id != "" {
		return id, nil
	}
	settings, err := s.ws.Settings()
	if err != nil {
		return "", err
	}
	if settings.DefaultWorkflowID == "" {
		return "", fmt.Errorf("workflow_id is required (no default_workflow_id configured)")
	}
	return settings.DefaultWorkflowID, nil
}

// rawArg returns the JSON encoding of an argument. Structured arguments may
// arrive either as JSON values or as strings containing JSON.
func rawArg(request mcplib.CallToolRequest, key string) (json.RawMessage, bool, error) {
	v, ok := request.GetArguments()[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	if str, isString := v.(string); isString {
		str = strings.TrimSpace(str)
		if str == "" {
			return nil, false, nil
		}
		if !json.Valid([]byte(str)) {
			return nil, true, fmt.Errorf("%s is not valid JSON", key)
		}
		return json.RawMessage(str), true, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, true, fmt.Errorf("%s: %w", key, err)
	}
	return data, true, nil
}

// decodeArg unmarshals a structured argument into target. It reports
// whether the argument was present.
func decodeArg(request mcplib.CallToolRequest, key string, target any) (bool, error) {
	raw, ok, err := rawArg(request, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return true, fmt.Errorf("%s: %w", key, err)
	}
	return true, nil
}

// stringListArg accepts an array of strings or a comma-separated string.
func stringListArg(request mcplib.CallToolRequest, key string) ([]string, error) {
	v, ok := request.GetArguments()[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case string:
		var out []string
		for _, part := range strings.Split(list, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, e := range list {
			str, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", key, i)
			}
			out = append(out, str)
		}
		return out, nil
	case []string:
		return list, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
}

// requireStrings returns an error result naming every missing argument.
func requireStrings(request mcplib.CallToolRequest, keys ...string) *mcplib.CallToolResult {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(request.GetString(k, "")) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return errorResult(strings.Join(missing, ", ") + " required")
}

// schemaHint returns a nudge when actor writes into workflowID's collections
// without having read the schema recently.
func (s *Server) schemaHint(actor, workflowID string) string {
	if workflowID == "" || s.schemaChecks.WasChecked(actor, workflowID) {
		return ""
	}
	return fmt.Sprintf("Call cognetivy_schema_get for workflow %q before writing collections to see each kind's required fields.", workflowID)
}

func withHint(result map[string]any, hint string) map[string]any {
	if hint != "" {
		result["hint"] = hint
	}
	return result
}

// readOnly marks a tool as a pure read over the local workspace.
func readOnly() []mcplib.ToolOption {
	return []mcplib.ToolOption{
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithIdempotentHintAnnotation(true),
		mcplib.WithOpenWorldHintAnnotation(false),
	}
}

func tool(name, description string, opts ...mcplib.ToolOption) mcplib.Tool {
	return mcplib.NewTool(name, append([]mcplib.ToolOption{mcplib.WithDescription(description)}, opts...)...)
}
