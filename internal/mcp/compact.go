package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meitarbe/cognetivy/internal/model"
)

const maxCompactText = 200

// compactRun returns a minimal representation of a run for list responses.
// The input is reduced to its key names and the final answer is truncated.
func compactRun(r model.Run) map[string]any {
	m := map[string]any{
		"run_id":              r.RunID,
		"workflow_id":         r.WorkflowID,
		"workflow_version_id": r.WorkflowVersionID,
		"status":              r.Status,
		"created_at":          r.CreatedAt,
	}
	if r.Name != "" {
		m["name"] = r.Name
	}
	if len(r.Input) > 0 {
		keys := make([]string, 0, len(r.Input))
		for k := range r.Input {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m["input_keys"] = keys
	}
	if r.FinalAnswer != nil && *r.FinalAnswer != "" {
		m["final_answer"] = truncate(*r.FinalAnswer, maxCompactText)
	}
	return m
}

// compactEvent truncates long top-level string values in the event data.
func compactEvent(e model.Event) map[string]any {
	data := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		if s, ok := v.(string); ok {
			data[k] = truncate(s, maxCompactText)
			continue
		}
		data[k] = v
	}
	return map[string]any{
		"ts":   e.TS,
		"type": e.Type,
		"by":   e.By,
		"data": data,
	}
}

// generateRunSummary creates a short human-readable synthesis of a run's
// state. Template-based: node status counts, collection sizes, event count.
func generateRunSummary(run model.Run, results []model.NodeResult, counts map[string]int, events int) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Run %s is %s on %s@%s.", run.RunID, run.Status, run.WorkflowID, run.WorkflowVersionID))

	if len(results) == 0 {
		parts = append(parts, "No steps recorded yet.")
	} else {
		byStatus := map[model.NodeStatus]int{}
		var waiting []string
		for _, r := range results {
			byStatus[r.Status]++
			if r.Status == model.NodeStatusNeedsHuman {
				waiting = append(waiting, r.NodeID)
			}
		}
		var counted []string
		for _, st := range []model.NodeStatus{
			model.NodeStatusCompleted, model.NodeStatusStarted, model.NodeStatusFailed, model.NodeStatusNeedsHuman,
		} {
			if n := byStatus[st]; n > 0 {
				counted = append(counted, fmt.Sprintf("%d %s", n, st))
			}
		}
		parts = append(parts, fmt.Sprintf("%d step(s): %s.", len(results), strings.Join(counted, ", ")))
		if len(waiting) > 0 {
			parts = append(parts, fmt.Sprintf("Waiting on a human: %s.", strings.Join(waiting, ", ")))
		}
	}

	if len(counts) > 0 {
		kinds := make([]string, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		sizes := make([]string, len(kinds))
		for i, k := range kinds {
			sizes[i] = fmt.Sprintf("%s=%d", k, counts[k])
		}
		parts = append(parts, "Collections: "+strings.Join(sizes, ", ")+".")
	}

	parts = append(parts, fmt.Sprintf("%d event(s).", events))
	return strings.Join(parts, " ")
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
