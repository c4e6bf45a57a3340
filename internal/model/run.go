package model

import "time"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
)

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	return s == RunStatusRunning || s == RunStatusCompleted
}

// rank orders statuses so transitions can be checked for regression.
func (s RunStatus) rank() int {
	if s == RunStatusCompleted {
		return 1
	}
	return 0
}

// RegressesTo reports whether moving from s to next would move the run backwards.
func (s RunStatus) RegressesTo(next RunStatus) bool {
	return next.rank() < s.rank()
}

// Run is one execution of a specific workflow version.
type Run struct {
	RunID             string         `json:"run_id"`
	WorkflowID        string         `json:"workflow_id"`
	WorkflowVersionID string         `json:"workflow_version_id"`
	Name              string         `json:"name,omitempty"`
	Status            RunStatus      `json:"status"`
	Input             map[string]any `json:"input"`
	CreatedAt         time.Time      `json:"created_at"`
	FinalAnswer       *string        `json:"final_answer,omitempty"`
}

// RunUpdate carries the fields of a partial run update. Nil fields are left untouched.
type RunUpdate struct {
	Name        *string
	Status      *RunStatus
	FinalAnswer *string
}

// RunFilter narrows ListRuns results. Zero values match everything.
type RunFilter struct {
	WorkflowID string
	Status     RunStatus
}

// Match reports whether r satisfies the filter.
func (f RunFilter) Match(r Run) bool {
	if f.WorkflowID != "" && r.WorkflowID != f.WorkflowID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}
