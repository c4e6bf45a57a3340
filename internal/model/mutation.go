package model

import (
	"encoding/json"
	"time"
)

// MutationStatus is the lifecycle state of a proposed workflow change.
type MutationStatus string

const (
	MutationStatusProposed MutationStatus = "proposed"
	MutationStatusApplied  MutationStatus = "applied"
)

// MutationTarget names the workflow version a patch was written against.
type MutationTarget struct {
	WorkflowID  string `json:"workflow_id"`
	FromVersion string `json:"from_version"`
}

// Mutation is a proposed (and possibly applied) JSON Patch against a workflow version.
type Mutation struct {
	MutationID       string          `json:"mutation_id"`
	Target           MutationTarget  `json:"target"`
	Patch            json.RawMessage `json:"patch"`
	Reason           string          `json:"reason"`
	Status           MutationStatus  `json:"status"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	AppliedToVersion string          `json:"applied_to_version,omitempty"`
}

// MutationFilter narrows ListMutations results. Zero values match everything.
type MutationFilter struct {
	WorkflowID string
	Status     MutationStatus
}

// Match reports whether m satisfies the filter.
func (f MutationFilter) Match(m Mutation) bool {
	if f.WorkflowID != "" && m.Target.WorkflowID != f.WorkflowID {
		return false
	}
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	return true
}
