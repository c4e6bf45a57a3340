package model

import "time"

// NodeStatus is the lifecycle state of a node within a run.
type NodeStatus string

const (
	NodeStatusStarted    NodeStatus = "started"
	NodeStatusCompleted  NodeStatus = "completed"
	NodeStatusFailed     NodeStatus = "failed"
	NodeStatusNeedsHuman NodeStatus = "needs_human"
)

// Terminal reports whether s ends the node's lifecycle.
func (s NodeStatus) Terminal() bool {
	switch s {
	case NodeStatusCompleted, NodeStatusFailed, NodeStatusNeedsHuman:
		return true
	}
	return false
}

// Valid reports whether s is a known node status.
func (s NodeStatus) Valid() bool {
	return s == NodeStatusStarted || s.Terminal()
}

// CollectionWrite records which items a node wrote into one collection kind.
type CollectionWrite struct {
	Kind    string   `json:"kind"`
	ItemIDs []string `json:"item_ids"`
}

// NodeResult is the current outcome snapshot for one node within one run.
type NodeResult struct {
	NodeResultID      string            `json:"node_result_id"`
	RunID             string            `json:"run_id"`
	WorkflowID        string            `json:"workflow_id"`
	WorkflowVersionID string            `json:"workflow_version_id"`
	NodeID            string            `json:"node_id"`
	Status            NodeStatus        `json:"status"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	Output            any               `json:"output,omitempty"`
	Writes            []CollectionWrite `json:"writes,omitempty"`
}
