// Package model defines the documents persisted in a cognetivy workspace.
//
// Every type here maps one-to-one onto a JSON document (or one line of an
// event log) on disk. Field names follow the on-disk snake_case keys so the
// dashboard and other readers can consume the files without this package.
package model

import (
	"strconv"
	"strings"
	"time"
)

// Contract declares the named inputs a node consumes and the outputs it produces.
type Contract struct {
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

// Node is one step of a workflow version.
type Node struct {
	ID                string   `json:"id"`
	Type              string   `json:"type"`
	Description       string   `json:"description,omitempty"`
	Contract          Contract `json:"contract"`
	OutputCollections []string `json:"output_collections,omitempty"`
}

// Edge is a dependency between two nodes: To runs after From.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WorkflowVersion is an immutable snapshot of a workflow graph.
type WorkflowVersion struct {
	WorkflowID string    `json:"workflow_id"`
	VersionID  string    `json:"version_id"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Nodes      []Node    `json:"nodes"`
	Edges      []Edge    `json:"edges"`
}

// Node returns the node with the given id.
func (v WorkflowVersion) Node(id string) (Node, bool) {
	for _, n := range v.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Normalize replaces nil slices with empty ones so documents serialize
// `[]` rather than `null`.
func (v *WorkflowVersion) Normalize() {
	if v.Edges == nil {
		v.Edges = []Edge{}
	}
	for i := range v.Nodes {
		if v.Nodes[i].Contract.Input == nil {
			v.Nodes[i].Contract.Input = []string{}
		}
		if v.Nodes[i].Contract.Output == nil {
			v.Nodes[i].Contract.Output = []string{}
		}
	}
}

// Workflow is the index entry for a workflow: its identity and the
// pointer to the version currently in effect.
type Workflow struct {
	WorkflowID       string            `json:"workflow_id"`
	Name             string            `json:"name,omitempty"`
	CurrentVersionID string            `json:"current_version_id"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	VersionHashes    map[string]string `json:"version_hashes,omitempty"`
}

// WorkflowIndex is the pointer document mapping workflow ids to their entries.
type WorkflowIndex struct {
	Workflows map[string]Workflow `json:"workflows"`
}

// VersionID formats the sequential version identifier for n.
func VersionID(n int) string {
	return "v" + strconv.Itoa(n)
}

// ParseVersionID returns the sequence number encoded in a version id.
func ParseVersionID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "v")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
