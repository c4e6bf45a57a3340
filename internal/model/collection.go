package model

import (
	"sort"
	"time"
)

// KindRunInput is the system kind that holds a run's own input. Items of
// system kinds carry no node provenance.
const KindRunInput = "run_input"

// Fields stamped onto every stored collection item.
const (
	FieldID                    = "id"
	FieldCreatedAt             = "created_at"
	FieldCreatedByNodeID       = "created_by_node_id"
	FieldCreatedByNodeResultID = "created_by_node_result_id"
)

// KindSchema describes the structure required of every item of one kind.
type KindSchema struct {
	Description string            `json:"description"`
	ItemSchema  map[string]any    `json:"item_schema"`
	Required    []string          `json:"required"`
	References  map[string]string `json:"references,omitempty"`
	Global      bool              `json:"global,omitempty"`
}

// CollectionSchema is the per-workflow map of collection kinds.
type CollectionSchema struct {
	WorkflowID string                `json:"workflow_id"`
	Kinds      map[string]KindSchema `json:"kinds"`
}

// KindNames returns the defined kinds in sorted order.
func (c CollectionSchema) KindNames() []string {
	names := make([]string, 0, len(c.Kinds))
	for name := range c.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provenance links a collection item to the node and result that wrote it.
type Provenance struct {
	NodeID       string
	NodeResultID string
}

// Item is one stored collection entry: the caller's payload plus stamped
// id, timestamp and provenance fields.
type Item map[string]any

// ID returns the item's identifier.
func (it Item) ID() string {
	s, _ := it[FieldID].(string)
	return s
}

// CreatedByNodeID returns the node that wrote the item.
func (it Item) CreatedByNodeID() string {
	s, _ := it[FieldCreatedByNodeID].(string)
	return s
}

// CreatedByNodeResultID returns the node result that wrote the item.
func (it Item) CreatedByNodeResultID() string {
	s, _ := it[FieldCreatedByNodeResultID].(string)
	return s
}

// Collection is the per-(run, kind) ordered list of items.
type Collection struct {
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	UpdatedAt time.Time `json:"updated_at"`
	Items     []Item    `json:"items"`
}

// ItemIDs returns the ids of all items in order.
func (c Collection) ItemIDs() []string {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ID()
	}
	return ids
}
