package model

import "time"

// EventType names what happened. The set is open; these are the values the
// lifecycle protocols emit.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventRunCompleted  EventType = "run_completed"
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventArtifact      EventType = "artifact"
)

// DefaultActor is recorded as the author of events when no actor is known.
const DefaultActor = "agent"

// Event is one immutable line of a run's event log.
type Event struct {
	TS   time.Time      `json:"ts"`
	Type EventType      `json:"type"`
	By   string         `json:"by"`
	Data map[string]any `json:"data"`
}

// Step returns the node id a step-scoped event refers to, read from
// data.step or, failing that, data.step_id.
func (e Event) Step() string {
	for _, key := range []string{"step", "step_id"} {
		if v, ok := e.Data[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// EventFilter narrows ListEvents results. Zero values match everything.
type EventFilter struct {
	Type EventType
	Step string
}

// Match reports whether e satisfies the filter.
func (f EventFilter) Match(e Event) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Step != "" && e.Step() != f.Step {
		return false
	}
	return true
}
