package mcp

import (
	"sync"
	"time"
)

// maxTrackedChecks triggers a purge of expired entries.
const maxTrackedChecks = 1000

// schemaTracker records recent cognetivy_schema_get calls so collection
// writes can nudge callers that write without reading the schema first.
//
// Entries are keyed on (actor, workflowID) and expire after window. The
// tracker is in-memory and per-process; the nudge is advisory only.
type schemaTracker struct {
	mu     sync.Mutex
	checks map[checkKey]time.Time
	window time.Duration
	now    func() time.Time
}

type checkKey struct {
	actor      string
	workflowID string
}

func newSchemaTracker(window time.Duration) *schemaTracker {
	return &schemaTracker{
		checks: make(map[checkKey]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Record notes that actor read the collection schema of workflowID.
func (t *schemaTracker) Record(actor, workflowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checks[checkKey{actor, workflowID}] = t.now()

	if len(t.checks) > maxTrackedChecks {
		t.purgeStale()
	}
}

// WasChecked reports whether actor read workflowID's schema within the window.
func (t *schemaTracker) WasChecked(actor, workflowID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := checkKey{actor, workflowID}
	ts, ok := t.checks[key]
	if !ok {
		return false
	}
	if t.now().Sub(ts) > t.window {
		delete(t.checks, key)
		return false
	}
	return true
}

// purgeStale removes expired entries. Must be called with mu held.
func (t *schemaTracker) purgeStale() {
	now := t.now()
	for k, ts := range t.checks {
		if now.Sub(ts) > t.window {
			delete(t.checks, k)
		}
	}
}
