package cognetivy

import "time"

// Event types written by the ledger itself. Callers may append events of any
// other type.
const (
	EventRunStarted    = "run_started"
	EventRunCompleted  = "run_completed"
	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
)

// Event is the public representation of one line of a run's event log.
// No internal package imports, so it is safe to use from outside the module.
// Data is a copy; hooks may modify it freely.
type Event struct {
	TS   time.Time
	Type string
	By   string
	Data map[string]any
}
