// Package testutil provides shared fixtures for tests that need an
// initialized workspace on disk.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    ws := testutil.NewWorkspace(t)
//	    testutil.SeedWorkflow(t, ws, "wf", "retrieve", "synthesize")
//	    ...
//	}
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/storage"
)

// TestLogger returns a logger that discards all output.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Clock is a deterministic clock that advances by Step on every call.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewClock returns a clock starting at start and advancing one second per reading.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC(), Step: time.Second}
}

// Now returns the current reading and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Epoch is the fixed start time used by NewWorkspace.
var Epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// NewWorkspace opens and initializes a workspace in a temp directory that is
// removed when the test ends. Timestamps come from a deterministic clock
// unless opts supplies another.
func NewWorkspace(t testing.TB, opts ...storage.Option) *storage.Workspace {
	t.Helper()
	all := append([]storage.Option{storage.WithClock(NewClock(Epoch).Now)}, opts...)
	ws, err := storage.Open(t.TempDir(), TestLogger(), all...)
	require.NoError(t, err)
	require.NoError(t, ws.Init(context.Background()))
	return ws
}

// LinearWorkflow builds a version whose nodes run in the given order.
func LinearWorkflow(nodeIDs ...string) model.WorkflowVersion {
	v := model.WorkflowVersion{Nodes: []model.Node{}, Edges: []model.Edge{}}
	for i, id := range nodeIDs {
		v.Nodes = append(v.Nodes, model.Node{
			ID:       id,
			Type:     "TASK",
			Contract: model.Contract{Input: []string{}, Output: []string{}},
		})
		if i > 0 {
			v.Edges = append(v.Edges, model.Edge{From: nodeIDs[i-1], To: id})
		}
	}
	return v
}

// SeedWorkflow creates a workflow whose v1 is LinearWorkflow(nodeIDs...).
func SeedWorkflow(t testing.TB, ws *storage.Workspace, workflowID string, nodeIDs ...string) model.Workflow {
	t.Helper()
	wf, err := ws.CreateWorkflow(context.Background(), workflowID, workflowID, LinearWorkflow(nodeIDs...))
	require.NoError(t, err)
	return wf
}

// SeedRun creates a running run against the workflow's current version.
func SeedRun(t testing.TB, ws *storage.Workspace, workflowID, runID string) model.Run {
	t.Helper()
	ctx := context.Background()
	wf, err := ws.GetWorkflow(ctx, workflowID)
	require.NoError(t, err)
	run, err := ws.CreateRun(ctx, model.Run{
		RunID:             runID,
		WorkflowID:        workflowID,
		WorkflowVersionID: wf.CurrentVersionID,
		Input:             map[string]any{},
	})
	require.NoError(t, err)
	return run
}
