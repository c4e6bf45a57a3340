package storage_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/storage"
	"github.com/meitarbe/cognetivy/internal/testutil"
)

func TestCreateRun(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a")

	run, err := ws.CreateRun(ctx, model.Run{RunID: "run-1", WorkflowID: "wf", WorkflowVersionID: "v1"})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NotNil(t, run.Input)
	assert.False(t, run.CreatedAt.IsZero())

	got, err := ws.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))

	exists, err := ws.RunExists(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = ws.RunExists(ctx, "run-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateRun_DuplicateIsConflict(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	testutil.SeedWorkflow(t, ws, "wf", "a")
	testutil.SeedRun(t, ws, "wf", "run-1")

	_, err := ws.CreateRun(context.Background(), model.Run{RunID: "run-1", WorkflowID: "wf", WorkflowVersionID: "v1"})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestCreateRun_RequiresExistingVersion(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a")

	_, err := ws.CreateRun(ctx, model.Run{RunID: "run-1", WorkflowID: "wf", WorkflowVersionID: "v3"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = ws.CreateRun(ctx, model.Run{RunID: "run-1", WorkflowID: "nope", WorkflowVersionID: "v1"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateRun_StatusIsMonotonic(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a")
	testutil.SeedRun(t, ws, "wf", "run-1")

	completed := model.RunStatusCompleted
	answer := "42"
	run, err := ws.UpdateRun(ctx, "run-1", model.RunUpdate{Status: &completed, FinalAnswer: &answer})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	require.NotNil(t, run.FinalAnswer)
	assert.Equal(t, "42", *run.FinalAnswer)

	running := model.RunStatusRunning
	_, err = ws.UpdateRun(ctx, "run-1", model.RunUpdate{Status: &running})
	var stateErr *storage.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "completed", stateErr.Status)
	assert.ErrorIs(t, err, storage.ErrInvalidState)

	got, err := ws.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)

	name := "renamed"
	got, err = ws.UpdateRun(ctx, "run-1", model.RunUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, "42", *got.FinalAnswer)
}

func TestUpdateRun_NotFound(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	name := "x"
	_, err := ws.UpdateRun(context.Background(), "ghost", model.RunUpdate{Name: &name})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListRuns_FilterAndOrder(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a")
	testutil.SeedWorkflow(t, ws, "other", "a")
	testutil.SeedRun(t, ws, "wf", "run-b")
	testutil.SeedRun(t, ws, "other", "run-a")
	testutil.SeedRun(t, ws, "wf", "run-c")

	completed := model.RunStatusCompleted
	_, err := ws.UpdateRun(ctx, "run-c", model.RunUpdate{Status: &completed})
	require.NoError(t, err)

	all, err := ws.ListRuns(ctx, model.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"run-b", "run-a", "run-c"}, []string{all[0].RunID, all[1].RunID, all[2].RunID})

	wf, err := ws.ListRuns(ctx, model.RunFilter{WorkflowID: "wf", Status: model.RunStatusRunning})
	require.NoError(t, err)
	require.Len(t, wf, 1)
	assert.Equal(t, "run-b", wf[0].RunID)
}

func TestAppendEvent_RequiresRun(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	_, err := ws.AppendEvent(context.Background(), "ghost", model.Event{Type: model.EventArtifact})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAppendEvent_AppendOrderAndFilters(t *testing.T) {
	var observed []model.EventType
	ws := testutil.NewWorkspace(t, storage.WithEventObserver(func(_ context.Context, runID string, ev model.Event) {
		observed = append(observed, ev.Type)
	}))
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a", "b")
	testutil.SeedRun(t, ws, "wf", "run-1")

	events := []model.Event{
		{Type: model.EventRunStarted, By: "agent"},
		{Type: model.EventStepStarted, By: "agent", Data: map[string]any{"step": "a"}},
		{Type: model.EventStepCompleted, By: "agent", Data: map[string]any{"step": "a"}},
		{Type: model.EventStepStarted, By: "agent", Data: map[string]any{"step_id": "b"}},
	}
	for _, ev := range events {
		stored, err := ws.AppendEvent(ctx, "run-1", ev)
		require.NoError(t, err)
		assert.False(t, stored.TS.IsZero())
		assert.NotNil(t, stored.Data)
	}

	all, err := ws.ListEvents(ctx, "run-1", model.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := range events {
		assert.Equal(t, events[i].Type, all[i].Type)
	}
	assert.True(t, all[0].TS.Before(all[3].TS))
	assert.Equal(t, []model.EventType{model.EventRunStarted, model.EventStepStarted, model.EventStepCompleted, model.EventStepStarted}, observed)

	stepA, err := ws.ListEvents(ctx, "run-1", model.EventFilter{Step: "a"})
	require.NoError(t, err)
	assert.Len(t, stepA, 2)

	startedB, err := ws.ListEvents(ctx, "run-1", model.EventFilter{Type: model.EventStepStarted, Step: "b"})
	require.NoError(t, err)
	assert.Len(t, startedB, 1)

	_, err = ws.AppendEvent(ctx, "run-1", model.Event{})
	assert.Error(t, err, "type is required")
}

func TestAppendEvent_ConcurrentAppendsStayLineAligned(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a")
	testutil.SeedRun(t, ws, "wf", "run-1")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ws.AppendEvent(ctx, "run-1", model.Event{
				Type: model.EventArtifact,
				By:   "agent",
				Data: map[string]any{"i": i},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	f, err := os.Open(filepath.Join(ws.Root(), "events", "run-1.ndjson"))
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev), "line %d", lines)
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, n, lines)
}

func TestEventLogDigest(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a")
	testutil.SeedRun(t, ws, "wf", "run-1")

	root, count, err := ws.EventLogDigest(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, root)
	assert.Zero(t, count)

	for i := 0; i < 3; i++ {
		_, err := ws.AppendEvent(ctx, "run-1", model.Event{Type: model.EventArtifact, Data: map[string]any{"i": i}})
		require.NoError(t, err)
	}
	root, count, err = ws.EventLogDigest(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Contains(t, root, "sha256:")

	again, _, err := ws.EventLogDigest(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, root, again)

	_, err = ws.AppendEvent(ctx, "run-1", model.Event{Type: model.EventArtifact})
	require.NoError(t, err)
	grown, count, err := ws.EventLogDigest(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NotEqual(t, root, grown)
}

func TestNodeResults(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a", "b")
	testutil.SeedRun(t, ws, "wf", "run-1")

	_, err := ws.ReadNodeResult(ctx, "run-1", "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, node := range []string{"b", "a"} {
		require.NoError(t, ws.WriteNodeResult(ctx, model.NodeResult{
			NodeResultID:      fmt.Sprintf("nr-%s", node),
			RunID:             "run-1",
			WorkflowID:        "wf",
			WorkflowVersionID: "v1",
			NodeID:            node,
			Status:            model.NodeStatusStarted,
			StartedAt:         base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := ws.ListNodeResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].NodeID)
	assert.Equal(t, "a", list[1].NodeID)

	terminal := model.NodeResult{
		NodeResultID: "nr-a", RunID: "run-1", WorkflowID: "wf", WorkflowVersionID: "v1",
		NodeID: "a", Status: model.NodeStatusCompleted, StartedAt: base,
	}
	assert.Error(t, ws.WriteNodeResult(ctx, terminal), "terminal status requires completed_at")

	done := base.Add(time.Hour)
	terminal.CompletedAt = &done
	terminal.Output = "ok"
	require.NoError(t, ws.WriteNodeResult(ctx, terminal))

	got, err := ws.ReadNodeResult(ctx, "run-1", "a")
	require.NoError(t, err)
	assert.Equal(t, model.NodeStatusCompleted, got.Status)
	assert.Equal(t, "ok", got.Output)
	require.NotNil(t, got.CompletedAt)

	started := terminal
	started.Status = model.NodeStatusStarted
	assert.Error(t, ws.WriteNodeResult(ctx, started), "started status forbids completed_at")

	orphan := terminal
	orphan.RunID = "ghost"
	assert.ErrorIs(t, ws.WriteNodeResult(ctx, orphan), storage.ErrNotFound)
}
