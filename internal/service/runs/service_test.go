package runs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meitarbe/cognetivy/internal/ctxutil"
	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/service/runs"
	"github.com/meitarbe/cognetivy/internal/storage"
	"github.com/meitarbe/cognetivy/internal/testutil"
)

func TestStart_SeedsInputAndRecordsEvent(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "retrieve", "synthesize")
	svc := runs.New(ws, testutil.TestLogger())

	run, err := svc.Start(ctx, runs.StartInput{WorkflowID: "wf", Input: map[string]any{"topic": "x"}, By: "planner"})
	require.NoError(t, err)
	assert.Regexp(t, `^run_[0-9a-f]{8}$`, run.RunID)
	assert.Equal(t, "v1", run.WorkflowVersionID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	input, err := ws.ReadCollection(ctx, run.RunID, model.KindRunInput)
	require.NoError(t, err)
	require.Len(t, input.Items, 1)
	assert.Equal(t, "x", input.Items[0]["topic"])

	events, err := ws.ListEvents(ctx, run.RunID, model.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventRunStarted, events[0].Type)
	assert.Equal(t, "planner", events[0].By)
	assert.Equal(t, "v1", events[0].Data["workflow_version_id"])
}

func TestStart_ExplicitIDsAndDefaults(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a")
	svc := runs.New(ws, testutil.TestLogger())

	_, err := svc.Start(ctx, runs.StartInput{})
	assert.Error(t, err, "no workflow and no default")

	require.NoError(t, ws.SaveSettings(storage.Settings{DefaultWorkflowID: "wf"}))
	run, err := svc.Start(ctxutil.WithActor(ctx, "ctx-actor"), runs.StartInput{RunID: "run-1", VersionID: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, "wf", run.WorkflowID)

	kinds, err := ws.ListKinds(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, kinds, "empty input seeds nothing")

	events, err := ws.ListEvents(ctx, "run-1", model.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ctx-actor", events[0].By)

	_, err = svc.Start(ctx, runs.StartInput{RunID: "run-1", WorkflowID: "wf"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = svc.Start(ctx, runs.StartInput{WorkflowID: "ghost"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestComplete(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a")
	svc := runs.New(ws, testutil.TestLogger())

	run, err := svc.Start(ctx, runs.StartInput{WorkflowID: "wf", RunID: "run-1"})
	require.NoError(t, err)

	answer := "done"
	run, err = svc.Complete(ctx, run.RunID, &answer, "")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	require.NotNil(t, run.FinalAnswer)
	assert.Equal(t, "done", *run.FinalAnswer)

	events, err := ws.ListEvents(ctx, "run-1", model.EventFilter{Type: model.EventRunCompleted})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "done", events[0].Data["final_answer"])
	assert.Equal(t, model.DefaultActor, events[0].By)

	_, err = svc.Complete(ctx, "run-1", nil, "")
	assert.ErrorIs(t, err, storage.ErrInvalidState)

	all, err := ws.ListEvents(ctx, "run-1", model.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "a rejected completion appends nothing")

	_, err = svc.Complete(ctx, "ghost", nil, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
