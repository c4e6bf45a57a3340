// Package runs starts and completes runs: it creates the run record, seeds the
// run_input collection and records the run_started / run_completed events.
//
// Both the MCP server and the root App delegate to this service so the same
// sequence of writes happens regardless of the caller.
package runs

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/meitarbe/cognetivy/internal/ctxutil"
	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/storage"
	"github.com/meitarbe/cognetivy/internal/telemetry"
)

// Service encapsulates run lifecycle logic.
type Service struct {
	ws     *storage.Workspace
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a run Service.
func New(ws *storage.Workspace, logger *slog.Logger) *Service {
	return &Service{ws: ws, logger: logger, tracer: telemetry.Tracer("cognetivy/runs")}
}

// StartInput describes a run to start. Empty WorkflowID falls back to the
// workspace's default workflow; empty VersionID to the workflow's current
// version; empty RunID to a generated one.
type StartInput struct {
	WorkflowID string
	VersionID  string
	RunID      string
	Name       string
	Input      map[string]any
	By         string
}

// Start creates the run, seeds run_input with the run's input and appends run_started.
func (s *Service) Start(ctx context.Context, in StartInput) (run model.Run, err error) {
	ctx, span := s.tracer.Start(ctx, "runs.Start")
	defer func() { telemetry.EndSpan(span, err) }()

	workflowID := in.WorkflowID
	if workflowID == "" {
		settings, err := s.ws.Settings()
		if err != nil {
			return model.Run{}, err
		}
		workflowID = settings.DefaultWorkflowID
	}
	if workflowID == "" {
		return model.Run{}, fmt.Errorf("runs: workflow_id is required (no default_workflow_id configured)")
	}
	versionID := in.VersionID
	if versionID == "" {
		wf, err := s.ws.GetWorkflow(ctx, workflowID)
		if err != nil {
			return model.Run{}, err
		}
		versionID = wf.CurrentVersionID
	}
	runID := in.RunID
	if runID == "" {
		runID = model.NewID(model.RunIDPrefix)
	}
	span.SetAttributes(
		attribute.String("cognetivy.run_id", runID),
		attribute.String("cognetivy.workflow_id", workflowID),
		attribute.String("cognetivy.version_id", versionID),
	)

	input := in.Input
	if input == nil {
		input = map[string]any{}
	}
	run, err = s.ws.CreateRun(ctx, model.Run{
		RunID:             runID,
		WorkflowID:        workflowID,
		WorkflowVersionID: versionID,
		Name:              in.Name,
		Status:            model.RunStatusRunning,
		Input:             input,
	})
	if err != nil {
		return model.Run{}, err
	}

	if len(input) > 0 {
		if _, err := s.ws.ReplaceAll(ctx, runID, model.KindRunInput, []map[string]any{input}, model.Provenance{}); err != nil {
			return model.Run{}, fmt.Errorf("runs: seed run input: %w", err)
		}
	}

	if _, err := s.ws.AppendEvent(ctx, runID, model.Event{
		Type: model.EventRunStarted,
		By:   ctxutil.ResolveActor(ctx, in.By, model.DefaultActor),
		Data: map[string]any{
			"workflow_id":         workflowID,
			"workflow_version_id": versionID,
			"input":               input,
		},
	}); err != nil {
		return model.Run{}, err
	}

	s.logger.Info("run started", "run_id", runID, "workflow_id", workflowID, "version_id", versionID)
	return run, nil
}

// Complete marks a running run completed, stores finalAnswer when given and
// appends run_completed. Completing a run twice fails with InvalidState.
func (s *Service) Complete(ctx context.Context, runID string, finalAnswer *string, by string) (run model.Run, err error) {
	ctx, span := s.tracer.Start(ctx, "runs.Complete")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("cognetivy.run_id", runID))

	current, err := s.ws.ReadRun(ctx, runID)
	if err != nil {
		return model.Run{}, err
	}
	if current.Status == model.RunStatusCompleted {
		return model.Run{}, &storage.InvalidStateError{
			Entity: "run", ID: runID, Status: string(current.Status), Expected: string(model.RunStatusRunning),
		}
	}

	completed := model.RunStatusCompleted
	run, err = s.ws.UpdateRun(ctx, runID, model.RunUpdate{Status: &completed, FinalAnswer: finalAnswer})
	if err != nil {
		return model.Run{}, err
	}

	data := map[string]any{}
	if finalAnswer != nil {
		data["final_answer"] = *finalAnswer
	}
	if _, err := s.ws.AppendEvent(ctx, runID, model.Event{
		Type: model.EventRunCompleted,
		By:   ctxutil.ResolveActor(ctx, by, model.DefaultActor),
		Data: data,
	}); err != nil {
		return model.Run{}, err
	}

	s.logger.Info("run completed", "run_id", runID)
	return run, nil
}
