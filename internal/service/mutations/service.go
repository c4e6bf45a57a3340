// Package mutations implements the propose/apply protocol for structural
// changes to a workflow.
package mutations

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/meitarbe/cognetivy/internal/ctxutil"
	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/storage"
	"github.com/meitarbe/cognetivy/internal/telemetry"
)

// Service encapsulates mutation logic.
type Service struct {
	ws     *storage.Workspace
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a mutation Service.
func New(ws *storage.Workspace, logger *slog.Logger) *Service {
	return &Service{ws: ws, logger: logger, tracer: telemetry.Tracer("cognetivy/mutations")}
}

// ProposeInput describes a proposed change.
type ProposeInput struct {
	WorkflowID string
	Patch      json.RawMessage
	Reason     string
	By         string
}

// Propose records a patch against the workflow's current version. The patch
// is decoded up front so malformed documents are rejected here; whether its
// operations apply is only known at Apply time.
func (s *Service) Propose(ctx context.Context, in ProposeInput) (m model.Mutation, err error) {
	ctx, span := s.tracer.Start(ctx, "mutations.Propose")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("cognetivy.workflow_id", in.WorkflowID))

	wf, err := s.ws.GetWorkflow(ctx, in.WorkflowID)
	if err != nil {
		return model.Mutation{}, err
	}
	if _, err := storage.DecodePatch(in.Patch); err != nil {
		return model.Mutation{}, &storage.PatchError{WorkflowID: in.WorkflowID, FromVersion: wf.CurrentVersionID, Err: err}
	}

	m = model.Mutation{
		MutationID: model.NewID(model.MutationIDPrefix),
		Target:     model.MutationTarget{WorkflowID: in.WorkflowID, FromVersion: wf.CurrentVersionID},
		Patch:      in.Patch,
		Reason:     in.Reason,
		Status:     model.MutationStatusProposed,
		CreatedBy:  ctxutil.ResolveActor(ctx, in.By, model.DefaultActor),
		CreatedAt:  s.ws.Now(),
	}
	if err := s.ws.CreateMutation(ctx, m); err != nil {
		return model.Mutation{}, err
	}
	s.logger.Info("mutation proposed", "mutation_id", m.MutationID, "workflow_id", in.WorkflowID, "from_version", wf.CurrentVersionID)
	return m, nil
}

// Apply applies a proposed mutation to its from_version, moves the workflow
// pointer to the new version and marks the mutation applied. A mutation that
// is not proposed fails with InvalidState.
func (s *Service) Apply(ctx context.Context, mutationID string) (m model.Mutation, err error) {
	ctx, span := s.tracer.Start(ctx, "mutations.Apply")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("cognetivy.mutation_id", mutationID))

	m, err = s.ws.ReadMutation(ctx, mutationID)
	if err != nil {
		return model.Mutation{}, err
	}
	if m.Status != model.MutationStatusProposed {
		return model.Mutation{}, &storage.InvalidStateError{
			Entity: "mutation", ID: mutationID, Status: string(m.Status), Expected: string(model.MutationStatusProposed),
		}
	}
	span.SetAttributes(attribute.String("cognetivy.workflow_id", m.Target.WorkflowID))

	versionID, err := s.ws.ApplyPatch(ctx, m.Target.WorkflowID, m.Target.FromVersion, m.Patch)
	if err != nil {
		return model.Mutation{}, err
	}
	if err := s.ws.SetCurrent(ctx, m.Target.WorkflowID, versionID); err != nil {
		return model.Mutation{}, fmt.Errorf("mutations: advance pointer to %s: %w", versionID, err)
	}

	m.Status = model.MutationStatusApplied
	m.AppliedToVersion = versionID
	if err := s.ws.WriteMutation(ctx, m); err != nil {
		return model.Mutation{}, err
	}
	s.logger.Info("mutation applied", "mutation_id", mutationID, "workflow_id", m.Target.WorkflowID, "version_id", versionID)
	return m, nil
}

// Get returns one mutation.
func (s *Service) Get(ctx context.Context, mutationID string) (model.Mutation, error) {
	return s.ws.ReadMutation(ctx, mutationID)
}

// List returns mutations matching filter, oldest first.
func (s *Service) List(ctx context.Context, filter model.MutationFilter) ([]model.Mutation, error) {
	return s.ws.ListMutations(ctx, filter)
}
