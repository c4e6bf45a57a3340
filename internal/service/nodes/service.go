// Package nodes implements the node lifecycle protocol: starting a step and
// completing it, optionally writing a collection in the same call.
//
// Complete validates and writes the collection first. If that fails nothing
// else is written and the node stays in its prior state. The later node
// result write and event append are separate files with no rollback between
// them.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/meitarbe/cognetivy/internal/ctxutil"
	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/storage"
	"github.com/meitarbe/cognetivy/internal/telemetry"
)

// ErrInvalidWrite is returned when a collection write payload has the wrong shape.
var ErrInvalidWrite = errors.New("nodes: invalid collection write")

// WriteMode selects how a collection write is applied.
type WriteMode string

const (
	// WriteModeAuto appends a single object and replaces with an array.
	WriteModeAuto    WriteMode = ""
	WriteModeAppend  WriteMode = "append"
	WriteModeReplace WriteMode = "replace"
)

// CollectionWrite is the optional collection write performed by Complete.
// Payload is either a single object (map[string]any) or an array of objects.
type CollectionWrite struct {
	Kind    string
	Payload any
	Mode    WriteMode
	// ItemID is used for single-object appends only.
	ItemID string
}

// CompleteInput describes a step completion.
type CompleteInput struct {
	RunID  string
	NodeID string
	Status model.NodeStatus
	Output any
	By     string
	// NodeResultID, when set, must match the node's current result.
	NodeResultID string
	Write        *CollectionWrite
}

// Service encapsulates node lifecycle logic.
type Service struct {
	ws     *storage.Workspace
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a node lifecycle Service.
func New(ws *storage.Workspace, logger *slog.Logger) *Service {
	return &Service{ws: ws, logger: logger, tracer: telemetry.Tracer("cognetivy/nodes")}
}

// Start appends step_started and writes a started node result. The returned
// result id is what Complete records as item provenance. A node whose result
// is already terminal cannot be started again.
func (s *Service) Start(ctx context.Context, runID, nodeID, by string) (res model.NodeResult, err error) {
	ctx, span := s.tracer.Start(ctx, "nodes.Start")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(
		attribute.String("cognetivy.run_id", runID),
		attribute.String("cognetivy.node_id", nodeID),
	)

	run, err := s.resolveNode(ctx, runID, nodeID)
	if err != nil {
		return model.NodeResult{}, err
	}
	current, err := s.ws.ReadNodeResult(ctx, runID, nodeID)
	switch {
	case err == nil && current.Status.Terminal():
		return model.NodeResult{}, &storage.InvalidStateError{
			Entity: "node result", ID: current.NodeResultID, Status: string(current.Status), Expected: "not started",
		}
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return model.NodeResult{}, err
	}

	res = model.NodeResult{
		NodeResultID:      model.NewID(model.NodeResultIDPrefix),
		RunID:             runID,
		WorkflowID:        run.WorkflowID,
		WorkflowVersionID: run.WorkflowVersionID,
		NodeID:            nodeID,
		Status:            model.NodeStatusStarted,
		StartedAt:         s.ws.Now(),
	}
	if _, err := s.ws.AppendEvent(ctx, runID, model.Event{
		Type: model.EventStepStarted,
		By:   ctxutil.ResolveActor(ctx, by, model.DefaultActor),
		Data: map[string]any{"step": nodeID, "node_result_id": res.NodeResultID},
	}); err != nil {
		return model.NodeResult{}, err
	}
	if err := s.ws.WriteNodeResult(ctx, res); err != nil {
		return model.NodeResult{}, err
	}

	s.logger.Info("step started", "run_id", runID, "node_id", nodeID, "node_result_id", res.NodeResultID)
	return res, nil
}

// Complete finishes a step with a terminal status. When in.Write is set the
// collection is written first, using this result's id as provenance; a
// validation failure aborts the call before anything else is written.
func (s *Service) Complete(ctx context.Context, in CompleteInput) (res model.NodeResult, err error) {
	ctx, span := s.tracer.Start(ctx, "nodes.Complete")
	defer func() { telemetry.EndSpan(span, err) }()
	span.SetAttributes(
		attribute.String("cognetivy.run_id", in.RunID),
		attribute.String("cognetivy.node_id", in.NodeID),
		attribute.String("cognetivy.node_status", string(in.Status)),
	)

	if !in.Status.Terminal() {
		return model.NodeResult{}, &storage.InvalidStateError{
			Entity: "node", ID: in.NodeID, Status: string(in.Status), Expected: "completed, failed or needs_human",
		}
	}
	run, err := s.resolveNode(ctx, in.RunID, in.NodeID)
	if err != nil {
		return model.NodeResult{}, err
	}

	res, err = s.pendingResult(ctx, run, in)
	if err != nil {
		return model.NodeResult{}, err
	}

	if in.Write != nil {
		write, err := s.writeCollection(ctx, in.RunID, *in.Write, model.Provenance{NodeID: in.NodeID, NodeResultID: res.NodeResultID})
		if err != nil {
			return model.NodeResult{}, err
		}
		res.Writes = []model.CollectionWrite{write}
	}

	completedAt := s.ws.Now()
	res.Status = in.Status
	res.CompletedAt = &completedAt
	res.Output = in.Output
	if err := s.ws.WriteNodeResult(ctx, res); err != nil {
		return model.NodeResult{}, err
	}

	data := map[string]any{
		"step":           in.NodeID,
		"node_result_id": res.NodeResultID,
		"status":         string(in.Status),
	}
	if len(res.Writes) > 0 {
		data["writes"] = res.Writes
	}
	if _, err := s.ws.AppendEvent(ctx, in.RunID, model.Event{
		Type: model.EventStepCompleted,
		By:   ctxutil.ResolveActor(ctx, in.By, model.DefaultActor),
		Data: data,
	}); err != nil {
		return model.NodeResult{}, err
	}

	s.logger.Info("step completed",
		"run_id", in.RunID, "node_id", in.NodeID, "status", in.Status,
		"node_result_id", res.NodeResultID, "duration_ms", elapsed(res).Milliseconds())
	return res, nil
}

// resolveNode loads the run and checks the node belongs to its workflow version.
func (s *Service) resolveNode(ctx context.Context, runID, nodeID string) (model.Run, error) {
	if err := model.ValidateID("node_id", nodeID); err != nil {
		return model.Run{}, err
	}
	run, err := s.ws.ReadRun(ctx, runID)
	if err != nil {
		return model.Run{}, err
	}
	version, err := s.ws.GetVersion(ctx, run.WorkflowID, run.WorkflowVersionID)
	if err != nil {
		return model.Run{}, err
	}
	if _, ok := version.Node(nodeID); !ok {
		return model.Run{}, fmt.Errorf("%w: node %s in %s@%s", storage.ErrNotFound, nodeID, run.WorkflowID, run.WorkflowVersionID)
	}
	return run, nil
}

// pendingResult returns the snapshot Complete will finish: the started result
// if there is one, otherwise a fresh one for a node completed without Start.
func (s *Service) pendingResult(ctx context.Context, run model.Run, in CompleteInput) (model.NodeResult, error) {
	if in.NodeResultID != "" {
		if err := model.ValidateID("node_result_id", in.NodeResultID); err != nil {
			return model.NodeResult{}, err
		}
	}
	current, err := s.ws.ReadNodeResult(ctx, in.RunID, in.NodeID)
	if errors.Is(err, storage.ErrNotFound) {
		id := in.NodeResultID
		if id == "" {
			id = model.NewID(model.NodeResultIDPrefix)
		}
		return model.NodeResult{
			NodeResultID:      id,
			RunID:             in.RunID,
			WorkflowID:        run.WorkflowID,
			WorkflowVersionID: run.WorkflowVersionID,
			NodeID:            in.NodeID,
			StartedAt:         s.ws.Now(),
		}, nil
	}
	if err != nil {
		return model.NodeResult{}, err
	}
	if current.Status.Terminal() {
		return model.NodeResult{}, &storage.InvalidStateError{
			Entity: "node result", ID: current.NodeResultID, Status: string(current.Status), Expected: string(model.NodeStatusStarted),
		}
	}
	if in.NodeResultID != "" && in.NodeResultID != current.NodeResultID {
		return model.NodeResult{}, &storage.InvalidStateError{
			Entity: "node result", ID: in.NodeResultID, Status: "superseded by " + current.NodeResultID, Expected: "current",
		}
	}
	current.CompletedAt = nil
	return current, nil
}

func (s *Service) writeCollection(ctx context.Context, runID string, w CollectionWrite, prov model.Provenance) (model.CollectionWrite, error) {
	if w.Kind == "" {
		return model.CollectionWrite{}, fmt.Errorf("%w: kind is required", ErrInvalidWrite)
	}
	single, items, err := splitPayload(w.Payload)
	if err != nil {
		return model.CollectionWrite{}, err
	}

	mode := w.Mode
	if mode == WriteModeAuto {
		mode = WriteModeAppend
		if items != nil {
			mode = WriteModeReplace
		}
	}

	switch mode {
	case WriteModeAppend:
		if single == nil {
			return model.CollectionWrite{}, fmt.Errorf("%w: append takes a single object", ErrInvalidWrite)
		}
		item, err := s.ws.Append(ctx, runID, w.Kind, single, prov, w.ItemID)
		if err != nil {
			return model.CollectionWrite{}, err
		}
		return model.CollectionWrite{Kind: w.Kind, ItemIDs: []string{item.ID()}}, nil
	case WriteModeReplace:
		if single != nil {
			items = []map[string]any{single}
		}
		c, err := s.ws.ReplaceAll(ctx, runID, w.Kind, items, prov)
		if err != nil {
			return model.CollectionWrite{}, err
		}
		return model.CollectionWrite{Kind: w.Kind, ItemIDs: c.ItemIDs()}, nil
	default:
		return model.CollectionWrite{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidWrite, w.Mode)
	}
}

// splitPayload accepts a single object or an array of objects.
func splitPayload(payload any) (map[string]any, []map[string]any, error) {
	switch p := payload.(type) {
	case map[string]any:
		return p, nil, nil
	case model.Item:
		return p, nil, nil
	case []map[string]any:
		if p == nil {
			p = []map[string]any{}
		}
		return nil, p, nil
	case []any:
		items := make([]map[string]any, 0, len(p))
		for i, e := range p {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, nil, fmt.Errorf("%w: element %d is %T, want object", ErrInvalidWrite, i, e)
			}
			items = append(items, m)
		}
		return nil, items, nil
	case nil:
		return nil, nil, fmt.Errorf("%w: payload is required", ErrInvalidWrite)
	default:
		return nil, nil, fmt.Errorf("%w: payload is %T, want object or array", ErrInvalidWrite, payload)
	}
}

// elapsed is the wall time between a result's start and completion.
func elapsed(res model.NodeResult) time.Duration {
	if res.CompletedAt == nil {
		return 0
	}
	return res.CompletedAt.Sub(res.StartedAt)
}
