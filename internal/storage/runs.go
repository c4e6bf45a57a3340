package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/meitarbe/cognetivy/internal/model"
)

const defaultListConcurrency = 8

func (ws *Workspace) runPath(runID string) string {
	return ws.path(dirRuns, runID+".json")
}

// CreateRun writes a new run document. It fails with ErrConflict if the id is
// taken and with ErrNotFound if the referenced workflow version does not exist.
func (ws *Workspace) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
	if err := ws.requireExists(); err != nil {
		return model.Run{}, err
	}
	if err := model.ValidateID("run_id", run.RunID); err != nil {
		return model.Run{}, err
	}
	if _, err := ws.readVersionBytes(run.WorkflowID, run.WorkflowVersionID); err != nil {
		return model.Run{}, err
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	if !run.Status.Valid() {
		return model.Run{}, fmt.Errorf("storage: create run: unknown status %q", run.Status)
	}
	if run.Input == nil {
		run.Input = map[string]any{}
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = ws.timestamp()
	}

	data, err := marshalDocument(run)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: encode run: %w", err)
	}
	if err := writeFileExclusive(ws.runPath(run.RunID), data); err != nil {
		if errors.Is(err, ErrConflict) {
			return model.Run{}, fmt.Errorf("%w: run %s already exists", ErrConflict, run.RunID)
		}
		return model.Run{}, fmt.Errorf("storage: create run: %w", err)
	}
	return run, nil
}

// ReadRun loads a run document.
func (ws *Workspace) ReadRun(ctx context.Context, runID string) (model.Run, error) {
	if err := ws.requireExists(); err != nil {
		return model.Run{}, err
	}
	if err := model.ValidateID("run_id", runID); err != nil {
		return model.Run{}, err
	}
	var run model.Run
	if err := readJSON(ws.runPath(runID), &run); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Run{}, fmt.Errorf("%w: run %s", ErrNotFound, runID)
		}
		return model.Run{}, fmt.Errorf("storage: read run: %w", err)
	}
	return run, nil
}

// RunExists reports whether a run document exists.
func (ws *Workspace) RunExists(ctx context.Context, runID string) (bool, error) {
	if err := ws.requireExists(); err != nil {
		return false, err
	}
	if err := model.ValidateID("run_id", runID); err != nil {
		return false, err
	}
	return fileExists(ws.runPath(runID))
}

// UpdateRun applies a partial update by read-modify-write. Moving a completed
// run back to running fails with an InvalidStateError.
func (ws *Workspace) UpdateRun(ctx context.Context, runID string, upd model.RunUpdate) (model.Run, error) {
	run, err := ws.ReadRun(ctx, runID)
	if err != nil {
		return model.Run{}, err
	}
	if upd.Status != nil {
		next := *upd.Status
		if !next.Valid() {
			return model.Run{}, fmt.Errorf("storage: update run: unknown status %q", next)
		}
		if run.Status.RegressesTo(next) {
			return model.Run{}, &InvalidStateError{
				Entity: "run", ID: runID, Status: string(run.Status), Expected: string(model.RunStatusRunning),
			}
		}
		run.Status = next
	}
	if upd.Name != nil {
		run.Name = *upd.Name
	}
	if upd.FinalAnswer != nil {
		answer := *upd.FinalAnswer
		run.FinalAnswer = &answer
	}
	if err := writeJSON(ws.runPath(runID), run); err != nil {
		return model.Run{}, fmt.Errorf("storage: update run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs matching filter, oldest first.
func (ws *Workspace) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	if err := ws.requireExists(); err != nil {
		return nil, err
	}
	ids, err := listDocuments(ws.path(dirRuns), ".json")
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}

	runs := make([]model.Run, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ws.listConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return readJSON(ws.runPath(id), &runs[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}

	out := runs[:0]
	for _, r := range runs {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
