package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/meitarbe/cognetivy/internal/model"
)

func (ws *Workspace) nodeResultsDir(runID string) string {
	return ws.path(dirNodeResults, runID)
}

func (ws *Workspace) nodeResultPath(runID, nodeID string) string {
	return ws.path(dirNodeResults, runID, nodeID+".json")
}

// WriteNodeResult replaces the current snapshot for (run, node). There is no
// concurrency check: the last write wins.
func (ws *Workspace) WriteNodeResult(ctx context.Context, res model.NodeResult) error {
	if err := model.ValidateID("node_id", res.NodeID); err != nil {
		return err
	}
	if err := model.ValidateID("node_result_id", res.NodeResultID); err != nil {
		return err
	}
	ok, err := ws.RunExists(ctx, res.RunID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: run %s", ErrNotFound, res.RunID)
	}
	if !res.Status.Valid() {
		return fmt.Errorf("storage: write node result: unknown status %q", res.Status)
	}
	if res.Status.Terminal() != (res.CompletedAt != nil) {
		return fmt.Errorf("storage: write node result: completed_at must be set exactly when status is terminal (status %s)", res.Status)
	}
	if err := writeJSON(ws.nodeResultPath(res.RunID, res.NodeID), res); err != nil {
		return fmt.Errorf("storage: write node result: %w", err)
	}
	return nil
}

// ReadNodeResult loads the current snapshot for (run, node).
func (ws *Workspace) ReadNodeResult(ctx context.Context, runID, nodeID string) (model.NodeResult, error) {
	if err := ws.requireExists(); err != nil {
		return model.NodeResult{}, err
	}
	if err := model.ValidateID("run_id", runID); err != nil {
		return model.NodeResult{}, err
	}
	if err := model.ValidateID("node_id", nodeID); err != nil {
		return model.NodeResult{}, err
	}
	var res model.NodeResult
	if err := readJSON(ws.nodeResultPath(runID, nodeID), &res); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.NodeResult{}, fmt.Errorf("%w: node result %s/%s", ErrNotFound, runID, nodeID)
		}
		return model.NodeResult{}, fmt.Errorf("storage: read node result: %w", err)
	}
	return res, nil
}

// ListNodeResults returns every current snapshot for a run, ordered by started_at.
func (ws *Workspace) ListNodeResults(ctx context.Context, runID string) ([]model.NodeResult, error) {
	if err := ws.requireExists(); err != nil {
		return nil, err
	}
	if err := model.ValidateID("run_id", runID); err != nil {
		return nil, err
	}
	nodes, err := listDocuments(ws.nodeResultsDir(runID), ".json")
	if err != nil {
		return nil, fmt.Errorf("storage: list node results: %w", err)
	}
	results := make([]model.NodeResult, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ws.listConcurrency)
	for i, node := range nodes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return readJSON(ws.nodeResultPath(runID, node), &results[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("storage: list node results: %w", err)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].StartedAt.Before(results[j].StartedAt) })
	return results, nil
}
