package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/meitarbe/cognetivy/internal/model"
)

func (ws *Workspace) mutationPath(mutationID string) string {
	return ws.path(dirMutations, mutationID+".json")
}

// CreateMutation persists a new mutation. It fails with ErrConflict if the id is taken.
func (ws *Workspace) CreateMutation(ctx context.Context, m model.Mutation) error {
	if err := ws.requireExists(); err != nil {
		return err
	}
	if err := model.ValidateID("mutation_id", m.MutationID); err != nil {
		return err
	}
	data, err := marshalDocument(m)
	if err != nil {
		return fmt.Errorf("storage: encode mutation: %w", err)
	}
	if err := writeFileExclusive(ws.mutationPath(m.MutationID), data); err != nil {
		if errors.Is(err, ErrConflict) {
			return fmt.Errorf("%w: mutation %s already exists", ErrConflict, m.MutationID)
		}
		return fmt.Errorf("storage: create mutation: %w", err)
	}
	return nil
}

// ReadMutation loads a mutation document.
func (ws *Workspace) ReadMutation(ctx context.Context, mutationID string) (model.Mutation, error) {
	if err := ws.requireExists(); err != nil {
		return model.Mutation{}, err
	}
	if err := model.ValidateID("mutation_id", mutationID); err != nil {
		return model.Mutation{}, err
	}
	var m model.Mutation
	if err := readJSON(ws.mutationPath(mutationID), &m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Mutation{}, fmt.Errorf("%w: mutation %s", ErrNotFound, mutationID)
		}
		return model.Mutation{}, fmt.Errorf("storage: read mutation: %w", err)
	}
	return m, nil
}

// WriteMutation replaces an existing mutation document.
func (ws *Workspace) WriteMutation(ctx context.Context, m model.Mutation) error {
	if _, err := ws.ReadMutation(ctx, m.MutationID); err != nil {
		return err
	}
	if err := writeJSON(ws.mutationPath(m.MutationID), m); err != nil {
		return fmt.Errorf("storage: write mutation: %w", err)
	}
	return nil
}

// ListMutations returns mutations matching filter, oldest first.
func (ws *Workspace) ListMutations(ctx context.Context, filter model.MutationFilter) ([]model.Mutation, error) {
	if err := ws.requireExists(); err != nil {
		return nil, err
	}
	ids, err := listDocuments(ws.path(dirMutations), ".json")
	if err != nil {
		return nil, fmt.Errorf("storage: list mutations: %w", err)
	}
	var out []model.Mutation
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var m model.Mutation
		if err := readJSON(ws.mutationPath(id), &m); err != nil {
			return nil, fmt.Errorf("storage: list mutations: %w", err)
		}
		if filter.Match(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
