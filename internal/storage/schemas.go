package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/schema"
)

const schemaFile = "collection-schema.json"

func (ws *Workspace) schemaPath(workflowID string) string {
	return ws.path(dirWorkflows, workflowID, schemaFile)
}

// ReadSchema returns the workflow's collection schema. When none has been
// written yet the default empty-kinds schema is persisted and returned.
func (ws *Workspace) ReadSchema(ctx context.Context, workflowID string) (model.CollectionSchema, error) {
	if _, err := ws.GetWorkflow(ctx, workflowID); err != nil {
		return model.CollectionSchema{}, err
	}
	var cfg model.CollectionSchema
	err := readJSON(ws.schemaPath(workflowID), &cfg)
	if errors.Is(err, ErrNotFound) {
		cfg = schema.Default(workflowID)
		if err := writeJSON(ws.schemaPath(workflowID), cfg); err != nil {
			return model.CollectionSchema{}, fmt.Errorf("storage: write default schema: %w", err)
		}
		ws.logger.Debug("default collection schema created", "workflow_id", workflowID)
		return cfg, nil
	}
	if err != nil {
		return model.CollectionSchema{}, fmt.Errorf("storage: read schema: %w", err)
	}
	if cfg.Kinds == nil {
		cfg.Kinds = map[string]model.KindSchema{}
	}
	cfg.WorkflowID = workflowID
	return cfg, nil
}

// WriteSchema normalizes every kind over the base template and persists the
// whole schema document.
func (ws *Workspace) WriteSchema(ctx context.Context, workflowID string, cfg model.CollectionSchema) (model.CollectionSchema, error) {
	if _, err := ws.GetWorkflow(ctx, workflowID); err != nil {
		return model.CollectionSchema{}, err
	}
	normalized, err := schema.Normalize(workflowID, cfg)
	if err != nil {
		return model.CollectionSchema{}, err
	}
	if err := writeJSON(ws.schemaPath(workflowID), normalized); err != nil {
		return model.CollectionSchema{}, fmt.Errorf("storage: write schema: %w", err)
	}
	return normalized, nil
}

// AddKind adds or updates a single kind by read-merge-write.
func (ws *Workspace) AddKind(ctx context.Context, workflowID, kind string, spec schema.KindSpec) (model.CollectionSchema, error) {
	if err := model.ValidateID("kind", kind); err != nil {
		return model.CollectionSchema{}, err
	}
	cfg, err := ws.ReadSchema(ctx, workflowID)
	if err != nil {
		return model.CollectionSchema{}, err
	}
	cfg.Kinds[kind] = schema.MergeKind(cfg.Kinds[kind], spec)
	return ws.WriteSchema(ctx, workflowID, cfg)
}
