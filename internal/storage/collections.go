package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/schema"
)

func (ws *Workspace) collectionsDir(runID string) string {
	return ws.path(dirCollections, runID)
}

func (ws *Workspace) collectionPath(runID, kind string) string {
	return ws.path(dirCollections, runID, kind+".json")
}

// ListKinds returns the kinds that hold at least one item for the run.
func (ws *Workspace) ListKinds(ctx context.Context, runID string) ([]string, error) {
	if err := ws.requireExists(); err != nil {
		return nil, err
	}
	if err := model.ValidateID("run_id", runID); err != nil {
		return nil, err
	}
	names, err := listDocuments(ws.collectionsDir(runID), ".json")
	if err != nil {
		return nil, fmt.Errorf("storage: list kinds: %w", err)
	}
	kinds := make([]string, 0, len(names))
	for _, kind := range names {
		var c model.Collection
		if err := readJSON(ws.collectionPath(runID, kind), &c); err != nil {
			return nil, fmt.Errorf("storage: list kinds: %w", err)
		}
		if len(c.Items) > 0 {
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}

// ReadCollection returns the stored items for (run, kind). Nothing written yet
// yields an empty placeholder that is not persisted.
func (ws *Workspace) ReadCollection(ctx context.Context, runID, kind string) (model.Collection, error) {
	if err := ws.requireExists(); err != nil {
		return model.Collection{}, err
	}
	if err := model.ValidateID("run_id", runID); err != nil {
		return model.Collection{}, err
	}
	if err := model.ValidateID("kind", kind); err != nil {
		return model.Collection{}, err
	}
	var c model.Collection
	err := readJSON(ws.collectionPath(runID, kind), &c)
	if errors.Is(err, ErrNotFound) {
		return model.Collection{RunID: runID, Kind: kind, Items: []model.Item{}}, nil
	}
	if err != nil {
		return model.Collection{}, fmt.Errorf("storage: read collection: %w", err)
	}
	if c.Items == nil {
		c.Items = []model.Item{}
	}
	return c, nil
}

// CollectionSummary maps each non-empty kind of a run to its item count.
func (ws *Workspace) CollectionSummary(ctx context.Context, runID string) (map[string]int, error) {
	kinds, err := ws.ListKinds(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(kinds))
	for _, kind := range kinds {
		c, err := ws.ReadCollection(ctx, runID, kind)
		if err != nil {
			return nil, err
		}
		out[kind] = len(c.Items)
	}
	return out, nil
}

// writeContext loads what every collection write validates against.
type writeContext struct {
	run    model.Run
	schema model.CollectionSchema
	system schema.SystemKinds
}

func (ws *Workspace) loadWriteContext(ctx context.Context, runID, kind string) (writeContext, error) {
	if err := model.ValidateID("kind", kind); err != nil {
		return writeContext{}, err
	}
	run, err := ws.ReadRun(ctx, runID)
	if err != nil {
		return writeContext{}, err
	}
	cfg, err := ws.ReadSchema(ctx, run.WorkflowID)
	if err != nil {
		return writeContext{}, err
	}
	return writeContext{run: run, schema: cfg, system: ws.SystemKinds()}, nil
}

// verifyProvenance checks that prov names a node of the run's workflow
// version and, once that node has a result snapshot, that snapshot's id.
// System kinds carry no provenance.
func (ws *Workspace) verifyProvenance(ctx context.Context, wc writeContext, kind string, prov model.Provenance) error {
	if wc.system.Contains(kind) {
		return nil
	}
	if err := schema.ValidateProvenance(kind, prov, wc.system); err != nil {
		return err
	}
	version, err := ws.GetVersion(ctx, wc.run.WorkflowID, wc.run.WorkflowVersionID)
	if err != nil {
		return err
	}
	if _, ok := version.Node(prov.NodeID); !ok {
		return &InvalidStateError{
			Entity:   "provenance node",
			ID:       prov.NodeID,
			Status:   "not in " + wc.run.WorkflowID + "@" + wc.run.WorkflowVersionID,
			Expected: "a node of the run's workflow version",
		}
	}
	current, err := ws.ReadNodeResult(ctx, wc.run.RunID, prov.NodeID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.NodeResultID != prov.NodeResultID {
		return &InvalidStateError{
			Entity:   "provenance node result",
			ID:       prov.NodeResultID,
			Status:   "not the current result of " + prov.NodeID,
			Expected: current.NodeResultID,
		}
	}
	return nil
}

func (ws *Workspace) validatePayload(ctx context.Context, wc writeContext, kind string, payload map[string]any, prov model.Provenance) error {
	err := schema.ValidateProvenance(kind, prov, wc.system)
	if err == nil {
		err = schema.ValidateItem(wc.schema, kind, payload, wc.system)
	}
	if err != nil {
		ws.metrics.validationFailed(ctx, kind)
		return err
	}
	return nil
}

// ReplaceAll validates every payload before writing any, assigns
// "<kind>_<index>" ids to payloads without one, stamps provenance and
// atomically replaces the stored list for kind.
func (ws *Workspace) ReplaceAll(ctx context.Context, runID, kind string, payloads []map[string]any, prov model.Provenance) (model.Collection, error) {
	wc, err := ws.loadWriteContext(ctx, runID, kind)
	if err != nil {
		return model.Collection{}, err
	}
	for _, p := range payloads {
		if err := ws.validatePayload(ctx, wc, kind, p, prov); err != nil {
			return model.Collection{}, err
		}
	}
	if err := ws.verifyProvenance(ctx, wc, kind, prov); err != nil {
		return model.Collection{}, err
	}

	now := ws.timestamp()
	items := make([]model.Item, 0, len(payloads))
	seen := make(map[string]struct{}, len(payloads))
	for i, p := range payloads {
		id := payloadID(p)
		if id == "" {
			id = kind + "_" + strconv.Itoa(i)
		}
		if _, dup := seen[id]; dup {
			return model.Collection{}, fmt.Errorf("%w: duplicate item id %q in %s", ErrConflict, id, kind)
		}
		seen[id] = struct{}{}
		items = append(items, stampItem(p, id, now, prov, wc.system.Contains(kind)))
	}

	c := model.Collection{RunID: runID, Kind: kind, UpdatedAt: now, Items: items}
	if err := writeJSON(ws.collectionPath(runID, kind), c); err != nil {
		return model.Collection{}, fmt.Errorf("storage: replace collection: %w", err)
	}
	ws.metrics.collectionWritten(ctx, kind, len(items))
	return c, nil
}

// Append validates one payload, stamps it and appends it to the stored list
// for kind. The id is taken from id, then the payload's own "id", then
// generated.
func (ws *Workspace) Append(ctx context.Context, runID, kind string, payload map[string]any, prov model.Provenance, id string) (model.Item, error) {
	wc, err := ws.loadWriteContext(ctx, runID, kind)
	if err != nil {
		return nil, err
	}
	if err := ws.validatePayload(ctx, wc, kind, payload, prov); err != nil {
		return nil, err
	}
	if err := ws.verifyProvenance(ctx, wc, kind, prov); err != nil {
		return nil, err
	}
	c, err := ws.ReadCollection(ctx, runID, kind)
	if err != nil {
		return nil, err
	}

	if id == "" {
		id = payloadID(payload)
	}
	if id == "" {
		id = model.NewID(kind)
	}
	for _, existing := range c.Items {
		if existing.ID() == id {
			return nil, fmt.Errorf("%w: item %q already exists in %s", ErrConflict, id, kind)
		}
	}

	now := ws.timestamp()
	item := stampItem(payload, id, now, prov, wc.system.Contains(kind))
	c.Items = append(c.Items, item)
	c.UpdatedAt = now
	if err := writeJSON(ws.collectionPath(runID, kind), c); err != nil {
		return nil, fmt.Errorf("storage: append collection: %w", err)
	}
	ws.metrics.collectionWritten(ctx, kind, 1)
	return item, nil
}

func payloadID(p map[string]any) string {
	switch v := p[model.FieldID].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// stampItem copies payload and sets the id, timestamp and provenance fields.
// created_at is stored as its RFC 3339 string so a returned item equals the
// same item read back from disk. System kinds only get provenance when the
// caller supplied it.
func stampItem(payload map[string]any, id string, now time.Time, prov model.Provenance, system bool) model.Item {
	item := model.Item(schema.Clone(payload))
	if item == nil {
		item = model.Item{}
	}
	item[model.FieldID] = id
	item[model.FieldCreatedAt] = now.Format(time.RFC3339Nano)
	if !system || prov.NodeID != "" {
		item[model.FieldCreatedByNodeID] = prov.NodeID
	}
	if !system || prov.NodeResultID != "" {
		item[model.FieldCreatedByNodeResultID] = prov.NodeResultID
	}
	return item
}
