package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/schema"
	"github.com/meitarbe/cognetivy/internal/storage"
	"github.com/meitarbe/cognetivy/internal/testutil"
)

var retrieveProv = model.Provenance{NodeID: "retrieve", NodeResultID: "nr-1"}

// collectionFixture returns a workspace with workflow "wf" whose schema
// defines "sources" (url required) and a running run "run-1".
func collectionFixture(t *testing.T) *storage.Workspace {
	t.Helper()
	ws := testutil.NewWorkspace(t)
	testutil.SeedWorkflow(t, ws, "wf", "retrieve", "synthesize")
	_, err := ws.AddKind(context.Background(), "wf", "sources", schema.KindSpec{
		Description: "Retrieved sources",
		Required:    []string{"url"},
		Properties:  map[string]any{"url": map[string]any{"type": "string"}},
	})
	require.NoError(t, err)
	testutil.SeedRun(t, ws, "wf", "run-1")
	return ws
}

func itemCount(t *testing.T, ws *storage.Workspace, kind string) int {
	t.Helper()
	c, err := ws.ReadCollection(context.Background(), "run-1", kind)
	require.NoError(t, err)
	return len(c.Items)
}

func TestReadSchema_LazilyPersistsDefault(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a")

	path := filepath.Join(ws.Root(), "workflows", "wf", "collection-schema.json")
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	cfg, err := ws.ReadSchema(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, "wf", cfg.WorkflowID)
	assert.Empty(t, cfg.Kinds)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = ws.ReadSchema(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWriteSchema_RequiresKindsAndNormalizes(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ctx := context.Background()
	testutil.SeedWorkflow(t, ws, "wf", "a")

	_, err := ws.WriteSchema(ctx, "wf", model.CollectionSchema{})
	assert.ErrorIs(t, err, schema.ErrInvalidSchema)

	cfg, err := ws.WriteSchema(ctx, "wf", model.CollectionSchema{Kinds: map[string]model.KindSchema{
		"ideas": {Description: "Ideas", Required: []string{"title"}},
	}})
	require.NoError(t, err)
	ideas := cfg.Kinds["ideas"]
	assert.Equal(t, "object", ideas.ItemSchema["type"])
	assert.Equal(t, []string{"title"}, ideas.Required)

	again, err := ws.WriteSchema(ctx, "wf", cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestAddKind_IsAdditive(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()

	cfg, err := ws.AddKind(ctx, "wf", "sources", schema.KindSpec{
		Required:   []string{"title"},
		Properties: map[string]any{"title": map[string]any{"type": "string"}},
	})
	require.NoError(t, err)
	sources := cfg.Kinds["sources"]
	assert.Equal(t, []string{"url", "title"}, sources.Required)
	assert.Equal(t, "Retrieved sources", sources.Description)
	props := sources.ItemSchema["properties"].(map[string]any)
	assert.Contains(t, props, "url")
	assert.Contains(t, props, "title")
}

func TestAppend_StampsProvenance(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()

	item, err := ws.Append(ctx, "run-1", "sources", map[string]any{"url": "http://a"}, retrieveProv, "")
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID())
	assert.Equal(t, "retrieve", item.CreatedByNodeID())
	assert.Equal(t, "nr-1", item.CreatedByNodeResultID())
	assert.Contains(t, item, model.FieldCreatedAt)

	c, err := ws.ReadCollection(ctx, "run-1", "sources")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, item, c.Items[0])
	assert.Equal(t, "http://a", c.Items[0]["url"])

	kinds, err := ws.ListKinds(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sources"}, kinds)
}

func TestAppend_IDPrecedenceAndConflict(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()

	item, err := ws.Append(ctx, "run-1", "sources", map[string]any{"id": "from-payload", "url": "u"}, retrieveProv, "explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", item.ID())

	item, err = ws.Append(ctx, "run-1", "sources", map[string]any{"id": "from-payload", "url": "u"}, retrieveProv, "")
	require.NoError(t, err)
	assert.Equal(t, "from-payload", item.ID())

	_, err = ws.Append(ctx, "run-1", "sources", map[string]any{"url": "u"}, retrieveProv, "explicit")
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, 2, itemCount(t, ws, "sources"))
}

func TestAppend_MissingRequiredFieldWritesNothing(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()

	for _, payload := range []map[string]any{{"title": "no url"}, {"url": nil}} {
		_, err := ws.Append(ctx, "run-1", "sources", payload, retrieveProv, "")
		var missing *schema.MissingFieldsError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{"url"}, missing.Missing)
		assert.ErrorIs(t, err, schema.ErrMissingRequiredFields)
	}
	assert.Equal(t, 0, itemCount(t, ws, "sources"))

	kinds, err := ws.ListKinds(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, kinds)
}

func TestAppend_UnknownKindListsKnownKinds(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()

	_, err := ws.Append(ctx, "run-1", "summaries", map[string]any{"text": "x"}, retrieveProv, "")
	var unknown *schema.UnknownKindError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"sources"}, unknown.Known)
	assert.ErrorIs(t, err, schema.ErrUnknownKind)
	assert.Equal(t, 0, itemCount(t, ws, "summaries"))
}

func TestAppend_RequiresProvenanceForNonSystemKinds(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()

	_, err := ws.Append(ctx, "run-1", "sources", map[string]any{"url": "u"}, model.Provenance{NodeID: "retrieve"}, "")
	var missing *schema.MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{model.FieldCreatedByNodeResultID}, missing.Missing)
	assert.Equal(t, 0, itemCount(t, ws, "sources"))
}

func TestAppend_ProvenanceMustNameNodeOfRun(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()

	_, err := ws.Append(ctx, "run-1", "sources", map[string]any{"url": "http://a"},
		model.Provenance{NodeID: "ghost-node", NodeResultID: "nr_does_not_exist"}, "")
	var invalid *storage.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "ghost-node", invalid.ID)

	_, err = ws.ReplaceAll(ctx, "run-1", "sources", []map[string]any{{"url": "http://a"}},
		model.Provenance{NodeID: "ghost-node", NodeResultID: "nr_1"})
	assert.ErrorIs(t, err, storage.ErrInvalidState)
	assert.Equal(t, 0, itemCount(t, ws, "sources"))
}

func TestAppend_ProvenanceMustMatchCurrentResult(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()
	require.NoError(t, ws.WriteNodeResult(ctx, model.NodeResult{
		NodeResultID: "nr-current",
		RunID:        "run-1",
		WorkflowID:   "wf",
		NodeID:       "retrieve",
		Status:       model.NodeStatusStarted,
		StartedAt:    ws.Now(),
	}))

	_, err := ws.Append(ctx, "run-1", "sources", map[string]any{"url": "http://a"},
		model.Provenance{NodeID: "retrieve", NodeResultID: "nr-stale"}, "")
	var invalid *storage.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "nr-stale", invalid.ID)
	assert.Equal(t, "nr-current", invalid.Expected)

	_, err = ws.ReplaceAll(ctx, "run-1", "sources", []map[string]any{{"url": "http://a"}},
		model.Provenance{NodeID: "retrieve", NodeResultID: "nr-stale"})
	assert.ErrorIs(t, err, storage.ErrInvalidState)
	assert.Equal(t, 0, itemCount(t, ws, "sources"))

	item, err := ws.Append(ctx, "run-1", "sources", map[string]any{"url": "http://a"},
		model.Provenance{NodeID: "retrieve", NodeResultID: "nr-current"}, "")
	require.NoError(t, err)
	assert.Equal(t, "nr-current", item.CreatedByNodeResultID())
}

func TestAppend_SystemKindSkipsProvenance(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()

	item, err := ws.Append(ctx, "run-1", model.KindRunInput, map[string]any{"topic": "x"}, model.Provenance{}, "")
	require.NoError(t, err)
	assert.NotContains(t, item, model.FieldCreatedByNodeID)
	assert.NotContains(t, item, model.FieldCreatedByNodeResultID)
	assert.Equal(t, "x", item["topic"])
}

func TestAppend_UnknownRun(t *testing.T) {
	ws := collectionFixture(t)
	_, err := ws.Append(context.Background(), "ghost", "sources", map[string]any{"url": "u"}, retrieveProv, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReplaceAll_IsAllOrNothing(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()

	_, err := ws.Append(ctx, "run-1", "sources", map[string]any{"url": "keep"}, retrieveProv, "")
	require.NoError(t, err)

	_, err = ws.ReplaceAll(ctx, "run-1", "sources", []map[string]any{{"url": "a"}, {"title": "bad"}}, retrieveProv)
	assert.ErrorIs(t, err, schema.ErrMissingRequiredFields)
	c, err := ws.ReadCollection(ctx, "run-1", "sources")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "keep", c.Items[0]["url"])

	c, err = ws.ReplaceAll(ctx, "run-1", "sources", []map[string]any{{"url": "a"}, {"url": "b", "id": "custom"}, {"url": "c"}}, retrieveProv)
	require.NoError(t, err)
	assert.Equal(t, []string{"sources_0", "custom", "sources_2"}, c.ItemIDs())
	for _, it := range c.Items {
		assert.Equal(t, "retrieve", it.CreatedByNodeID())
		assert.Equal(t, "nr-1", it.CreatedByNodeResultID())
	}

	stored, err := ws.ReadCollection(ctx, "run-1", "sources")
	require.NoError(t, err)
	assert.Equal(t, c.ItemIDs(), stored.ItemIDs())
}

func TestReplaceAll_DuplicateIDsConflict(t *testing.T) {
	ws := collectionFixture(t)
	_, err := ws.ReplaceAll(context.Background(), "run-1", "sources",
		[]map[string]any{{"url": "a", "id": "x"}, {"url": "b", "id": "x"}}, retrieveProv)
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, 0, itemCount(t, ws, "sources"))
}

func TestReadCollection_PlaceholderIsNotPersisted(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()

	c, err := ws.ReadCollection(ctx, "run-1", "sources")
	require.NoError(t, err)
	assert.Equal(t, "run-1", c.RunID)
	assert.Equal(t, "sources", c.Kind)
	assert.Empty(t, c.Items)

	_, err = os.Stat(filepath.Join(ws.Root(), "collections", "run-1", "sources.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestCollectionSummary(t *testing.T) {
	ws := collectionFixture(t)
	ctx := context.Background()
	_, err := ws.ReplaceAll(ctx, "run-1", "sources", []map[string]any{{"url": "a"}, {"url": "b"}}, retrieveProv)
	require.NoError(t, err)
	_, err = ws.ReplaceAll(ctx, "run-1", model.KindRunInput, []map[string]any{{"topic": "x"}}, model.Provenance{})
	require.NoError(t, err)
	_, err = ws.ReplaceAll(ctx, "run-1", "sources", []map[string]any{{"url": "a"}, {"url": "b"}}, retrieveProv)
	require.NoError(t, err)

	summary, err := ws.CollectionSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"sources": 2, model.KindRunInput: 1}, summary)
}
