package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meitarbe/cognetivy/internal/model"
)

func sourcesSchema() model.CollectionSchema {
	cfg, err := Normalize("wf", model.CollectionSchema{Kinds: map[string]model.KindSchema{
		"sources": {
			Description: "Retrieved sources",
			Required:    []string{"url"},
			ItemSchema: map[string]any{
				"properties": map[string]any{"url": map[string]any{"type": "string"}},
			},
		},
		"summary": {Description: "Final summary", Required: []string{"text"}},
	}})
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestNormalizeRequiresKinds(t *testing.T) {
	_, err := Normalize("wf", model.CollectionSchema{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchema))
}

func TestNormalizeKindIsIdempotent(t *testing.T) {
	once := NormalizeKind(model.KindSchema{
		Description: "x",
		Required:    []string{"a"},
		ItemSchema:  map[string]any{"required": []any{"b"}},
	})
	twice := NormalizeKind(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"a", "b"}, once.Required)
	assert.Equal(t, []any{"a", "b"}, once.ItemSchema["required"])
	assert.Equal(t, "object", once.ItemSchema["type"])
	assert.Equal(t, true, once.ItemSchema["additionalProperties"])
}

func TestNormalizeKindKeepsCallerSubfields(t *testing.T) {
	k := NormalizeKind(model.KindSchema{
		ItemSchema: map[string]any{"type": "object", "additionalProperties": false},
	})
	assert.Equal(t, false, k.ItemSchema["additionalProperties"])
	assert.Equal(t, map[string]any{}, k.ItemSchema["properties"])
}

func TestMergeKindIsAdditive(t *testing.T) {
	cfg := sourcesSchema()
	global := true
	merged := MergeKind(cfg.Kinds["sources"], KindSpec{
		Required:   []string{"title"},
		Properties: map[string]any{"title": map[string]any{"type": "string"}},
		References: map[string]string{"parent": "sources"},
		Global:     &global,
	})
	props := merged.ItemSchema["properties"].(map[string]any)
	assert.Contains(t, props, "url")
	assert.Contains(t, props, "title")
	assert.Equal(t, []string{"url", "title"}, merged.Required)
	assert.Equal(t, "Retrieved sources", merged.Description)
	assert.Equal(t, "sources", merged.References["parent"])
	assert.True(t, merged.Global)

	// The stored kind is not modified in place.
	assert.NotContains(t, cfg.Kinds["sources"].ItemSchema["properties"].(map[string]any), "title")
}

func TestEffectiveItemSchemaInjectsTraceability(t *testing.T) {
	cfg := sourcesSchema()
	eff, err := EffectiveItemSchema("sources", cfg, DefaultSystemKinds())
	require.NoError(t, err)
	props := eff["properties"].(map[string]any)
	for _, f := range []string{FieldCitations, FieldDerivedFrom, FieldReasoning, "url"} {
		assert.Contains(t, props, f)
	}
	// Traceability fields are optional.
	assert.Equal(t, []any{"url"}, eff["required"])
	// The raw stored schema is untouched.
	assert.NotContains(t, cfg.Kinds["sources"].ItemSchema["properties"].(map[string]any), FieldCitations)
}

func TestEffectiveItemSchemaSkipsSystemKinds(t *testing.T) {
	cfg := sourcesSchema()
	cfg.Kinds[model.KindRunInput] = NormalizeKind(model.KindSchema{})
	eff, err := EffectiveItemSchema(model.KindRunInput, cfg, DefaultSystemKinds())
	require.NoError(t, err)
	assert.NotContains(t, eff["properties"].(map[string]any), FieldCitations)

	// Absent from the schema entirely: still accepted.
	eff, err = EffectiveItemSchema(model.KindRunInput, Default("wf"), DefaultSystemKinds())
	require.NoError(t, err)
	assert.Equal(t, "object", eff["type"])
}

func TestEffectiveItemSchemaSkipsNonObjectSchemas(t *testing.T) {
	cfg, err := Normalize("wf", model.CollectionSchema{Kinds: map[string]model.KindSchema{
		"tags": {ItemSchema: map[string]any{"type": "string"}},
	}})
	require.NoError(t, err)
	eff, err := EffectiveItemSchema("tags", cfg, DefaultSystemKinds())
	require.NoError(t, err)
	assert.NotContains(t, eff["properties"].(map[string]any), FieldReasoning)
}

func TestValidateItemUnknownKindListsKnownKinds(t *testing.T) {
	err := ValidateItem(sourcesSchema(), "claims", map[string]any{"x": 1}, DefaultSystemKinds())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))
	var uk *UnknownKindError
	require.True(t, errors.As(err, &uk))
	assert.Equal(t, "claims", uk.Kind)
	assert.Equal(t, []string{"sources", "summary"}, uk.Known)
	assert.Contains(t, err.Error(), "sources, summary")
}

func TestValidateItemMissingFields(t *testing.T) {
	cfg := sourcesSchema()
	cfg.Kinds["sources"] = MergeKind(cfg.Kinds["sources"], KindSpec{Required: []string{"title"}})

	err := ValidateItem(cfg, "sources", map[string]any{"url": nil}, DefaultSystemKinds())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingRequiredFields))
	var mf *MissingFieldsError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, []string{"url", "title"}, mf.Missing)

	require.NoError(t, ValidateItem(cfg, "sources", map[string]any{"url": "http://a", "title": 3}, DefaultSystemKinds()))
}

func TestValidateProvenance(t *testing.T) {
	sys := DefaultSystemKinds("seed")
	require.NoError(t, ValidateProvenance(model.KindRunInput, model.Provenance{}, sys))
	require.NoError(t, ValidateProvenance("seed", model.Provenance{}, sys))
	require.NoError(t, ValidateProvenance("sources", model.Provenance{NodeID: "n", NodeResultID: "r"}, sys))

	err := ValidateProvenance("sources", model.Provenance{NodeID: "n"}, sys)
	var mf *MissingFieldsError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, []string{model.FieldCreatedByNodeResultID}, mf.Missing)
}

func TestCloneIsDeep(t *testing.T) {
	src := map[string]any{"a": map[string]any{"b": []any{"c"}}}
	dup := Clone(src)
	dup["a"].(map[string]any)["b"].([]any)[0] = "changed"
	assert.Equal(t, "c", src["a"].(map[string]any)["b"].([]any)[0])
	assert.Nil(t, Clone(nil))
}
