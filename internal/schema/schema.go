// Package schema implements the collection schema registry rules: the base
// template every kind is merged into, the traceability fields injected into
// item schemas, and presence-based item validation.
//
// All functions are pure. Persistence lives in the storage package.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/meitarbe/cognetivy/internal/model"
)

// Traceability fields merged into every non-system item schema.
const (
	FieldCitations   = "citations"
	FieldDerivedFrom = "derived_from"
	FieldReasoning   = "reasoning"
)

var (
	// ErrUnknownKind is matched by *UnknownKindError.
	ErrUnknownKind = errors.New("schema: unknown collection kind")
	// ErrMissingRequiredFields is matched by *MissingFieldsError.
	ErrMissingRequiredFields = errors.New("schema: missing required fields")
	// ErrInvalidSchema is returned when a schema document is malformed.
	ErrInvalidSchema = errors.New("schema: invalid collection schema")
)

// UnknownKindError reports a kind absent from the schema along with the
// kinds that do exist, so the caller can correct itself.
type UnknownKindError struct {
	Kind  string
	Known []string
}

func (e *UnknownKindError) Error() string {
	known := "none defined"
	if len(e.Known) > 0 {
		known = strings.Join(e.Known, ", ")
	}
	return fmt.Sprintf("schema: unknown collection kind %q (known kinds: %s)", e.Kind, known)
}

// Is lets errors.Is match ErrUnknownKind.
func (e *UnknownKindError) Is(target error) bool { return target == ErrUnknownKind }

// MissingFieldsError lists exactly which required keys were absent or null.
type MissingFieldsError struct {
	Kind    string
	Missing []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("schema: %s item is missing required fields: %s", e.Kind, strings.Join(e.Missing, ", "))
}

// Is lets errors.Is match ErrMissingRequiredFields.
func (e *MissingFieldsError) Is(target error) bool { return target == ErrMissingRequiredFields }

// SystemKinds is the set of kinds exempt from provenance and traceability.
type SystemKinds map[string]struct{}

// DefaultSystemKinds returns run_input plus any extra configured kinds.
func DefaultSystemKinds(extra ...string) SystemKinds {
	set := SystemKinds{model.KindRunInput: {}}
	for _, k := range extra {
		if k = strings.TrimSpace(k); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// Contains reports whether kind is a system kind.
func (s SystemKinds) Contains(kind string) bool {
	_, ok := s[kind]
	return ok
}

// Default returns the empty-kinds schema written on first read.
func Default(workflowID string) model.CollectionSchema {
	return model.CollectionSchema{
		WorkflowID: workflowID,
		Kinds:      map[string]model.KindSchema{},
	}
}

func baseItemSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"required":             []any{},
		"additionalProperties": true,
	}
}

// NormalizeKind merges k over the base template. The top-level required list
// and item_schema.required are unioned and written back to both places, so
// normalizing an already normalized kind is a no-op.
func NormalizeKind(k model.KindSchema) model.KindSchema {
	out := model.KindSchema{
		Description: k.Description,
		ItemSchema:  deepMerge(baseItemSchema(), k.ItemSchema),
		References:  cloneStringMap(k.References),
		Global:      k.Global,
	}
	required := union(k.Required, stringList(out.ItemSchema["required"]))
	out.Required = required
	reqAny := make([]any, len(required))
	for i, r := range required {
		reqAny[i] = r
	}
	out.ItemSchema["required"] = reqAny
	return out
}

// Normalize validates a whole schema document and normalizes each kind.
func Normalize(workflowID string, cfg model.CollectionSchema) (model.CollectionSchema, error) {
	if cfg.Kinds == nil {
		return model.CollectionSchema{}, fmt.Errorf("%w: top-level \"kinds\" map is required", ErrInvalidSchema)
	}
	out := model.CollectionSchema{WorkflowID: workflowID, Kinds: make(map[string]model.KindSchema, len(cfg.Kinds))}
	for name, kind := range cfg.Kinds {
		if err := model.ValidateID("kind", name); err != nil {
			return model.CollectionSchema{}, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		out.Kinds[name] = NormalizeKind(kind)
	}
	return out, nil
}

// KindSpec is the convenience input for adding or updating a single kind.
type KindSpec struct {
	Description string
	Required    []string
	Properties  map[string]any
	References  map[string]string
	Global      *bool
}

// MergeKind applies spec on top of an existing kind. Properties and
// references are merged key by key; required fields are unioned.
func MergeKind(existing model.KindSchema, spec KindSpec) model.KindSchema {
	merged := NormalizeKind(existing)
	if spec.Description != "" {
		merged.Description = spec.Description
	}
	if len(spec.Properties) > 0 {
		props, _ := merged.ItemSchema["properties"].(map[string]any)
		merged.ItemSchema["properties"] = deepMerge(props, spec.Properties)
	}
	merged.Required = union(merged.Required, spec.Required)
	merged.ItemSchema["required"] = nil
	if len(spec.References) > 0 {
		if merged.References == nil {
			merged.References = map[string]string{}
		}
		for field, kind := range spec.References {
			merged.References[field] = kind
		}
	}
	if spec.Global != nil {
		merged.Global = *spec.Global
	}
	return NormalizeKind(merged)
}

// EffectiveItemSchema returns the kind's item schema with the traceability
// fields merged in. System kinds and non-object schemas are returned as
// stored. A system kind absent from the schema yields the base template.
func EffectiveItemSchema(kind string, cfg model.CollectionSchema, system SystemKinds) (map[string]any, error) {
	k, ok := cfg.Kinds[kind]
	if !ok {
		if system.Contains(kind) {
			return baseItemSchema(), nil
		}
		return nil, &UnknownKindError{Kind: kind, Known: cfg.KindNames()}
	}
	itemSchema := NormalizeKind(k).ItemSchema
	if system.Contains(kind) {
		return itemSchema, nil
	}
	if t, _ := itemSchema["type"].(string); t != "object" {
		return itemSchema, nil
	}
	props, _ := itemSchema["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	for name, def := range traceabilityProperties() {
		if _, exists := props[name]; !exists {
			props[name] = def
		}
	}
	itemSchema["properties"] = props
	return itemSchema, nil
}

func traceabilityProperties() map[string]any {
	return map[string]any{
		FieldCitations: map[string]any{
			"type":        "array",
			"description": "Sources backing this item",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url":     map[string]any{"type": "string"},
					"title":   map[string]any{"type": "string"},
					"excerpt": map[string]any{"type": "string"},
				},
			},
		},
		FieldDerivedFrom: map[string]any{
			"type":        "array",
			"description": "Items this item was derived from",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"kind":    map[string]any{"type": "string"},
					"item_id": map[string]any{"type": "string"},
				},
			},
		},
		FieldReasoning: map[string]any{
			"type":        "string",
			"description": "Why this item was produced",
		},
	}
}

// ValidateItem checks payload against the effective schema of kind. Only
// presence of required keys is checked; values are not type checked.
func ValidateItem(cfg model.CollectionSchema, kind string, payload map[string]any, system SystemKinds) error {
	itemSchema, err := EffectiveItemSchema(kind, cfg, system)
	if err != nil {
		return err
	}
	var missing []string
	for _, field := range stringList(itemSchema["required"]) {
		if v, ok := payload[field]; !ok || v == nil {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Kind: kind, Missing: missing}
	}
	return nil
}

// ValidateProvenance checks that a non-system item carries both provenance fields.
func ValidateProvenance(kind string, prov model.Provenance, system SystemKinds) error {
	if system.Contains(kind) {
		return nil
	}
	var missing []string
	if strings.TrimSpace(prov.NodeID) == "" {
		missing = append(missing, model.FieldCreatedByNodeID)
	}
	if strings.TrimSpace(prov.NodeResultID) == "" {
		missing = append(missing, model.FieldCreatedByNodeResultID)
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Kind: kind, Missing: missing}
	}
	return nil
}

// Clone returns a deep copy of a JSON-like map.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return deepMerge(map[string]any{}, m)
}

// deepMerge returns a new map with src merged over dst. Nested maps are
// merged recursively; any other src value replaces the dst value.
func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = cloneValue(v)
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := out[k].(map[string]any)
		if srcIsMap && dstIsMap {
			out[k] = deepMerge(dstMap, srcMap)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepMerge(map[string]any{}, t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

func cloneStringMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// stringList reads a JSON array of strings that may have been decoded as
// []any or constructed as []string.
func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// union returns the distinct non-empty strings of a then b, in first-seen order.
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s = strings.TrimSpace(s); s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
