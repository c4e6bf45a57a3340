package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/meitarbe/cognetivy/internal/integrity"
	"github.com/meitarbe/cognetivy/internal/model"
)

const indexFile = "index.json"

func (ws *Workspace) indexPath() string { return ws.path(dirWorkflows, indexFile) }

func (ws *Workspace) versionsDir(workflowID string) string {
	return ws.path(dirWorkflows, workflowID, "versions")
}

func (ws *Workspace) versionPath(workflowID, versionID string) string {
	return ws.path(dirWorkflows, workflowID, "versions", versionID+".json")
}

func (ws *Workspace) readIndex() (model.WorkflowIndex, error) {
	var idx model.WorkflowIndex
	err := readJSON(ws.indexPath(), &idx)
	if errors.Is(err, ErrNotFound) {
		return model.WorkflowIndex{Workflows: map[string]model.Workflow{}}, nil
	}
	if err != nil {
		return model.WorkflowIndex{}, fmt.Errorf("storage: read workflow index: %w", err)
	}
	if idx.Workflows == nil {
		idx.Workflows = map[string]model.Workflow{}
	}
	return idx, nil
}

func (ws *Workspace) writeIndex(idx model.WorkflowIndex) error {
	if err := writeJSON(ws.indexPath(), idx); err != nil {
		return fmt.Errorf("storage: write workflow index: %w", err)
	}
	return nil
}

// GetWorkflow returns the index entry for a workflow.
func (ws *Workspace) GetWorkflow(ctx context.Context, workflowID string) (model.Workflow, error) {
	if err := ws.requireExists(); err != nil {
		return model.Workflow{}, err
	}
	idx, err := ws.readIndex()
	if err != nil {
		return model.Workflow{}, err
	}
	wf, ok := idx.Workflows[workflowID]
	if !ok {
		return model.Workflow{}, fmt.Errorf("%w: workflow %s", ErrNotFound, workflowID)
	}
	return wf, nil
}

// ListWorkflows returns every workflow in the index, sorted by id.
func (ws *Workspace) ListWorkflows(ctx context.Context) ([]model.Workflow, error) {
	if err := ws.requireExists(); err != nil {
		return nil, err
	}
	idx, err := ws.readIndex()
	if err != nil {
		return nil, err
	}
	out := make([]model.Workflow, 0, len(idx.Workflows))
	for _, wf := range idx.Workflows {
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out, nil
}

// GetCurrent resolves the workflow's pointer and loads that version.
func (ws *Workspace) GetCurrent(ctx context.Context, workflowID string) (model.WorkflowVersion, error) {
	wf, err := ws.GetWorkflow(ctx, workflowID)
	if err != nil {
		return model.WorkflowVersion{}, err
	}
	return ws.GetVersion(ctx, workflowID, wf.CurrentVersionID)
}

// GetVersion loads one immutable version document.
func (ws *Workspace) GetVersion(ctx context.Context, workflowID, versionID string) (model.WorkflowVersion, error) {
	data, err := ws.readVersionBytes(workflowID, versionID)
	if err != nil {
		return model.WorkflowVersion{}, err
	}
	var v model.WorkflowVersion
	if err := json.Unmarshal(data, &v); err != nil {
		return model.WorkflowVersion{}, fmt.Errorf("storage: decode version %s@%s: %w", workflowID, versionID, err)
	}
	return v, nil
}

func (ws *Workspace) readVersionBytes(workflowID, versionID string) ([]byte, error) {
	if err := ws.requireExists(); err != nil {
		return nil, err
	}
	if err := model.ValidateID("workflow_id", workflowID); err != nil {
		return nil, err
	}
	if _, ok := model.ParseVersionID(versionID); !ok {
		return nil, fmt.Errorf("%w: version %s@%s", ErrNotFound, workflowID, versionID)
	}
	data, err := readFile(ws.versionPath(workflowID, versionID))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: version %s@%s", ErrNotFound, workflowID, versionID)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read version %s@%s: %w", workflowID, versionID, err)
	}
	return data, nil
}

// ListVersions returns the version ids written for a workflow in sequence order.
func (ws *Workspace) ListVersions(ctx context.Context, workflowID string) ([]string, error) {
	if err := ws.requireExists(); err != nil {
		return nil, err
	}
	names, err := listDocuments(ws.versionsDir(workflowID), ".json")
	if err != nil {
		return nil, fmt.Errorf("storage: list versions %s: %w", workflowID, err)
	}
	type seq struct {
		id string
		n  int
	}
	var versions []seq
	for _, name := range names {
		if n, ok := model.ParseVersionID(name); ok {
			versions = append(versions, seq{id: name, n: n})
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].n < versions[j].n })
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.id
	}
	return out, nil
}

// nextVersionID scans existing versions and returns max+1. Gaps are ignored.
func (ws *Workspace) nextVersionID(ctx context.Context, workflowID string) (string, error) {
	ids, err := ws.ListVersions(ctx, workflowID)
	if err != nil {
		return "", err
	}
	highest := 0
	for _, id := range ids {
		if n, _ := model.ParseVersionID(id); n > highest {
			highest = n
		}
	}
	return model.VersionID(highest + 1), nil
}

// ValidateWorkflowShape checks the minimal structure every version must have.
func ValidateWorkflowShape(v model.WorkflowVersion) error {
	var problems []string
	if v.Nodes == nil {
		problems = append(problems, "nodes is required")
	}
	seen := make(map[string]struct{}, len(v.Nodes))
	for i, n := range v.Nodes {
		if n.ID == "" {
			problems = append(problems, fmt.Sprintf("nodes[%d] has no id", i))
			continue
		}
		if _, dup := seen[n.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = struct{}{}
	}
	for i, e := range v.Edges {
		if _, ok := seen[e.From]; !ok {
			problems = append(problems, fmt.Sprintf("edges[%d].from references unknown node %q", i, e.From))
		}
		if _, ok := seen[e.To]; !ok {
			problems = append(problems, fmt.Sprintf("edges[%d].to references unknown node %q", i, e.To))
		}
	}
	if len(problems) > 0 {
		return &WorkflowShapeError{WorkflowID: v.WorkflowID, Problems: problems}
	}
	return nil
}

// SetVersion validates doc, writes it as the next immutable version and
// moves the workflow pointer to it. The index entry is created on first write.
func (ws *Workspace) SetVersion(ctx context.Context, workflowID string, doc model.WorkflowVersion) (string, error) {
	versionID, err := ws.writeVersion(ctx, workflowID, doc, nil)
	if err != nil {
		return "", err
	}
	if err := ws.SetCurrent(ctx, workflowID, versionID); err != nil {
		return "", err
	}
	return versionID, nil
}

// CreateWorkflow registers a new workflow with doc as v1. It fails with
// ErrConflict if the workflow already exists.
func (ws *Workspace) CreateWorkflow(ctx context.Context, workflowID, name string, doc model.WorkflowVersion) (model.Workflow, error) {
	if err := model.ValidateID("workflow_id", workflowID); err != nil {
		return model.Workflow{}, err
	}
	if _, err := ws.GetWorkflow(ctx, workflowID); err == nil {
		return model.Workflow{}, fmt.Errorf("%w: workflow %s already exists", ErrConflict, workflowID)
	} else if !errors.Is(err, ErrNotFound) {
		return model.Workflow{}, err
	}
	if doc.Name == "" {
		doc.Name = name
	}
	if _, err := ws.SetVersion(ctx, workflowID, doc); err != nil {
		return model.Workflow{}, err
	}
	if name != "" {
		if err := ws.updateIndexEntry(workflowID, func(wf *model.Workflow) { wf.Name = name }); err != nil {
			return model.Workflow{}, err
		}
	}
	return ws.GetWorkflow(ctx, workflowID)
}

// SetCurrent moves the workflow pointer to an existing version.
func (ws *Workspace) SetCurrent(ctx context.Context, workflowID, versionID string) error {
	if _, err := ws.readVersionBytes(workflowID, versionID); err != nil {
		return err
	}
	return ws.updateIndexEntry(workflowID, func(wf *model.Workflow) {
		wf.CurrentVersionID = versionID
	})
}

func (ws *Workspace) updateIndexEntry(workflowID string, fn func(*model.Workflow)) error {
	idx, err := ws.readIndex()
	if err != nil {
		return err
	}
	now := ws.timestamp()
	wf, ok := idx.Workflows[workflowID]
	if !ok {
		wf = model.Workflow{WorkflowID: workflowID, CreatedAt: now}
	}
	fn(&wf)
	wf.UpdatedAt = now
	idx.Workflows[workflowID] = wf
	return ws.writeIndex(idx)
}

// writeVersion stamps and persists a new version without touching the
// pointer. When raw is non-nil it is written instead of doc so fields the
// typed model does not know survive a patch.
func (ws *Workspace) writeVersion(ctx context.Context, workflowID string, doc model.WorkflowVersion, raw map[string]any) (string, error) {
	if err := ws.requireExists(); err != nil {
		return "", err
	}
	if err := model.ValidateID("workflow_id", workflowID); err != nil {
		return "", err
	}
	doc.WorkflowID = workflowID
	if err := ValidateWorkflowShape(doc); err != nil {
		return "", err
	}
	versionID, err := ws.nextVersionID(ctx, workflowID)
	if err != nil {
		return "", err
	}
	doc.VersionID = versionID
	doc.CreatedAt = ws.timestamp()
	doc.Normalize()

	var data []byte
	if raw != nil {
		raw["workflow_id"] = doc.WorkflowID
		raw["version_id"] = doc.VersionID
		raw["created_at"] = doc.CreatedAt
		normalizeRawVersion(raw)
		data, err = marshalDocument(raw)
	} else {
		data, err = marshalDocument(doc)
	}
	if err != nil {
		return "", fmt.Errorf("storage: encode version %s@%s: %w", workflowID, versionID, err)
	}
	if err := writeFileExclusive(ws.versionPath(workflowID, versionID), data); err != nil {
		return "", fmt.Errorf("storage: write version %s@%s: %w", workflowID, versionID, err)
	}
	hash := integrity.ComputeDocumentHash(data)
	if err := ws.updateIndexEntry(workflowID, func(wf *model.Workflow) {
		if wf.VersionHashes == nil {
			wf.VersionHashes = map[string]string{}
		}
		wf.VersionHashes[versionID] = hash
		if wf.CurrentVersionID == "" {
			wf.CurrentVersionID = versionID
		}
	}); err != nil {
		return "", err
	}
	ws.metrics.versionWritten(ctx, workflowID)
	ws.logger.Info("workflow version written", "workflow_id", workflowID, "version_id", versionID)
	return versionID, nil
}

// normalizeRawVersion gives an untyped version document the same empty-list
// defaults WorkflowVersion.Normalize gives a typed one. Unknown fields stay.
func normalizeRawVersion(raw map[string]any) {
	if raw["edges"] == nil {
		raw["edges"] = []any{}
	}
	nodes, _ := raw["nodes"].([]any)
	for _, n := range nodes {
		node, ok := n.(map[string]any)
		if !ok {
			continue
		}
		contract, _ := node["contract"].(map[string]any)
		if contract == nil {
			contract = map[string]any{}
			node["contract"] = contract
		}
		for _, key := range []string{"input", "output"} {
			if contract[key] == nil {
				contract[key] = []any{}
			}
		}
	}
}

// DecodePatch parses an RFC 6902 patch document.
func DecodePatch(patch []byte) (jsonpatch.Patch, error) {
	p, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, errors.New("patch has no operations")
	}
	return p, nil
}

// ApplyPatch applies an RFC 6902 patch to fromVersion and writes the result
// as the next version. The pointer is not moved. On any decode, apply or
// shape failure nothing is written.
func (ws *Workspace) ApplyPatch(ctx context.Context, workflowID, fromVersion string, patch []byte) (string, error) {
	base, err := ws.readVersionBytes(workflowID, fromVersion)
	if err != nil {
		return "", err
	}
	p, err := DecodePatch(patch)
	if err != nil {
		return "", &PatchError{WorkflowID: workflowID, FromVersion: fromVersion, Err: err}
	}
	patched, err := p.Apply(base)
	if err != nil {
		return "", &PatchError{WorkflowID: workflowID, FromVersion: fromVersion, Err: err}
	}

	var doc model.WorkflowVersion
	if err := json.Unmarshal(patched, &doc); err != nil {
		return "", &PatchError{WorkflowID: workflowID, FromVersion: fromVersion, Err: fmt.Errorf("patched document is not a workflow version: %w", err)}
	}
	var raw map[string]any
	if err := json.Unmarshal(patched, &raw); err != nil {
		return "", &PatchError{WorkflowID: workflowID, FromVersion: fromVersion, Err: err}
	}
	return ws.writeVersion(ctx, workflowID, doc, raw)
}

// VerifyVersion checks a version file against the hash recorded when it was written.
func (ws *Workspace) VerifyVersion(ctx context.Context, workflowID, versionID string) error {
	wf, err := ws.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	stored, ok := wf.VersionHashes[versionID]
	if !ok {
		return fmt.Errorf("%w: no hash recorded for %s@%s", ErrNotFound, workflowID, versionID)
	}
	data, err := ws.readVersionBytes(workflowID, versionID)
	if err != nil {
		return err
	}
	if !integrity.VerifyDocumentHash(stored, data) {
		return fmt.Errorf("%w: version %s@%s", ErrIntegrity, workflowID, versionID)
	}
	return nil
}
