package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/meitarbe/cognetivy/internal/integrity"
	"github.com/meitarbe/cognetivy/internal/model"
)

// maxEventLine caps a single event line when reading logs back.
const maxEventLine = 16 << 20

func (ws *Workspace) eventsPath(runID string) string {
	return ws.path(dirEvents, runID+".ndjson")
}

// AppendEvent appends one event as a single JSON line to the run's log. The
// run must exist. Prior lines are never rewritten.
func (ws *Workspace) AppendEvent(ctx context.Context, runID string, ev model.Event) (model.Event, error) {
	ok, err := ws.RunExists(ctx, runID)
	if err != nil {
		return model.Event{}, err
	}
	if !ok {
		return model.Event{}, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if ev.Type == "" {
		return model.Event{}, fmt.Errorf("storage: append event: type is required")
	}
	if ev.TS.IsZero() {
		ev.TS = ws.timestamp()
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: encode event: %w", err)
	}
	line = append(line, '\n')

	if err := ws.appendLine(ws.eventsPath(runID), line); err != nil {
		return model.Event{}, fmt.Errorf("storage: append event: %w", err)
	}
	ws.metrics.eventAppended(ctx, string(ev.Type))
	for _, observe := range ws.observers {
		observe(ctx, runID, ev)
	}
	return ev, nil
}

func (ws *Workspace) appendLine(path string, line []byte) error {
	ws.eventMu.Lock()
	defer ws.eventMu.Unlock()
	if err := os.MkdirAll(ws.path(dirEvents), dirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ListEvents returns the run's events in append order, filtered.
func (ws *Workspace) ListEvents(ctx context.Context, runID string, filter model.EventFilter) ([]model.Event, error) {
	var out []model.Event
	err := ws.scanEvents(ctx, runID, func(line []byte) error {
		var ev model.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		if filter.Match(ev) {
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EventLogDigest returns the Merkle root over the hashes of every line in the
// run's event log, in append order, together with the number of events. Two
// logs share a digest only if they hold the same lines in the same order.
func (ws *Workspace) EventLogDigest(ctx context.Context, runID string) (string, int, error) {
	var leaves []string
	err := ws.scanEvents(ctx, runID, func(line []byte) error {
		leaves = append(leaves, integrity.ComputeDocumentHash(line))
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	return integrity.BuildMerkleRoot(leaves), len(leaves), nil
}

func (ws *Workspace) scanEvents(ctx context.Context, runID string, fn func(line []byte) error) error {
	ok, err := ws.RunExists(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}

	ws.eventMu.Lock()
	defer ws.eventMu.Unlock()
	f, err := os.Open(ws.eventsPath(runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: open events %s: %w", runID, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("storage: events %s line %d: %w", runID, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("storage: read events %s: %w", runID, err)
	}
	return nil
}
