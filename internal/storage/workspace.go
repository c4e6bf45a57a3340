// Package storage provides the file-backed storage layer for a cognetivy workspace.
//
// A workspace is a directory (".cognetivy") holding one subarea per document
// class: workflow versions and their pointer index, run records, append-only
// event logs, node result snapshots, collection schemas, collection stores,
// and mutations. Each store is the sole writer of its subarea.
//
// Documents are rewritten atomically (temp file + fsync + rename). There is no
// locking across processes: the workspace assumes a single writer process.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/schema"
)

// DirName is the name of the workspace directory inside a project.
const DirName = ".cognetivy"

// Subarea directory names beneath the workspace root.
const (
	dirWorkflows   = "workflows"
	dirRuns        = "runs"
	dirEvents      = "events"
	dirCollections = "collections"
	dirNodeResults = "node-results"
	dirMutations   = "mutations"
)

var subareas = []string{dirWorkflows, dirRuns, dirEvents, dirCollections, dirNodeResults, dirMutations}

// EventObserver is notified after an event has been durably appended.
type EventObserver func(ctx context.Context, runID string, event model.Event)

// Workspace is the root of all persisted state for one project.
type Workspace struct {
	projectDir string
	root       string
	logger     *slog.Logger
	now        func() time.Time
	observers  []EventObserver
	metrics    *metrics

	listConcurrency int

	// eventMu serializes open-append-close cycles on event logs so rapid
	// appends from this process land in call order.
	eventMu sync.Mutex

	settingsMu sync.Mutex
	settings   *Settings
}

// Option customizes a Workspace during Open.
type Option func(*Workspace)

// WithClock overrides the clock used for timestamps (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(ws *Workspace) {
		if clock != nil {
			ws.now = clock
		}
	}
}

// WithListConcurrency bounds how many documents List* calls decode in parallel.
func WithListConcurrency(n int) Option {
	return func(ws *Workspace) {
		if n > 0 {
			ws.listConcurrency = n
		}
	}
}

// WithEventObserver registers a callback run after each successful event append.
func WithEventObserver(fn EventObserver) Option {
	return func(ws *Workspace) {
		if fn != nil {
			ws.observers = append(ws.observers, fn)
		}
	}
}

// Open returns a Workspace rooted at projectDir/.cognetivy. It does not
// create anything on disk; call Init for that.
func Open(projectDir string, logger *slog.Logger, opts ...Option) (*Workspace, error) {
	if projectDir == "" {
		return nil, fmt.Errorf("storage: project directory is required")
	}
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve %s: %w", projectDir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	ws := &Workspace{
		projectDir: abs,
		root:       filepath.Join(abs, DirName),
		logger:     logger,
		now:        time.Now,

		listConcurrency: defaultListConcurrency,
	}
	for _, opt := range opts {
		opt(ws)
	}
	ws.metrics = newMetrics()
	return ws, nil
}

// Resolve walks up from start looking for a directory that contains a
// workspace and returns that project directory.
func Resolve(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("storage: resolve %s: %w", start, err)
	}
	for {
		info, err := os.Stat(filepath.Join(dir, DirName))
		if err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s directory at or above %s", ErrNotFound, DirName, start)
		}
		dir = parent
	}
}

// Root returns the workspace directory.
func (ws *Workspace) Root() string { return ws.root }

// ProjectDir returns the directory containing the workspace.
func (ws *Workspace) ProjectDir() string { return ws.projectDir }

// Exists reports whether the workspace directory exists.
func (ws *Workspace) Exists() bool {
	info, err := os.Stat(ws.root)
	return err == nil && info.IsDir()
}

// Init creates the workspace directory, its subareas and a default
// config.yaml. It is safe to call on an existing workspace.
func (ws *Workspace) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, dir := range append([]string{""}, subareas...) {
		if err := ensureDir(filepath.Join(ws.root, dir)); err != nil {
			return fmt.Errorf("storage: init %s: %w", dir, err)
		}
	}
	if _, err := os.Stat(ws.settingsPath()); errors.Is(err, fs.ErrNotExist) {
		if err := ws.SaveSettings(DefaultSettings()); err != nil {
			return err
		}
	}
	ws.logger.Info("workspace initialized", "root", ws.root)
	return nil
}

// requireExists fails with ErrNotFound when the workspace has not been initialized.
func (ws *Workspace) requireExists() error {
	if !ws.Exists() {
		return fmt.Errorf("%w: workspace %s (run init first)", ErrNotFound, ws.root)
	}
	return nil
}

// SystemKinds returns the kinds exempt from provenance for this workspace.
func (ws *Workspace) SystemKinds() schema.SystemKinds {
	settings, err := ws.Settings()
	if err != nil {
		ws.logger.Warn("storage: settings unreadable, using defaults", "error", err)
		return schema.DefaultSystemKinds()
	}
	return schema.DefaultSystemKinds(settings.SystemKinds...)
}

// Now returns the workspace clock reading in UTC.
func (ws *Workspace) Now() time.Time { return ws.timestamp() }

func (ws *Workspace) timestamp() time.Time {
	return ws.now().UTC()
}

func (ws *Workspace) path(parts ...string) string {
	return filepath.Join(append([]string{ws.root}, parts...)...)
}
