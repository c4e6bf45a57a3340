// Package cognetivy is the public API for embedding the Cognetivy workflow
// ledger.
//
// Hosts import this package to serve the ledger's MCP surface from their own
// process, or to observe run events, without forking it:
//
//	app, err := cognetivy.New(
//	    cognetivy.WithVersion(version),
//	    cognetivy.WithLogger(logger),
//	    cognetivy.WithEventHook(myHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*, but internal/* never imports the root
// package. Public types (Event) are standalone structs; conversion happens
// here because this is the only file that sees both sides of the boundary.
package cognetivy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"sync"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/meitarbe/cognetivy/internal/config"
	"github.com/meitarbe/cognetivy/internal/mcp"
	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/ratelimit"
	"github.com/meitarbe/cognetivy/internal/server"
	"github.com/meitarbe/cognetivy/internal/service/mutations"
	"github.com/meitarbe/cognetivy/internal/service/nodes"
	"github.com/meitarbe/cognetivy/internal/service/runs"
	"github.com/meitarbe/cognetivy/internal/storage"
	"github.com/meitarbe/cognetivy/internal/telemetry"
)

// App is the Cognetivy server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	ws           *storage.Workspace
	mcp          *mcp.Server
	srv          *server.Server // nil for the stdio transport
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	hooks        []EventHook
	hookWG       sync.WaitGroup
	logger       *slog.Logger
	version      string
	actor        string
	stdin        io.Reader
	stdout       io.Writer
}

// New opens (and, when configured, initializes) the workspace, wires the
// services and the MCP server, and returns a ready-to-run App. It does not
// accept connections; call Run for that.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load configuration (env vars), then apply option overrides. Reading a
	// .env file is left to the process entry point.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.workspace != "" {
		cfg.Workspace = o.workspace
	}
	if o.transport != "" {
		cfg.Transport = o.transport
	}
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	a := &App{
		cfg:     cfg,
		hooks:   o.eventHooks,
		logger:  logger,
		version: version,
		stdin:   o.stdin,
		stdout:  o.stdout,
	}
	if a.stdin == nil {
		a.stdin = os.Stdin
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}

	logger.Info("cognetivy starting", "version", version, "transport", cfg.Transport)

	a.otelShutdown, err = telemetry.Init(context.Background(), telemetry.Options{
		Endpoint:       cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	projectDir, err := resolveProjectDir(cfg)
	if err != nil {
		_ = a.otelShutdown(context.Background())
		return nil, err
	}

	var broker *server.Broker
	storeOpts := []storage.Option{
		storage.WithListConcurrency(cfg.ListConcurrency),
		storage.WithEventObserver(a.dispatchEvent),
	}
	if cfg.Transport == config.TransportHTTP {
		broker = server.NewBroker(logger)
		storeOpts = append(storeOpts, storage.WithEventObserver(broker.Observe))
	}
	ws, err := storage.Open(projectDir, logger, storeOpts...)
	if err != nil {
		_ = a.otelShutdown(context.Background())
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	if !ws.Exists() {
		if !cfg.AutoInit {
			_ = a.otelShutdown(context.Background())
			return nil, fmt.Errorf("no workspace at %s (set COGNETIVY_AUTO_INIT=true to create one)", ws.Root())
		}
		if err := ws.Init(context.Background()); err != nil {
			_ = a.otelShutdown(context.Background())
			return nil, fmt.Errorf("init workspace: %w", err)
		}
	}
	a.ws = ws

	// Actor precedence: WithActor, then the workspace config.yaml, then env.
	a.actor = cfg.Actor
	if settings, err := ws.Settings(); err != nil {
		logger.Warn("workspace settings unreadable, using defaults", "error", err)
	} else if settings.Actor != "" {
		a.actor = settings.Actor
	}
	if o.actor != "" {
		a.actor = o.actor
	}

	a.mcp = mcp.New(ws,
		runs.New(ws, logger),
		nodes.New(ws, logger),
		mutations.New(ws, logger),
		logger, version, a.actor,
	)

	if cfg.Transport == config.TransportHTTP {
		a.limiter = ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
		a.srv = server.New(server.ServerConfig{
			Workspace: ws,
			Logger:    logger,
			Broker:    broker,
			MCPServer: a.mcp.MCPServer(),
			Limiter:   a.limiter,
			Addr:      cfg.Addr,
			Version:   version,
		})
	}

	logger.Info("workspace ready", "root", ws.Root(), "actor", a.actor)
	return a, nil
}

// resolveProjectDir picks the project directory: the configured one, else the
// nearest ancestor of the working directory holding a workspace, else (when
// auto-init is on) the working directory itself.
func resolveProjectDir(cfg config.Config) (string, error) {
	if cfg.Workspace != "" {
		return cfg.Workspace, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}
	dir, err := storage.Resolve(cwd)
	switch {
	case err == nil:
		return dir, nil
	case errors.Is(err, storage.ErrNotFound) && cfg.AutoInit:
		return cwd, nil
	default:
		return "", fmt.Errorf("locate workspace: %w", err)
	}
}

// Run serves the MCP surface on the configured transport and blocks until ctx
// is cancelled, stdin closes (stdio) or a fatal server error occurs. On
// return, Close is called automatically.
func (a *App) Run(ctx context.Context) error {
	var runErr error
	if a.srv != nil {
		runErr = a.runHTTP(ctx)
	} else {
		runErr = a.runStdio(ctx)
	}
	if err := a.Close(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) runStdio(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(a.mcp.MCPServer())
	stdio.SetErrorLogger(slog.NewLogLogger(a.logger.Handler(), slog.LevelError))

	a.logger.Info("serving mcp over stdio")
	err := stdio.Listen(ctx, a.stdin, a.stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func (a *App) runHTTP(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Block until signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	httpCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	return nil
}

// Close waits for in-flight event hooks (bounded by the shutdown timeout and
// ctx) and flushes telemetry. Run calls it; call it directly only when Run
// is never called.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("cognetivy shutting down")

	done := make(chan struct{})
	go func() {
		a.hookWG.Wait()
		close(done)
	}()
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()
	select {
	case <-done:
	case <-waitCtx.Done():
		a.logger.Warn("event hooks still running at shutdown")
	}

	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if err := a.otelShutdown(context.Background()); err != nil {
		a.logger.Warn("telemetry shutdown", "error", err)
	}
	a.logger.Info("cognetivy stopped")
	return nil
}

// Root returns the workspace directory.
func (a *App) Root() string { return a.ws.Root() }

// ProjectDir returns the directory that contains the workspace.
func (a *App) ProjectDir() string { return a.ws.ProjectDir() }

// Actor returns the identity recorded when a caller supplies none.
func (a *App) Actor() string { return a.actor }

// MCPServer returns the underlying MCP server, for hosts that serve it on a
// transport of their own.
func (a *App) MCPServer() *mcpserver.MCPServer { return a.mcp.MCPServer() }

// Handler returns the HTTP handler for the http transport, or nil for stdio.
func (a *App) Handler() http.Handler {
	if a.srv == nil {
		return nil
	}
	return a.srv.Handler()
}

// dispatchEvent fans an appended event out to every registered hook. Hooks
// run in their own goroutines; failures are logged and never reach the
// appending caller.
func (a *App) dispatchEvent(ctx context.Context, runID string, ev model.Event) {
	if len(a.hooks) == 0 {
		return
	}
	pub := toPublicEvent(ev)
	hookCtx := context.WithoutCancel(ctx)
	for _, h := range a.hooks {
		a.hookWG.Add(1)
		go func() {
			defer a.hookWG.Done()
			if err := h.OnEvent(hookCtx, runID, pub); err != nil {
				a.logger.Warn("event hook failed", "run_id", runID, "type", pub.Type, "error", err)
			}
		}()
	}
}

func toPublicEvent(ev model.Event) Event {
	return Event{
		TS:   ev.TS,
		Type: string(ev.Type),
		By:   ev.By,
		Data: maps.Clone(ev.Data),
	}
}
