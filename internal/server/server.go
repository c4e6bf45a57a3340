// Package server implements the HTTP transport: MCP over streamable HTTP,
// a health check, and Server-Sent Event streams of appended run events.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/meitarbe/cognetivy/internal/ratelimit"
	"github.com/meitarbe/cognetivy/internal/storage"
)

// Server is the Cognetivy HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Broker and MCPServer are optional (nil disables the routes they serve).
// A nil Limiter disables rate limiting.
type ServerConfig struct {
	Workspace *storage.Workspace
	Logger    *slog.Logger
	Broker    *Broker
	MCPServer *mcpserver.MCPServer
	Limiter   ratelimit.Limiter

	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := &Handlers{
		ws:        cfg.Workspace,
		broker:    cfg.Broker,
		logger:    cfg.Logger,
		startedAt: time.Now(),
		version:   cfg.Version,
	}

	mux := http.NewServeMux()

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Event streams (long-lived connections).
	mux.HandleFunc("GET /v1/events/stream", h.HandleSubscribe)
	mux.HandleFunc("GET /v1/runs/{run_id}/events/stream", h.HandleRunEvents)

	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID, actor, tracing, logging, rate limit, recovery, handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = ratelimit.Middleware(cfg.Limiter, rateLimitKey, rejectThrottled, cfg.Logger)(handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = actorMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// rateLimitKey exempts the health check and keys everything else by actor,
// falling back to the client IP.
func rateLimitKey(r *http.Request) string {
	if r.URL.Path == "/health" {
		return ""
	}
	return ratelimit.ActorOrIPKeyFunc(HeaderActor)(r)
}

func rejectThrottled(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
