package cognetivy

import (
	"io"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	workspace  string
	transport  string
	addr       string
	actor      string
	logger     *slog.Logger
	version    string
	eventHooks []EventHook
	stdin      io.Reader
	stdout     io.Writer
}

// WithWorkspace sets the project directory (COGNETIVY_WORKSPACE env var).
// The workspace lives in its .cognetivy subdirectory.
func WithWorkspace(dir string) Option {
	return func(o *resolvedOptions) { o.workspace = dir }
}

// WithTransport overrides the MCP transport, "stdio" or "http"
// (COGNETIVY_MCP_TRANSPORT env var).
func WithTransport(transport string) Option {
	return func(o *resolvedOptions) { o.transport = transport }
}

// WithAddr overrides the listen address of the http transport
// (COGNETIVY_MCP_ADDR env var).
func WithAddr(addr string) Option {
	return func(o *resolvedOptions) { o.addr = addr }
}

// WithActor sets the identity recorded on events and mutations when a caller
// supplies none. It wins over the workspace config.yaml and COGNETIVY_ACTOR.
func WithActor(actor string) Option {
	return func(o *resolvedOptions) { o.actor = actor }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported to MCP clients and in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEventHook registers a hook notified after every appended run event.
// Multiple hooks may be registered; all registered hooks receive every event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}

// WithStdio replaces os.Stdin and os.Stdout for the stdio transport.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(o *resolvedOptions) {
		o.stdin = in
		o.stdout = out
	}
}
