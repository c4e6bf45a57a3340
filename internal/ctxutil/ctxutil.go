// Package ctxutil provides shared context key accessors.
//
// Both the root package (which sets the actor from transport headers) and the
// mcp package (which reads it when stamping events and mutations) import
// ctxutil instead of each other.
package ctxutil

import (
	"context"
	"strings"
)

type contextKey string

const (
	keyActor       contextKey = "actor"
	keyRequestMeta contextKey = "request_meta"
)

// WithActor returns a new context carrying the acting identity.
func WithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, keyActor, actor)
}

// ActorFromContext extracts the acting identity, or "" if none was set.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyActor).(string); ok {
		return v
	}
	return ""
}

// ResolveActor picks the identity to record: explicit if set, then the actor
// carried by ctx, then fallback.
func ResolveActor(ctx context.Context, explicit, fallback string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	if a := ActorFromContext(ctx); a != "" {
		return a
	}
	return fallback
}
