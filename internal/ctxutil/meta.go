package ctxutil

import "context"

// RequestMeta carries per-request transport details for logging.
type RequestMeta struct {
	RequestID  string
	Transport  string
	RemoteAddr string
}

// WithRequestMeta returns a new context carrying m.
func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, keyRequestMeta, m)
}

// RequestMetaFromContext extracts request metadata; ok is false if none was set.
func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	m, ok := ctx.Value(keyRequestMeta).(RequestMeta)
	return m, ok
}
