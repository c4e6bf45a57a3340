package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// KeyFunc extracts the rate limit key from a request.
// Returns empty string to skip rate limiting for this request.
type KeyFunc func(r *http.Request) string

// RejectFunc writes the response for a throttled request.
// Injected by the caller so the error envelope stays with the server package.
type RejectFunc func(w http.ResponseWriter, r *http.Request)

// Middleware returns HTTP middleware that enforces limiter per key.
// Limiter errors are logged and the request is let through.
func Middleware(limiter Limiter, keyFunc KeyFunc, reject RejectFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter failed, allowing request", "key", key, "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", "1")
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorOrIPKeyFunc keys requests by the value of header when present and by
// client IP otherwise.
func ActorOrIPKeyFunc(header string) KeyFunc {
	return func(r *http.Request) string {
		if actor := strings.TrimSpace(r.Header.Get(header)); actor != "" {
			return "actor:" + actor
		}
		return "ip:" + IPKeyFunc(r)
	}
}

// IPKeyFunc extracts the client IP from the request for rate limiting.
// Uses RemoteAddr only. X-Forwarded-For is not trusted because any client
// can set an arbitrary value to bypass rate limiting.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
