package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meitarbe/cognetivy/internal/ctxutil"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		meta, ok := ctxutil.RequestMetaFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "http", meta.Transport)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.NotEmpty(t, seen, "a request ID is generated when none is sent")
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
}

func TestActorMiddleware(t *testing.T) {
	var actor string
	handler := actorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = ctxutil.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/mcp", nil)
	req.Header.Set(HeaderActor, "  reviewer ")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "reviewer", actor)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/mcp", nil))
	assert.Empty(t, actor)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := requestIDMiddleware(recoveryMiddleware(testLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"internal"`)
	assert.Contains(t, rec.Body.String(), `"request_id"`)
}

func TestStatusWriterFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	sw.WriteHeader(http.StatusAccepted)
	sw.Flush()

	assert.Equal(t, http.StatusAccepted, sw.statusCode)
	assert.True(t, rec.Flushed)
	assert.Same(t, rec, sw.Unwrap())
}

func TestLoggingMiddlewareKeepsStatus(t *testing.T) {
	handler := loggingMiddleware(testLogger(), tracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "no such run")
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/runs/x/events/stream", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
