package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/meitarbe/cognetivy/internal/model"
	"github.com/meitarbe/cognetivy/internal/storage"
)

// keepaliveInterval is how often idle SSE streams receive a comment line.
const keepaliveInterval = 15 * time.Second

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	ws        *storage.Workspace
	broker    *Broker
	logger    *slog.Logger
	startedAt time.Time
	version   string
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Workspace string `json:"workspace"`
	Root      string `json:"root"`
	Uptime    int64  `json:"uptime_seconds"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Workspace: "ok",
		Root:      h.ws.Root(),
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	}
	status := http.StatusOK
	if !h.ws.Exists() {
		resp.Status = "unhealthy"
		resp.Workspace = "missing"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// HandleSubscribe handles GET /v1/events/stream: every appended event.
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "")
}

// HandleRunEvents handles GET /v1/runs/{run_id}/events/stream: appended
// events of one run.
func (h *Handlers) HandleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if err := model.ValidateID("run_id", runID); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}
	if _, err := h.ws.ReadRun(r.Context(), runID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", err.Error())
			return
		}
		h.logger.Error("sse: read run", "run_id", runID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal", "failed to read run")
		return
	}
	h.stream(w, r, runID)
}

func (h *Handlers) stream(w http.ResponseWriter, r *http.Request, runID string) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, "internal", "event streaming is not enabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal", "streaming not supported")
		return
	}

	// Subscribe before the headers go out so a client that has seen the 200
	// does not miss events appended right after.
	ch := h.broker.Subscribe(runID)
	defer h.broker.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Idle streams must outlive the server's WriteTimeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	h.logger.Debug("sse subscriber connected", "run_id", runID, "request_id", RequestIDFromContext(r.Context()))

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
