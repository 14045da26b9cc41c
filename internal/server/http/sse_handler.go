package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fidelity/internal/logging"
	"fidelity/internal/pipeline"
	"fidelity/internal/server/app"
)

// SSEHandler streams batch progress over Server-Sent Events.
type SSEHandler struct {
	batches           *app.BatchService
	heartbeatInterval time.Duration
	logger            logging.Logger
}

// NewSSEHandler creates an SSE handler over the batch service.
func NewSSEHandler(batches *app.BatchService) *SSEHandler {
	return &SSEHandler{
		batches:           batches,
		heartbeatInterval: 30 * time.Second,
		logger:            logging.NewComponentLogger("SSEHandler"),
	}
}

// HandleBatchStatus streams progress events for the in-flight batch. When no
// batch is running it emits a single status snapshot and closes. The stream
// ends after the complete sentinel arrives.
func (h *SSEHandler) HandleBatchStatus(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers (CORS headers are handled by middleware)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, release, err := h.batches.Subscribe()
	if errors.Is(err, app.ErrNoBatchRunning) {
		h.writeEvent(w, "status", h.batches.Status())
		flusher.Flush()
		return
	}
	if err != nil {
		http.Error(w, "Subscription failed", http.StatusInternalServerError)
		return
	}
	defer release()

	h.logger.Info("SSE progress stream established")

	// Heartbeat ticker to keep connection alive through proxies.
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event, open := <-events:
			if !open {
				h.logger.Info("SSE progress stream finished")
				return
			}
			h.writeEvent(w, "progress", event)
			flusher.Flush()
			if event.Status == pipeline.EventComplete {
				return
			}

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				h.logger.Error("Failed to send heartbeat: %v", err)
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected")
			return
		}
	}
}

func (h *SSEHandler) writeEvent(w http.ResponseWriter, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to serialize event: %v", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		h.logger.Error("Failed to send SSE message: %v", err)
	}
}
