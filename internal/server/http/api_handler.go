package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"fidelity/internal/logging"
	"fidelity/internal/pipeline"
	"fidelity/internal/server/app"
	"fidelity/internal/storage/blobstore"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// APIHandler serves the batch, blob, and chat endpoints.
type APIHandler struct {
	batches    *app.BatchService
	sessions   *app.SessionService
	store      blobstore.BlobStore
	listings   *ListingCache
	listPrefix string
	reportPath string
	logger     logging.Logger
}

// NewAPIHandler wires the handler from its services. listPrefix is the blob
// URI prefix for reference image listings; reportPath is where the batch
// report lands on disk.
func NewAPIHandler(
	batches *app.BatchService,
	sessions *app.SessionService,
	store blobstore.BlobStore,
	listings *ListingCache,
	listPrefix string,
	reportPath string,
) *APIHandler {
	return &APIHandler{
		batches:    batches,
		sessions:   sessions,
		store:      store,
		listings:   listings,
		listPrefix: listPrefix,
		reportPath: reportPath,
		logger:     logging.NewComponentLogger("APIHandler"),
	}
}

// HandleBatchStart launches a batch evaluation.
func (h *APIHandler) HandleBatchStart(w http.ResponseWriter, r *http.Request) {
	var req app.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	total, err := h.batches.Start(r.Context(), req)
	switch {
	case errors.Is(err, app.ErrAlreadyRunning):
		h.writeError(w, http.StatusConflict, "A batch is already running", nil)
		return
	case errors.Is(err, app.ErrNoInputs):
		h.writeError(w, http.StatusBadRequest, "No reference images provided", nil)
		return
	case errors.Is(err, app.ErrNoProductsFound):
		h.writeError(w, http.StatusBadRequest, "No reference images found", nil)
		return
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, "Failed to start batch", err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "running",
		"total":  total,
	})
}

// HandleBatchCancel requests cancellation of the in-flight batch.
func (h *APIHandler) HandleBatchCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.batches.Cancel(); err != nil {
		h.writeError(w, http.StatusNotFound, "No batch is running", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "cancelling"})
}

// HandleBatchReport serves the rendered HTML report. 404 until the first
// batch finishes rendering.
func (h *APIHandler) HandleBatchReport(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(h.reportPath)
	if err != nil {
		if os.IsNotExist(err) {
			h.writeError(w, http.StatusNotFound, "No report has been generated yet", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to read report", err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleBlobList serves a paginated listing of reference images.
func (h *APIHandler) HandleBlobList(w http.ResponseWriter, r *http.Request) {
	prefix := h.listPrefix + r.URL.Query().Get("prefix")

	uris, ok := h.listings.Get(prefix)
	if !ok {
		listed, err := h.store.List(r.Context(), prefix)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "Failed to list blobs", err)
			return
		}
		uris = nil
		for _, uri := range listed {
			if blobstore.IsImageURI(uri) {
				uris = append(uris, uri)
			}
		}
		h.listings.Put(prefix, uris)
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", defaultPageSize)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total := len(uris)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"uris":        uris[start:end],
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": totalPages,
	})
}

// HandleBlobContent proxies raw blob bytes, for thumbnails and previews.
func (h *APIHandler) HandleBlobContent(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		h.writeError(w, http.StatusBadRequest, "uri query parameter required", nil)
		return
	}

	data, err := h.store.Get(r.Context(), uri)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Blob not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to read blob", err)
		return
	}

	w.Header().Set("Content-Type", blobstore.MIMEType(uri))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type chatEvaluateResponse struct {
	Run     *pipeline.ProductRun   `json:"run"`
	Session []*pipeline.ProductRun `json:"session"`
}

// HandleChatEvaluate runs one conversational evaluation turn.
func (h *APIHandler) HandleChatEvaluate(w http.ResponseWriter, r *http.Request) {
	var req app.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "session_id required", nil)
		return
	}

	run, session, err := h.sessions.EvaluateTurn(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrNoInputs) {
			h.writeError(w, http.StatusBadRequest, "No reference images provided", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Evaluation turn failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, chatEvaluateResponse{Run: run, Session: session})
}

// HandleHealthCheck reports liveness.
func (h *APIHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// errorBody is the structured error contract shared by every endpoint:
// a human-readable message, optional cause details, and the HTTP status
// echoed into the payload so streaming clients can read it off the body.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"status"`
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		h.logger.Error("HTTP %d %s: %v", status, message, err)
	} else {
		h.logger.Warn("HTTP %d %s", status, message)
	}

	body := errorBody{Error: message, Status: status}
	if err != nil {
		body.Details = err.Error()
	}
	h.writeJSON(w, status, body)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to encode response: %v", err)
		http.Error(w, `{"error":"response encoding failed","status":500}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
