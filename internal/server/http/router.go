package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fidelity/internal/logging"
)

// NewRouter creates the HTTP router with all endpoints.
func NewRouter(apiHandler *APIHandler, sseHandler *SSEHandler, environment string, allowedOrigins []string) http.Handler {
	logger := logging.NewComponentLogger("Router")

	mux := http.NewServeMux()

	// Batch endpoints
	mux.Handle("/api/batch/start", methodHandler(http.MethodPost, apiHandler.HandleBatchStart))
	mux.Handle("/api/batch/status", methodHandler(http.MethodGet, sseHandler.HandleBatchStatus))
	mux.Handle("/api/batch/cancel", methodHandler(http.MethodPost, apiHandler.HandleBatchCancel))
	mux.Handle("/api/batch/report", methodHandler(http.MethodGet, apiHandler.HandleBatchReport))

	// Blob browsing endpoints
	mux.Handle("/api/blobs/list", methodHandler(http.MethodGet, apiHandler.HandleBlobList))
	mux.Handle("/api/blobs/content", methodHandler(http.MethodGet, apiHandler.HandleBlobContent))

	// Conversational endpoint
	mux.Handle("/api/chat/evaluate", methodHandler(http.MethodPost, apiHandler.HandleChatEvaluate))

	// Health check endpoint
	mux.Handle("/health", http.HandlerFunc(apiHandler.HandleHealthCheck))

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Apply middleware
	var handler http.Handler = mux
	handler = LoggingMiddleware(logger)(handler)
	handler = CORSMiddleware(environment, allowedOrigins)(handler)

	return handler
}

func methodHandler(method string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	})
}
