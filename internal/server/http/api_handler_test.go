package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"fidelity/internal/pipeline"
	"fidelity/internal/server/app"
	"fidelity/internal/storage/blobstore"
)

type fakeDescriber struct{}

func (fakeDescriber) Describe(ctx context.Context, referenceURIs []string) (string, error) {
	return "a product", nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, in pipeline.GenerateInput) (string, error) {
	return "blob://products/generated/" + in.SKU + "/attempt_1.png", nil
}

type fakeScorer struct {
	score float64
	delay time.Duration
}

func (f fakeScorer) Evaluate(ctx context.Context, description, candidateURI string) (*pipeline.Evaluation, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &pipeline.Evaluation{Score: f.score, PassingVerdicts: []string{"ok"}}, nil
}

type fakeRefiner struct{}

func (fakeRefiner) Refine(ctx context.Context, originalDescription string, failingVerdicts []string) (string, error) {
	return originalDescription, nil
}

// countingStore wraps a BlobStore to observe listing traffic.
type countingStore struct {
	blobstore.BlobStore
	lists atomic.Int64
}

func (s *countingStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.lists.Add(1)
	return s.BlobStore.List(ctx, prefix)
}

type fixture struct {
	server  *httptest.Server
	store   *countingStore
	batches *app.BatchService
}

func newFixture(t *testing.T, scorer pipeline.EvaluationService) *fixture {
	t.Helper()

	store := &countingStore{BlobStore: blobstore.NewMemoryStore()}
	ctx := context.Background()
	for _, name := range []string{"bag-001.png", "mug-7.png", "shoe-9.png"} {
		_, err := store.Put(ctx, "blob://products/reference/"+name, []byte{0x89, 0x50})
		require.NoError(t, err)
	}

	controller := pipeline.NewController(
		fakeDescriber{}, fakeGenerator{}, scorer, fakeRefiner{},
		pipeline.ControllerConfig{PassingThreshold: 0.7, MaxAttempts: 1},
	).WithMetrics(pipeline.MustNewMetrics(prometheus.NewRegistry()))
	runner := pipeline.NewBatchRunner(controller, nil, 2)

	batches := app.NewBatchService(runner, store, "blob://products/reference/")
	sessions := app.NewSessionService(controller)

	listings, err := NewListingCache(16, time.Minute)
	require.NoError(t, err)

	reportPath := filepath.Join(t.TempDir(), "report.html")
	apiHandler := NewAPIHandler(batches, sessions, store, listings, "blob://products/reference/", reportPath)
	sseHandler := NewSSEHandler(batches)
	sseHandler.heartbeatInterval = 50 * time.Millisecond

	server := httptest.NewServer(NewRouter(apiHandler, sseHandler, "test", nil))
	t.Cleanup(server.Close)

	return &fixture{server: server, store: store, batches: batches}
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func waitComplete(t *testing.T, f *fixture) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f.batches.Status().Status != app.StatusRunning {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("batch never finished")
}

func TestBatchStartValidatesInputs(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9})

	resp := postJSON(t, f.server.URL+"/api/batch/start", app.StartRequest{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, f.server.URL+"/api/batch/start", app.StartRequest{Prefix: "missing"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchStartConflictWhileRunning(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9, delay: 300 * time.Millisecond})

	resp := postJSON(t, f.server.URL+"/api/batch/start", app.StartRequest{RunAll: true})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started struct {
		Status string `json:"status"`
		Total  int    `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	require.Equal(t, "running", started.Status)
	require.Equal(t, 3, started.Total)

	conflict := postJSON(t, f.server.URL+"/api/batch/start", app.StartRequest{RunAll: true})
	defer conflict.Body.Close()
	require.Equal(t, http.StatusConflict, conflict.StatusCode)

	waitComplete(t, f)
}

func TestBatchCancelWithoutBatch(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9})

	resp := postJSON(t, f.server.URL+"/api/batch/cancel", struct{}{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorPayloadCarriesStatus(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9})

	resp := postJSON(t, f.server.URL+"/api/batch/cancel", struct{}{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "No batch is running", body.Error)
	require.Equal(t, http.StatusNotFound, body.Status)
}

func TestBatchReportLifecycle(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9})

	resp, err := http.Get(f.server.URL + "/api/batch/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSSEStreamDeliversProgressAndComplete(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9, delay: 200 * time.Millisecond})

	start := postJSON(t, f.server.URL+"/api/batch/start", app.StartRequest{RunAll: true})
	start.Body.Close()
	require.Equal(t, http.StatusAccepted, start.StatusCode)

	resp, err := http.Get(f.server.URL + "/api/batch/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	var sawComplete bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event pipeline.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		if event.Status == pipeline.EventComplete {
			require.Equal(t, 3, event.Total)
			sawComplete = true
			break
		}
	}
	require.True(t, sawComplete)

	waitComplete(t, f)
}

func TestSSEWithoutBatchSendsSnapshot(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9})

	resp, err := http.Get(f.server.URL + "/api/batch/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Contains(t, lines, "event: status")
}

func TestBlobListPaginatesAndCaches(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9})

	resp, err := http.Get(f.server.URL + "/api/blobs/list?page=1&page_size=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		URIs       []string `json:"uris"`
		Page       int      `json:"page"`
		PageSize   int      `json:"page_size"`
		Total      int      `json:"total"`
		TotalPages int      `json:"total_pages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.URIs, 2)
	require.Equal(t, 3, page.Total)
	require.Equal(t, 2, page.TotalPages)

	resp2, err := http.Get(f.server.URL + "/api/blobs/list?page=2&page_size=2")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&page))
	require.Len(t, page.URIs, 1)

	// Second page was served from the listing cache.
	require.Equal(t, int64(1), f.store.lists.Load())
}

func TestBlobListCapsPageSize(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9})

	resp, err := http.Get(f.server.URL + "/api/blobs/list?page_size=5000")
	require.NoError(t, err)
	defer resp.Body.Close()

	var page struct {
		PageSize int `json:"page_size"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Equal(t, maxPageSize, page.PageSize)
}

func TestBlobContent(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9})

	resp, err := http.Get(f.server.URL + "/api/blobs/content?uri=blob://products/reference/bag-001.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	missing, err := http.Get(f.server.URL + "/api/blobs/content?uri=blob://products/reference/nope.png")
	require.NoError(t, err)
	defer missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)

	bad, err := http.Get(f.server.URL + "/api/blobs/content")
	require.NoError(t, err)
	defer bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestChatEvaluate(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9})

	resp := postJSON(t, f.server.URL+"/api/chat/evaluate", app.TurnRequest{
		SessionID:     "s1",
		ReferenceURIs: []string{"blob://products/reference/bag-001.png"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Run     *pipeline.ProductRun   `json:"run"`
		Session []*pipeline.ProductRun `json:"session"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Equal(t, pipeline.StatePassed, result.Run.State)
	require.Len(t, result.Session, 1)

	noSession := postJSON(t, f.server.URL+"/api/chat/evaluate", app.TurnRequest{
		ReferenceURIs: []string{"blob://products/reference/bag-001.png"},
	})
	defer noSession.Body.Close()
	require.Equal(t, http.StatusBadRequest, noSession.StatusCode)
}

func TestHealthAndMethodGuards(t *testing.T) {
	f := newFixture(t, fakeScorer{score: 0.9})

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	wrong, err := http.Get(f.server.URL + "/api/batch/start")
	require.NoError(t, err)
	defer wrong.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, wrong.StatusCode)
}
