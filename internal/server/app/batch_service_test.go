package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"fidelity/internal/pipeline"
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

func newTestService(t *testing.T, scorer pipeline.EvaluationService) (*BatchService, blobstore.BlobStore) {
	return newTestServiceWithSink(t, scorer, nil)
}

func newTestServiceWithSink(t *testing.T, scorer pipeline.EvaluationService, sink pipeline.ReportSink) (*BatchService, blobstore.BlobStore) {
	t.Helper()
	controller := pipeline.NewController(
		fakeDescriber{}, fakeGenerator{}, scorer, fakeRefiner{},
		pipeline.ControllerConfig{PassingThreshold: 0.7, MaxAttempts: 1},
	).WithMetrics(pipeline.MustNewMetrics(prometheus.NewRegistry()))
	runner := pipeline.NewBatchRunner(controller, sink, 2)

	store := blobstore.NewMemoryStore()
	ctx := context.Background()
	for _, name := range []string{"bag-001.png", "mug-7.png", "notes.txt"} {
		_, err := store.Put(ctx, "blob://products/reference/"+name, []byte{1})
		require.NoError(t, err)
	}
	return NewBatchService(runner, store, "blob://products/reference/"), store
}

func waitForStatus(t *testing.T, service *BatchService, want BatchStatus) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snapshot := service.Status()
		if snapshot.Status == want {
			return snapshot
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("batch never reached status %s (last: %s)", want, service.Status().Status)
	return Snapshot{}
}

func TestStartRunAllOnlyPicksImages(t *testing.T) {
	service, _ := newTestService(t, fakeScorer{score: 0.9})

	total, err := service.Start(context.Background(), StartRequest{RunAll: true})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	snapshot := waitForStatus(t, service, StatusComplete)
	require.Len(t, snapshot.Runs, 2)
	for _, run := range snapshot.Runs {
		require.Equal(t, pipeline.StatePassed, run.State)
	}
}

func TestStartRejectsConcurrentBatches(t *testing.T) {
	service, _ := newTestService(t, fakeScorer{score: 0.9, delay: 200 * time.Millisecond})

	_, err := service.Start(context.Background(), StartRequest{RunAll: true})
	require.NoError(t, err)

	_, err = service.Start(context.Background(), StartRequest{RunAll: true})
	require.ErrorIs(t, err, ErrAlreadyRunning)

	waitForStatus(t, service, StatusComplete)
}

func TestStartValidation(t *testing.T) {
	service, _ := newTestService(t, fakeScorer{score: 0.9})

	_, err := service.Start(context.Background(), StartRequest{})
	require.ErrorIs(t, err, ErrNoInputs)

	_, err = service.Start(context.Background(), StartRequest{Prefix: "does-not-exist"})
	require.ErrorIs(t, err, ErrNoProductsFound)
}

func TestSubscribeReceivesEventsThroughComplete(t *testing.T) {
	service, _ := newTestService(t, fakeScorer{score: 0.9, delay: 20 * time.Millisecond})

	_, err := service.Start(context.Background(), StartRequest{RunAll: true})
	require.NoError(t, err)

	events, release, err := service.Subscribe()
	require.NoError(t, err)
	defer release()

	var sawComplete bool
	var total int
	for event := range events {
		if event.Status == pipeline.EventComplete {
			sawComplete = true
			total = event.Total
		}
	}
	require.True(t, sawComplete)
	require.Equal(t, 2, total)

	waitForStatus(t, service, StatusComplete)
}

func TestSubscribeWithoutBatch(t *testing.T) {
	service, _ := newTestService(t, fakeScorer{score: 0.9})

	_, _, err := service.Subscribe()
	require.ErrorIs(t, err, ErrNoBatchRunning)
}

func TestCancelStopsBatch(t *testing.T) {
	service, _ := newTestService(t, fakeScorer{score: 0.9, delay: 10 * time.Second})

	_, err := service.Start(context.Background(), StartRequest{RunAll: true})
	require.NoError(t, err)

	// Let the workers reach their evaluation sleep before cancelling.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, service.Cancel())

	snapshot := waitForStatus(t, service, StatusCancelled)
	for _, run := range snapshot.Runs {
		require.Equal(t, pipeline.StateCancelled, run.State)
	}
}

// panicSink simulates a wholesale failure inside the batch run itself,
// as opposed to an isolated per-product error.
type panicSink struct{}

func (panicSink) Render(ctx context.Context, result *pipeline.BatchResult) error {
	panic("report template corrupted")
}

func TestBatchPanicSurfacesAsErrorStatus(t *testing.T) {
	service, _ := newTestServiceWithSink(t, fakeScorer{score: 0.9}, panicSink{})

	_, err := service.Start(context.Background(), StartRequest{RunAll: true})
	require.NoError(t, err)

	snapshot := waitForStatus(t, service, StatusError)
	require.Contains(t, snapshot.Error, "report template corrupted")

	// The record left the running state, so the service accepts new work
	// and has nothing left to cancel.
	require.ErrorIs(t, service.Cancel(), ErrNoBatchRunning)
	_, err = service.Start(context.Background(), StartRequest{RunAll: true})
	require.NoError(t, err)
	waitForStatus(t, service, StatusError)
}

func TestCancelWithoutBatch(t *testing.T) {
	service, _ := newTestService(t, fakeScorer{score: 0.9})
	require.ErrorIs(t, service.Cancel(), ErrNoBatchRunning)
}

func TestStartWithExplicitURIs(t *testing.T) {
	service, _ := newTestService(t, fakeScorer{score: 0.9})

	total, err := service.Start(context.Background(), StartRequest{
		ReferenceURIs: []string{"blob://products/reference/bag-001.png"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)

	snapshot := waitForStatus(t, service, StatusComplete)
	require.Len(t, snapshot.Runs, 1)
	require.True(t, strings.HasPrefix(snapshot.Runs[0].SKU, "bag-001"))
}
