package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fidelity/internal/logging"
	"fidelity/internal/pipeline"
	"fidelity/internal/storage/blobstore"
)

var (
	// ErrAlreadyRunning is returned by Start when a batch is in flight.
	ErrAlreadyRunning = errors.New("a batch is already running")
	// ErrNoBatchRunning is returned by Cancel when nothing is in flight.
	ErrNoBatchRunning = errors.New("no batch is running")
	// ErrNoInputs is returned by Start when the request names no products.
	ErrNoInputs = errors.New("no reference images provided")
	// ErrNoProductsFound is returned by Start when listing matched nothing.
	ErrNoProductsFound = errors.New("no reference images found")
)

// BatchStatus is the lifecycle of the single in-flight batch record. It
// transitions running → {complete, cancelled, error} exactly once per
// batch. Per-product failures stay isolated in their runs; error marks a
// wholesale abort of the batch itself.
type BatchStatus string

const (
	StatusIdle      BatchStatus = "idle"
	StatusRunning   BatchStatus = "running"
	StatusComplete  BatchStatus = "complete"
	StatusCancelled BatchStatus = "cancelled"
	StatusError     BatchStatus = "error"
)

// StartRequest names the products of one batch. Exactly one of the fields
// should be set; explicit URIs win over a prefix listing.
type StartRequest struct {
	ReferenceURIs []string `json:"reference_uris,omitempty"`
	Prefix        string   `json:"prefix,omitempty"`
	RunAll        bool     `json:"run_all,omitempty"`
}

// Snapshot is a point-in-time view of the batch record for polling clients.
type Snapshot struct {
	Status    BatchStatus            `json:"status"`
	Total     int                    `json:"total"`
	StartedAt time.Time              `json:"started_at,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Runs      []*pipeline.ProductRun `json:"runs,omitempty"`
}

// BatchService owns the single in-flight batch. It holds the only mutable
// shared state of the server: the batch record and its progress fan-out.
type BatchService struct {
	runner     *pipeline.BatchRunner
	store      blobstore.BlobStore
	listPrefix string
	logger     logging.Logger

	mu          sync.Mutex
	status      BatchStatus
	startedAt   time.Time
	total       int
	errMessage  string
	result      *pipeline.BatchResult
	cancel      context.CancelFunc
	subscribers map[int]chan pipeline.ProgressEvent
	nextSubID   int
}

// NewBatchService creates the service. listPrefix is the blob URI prefix
// under which reference images live, used by prefix and run-all starts.
func NewBatchService(runner *pipeline.BatchRunner, store blobstore.BlobStore, listPrefix string) *BatchService {
	return &BatchService{
		runner:      runner,
		store:       store,
		listPrefix:  listPrefix,
		logger:      logging.NewComponentLogger("batch-service"),
		status:      StatusIdle,
		subscribers: map[int]chan pipeline.ProgressEvent{},
	}
}

// Start resolves the request into products and launches the batch in the
// background. The batch outlives the originating HTTP request.
func (s *BatchService) Start(ctx context.Context, req StartRequest) (int, error) {
	products, err := s.resolveProducts(ctx, req)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.status == StatusRunning {
		s.mu.Unlock()
		return 0, ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.status = StatusRunning
	s.startedAt = time.Now()
	s.total = len(products)
	s.errMessage = ""
	s.result = nil
	s.cancel = cancel
	s.mu.Unlock()

	// Sized so producers never block: one running plus one terminal event
	// per product, the complete sentinel, and slack.
	events := make(chan pipeline.ProgressEvent, 2*len(products)+8)

	go s.distribute(events)
	go func() {
		var result *pipeline.BatchResult
		defer func() {
			wasCancelled := runCtx.Err() != nil
			recovered := recover()

			// Flip the status before closing the event stream so no new
			// subscriber can attach to a finished batch.
			s.mu.Lock()
			s.result = result
			switch {
			case recovered != nil:
				s.status = StatusError
				s.errMessage = fmt.Sprintf("batch aborted: %v", recovered)
			case wasCancelled:
				s.status = StatusCancelled
			default:
				s.status = StatusComplete
			}
			s.mu.Unlock()

			if recovered != nil {
				s.logger.Error("Batch aborted: %v", recovered)
			}
			close(events)
			cancel()
		}()
		result = s.runner.Run(runCtx, products, events)
	}()

	s.logger.Info("Batch started with %d product(s)", len(products))
	return len(products), nil
}

func (s *BatchService) resolveProducts(ctx context.Context, req StartRequest) ([]pipeline.ProductInput, error) {
	if len(req.ReferenceURIs) > 0 {
		return pipeline.ProductsFromURIs(req.ReferenceURIs), nil
	}
	if req.Prefix == "" && !req.RunAll {
		return nil, ErrNoInputs
	}

	prefix := s.listPrefix
	if req.Prefix != "" {
		prefix = s.listPrefix + req.Prefix
	}
	uris, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var images []string
	for _, uri := range uris {
		if blobstore.IsImageURI(uri) {
			images = append(images, uri)
		}
	}
	if len(images) == 0 {
		return nil, ErrNoProductsFound
	}
	return pipeline.ProductsFromURIs(images), nil
}

// distribute fans the batch event stream out to all subscribers. Slow
// subscribers lose events rather than stalling the batch.
func (s *BatchService) distribute(events <-chan pipeline.ProgressEvent) {
	for event := range events {
		s.mu.Lock()
		for _, sub := range s.subscribers {
			select {
			case sub <- event:
			default:
			}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	for id, sub := range s.subscribers {
		close(sub)
		delete(s.subscribers, id)
	}
	s.mu.Unlock()
}

// Subscribe returns a channel of progress events for the in-flight batch
// and a release function. The channel closes when the batch finishes.
// Returns ErrNoBatchRunning when nothing is in flight.
func (s *BatchService) Subscribe() (<-chan pipeline.ProgressEvent, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusRunning {
		return nil, nil, ErrNoBatchRunning
	}

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan pipeline.ProgressEvent, 64)
	s.subscribers[id] = ch

	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
	return ch, release, nil
}

// Cancel requests cooperative cancellation of the in-flight batch.
func (s *BatchService) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusRunning || s.cancel == nil {
		return ErrNoBatchRunning
	}
	s.logger.Info("Batch cancellation requested")
	s.cancel()
	return nil
}

// Status returns a snapshot of the batch record.
func (s *BatchService) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		Status:    s.status,
		Total:     s.total,
		StartedAt: s.startedAt,
		Error:     s.errMessage,
	}
	if s.result != nil {
		snapshot.Runs = s.result.Runs
	}
	return snapshot
}
