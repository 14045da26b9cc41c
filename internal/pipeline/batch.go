package pipeline

import (
	"context"
	"path"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"fidelity/internal/logging"
)

// ProductInput names one product for a batch run.
type ProductInput struct {
	SKU           string
	ReferenceURIs []string
}

// ProductsFromURIs derives one single-reference product per URI, using the
// blob base name (without extension) as the SKU.
func ProductsFromURIs(uris []string) []ProductInput {
	products := make([]ProductInput, 0, len(uris))
	for _, uri := range uris {
		base := path.Base(uri)
		if dot := strings.LastIndex(base, "."); dot > 0 {
			base = base[:dot]
		}
		products = append(products, ProductInput{SKU: base, ReferenceURIs: []string{uri}})
	}
	return products
}

// ReportSink renders an aggregate report from finished runs. Rendering is a
// side effect of batch completion; failures are logged, never fatal to the
// batch.
type ReportSink interface {
	Render(ctx context.Context, result *BatchResult) error
}

// BatchRunner fans one controller run per product across a bounded worker
// pool. Product runs are isolated failure domains: an errored or cancelled
// product never aborts its siblings.
type BatchRunner struct {
	controller  *Controller
	reporter    ReportSink
	concurrency int
	logger      logging.Logger
}

// NewBatchRunner creates a runner with the given concurrency bound.
// reporter may be nil.
func NewBatchRunner(controller *Controller, reporter ReportSink, concurrency int) *BatchRunner {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &BatchRunner{
		controller:  controller,
		reporter:    reporter,
		concurrency: concurrency,
		logger:      logging.NewComponentLogger("batch"),
	}
}

// Run evaluates all products and returns their runs sorted ascending by
// final score, worst first. Progress events are emitted onto events as each
// product starts and finishes, ending with a complete sentinel carrying the
// total; events may be nil. Cancelling ctx propagates to in-flight products
// but partial results are still collected and returned.
func (b *BatchRunner) Run(ctx context.Context, products []ProductInput, events chan<- ProgressEvent) *BatchResult {
	b.logger.Info("Starting batch of %d product(s), concurrency %d", len(products), b.concurrency)

	runs := make([]*ProductRun, len(products))

	// Workers return nil even on product failure so the group never
	// cancels siblings; ctx cancellation flows through the controllers
	// themselves.
	group := &errgroup.Group{}
	group.SetLimit(b.concurrency)

	for i, product := range products {
		i, product := i, product
		group.Go(func() error {
			emit(events, ProgressEvent{SKU: product.SKU, Status: EventRunning})
			run := b.controller.Run(ctx, product.SKU, product.ReferenceURIs, "")
			runs[i] = run
			emit(events, terminalEvent(run))
			return nil
		})
	}
	_ = group.Wait()

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].FinalScore() < runs[j].FinalScore()
	})

	result := &BatchResult{Runs: runs, Total: len(runs)}
	emit(events, ProgressEvent{Status: EventComplete, Total: result.Total})

	if b.reporter != nil {
		// Render with a fresh context so a cancelled batch still gets
		// its partial report.
		if err := b.reporter.Render(context.WithoutCancel(ctx), result); err != nil {
			b.logger.Warn("Report rendering failed: %v", err)
		}
	}

	b.logger.Info("Batch finished: %d passed, %d failed, %d errored, %d cancelled",
		result.CountByState(StatePassed), result.CountByState(StateFailed),
		result.CountByState(StateErrored), result.CountByState(StateCancelled))
	return result
}

// emit is non-blocking from the producer's perspective: when the consumer
// falls behind a bounded channel, the event is dropped rather than stalling
// a product pipeline.
func emit(events chan<- ProgressEvent, event ProgressEvent) {
	if events == nil {
		return
	}
	select {
	case events <- event:
	default:
	}
}
