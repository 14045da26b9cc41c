package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors reporting pipeline activity.
type Metrics struct {
	attemptsTotal  *prometheus.CounterVec
	runsTotal      *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	productsActive prometheus.Gauge
	finalScores    prometheus.Histogram
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. Created only once to avoid duplicate
// registration panics when multiple runners are instantiated.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance on the provided registerer.
// Supply a fresh registry in tests. Registration errors panic, mirroring
// promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	attemptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fidelity",
			Subsystem: "pipeline",
			Name:      "attempts_total",
			Help:      "Total evaluation attempts by decision outcome.",
		},
		[]string{"outcome"},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fidelity",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total product runs by terminal state.",
		},
		[]string{"state"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fidelity",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration spent in each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	productsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fidelity",
			Subsystem: "pipeline",
			Name:      "products_active",
			Help:      "Product runs currently in flight.",
		},
	)
	finalScores := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fidelity",
			Subsystem: "pipeline",
			Name:      "final_score",
			Help:      "Distribution of final fidelity scores.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	collectors := []prometheus.Collector{attemptsTotal, runsTotal, stageDuration, productsActive, finalScores}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector {
				case attemptsTotal:
					attemptsTotal = already.ExistingCollector.(*prometheus.CounterVec)
				case runsTotal:
					runsTotal = already.ExistingCollector.(*prometheus.CounterVec)
				case stageDuration:
					stageDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case productsActive:
					productsActive = already.ExistingCollector.(prometheus.Gauge)
				case finalScores:
					finalScores = already.ExistingCollector.(prometheus.Histogram)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		attemptsTotal:  attemptsTotal,
		runsTotal:      runsTotal,
		stageDuration:  stageDuration,
		productsActive: productsActive,
		finalScores:    finalScores,
	}
}

// IncAttempt records one evaluation attempt with its decision outcome.
func (m *Metrics) IncAttempt(outcome string) {
	if m == nil || m.attemptsTotal == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records a finished product run.
func (m *Metrics) ObserveRun(run *ProductRun) {
	if m == nil || m.runsTotal == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(run.State)).Inc()
	if len(run.History) > 0 {
		m.finalScores.Observe(run.FinalScore())
	}
}

// ObserveStageDuration records the time spent in one pipeline stage.
func (m *Metrics) ObserveStageDuration(stage string, duration time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncActiveProducts marks a product run as started.
func (m *Metrics) IncActiveProducts() {
	if m == nil || m.productsActive == nil {
		return
	}
	m.productsActive.Inc()
}

// DecActiveProducts marks a product run as finished.
func (m *Metrics) DecActiveProducts() {
	if m == nil || m.productsActive == nil {
		return
	}
	m.productsActive.Dec()
}
