package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CDNOperation identifies the CDN API call being instrumented.
type CDNOperation string

const (
	// CDNOperationCreate records create-invalidation calls.
	CDNOperationCreate CDNOperation = "create_invalidation"
	// CDNOperationList records list-invalidations calls.
	CDNOperationList CDNOperation = "list_invalidations"
)

// StateOperation identifies the debounce state store operation.
type StateOperation string

const (
	StateOperationSubmit  StateOperation = "submit"
	StateOperationDrain   StateOperation = "drain"
	StateOperationRecover StateOperation = "recover"
)

// RetryEvent captures a transition of the deferred retry lifecycle.
type RetryEvent string

const (
	// RetryScheduled indicates a timer was armed.
	RetryScheduled RetryEvent = "scheduled"
	// RetryMerged indicates a batch was folded into an already pending one.
	RetryMerged RetryEvent = "merged"
	// RetryFired indicates a timer fired and drained a pending batch.
	RetryFired RetryEvent = "fired"
	// RetryStale indicates a timer fired after its state had been cleared.
	RetryStale RetryEvent = "stale"
	// RetryDropped indicates deferred work was discarded because retries are disabled.
	RetryDropped RetryEvent = "dropped"
)

// Recorder publishes Prometheus metrics for invalidation activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	requests   *prometheus.CounterVec
	cdnLatency *prometheus.HistogramVec
	stateOps   *prometheus.CounterVec
	retries    *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "purgectl",
		Subsystem: "invalidation",
		Name:      "requests_total",
		Help:      "Invalidation requests processed by the dispatcher, by outcome.",
	}, []string{"distribution", "outcome"})

	cdnLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "purgectl",
		Subsystem: "cdn",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for CDN API calls.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"operation", "result"})

	stateOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "purgectl",
		Subsystem: "state",
		Name:      "operations_total",
		Help:      "Debounce state operations executed by the rate gate.",
	}, []string{"operation", "result"})

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "purgectl",
		Subsystem: "retry",
		Name:      "events_total",
		Help:      "Deferred retry lifecycle events.",
	}, []string{"event"})

	reg.MustRegister(requests, cdnLatency, stateOps, retries)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:   reg,
		handler:    handler,
		requests:   requests,
		cdnLatency: cdnLatency,
		stateOps:   stateOps,
		retries:    retries,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveRequest records the outcome of one dispatcher pass.
func (r *Recorder) ObserveRequest(distribution, outcome string) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(normalizeLabel(distribution), normalizeLabel(outcome)).Inc()
}

// ObserveCDN records the latency and result of a CDN API call.
func (r *Recorder) ObserveCDN(operation CDNOperation, err error, duration time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.cdnLatency.WithLabelValues(normalizeLabel(string(operation)), result).Observe(duration.Seconds())
}

// ObserveState records a debounce state operation.
func (r *Recorder) ObserveState(operation StateOperation, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.stateOps.WithLabelValues(normalizeLabel(string(operation)), result).Inc()
}

// ObserveRetry records a retry lifecycle event.
func (r *Recorder) ObserveRetry(event RetryEvent) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(normalizeLabel(string(event))).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
