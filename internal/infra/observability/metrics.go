package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	paymentsTotal   *prometheus.CounterVec
	paymentAmount   prometheus.Counter
	outboxDepth     prometheus.Gauge
	outboxRetries   prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "absher_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "absher_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "absher_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "absher_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "absher_llm_tokens_total",
				Help: "Total LLM tokens consumed by the assistant.",
			},
			[]string{"type"},
		),
		paymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "absher_payments_total",
				Help: "Total bulk payments by outcome.",
			},
			[]string{"outcome"}, // success | partial | failed
		),
		paymentAmount: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "absher_payment_amount_sar_total",
				Help: "Total SAR charged through bulk payments.",
			},
		),
		outboxDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "absher_outbox_depth",
				Help: "Pending bookkeeping entries awaiting reconciliation.",
			},
		),
		outboxRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "absher_outbox_retries_total",
				Help: "Total outbox retry attempts by the reconciler.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// RecordPayment records a completed bulk payment and its charged amount.
func (m *Metrics) RecordPayment(outcome string, amount float64) {
	m.paymentsTotal.WithLabelValues(outcome).Inc()
	if amount > 0 {
		m.paymentAmount.Add(amount)
	}
}

// SetOutboxDepth reports the current pending outbox size.
func (m *Metrics) SetOutboxDepth(n int) {
	m.outboxDepth.Set(float64(n))
}

// IncrOutboxRetry counts one reconciler retry attempt.
func (m *Metrics) IncrOutboxRetry() {
	m.outboxRetries.Inc()
}

// PaymentOutcomeCount returns the cumulative payment count for one outcome
// label. Used by operational endpoints and tests.
func (m *Metrics) PaymentOutcomeCount(outcome string) float64 {
	return getCounterValue(m.paymentsTotal, outcome)
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
