package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lifeos_currency"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ConversionsTotal     *prometheus.CounterVec
	CacheLookupsTotal    *prometheus.CounterVec
	ProviderFetchTotal   *prometheus.CounterVec
	ProviderFetchLatency prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		ConversionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_total",
				Help:      "Currency conversions by outcome",
			},
			[]string{"outcome"},
		),

		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Rate cache lookups by result",
			},
			[]string{"result"},
		),

		ProviderFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_fetch_total",
				Help:      "Rate provider calls by result",
			},
			[]string{"result"},
		),

		ProviderFetchLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_fetch_duration_seconds",
				Help:      "Rate provider call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

const (
	OutcomeExact       = "exact"
	OutcomeApproximate = "approximate"
	OutcomeIdentity    = "identity"
	OutcomeFailed      = "failed"

	CacheHit   = "hit"
	CacheStale = "stale"
	CacheMiss  = "miss"
	CacheError = "error"
)

func (m *Metrics) ObserveHTTP(path, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(path, method).Observe(elapsed.Seconds())
}

func (m *Metrics) Conversion(outcome string) {
	if m == nil {
		return
	}
	m.ConversionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ProviderFetch(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ProviderFetchTotal.WithLabelValues(result).Inc()
	m.ProviderFetchLatency.Observe(elapsed.Seconds())
}
