package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campuschain/feedback-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation: HTTP traffic,
// cache effectiveness and ledger transaction outcomes.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	chainTxTotal    *prometheus.CounterVec
	chainTxDuration *prometheus.HistogramVec
	nonceRetries    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	requestCount uint64
	txCount      uint64
	txFailures   uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	chainTxTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_transactions_total",
		Help: "Ledger transactions by contract method and outcome",
	}, []string{"method", "outcome"})

	chainTxDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chain_transaction_duration_seconds",
		Help:    "Submit-to-confirmation latency for ledger transactions",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"method"})

	nonceRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_nonce_retries_total",
		Help: "Nonce conflicts retried with a refetched pending nonce",
	}, []string{"method"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, chainTxTotal, chainTxDuration, nonceRetries, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		chainTxTotal:    chainTxTotal,
		chainTxDuration: chainTxDuration,
		nonceRetries:    nonceRetries,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// ObserveChainTx records a ledger transaction outcome. outcome is one of
// confirmed, reverted, timeout or error.
func (m *MetricsService) ObserveChainTx(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.chainTxTotal.WithLabelValues(method, outcome).Inc()
	m.chainTxDuration.WithLabelValues(method).Observe(duration.Seconds())
	atomic.AddUint64(&m.txCount, 1)
	if outcome != "confirmed" {
		atomic.AddUint64(&m.txFailures, 1)
	}
}

// RecordNonceRetry counts a nonce conflict that was retried with a fresh
// pending nonce.
func (m *MetricsService) RecordNonceRetry(method string) {
	if m == nil {
		return
	}
	m.nonceRetries.WithLabelValues(method).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// Snapshot returns aggregated counters for the admin dashboard.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	return models.SystemMetrics{
		RequestsTotal:   atomic.LoadUint64(&m.requestCount),
		ChainTxTotal:    atomic.LoadUint64(&m.txCount),
		ChainTxFailures: atomic.LoadUint64(&m.txFailures),
		Goroutines:      runtime.NumGoroutine(),
		GeneratedAt:     time.Now().UTC(),
	}
}
