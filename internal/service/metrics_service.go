package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/youthhub-api/internal/models"
)

// MetricsService owns the Prometheus registry of the process.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	itemsConsidered    prometheus.Counter
	itemsVisible       prometheus.Counter
	rejections         *prometheus.CounterVec
	narrowingFallbacks prometheus.Counter
	feedDuration       prometheus.Histogram
	fanoutRecipients   prometheus.Counter
	fanoutSkipped      prometheus.Counter
	fanoutBatches      prometheus.Counter
	fanoutDuration     prometheus.Histogram

	cacheHitCount  uint64
	cacheMissCount uint64
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	itemsConsidered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "items_considered_total",
		Help: "Content items passed to the evaluator",
	})

	itemsVisible := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "items_visible_total",
		Help: "Content items the evaluator found visible",
	})

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "targeting_rejections_total",
		Help: "Evaluator rejections by reason code",
	}, []string{"reason"})

	narrowingFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_narrowing_fallbacks_total",
		Help: "Feed candidate queries retried without scope narrowing",
	})

	feedDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_query_duration_seconds",
		Help:    "Duration of forward feed queries",
		Buckets: prometheus.DefBuckets,
	})

	fanoutRecipients := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_recipients_total",
		Help: "Recipients handed to the notification sink",
	})

	fanoutSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_ledger_skips_total",
		Help: "Visible recipients skipped because the ledger already had them",
	})

	fanoutBatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_batches_total",
		Help: "Recipient batches dispatched",
	})

	fanoutDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fanout_duration_seconds",
		Help:    "Duration of on-publish fanout runs",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		itemsConsidered, itemsVisible, rejections, narrowingFallbacks, feedDuration,
		fanoutRecipients, fanoutSkipped, fanoutBatches, fanoutDuration, goroutines)

	for _, code := range models.RejectionCodes() {
		rejections.WithLabelValues(string(code))
	}

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		itemsConsidered:    itemsConsidered,
		itemsVisible:       itemsVisible,
		rejections:         rejections,
		narrowingFallbacks: narrowingFallbacks,
		feedDuration:       feedDuration,
		fanoutRecipients:   fanoutRecipients,
		fanoutSkipped:      fanoutSkipped,
		fanoutBatches:      fanoutBatches,
		fanoutDuration:     fanoutDuration,
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDecision counts one evaluator verdict.
func (m *MetricsService) ObserveDecision(d models.Decision) {
	if m == nil {
		return
	}
	m.itemsConsidered.Inc()
	if d.Visible {
		m.itemsVisible.Inc()
		return
	}
	if reason, ok := d.Rejection(); ok {
		m.rejections.WithLabelValues(string(reason.Code)).Inc()
	}
}

// IncNarrowingFallback counts a widened candidate query.
func (m *MetricsService) IncNarrowingFallback() {
	if m == nil {
		return
	}
	m.narrowingFallbacks.Inc()
}

// ObserveFeed records the duration of one feed call.
func (m *MetricsService) ObserveFeed(duration time.Duration) {
	if m == nil {
		return
	}
	m.feedDuration.Observe(duration.Seconds())
}

// ObserveFanoutBatch counts one dispatched recipient batch.
func (m *MetricsService) ObserveFanoutBatch(delivered int) {
	if m == nil {
		return
	}
	m.fanoutBatches.Inc()
	m.fanoutRecipients.Add(float64(delivered))
}

// ObserveFanoutSkipped counts recipients filtered by the ledger.
func (m *MetricsService) ObserveFanoutSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fanoutSkipped.Add(float64(n))
}

// ObserveFanout records the duration of one on-publish run.
func (m *MetricsService) ObserveFanout(duration time.Duration) {
	if m == nil {
		return
	}
	m.fanoutDuration.Observe(duration.Seconds())
}
