package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opstrail/changetrack/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	auditRecords    *prometheus.CounterVec
	auditWriteFails prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	purgedRecords   prometheus.Counter
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

	auditRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_records_total",
		Help: "Audit records emitted by tracked sessions",
	}, []string{"action", "entity"})

	auditWriteFails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Audit records that failed to persist after the data commit",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	purgedRecords := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_records_purged_total",
		Help: "Audit records removed by retention sweeps",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, auditRecords, auditWriteFails, cacheHits, cacheMisses, purgedRecords, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		auditRecords:    auditRecords,
		auditWriteFails: auditWriteFails,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		purgedRecords:   purgedRecords,
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
}

// RecordAuditRecord counts an emitted audit record. Suitable as a tracker
// listener.
func (m *MetricsService) RecordAuditRecord(log models.AuditLog) {
	if m == nil {
		return
	}
	m.auditRecords.WithLabelValues(string(log.Action), log.Entity).Inc()
}

// RecordAuditWriteFailure counts an audit record that could not be persisted.
func (m *MetricsService) RecordAuditWriteFailure() {
	if m == nil {
		return
	}
	m.auditWriteFails.Inc()
}

// RecordCacheOperation counts a cache hit or miss.
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

// RecordPurgedRecords counts records removed by a retention sweep.
func (m *MetricsService) RecordPurgedRecords(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.purgedRecords.Add(float64(count))
}
