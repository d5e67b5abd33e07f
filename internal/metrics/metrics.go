// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts served requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamdl_http_requests_total",
		Help: "Total number of HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamdl_http_request_duration_seconds",
		Help:    "HTTP handler latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method", "route"})

	// ResolveTotal counts metadata resolutions by namespace and outcome.
	ResolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamdl_resolve_total",
		Help: "Metadata resolutions by namespace, outcome (hit, miss, failure) and reason",
	}, []string{"namespace", "outcome", "reason"})

	// SubprocessDuration tracks extractor runs by operation.
	SubprocessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamdl_subprocess_duration_seconds",
		Help:    "Extractor subprocess wall time",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30, 45, 60},
	}, []string{"op", "ok"})

	// CacheEntries is the approximate number of cached metadata entries.
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamdl_cache_entries",
		Help: "Approximate number of metadata cache entries",
	})

	// RateLimitedTotal counts requests rejected by a limiter.
	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamdl_rate_limited_total",
		Help: "Requests rejected by rate limiter",
	}, []string{"limiter"})

	// GateRejectionsTotal counts requests rejected by the block list or network guard.
	GateRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamdl_gate_rejections_total",
		Help: "Requests rejected by access gates",
	}, []string{"gate"})

	// RequestLogDroppedTotal counts request-log records dropped on queue overflow.
	RequestLogDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamdl_request_log_dropped_total",
		Help: "Request log records dropped because the queue was full",
	})

	// RequestLogFlushedTotal counts request-log records written to the store.
	RequestLogFlushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamdl_request_log_flushed_total",
		Help: "Request log records persisted",
	})

	// DownloadsTotal counts download dispatches by mode and result.
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamdl_downloads_total",
		Help: "Download dispatches by mode (redirect, stream) and result",
	}, []string{"mode", "result"})

	// StreamedBytesTotal counts media bytes piped to clients.
	StreamedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamdl_streamed_bytes_total",
		Help: "Media bytes streamed to clients",
	})

	// GeoIPReloadsTotal counts GeoIP database reloads by result.
	GeoIPReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamdl_geoip_reloads_total",
		Help: "GeoIP database reloads by result",
	}, []string{"result"})
)

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// IncResolve records a resolution outcome. reason is empty except for failures.
func IncResolve(namespace, outcome, reason string) {
	ResolveTotal.WithLabelValues(namespace, outcome, reason).Inc()
}

// ObserveSubprocess records one extractor run.
func ObserveSubprocess(op string, ok bool, d time.Duration) {
	SubprocessDuration.WithLabelValues(op, strconv.FormatBool(ok)).Observe(d.Seconds())
}

// IncRateLimited records a limiter rejection.
func IncRateLimited(limiter string) {
	RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// IncGateRejection records a block-list or guard rejection.
func IncGateRejection(gate string) {
	GateRejectionsTotal.WithLabelValues(gate).Inc()
}

// IncDownload records a download dispatch outcome.
func IncDownload(mode string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	DownloadsTotal.WithLabelValues(mode, result).Inc()
}

// IncGeoIPReload records a GeoIP reload attempt.
func IncGeoIPReload(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	GeoIPReloadsTotal.WithLabelValues(result).Inc()
}
