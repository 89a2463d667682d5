package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Sampling rate. Watch for: gaps (loop stalled by a slow delivery pass).
	ReadingsSampledTotal prometheus.Counter

	// Readings drained by successful passes. Watch for: rate() matching the sampling rate.
	ReadingsDeliveredTotal prometheus.Counter

	// Readings posted by a pass that later failed; they stay buffered and are
	// re-sent from scratch next pass. Watch for: duplicate volume at the collector.
	ReadingsRequeuedTotal prometheus.Counter

	// Delivery passes by outcome. Watch for: failure streaks = collector outage.
	DeliveryPassesTotal *prometheus.CounterVec

	// Collector POST rate by status class. Non-2xx still counts as delivered.
	CollectorPostsTotal *prometheus.CounterVec

	// Collector POST latency. Watch for: p95 near the transport timeout = flapping link.
	CollectorPostDuration *prometheus.HistogramVec

	// 1 while in fallback mode. Alert when held high for long.
	FallbackModeActive prometheus.Gauge

	// HTTP request rate for the status and admin servers.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Manual flush triggers by outcome.
	FlushRequestsTotal *prometheus.CounterVec

	// Collector reset requests by outcome.
	ResetRequestsTotal *prometheus.CounterVec

	// Rate limit denials on /flush.
	RateLimitDeniedTotal prometheus.Counter

	bufferGaugeOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	ReadingsSampledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readingsSampledTotal",
			Help: "Total number of temperature readings sampled and buffered",
		},
	)
	ReadingsDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readingsDeliveredTotal",
			Help: "Total number of readings drained by fully successful delivery passes",
		},
	)
	ReadingsRequeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readingsRequeuedTotal",
			Help: "Readings posted by a pass that failed before completing; re-sent next pass",
		},
	)
	DeliveryPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveryPassesTotal",
			Help: "Total number of delivery passes by outcome",
		},
		[]string{"outcome"},
	)
	CollectorPostsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collectorPostsTotal",
			Help: "Total number of reading POSTs to the collector by status class",
		},
		[]string{"status"},
	)
	CollectorPostDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collectorPostDurationSeconds",
			Help:    "Collector POST latency in seconds (per reading)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	FallbackModeActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fallbackModeActive",
			Help: "1 while the logger is in fallback mode, 0 in normal mode",
		},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	FlushRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flushRequestsTotal",
			Help: "Manual flush triggers by outcome",
		},
		[]string{"outcome"},
	)
	ResetRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resetRequestsTotal",
			Help: "Collector reset requests by outcome",
		},
		[]string{"outcome"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		ReadingsSampledTotal, ReadingsDeliveredTotal, ReadingsRequeuedTotal,
		DeliveryPassesTotal, CollectorPostsTotal, CollectorPostDuration,
		FallbackModeActive,
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		FlushRequestsTotal, ResetRequestsTotal, RateLimitDeniedTotal,
	)
}

// RegisterBufferLengthGauge registers a gauge tracking the live store
// length. Call from main after the store is constructed.
func RegisterBufferLengthGauge(length func() int) {
	bufferGaugeOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "bufferLength",
					Help: "Undelivered readings currently buffered; unbounded while the collector is unreachable",
				},
				func() float64 { return float64(length()) },
			),
		)
	})
}

// SetFallbackMode sets the mode gauge. True while in fallback.
func SetFallbackMode(fallback bool) {
	if fallback {
		FallbackModeActive.Set(1)
	} else {
		FallbackModeActive.Set(0)
	}
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
