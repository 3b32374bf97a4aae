package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WebhookDeliveries counts alert delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks alert delivery latencies in milliseconds.
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)

	// FixesIngested counts accepted location fixes per tenant.
	FixesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "location_fixes_ingested_total", Help: "Accepted location fixes."},
		[]string{"tenant"},
	)
	// PatternsDetected counts detected movement patterns by type.
	PatternsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "movement_patterns_detected_total", Help: "Detected movement patterns by type."},
		[]string{"type"},
	)
	// GeofenceTransitions counts enter/exit crossings by zone kind.
	GeofenceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "geofence_transitions_total", Help: "Geofence enter/exit transitions."},
		[]string{"kind", "event"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on the registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(FixesIngested)
		Registry.MustRegister(PatternsDetected)
		Registry.MustRegister(GeofenceTransitions)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
