package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// RouteOptimizations counts optimizer runs by outcome
	RouteOptimizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_optimizations_total", Help: "Route optimization runs by outcome."},
		[]string{"outcome"},
	)
	// OptimizationDuration tracks optimizer latency in seconds
	OptimizationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimization_duration_seconds", Help: "Route optimization duration in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5}},
	)
	// TechnicianSuggestions counts suggestion requests
	TechnicianSuggestions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "technician_suggestions_total", Help: "Technician suggestion requests."},
	)
	// ConflictsDetected counts schedule conflicts recorded by the detector
	ConflictsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "schedule_conflicts_detected_total", Help: "Schedule conflicts recorded by detection scans."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(RouteOptimizations)
		Registry.MustRegister(OptimizationDuration)
		Registry.MustRegister(TechnicianSuggestions)
		Registry.MustRegister(ConflictsDetected)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
