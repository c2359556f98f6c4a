package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics collects HTTP and launch pipeline metrics on a private
// registry, one per server instance
type Metrics struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	launchResults   *prometheus.CounterVec
}

// NewMetrics creates and registers the server's collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catapult",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "catapult",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		launchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catapult",
			Subsystem: "launcher",
			Name:      "launch_results_total",
			Help:      "Number of launch pipeline outcomes",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(m.requestTotal, m.requestDuration, m.launchResults)
	return m
}

// Handler serves the /metrics scrape endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one handled HTTP request
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestDuration.With(labels).Observe(duration.Seconds())
}

// RecordLaunchResult counts one terminal launch outcome
func (m *Metrics) RecordLaunchResult(outcome string) {
	m.launchResults.With(prometheus.Labels{"outcome": outcome}).Inc()
}
