package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"

	ResultRateLimited     = "rate_limited"
	ResultPaymentRequired = "payment_required"
	ResultInvalidRequest  = "invalid_request"
	ResultNotFound        = "not_found"
	ResultUnauthorized    = "unauthorized"
)

// Metrics owns the service counters and the registry they are exposed from.
type Metrics struct {
	registry     *prometheus.Registry
	publishTotal *prometheus.CounterVec
	serveTotal   *prometheus.CounterVec
	chatTotal    *prometheus.CounterVec
	chatDuration prometheus.Histogram
}

// New registers the service collectors plus the Go runtime and process collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		publishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitebuilder_publish_total",
				Help: "Total number of publish requests by result",
			},
			[]string{"result"},
		),
		serveTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitebuilder_serve_total",
				Help: "Total number of published site requests by response status",
			},
			[]string{"status"},
		),
		chatTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitebuilder_chat_total",
				Help: "Total number of chat requests by result",
			},
			[]string{"result"},
		),
		chatDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitebuilder_chat_duration_seconds",
				Help:    "Latency of language model calls in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
		),
	}
}

// ObservePublish counts one publish attempt.
func (metrics *Metrics) ObservePublish(result string) {
	if metrics == nil {
		return
	}
	metrics.publishTotal.WithLabelValues(result).Inc()
}

// ObserveServe counts one site response.
func (metrics *Metrics) ObserveServe(status int) {
	if metrics == nil {
		return
	}
	metrics.serveTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ObserveChat counts one chat request and records the model latency.
func (metrics *Metrics) ObserveChat(result string, elapsed time.Duration) {
	if metrics == nil {
		return
	}
	metrics.chatTotal.WithLabelValues(result).Inc()
	metrics.chatDuration.Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry.
func (metrics *Metrics) Registry() *prometheus.Registry {
	return metrics.registry
}

// Handler serves the registry in the Prometheus text format.
func (metrics *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})
}
