// Package metrics exposes Prometheus collectors for the broker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentui"

// Metrics holds the collectors on a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsCreated   *prometheus.CounterVec
	requestsFinished  *prometheus.CounterVec
	responseConflicts prometheus.Counter
	deliveryFailures  prometheus.Counter
	waitDuration      *prometheus.HistogramVec
	imagesStored      prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_created_total",
			Help:      "Interaction requests created, by widget type.",
		}, []string{"type"}),
		requestsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_finished_total",
			Help:      "Interaction requests that reached a terminal state, by status.",
		}, []string{"status"}),
		responseConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_conflicts_total",
			Help:      "Responses rejected because the request was already terminal.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Push messages a channel failed to accept.",
		}),
		waitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_duration_seconds",
			Help:      "Time spent in wait-for-completion calls, by outcome.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"outcome"}),
		imagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_stored_total",
			Help:      "Images accepted by the image store.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsCreated,
		m.requestsFinished,
		m.responseConflicts,
		m.deliveryFailures,
		m.waitDuration,
		m.imagesStored,
	)
	return m
}

// StateFunc reports a point-in-time gauge value.
type StateFunc func() float64

// TrackState registers gauges that are sampled on every scrape.
func (m *Metrics) TrackState(pending, sessions, connections StateFunc) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_pending",
			Help:      "Interaction requests awaiting a response.",
		}, pending),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_connected",
			Help:      "Sessions with at least one live channel.",
		}, sessions),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_connected",
			Help:      "Live push channels across all sessions.",
		}, connections),
	)
}

func (m *Metrics) RequestCreated(widgetType string) {
	if m == nil {
		return
	}
	m.requestsCreated.WithLabelValues(widgetType).Inc()
}

func (m *Metrics) RequestFinished(status string) {
	if m == nil {
		return
	}
	m.requestsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) ResponseConflict() {
	if m == nil {
		return
	}
	m.responseConflicts.Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

// ObserveWait records how long a waiter blocked. Outcome is completed, timeout, not_found or cancelled.
func (m *Metrics) ObserveWait(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ImageStored() {
	if m == nil {
		return
	}
	m.imagesStored.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
