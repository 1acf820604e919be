package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yourorg/cctpr-engine/internal/circuitbreaker"
)

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	registry        *prometheus.Registry
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	routeCandidates prometheus.Histogram
	quoteErrors     *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	eventsDropped   prometheus.GaugeFunc
}

// registerMetrics sets up Prometheus metrics collection. dropped reports the
// progress events lost to full subscribers.
func registerMetrics(dropped func() float64) *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cctpr_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"status", "endpoint"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cctpr_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		routeCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cctpr_route_candidates",
				Help:    "Number of routes returned per route request",
				Buckets: []float64{0, 1, 2, 3, 4, 6, 9},
			},
		),
		quoteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cctpr_quote_errors_total",
				Help: "Total number of failed corridor quotes",
			},
			[]string{"domain"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cctpr_breaker_state",
				Help: "Relay quote breaker state per lane (0=closed, 1=open, 2=half-open)",
			},
			[]string{"corridor"},
		),
		eventsDropped: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "cctpr_progress_events_dropped",
				Help: "Progress events dropped because a subscriber was full",
			},
			dropped,
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestCounter,
		m.requestDuration,
		m.routeCandidates,
		m.quoteErrors,
		m.breakerState,
		m.eventsDropped,
	)
	return m
}

// observeBreaker copies the lane states of cb into the breaker gauge.
func (m *serverMetrics) observeBreaker(cb *circuitbreaker.CircuitBreaker) {
	for _, st := range cb.Status() {
		m.breakerState.WithLabelValues(st.Lane.String()).Set(float64(cb.GetState(st.Lane)))
	}
}
