// Package telemetry exposes Prometheus metrics for the HTTP surface and the
// recognition engine.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pheno"

// Metrics owns a private registry. It satisfies recognition.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	cells      prometheus.Counter
	terms      prometheus.Counter
	termsCell  prometheus.Histogram
	unresolved prometheus.Counter
	coerced    prometheus.Counter
	indexTerms *prometheus.GaugeVec
	indexKeys  *prometheus.GaugeVec

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	active   prometheus.Gauge
}

// NewMetrics registers all collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cells_recognized_total",
			Help: "Cells or texts passed through the recognizer.",
		}),
		terms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "terms_recognized_total",
			Help: "Terms emitted by the recognizer.",
		}),
		termsCell: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "terms_per_cell",
			Help:    "Distribution of terms emitted per cell.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		unresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "overlay_unresolved_total",
			Help: "Overlay phrases whose target is not in the index.",
		}),
		coerced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cells_coerced_total",
			Help: "Non-string cells converted to text before recognition.",
		}),
		indexTerms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "index_terms",
			Help: "Terms in the loaded index.",
		}, []string{"version"}),
		indexKeys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "index_labels",
			Help: "Match keys in the loaded index.",
		}, []string{"version"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http", Subsystem: "server", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "http", Subsystem: "server", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "http", Subsystem: "server", Name: "active_requests",
			Help: "In-flight HTTP requests.",
		}),
	}
	m.registry.MustRegister(
		m.cells, m.terms, m.termsCell, m.unresolved, m.coerced,
		m.indexTerms, m.indexKeys,
		m.requests, m.duration, m.active,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) CellRecognized(terms int) {
	m.cells.Inc()
	m.terms.Add(float64(terms))
	m.termsCell.Observe(float64(terms))
}

func (m *Metrics) OverlayUnresolved() { m.unresolved.Inc() }

func (m *Metrics) CellCoerced() { m.coerced.Inc() }

// SetIndex publishes the size of the loaded index.
func (m *Metrics) SetIndex(version string, terms, labels int) {
	m.indexTerms.Reset()
	m.indexKeys.Reset()
	m.indexTerms.WithLabelValues(version).Set(float64(terms))
	m.indexKeys.WithLabelValues(version).Set(float64(labels))
}

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.active.Inc()
			defer m.active.Dec()

			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			method := c.Request().Method
			m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
}
