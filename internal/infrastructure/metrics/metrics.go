// Package metrics exposes Prometheus collectors for the warehouse API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"milkwms/internal/infrastructure/storage/postgres"
)

// Metrics holds every collector of one process.
type Metrics struct {
	namespace string
	registry  *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Business metrics
	Reservations      *prometheus.CounterVec
	NotesCompleted    *prometheus.CounterVec
	StocktakingScans  *prometheus.CounterVec
	QuantityRejected  *prometheus.CounterVec
	ReceiptsCompleted prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Namespace string
}

// DefaultConfig returns the default namespace.
func DefaultConfig() Config {
	return Config{Namespace: "milkwms"}
}

// New creates and registers every collector on a private registry.
func New(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := cfg.Namespace
	m := &Metrics{namespace: ns, registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "http_requests_in_flight",
		Help:      "Number of HTTP requests currently being processed",
	})

	m.Reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "pick_reservations_total",
			Help:      "Child notes created with pick allocations, by kind",
		},
		[]string{"kind"},
	)
	m.NotesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "notes_completed_total",
			Help:      "Goods issue and disposal notes completed, by kind",
		},
		[]string{"kind"},
	)
	m.StocktakingScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stocktaking_scans_total",
			Help:      "Pallet scans during stocktaking, by result",
		},
		[]string{"result"},
	)
	m.QuantityRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "quantity_exceeded_total",
			Help:      "Operations refused because stock was not available, by operation",
		},
		[]string{"operation"},
	)
	m.ReceiptsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "goods_receipts_completed_total",
		Help:      "Goods receipt notes approved",
	})

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.Reservations,
		m.NotesCompleted,
		m.StocktakingScans,
		m.QuantityRejected,
		m.ReceiptsCompleted,
	)
	return m
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one finished request. path is the route template.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// The Observe helpers are safe on a nil *Metrics so handlers can run without metrics.

// ObserveReservation counts a child note created with allocations.
func (m *Metrics) ObserveReservation(kind string) {
	if m != nil {
		m.Reservations.WithLabelValues(kind).Inc()
	}
}

// ObserveNoteCompleted counts a completed note.
func (m *Metrics) ObserveNoteCompleted(kind string) {
	if m != nil {
		m.NotesCompleted.WithLabelValues(kind).Inc()
	}
}

// ObserveScan counts a stocktaking scan by its classification.
func (m *Metrics) ObserveScan(result string) {
	if m != nil {
		m.StocktakingScans.WithLabelValues(result).Inc()
	}
}

// ObserveQuantityExceeded counts a refusal for lack of stock.
func (m *Metrics) ObserveQuantityExceeded(operation string) {
	if m != nil {
		m.QuantityRejected.WithLabelValues(operation).Inc()
	}
}

// ObserveReceiptCompleted counts an approved goods receipt.
func (m *Metrics) ObserveReceiptCompleted() {
	if m != nil {
		m.ReceiptsCompleted.Inc()
	}
}

// RegisterPool exports connection pool gauges read on every scrape.
func (m *Metrics) RegisterPool(stats func() postgres.PoolStats) {
	gauge := func(name, help string, read func(postgres.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(stats()) })
	}
	m.registry.MustRegister(
		gauge("total_conns", "Open connections", func(s postgres.PoolStats) float64 { return float64(s.TotalConns) }),
		gauge("acquired_conns", "Connections in use", func(s postgres.PoolStats) float64 { return float64(s.AcquiredConns) }),
		gauge("idle_conns", "Idle connections", func(s postgres.PoolStats) float64 { return float64(s.IdleConns) }),
		gauge("max_conns", "Pool size limit", func(s postgres.PoolStats) float64 { return float64(s.MaxConns) }),
	)
}
