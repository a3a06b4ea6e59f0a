package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for fleetform. The zero value and
// any instance built with Enabled=false are usable no-ops, so callers
// never need nil checks.
type Metrics struct {
	config MetricsConfig

	// Connection metrics
	connectAttempts *prometheus.CounterVec
	connectDuration *prometheus.HistogramVec
	connectedHosts  prometheus.Gauge

	// Command metrics
	commandsExecuted *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec

	// Fact metrics
	factResolutions *prometheus.CounterVec
	factDuration    *prometheus.HistogramVec
	factCacheHits   prometheus.Counter
	factCacheMisses prometheus.Counter

	// File transfer metrics
	fileTransfers *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_attempts_total",
				Help:      "Total number of host connection attempts",
			},
			[]string{"connector", "result"},
		),
		connectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connect_duration_seconds",
				Help:      "Duration of host connection attempts in seconds",
				Buckets:   buckets,
			},
			[]string{"connector"},
		),
		connectedHosts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connected_hosts",
				Help:      "Current number of hosts with an open connection",
			},
		),

		commandsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_executed_total",
				Help:      "Total number of shell commands dispatched to hosts",
			},
			[]string{"connector", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Duration of shell command execution in seconds",
				Buckets:   buckets,
			},
			[]string{"connector"},
		),

		factResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fact_resolutions_total",
				Help:      "Total number of fact resolutions by fact name",
			},
			[]string{"fact", "status"},
		),
		factDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fact_duration_seconds",
				Help:      "Duration of fact fetches in seconds",
				Buckets:   buckets,
			},
			[]string{"fact"},
		),
		factCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fact_cache_hits_total",
				Help:      "Total number of fact lookups served from the cache",
			},
		),
		factCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fact_cache_misses_total",
				Help:      "Total number of fact lookups that required a fetch",
			},
		),

		fileTransfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "file_transfers_total",
				Help:      "Total number of file uploads and downloads",
			},
			[]string{"direction", "status"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by error kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.connectAttempts,
		m.connectDuration,
		m.connectedHosts,
		m.commandsExecuted,
		m.commandDuration,
		m.factResolutions,
		m.factDuration,
		m.factCacheHits,
		m.factCacheMisses,
		m.fileTransfers,
		m.errorsByKind,
	)

	return m, nil
}

// RecordConnectAttempt records one connection attempt and its outcome.
func (m *Metrics) RecordConnectAttempt(connector, result string, duration time.Duration) {
	if m == nil || m.connectAttempts == nil {
		return
	}
	m.connectAttempts.WithLabelValues(connector, result).Inc()
	m.connectDuration.WithLabelValues(connector).Observe(duration.Seconds())
	if result == "success" {
		m.connectedHosts.Inc()
	}
}

// RecordDisconnect decrements the connected host gauge.
func (m *Metrics) RecordDisconnect() {
	if m == nil || m.connectedHosts == nil {
		return
	}
	m.connectedHosts.Dec()
}

// RecordCommand records one dispatched shell command.
func (m *Metrics) RecordCommand(connector, status string, duration time.Duration) {
	if m == nil || m.commandsExecuted == nil {
		return
	}
	m.commandsExecuted.WithLabelValues(connector, status).Inc()
	m.commandDuration.WithLabelValues(connector).Observe(duration.Seconds())
}

// RecordFactResolution records one fact fetch and its outcome.
func (m *Metrics) RecordFactResolution(fact, status string, duration time.Duration) {
	if m == nil || m.factResolutions == nil {
		return
	}
	m.factResolutions.WithLabelValues(fact, status).Inc()
	m.factDuration.WithLabelValues(fact).Observe(duration.Seconds())
}

// RecordFactCacheHit counts a fact lookup served from the cache.
func (m *Metrics) RecordFactCacheHit() {
	if m == nil || m.factCacheHits == nil {
		return
	}
	m.factCacheHits.Inc()
}

// RecordFactCacheMiss counts a fact lookup that went to the host.
func (m *Metrics) RecordFactCacheMiss() {
	if m == nil || m.factCacheMisses == nil {
		return
	}
	m.factCacheMisses.Inc()
}

// RecordFileTransfer records one upload or download.
func (m *Metrics) RecordFileTransfer(direction, status string) {
	if m == nil || m.fileTransfers == nil {
		return
	}
	m.fileTransfers.WithLabelValues(direction, status).Inc()
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil || m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
