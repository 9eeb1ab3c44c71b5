package telemetry

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/confmod/confmod/pkg/engine"
)

// Metrics provides Prometheus metrics for confmod. A disabled instance is
// a safe no-op: every Record method nil-checks its collector.
type Metrics struct {
	config MetricsConfig

	// Cycle metrics
	cyclesStarted   *prometheus.CounterVec
	cyclesCompleted *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec

	// Definition metrics
	definitionsApplied  *prometheus.CounterVec
	definitionsDeferred prometheus.Counter
	definitionsDenied   prometheus.Counter
	definitionsFailed   *prometheus.CounterVec
	changeWarnings      prometheus.Counter

	// Ledger metrics
	ledgerSize prometheus.Gauge

	// Error metrics
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		cyclesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_started_total",
				Help:      "Total number of orchestration cycles started",
			},
			[]string{"trigger"},
		),
		cyclesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_completed_total",
				Help:      "Total number of orchestration cycles completed",
			},
			[]string{"status"},
		),
		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of orchestration cycles in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		definitionsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "definitions_applied_total",
				Help:      "Total number of modification definitions applied",
			},
			[]string{"component"},
		),
		definitionsDeferred: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "definitions_deferred_total",
				Help:      "Total number of definitions deferred on unmet dependencies",
			},
		),
		definitionsDenied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "definitions_denied_total",
				Help:      "Total number of definitions denied by policy",
			},
		),
		definitionsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "definitions_failed_total",
				Help:      "Total number of definitions that failed to apply",
			},
			[]string{"component"},
		),
		changeWarnings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "change_warnings_total",
				Help:      "Total number of change operations on absent paths",
			},
		),

		ledgerSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ledger_size",
				Help:      "Current number of applied modification ids in the ledger",
			},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.cyclesStarted,
		m.cyclesCompleted,
		m.cycleDuration,
		m.definitionsApplied,
		m.definitionsDeferred,
		m.definitionsDenied,
		m.definitionsFailed,
		m.changeWarnings,
		m.ledgerSize,
		m.errorsByClass,
	)

	return m, nil
}

// RecordCycleStarted increments the counter for started cycles.
func (m *Metrics) RecordCycleStarted(trigger string) {
	if m.cyclesStarted == nil {
		return
	}
	m.cyclesStarted.WithLabelValues(trigger).Inc()
}

// RecordCycleResult records a completed cycle from its summary.
func (m *Metrics) RecordCycleResult(result *engine.CycleResult) {
	if m.cyclesCompleted == nil || result == nil {
		return
	}
	status := "clean"
	if len(result.Failed) > 0 {
		status = "partial"
	}
	m.cyclesCompleted.WithLabelValues(status).Inc()
	m.cycleDuration.WithLabelValues(status).Observe(result.Duration.Seconds())
	m.definitionsDeferred.Add(float64(result.Deferred))
	m.definitionsDenied.Add(float64(result.Denied))
	m.changeWarnings.Add(float64(result.Warnings))
}

// RecordDefinitionApplied increments the applied counter for a component.
func (m *Metrics) RecordDefinitionApplied(component string) {
	if m.definitionsApplied == nil {
		return
	}
	m.definitionsApplied.WithLabelValues(component).Inc()
}

// RecordDefinitionFailed increments the failed counter for a component.
func (m *Metrics) RecordDefinitionFailed(component string) {
	if m.definitionsFailed == nil {
		return
	}
	m.definitionsFailed.WithLabelValues(component).Inc()
}

// SetLedgerSize sets the current ledger size gauge.
func (m *Metrics) SetLedgerSize(count float64) {
	if m.ledgerSize == nil {
		return
	}
	m.ledgerSize.Set(count)
}

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
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
			os.Stderr.WriteString("metrics server error: " + err.Error() + "\n")
		}
	}()

	return nil
}
