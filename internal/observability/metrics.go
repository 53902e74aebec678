package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels for metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

const namespace = "authvault"

// Metrics holds the Prometheus collectors for identity and vault operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	identityResolutions *prometheus.CounterVec
	vaultOperations     *prometheus.CounterVec
	vaultLatency        *prometheus.HistogramVec
	migrationSecrets    *prometheus.CounterVec
	vaultEnabled        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		identityResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "identity",
				Name:      "resolutions_total",
				Help:      "Identity resolutions by path (token, bypass strategy) and result",
			},
			[]string{"path", "result"},
		),
		vaultOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "operations_total",
				Help:      "Vault operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		vaultLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "operation_duration_seconds",
				Help:      "Latency of vault operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		migrationSecrets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "migration",
				Name:      "secrets_total",
				Help:      "Secrets processed by vault migration, by outcome",
			},
			[]string{"outcome"},
		),
		vaultEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "enabled",
				Help:      "Whether the secret broker is backed by the vault (1) or local configuration (0)",
			},
		),
	}

	m.registry.MustRegister(
		m.identityResolutions,
		m.vaultOperations,
		m.vaultLatency,
		m.migrationSecrets,
		m.vaultEnabled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordResolution counts one identity resolution
func (m *Metrics) RecordResolution(path, result string) {
	if m == nil {
		return
	}
	m.identityResolutions.WithLabelValues(path, result).Inc()
}

// RecordVaultOperation counts a vault call and its latency
func (m *Metrics) RecordVaultOperation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.vaultOperations.WithLabelValues(operation, result).Inc()
	m.vaultLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// RecordMigration counts one migrated secret outcome
func (m *Metrics) RecordMigration(outcome string) {
	if m == nil {
		return
	}
	m.migrationSecrets.WithLabelValues(outcome).Inc()
}

// SetVaultEnabled updates the enabled gauge
func (m *Metrics) SetVaultEnabled(enabled bool) {
	if m == nil {
		return
	}
	if enabled {
		m.vaultEnabled.Set(1)
		return
	}
	m.vaultEnabled.Set(0)
}
