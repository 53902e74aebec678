// Package observability provides structured logging and metrics for authvault.
//
// This package implements:
//   - zap logger construction from level/format settings
//   - Prometheus counters for identity resolution, vault operations and migration
//
// Metrics are registered on a private registry served at /metrics.
package observability
