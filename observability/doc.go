// Package observability exposes executor health to monitoring systems.
//
// [MetricsExtension] is an ext.Extension that counts job lifecycle events
// with OpenTelemetry instruments. [Collector] is a prometheus.Collector
// reporting the node executor's queue depth, active workers and
// execution counters, and optionally the number of jobs per state.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
