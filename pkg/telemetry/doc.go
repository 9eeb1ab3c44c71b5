// Package telemetry provides logging, metrics, and tracing for confmod.
//
// Logging is structured JSON via zerolog; the package hands out plain
// zerolog.Logger values so callers can derive sub-loggers cheaply. Metrics
// are Prometheus collectors behind nil-guarded record methods, so a
// disabled Metrics value is safe to call everywhere. Tracing is
// OpenTelemetry with stdout and OTLP gRPC exporters.
//
// All three are configured from a single Config and default to the
// quietest useful setting: JSON logs at info level, metrics and tracing
// off.
package telemetry
