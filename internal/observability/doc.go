// Package observability builds the process-wide logger and meter provider.
//
// Components never reach for globals: they receive a *zap.Logger and an
// OpenTelemetry metric.Meter at construction. The meter provider built here
// exports through a private Prometheus registry served on /metrics.
package observability
