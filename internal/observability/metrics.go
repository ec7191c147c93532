package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Telemetry owns the meter provider and the registry it exports to
type Telemetry struct {
	provider metric.MeterProvider
	sdk      *sdkmetric.MeterProvider
	registry *prometheus.Registry
}

// NewTelemetry creates a Prometheus-backed meter provider.
// When disabled, meters are no-ops and Handler serves 404.
func NewTelemetry(enabled bool) (*Telemetry, error) {
	if !enabled {
		return &Telemetry{provider: noop.NewMeterProvider()}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	sdk := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return &Telemetry{
		provider: sdk,
		sdk:      sdk,
		registry: registry,
	}, nil
}

// Meter returns a named meter
func (t *Telemetry) Meter(name string) metric.Meter {
	return t.provider.Meter(name)
}

// Handler serves the Prometheus exposition format
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.sdk == nil {
		return nil
	}
	return t.sdk.Shutdown(ctx)
}
