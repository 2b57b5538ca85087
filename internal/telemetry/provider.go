package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InstallPrometheusProvider wires an otel MeterProvider backed by the
// Prometheus exporter family damir5-kosarica's go.mod carries
// (go.opentelemetry.io/otel/exporters/...), and sets it as the global
// provider so NewMetricsExtension's otel.Meter calls are backed by real
// instruments rather than noops. Returns the http.Handler to mount at
// /metrics on the coordinator (SPEC_FULL.md §3, the /metrics endpoint row).
func InstallPrometheusProvider() (http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return promhttp.Handler(), nil
}
