// Package telemetry provides OpenTelemetry metrics integration.
//
// Telemetry is disabled by default (zero runtime overhead when off).
//
// # Configuration
//
//	GG_OTEL_ENABLED=true   enable metrics (default: off)
//	GG_OTEL_STDOUT=true    write metrics to stdout (dev mode)
//	OTEL_SERVICE_NAME=gg   override service name
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const instrumentationScope = "github.com/genglossary/genglossary"

var shutdownFns []func(context.Context) error

// Enabled reports whether telemetry is active (GG_OTEL_ENABLED=true).
func Enabled() bool {
	return os.Getenv("GG_OTEL_ENABLED") == "true"
}

// Init configures the OTel meter provider. When GG_OTEL_ENABLED is not
// "true" this installs a no-op provider and returns immediately.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	// Default to stdout when enabled but no exporter is configured.
	exp, err := stdoutmetric.New()
	if err != nil {
		return fmt.Errorf("telemetry: stdout metric exporter: %w", err)
	}
	opts = append(opts, sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)),
	))

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)
	return nil
}

// Meter returns a meter with the given instrumentation name (or the global scope).
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes pending metrics and shuts down the provider. Should be
// deferred at process exit with a short-lived context.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFns {
		_ = fn(ctx)
	}
	shutdownFns = nil
}
