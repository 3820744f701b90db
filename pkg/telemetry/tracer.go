package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"botkit/pkg/config"
)

const defaultServiceName = "botkit"

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Init installs a global tracer provider exporting spans to stderr. When
// tracing is disabled it leaves the no-op provider in place.
func Init(cfg config.TelemetryConfig, log *slog.Logger) (Shutdown, error) {
	return initWithWriter(cfg, os.Stderr, log)
}

func initWithWriter(cfg config.TelemetryConfig, writer io.Writer, log *slog.Logger) (Shutdown, error) {
	if log == nil {
		log = slog.Default()
	}
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(writer))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.With("component", "telemetry").Info("OpenTelemetry initialized", "service", serviceName)

	return tp.Shutdown, nil
}
