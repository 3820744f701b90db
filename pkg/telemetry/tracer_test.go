package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"botkit/pkg/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(config.TelemetryConfig{}, nil)
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInitExportsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	otel.SetTracerProvider(noop.NewTracerProvider())

	var out bytes.Buffer
	shutdown, err := initWithWriter(config.TelemetryConfig{Enabled: true, ServiceName: "botkit-test"}, &out, nil)
	if err != nil {
		t.Fatalf("initWithWriter error: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "bot.turn")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}

	if !strings.Contains(out.String(), "bot.turn") {
		t.Fatalf("expected exported span, got %q", out.String())
	}
	if !strings.Contains(out.String(), "botkit-test") {
		t.Fatalf("expected service name in export, got %q", out.String())
	}
}
