// Package telemetry installs the global OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/gomantics/repochat/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrUnknownExporter = errors.New("unknown trace exporter")

type Config struct {
	ServiceName  string
	Environment  string
	Exporter     string // none, stdout or otlp
	OTLPEndpoint string
}

// FromConfig reads the [telemetry] section.
func FromConfig() Config {
	return Config{
		ServiceName:  config.Telemetry.ServiceName(),
		Environment:  config.Env(),
		Exporter:     config.Telemetry.TraceExporter(),
		OTLPEndpoint: config.Telemetry.OtlpEndpoint(),
	}
}

// Init sets the global tracer provider and returns its shutdown. With the
// "none" exporter otel keeps its no-op provider and shutdown does nothing.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Register wires Init into the fx lifecycle.
func Register(lc fx.Lifecycle, l *zap.Logger) error {
	cfg := FromConfig()
	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return shutdown(ctx)
		},
	})
	l.Info("tracing configured", zap.String("exporter", cfg.Exporter))
	return nil
}
