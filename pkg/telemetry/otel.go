// Package telemetry provides optional OpenTelemetry OTLP gRPC trace
// export. Disabled by default; when enabled, spans cover session
// detection, event collection, correlation, and export.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config configures the OTLP gRPC exporter.
type Config struct {
	// Endpoint is the OTLP gRPC endpoint (e.g. "localhost:4317").
	Endpoint string

	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the version of this service.
	ServiceVersion string

	// InsecureTLS disables TLS for the gRPC connection.
	InsecureTLS bool

	// ExportTimeout bounds each batch export.
	ExportTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		ServiceName:    "bootlens",
		ServiceVersion: "dev",
		InsecureTLS:    true,
		ExportTimeout:  30 * time.Second,
	}
}

// Init sets up the OTLP exporter and global tracer provider, returning
// the tracer and a shutdown function that flushes pending spans.
func Init(ctx context.Context, cfg Config) (trace.Tracer, func(context.Context) error, error) {
	var dialOpts []grpc.DialOption
	if cfg.InsecureTLS {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(dialOpts...),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.InsecureTLS {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithExportTimeout(cfg.ExportTimeout)),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Tracer(cfg.ServiceName), provider.Shutdown, nil
}

// Noop returns a tracer that records nothing, used when telemetry is
// disabled.
func Noop() trace.Tracer {
	return noop.NewTracerProvider().Tracer("bootlens")
}
