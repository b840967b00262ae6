// Package telemetry sets up OpenTelemetry export for the ScreenLink binaries.
// Packages record through the global providers, so instruments created before
// Init stay noop until Init installs the SDK.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Service names reported by each binary.
const (
	ServiceAPI    = "screenlink-api"
	ServiceWorker = "screenlink-worker"
)

const (
	serviceNamespace      = "screenlink"
	defaultExportInterval = 15 * time.Second
)

// Config holds configuration for telemetry setup.
type Config struct {
	// Service is one of ServiceAPI or ServiceWorker.
	Service      string
	Version      string
	Environment  string
	OTLPEndpoint string
	Enabled      bool

	// SampleRatio is the fraction of new traces recorded. Traces started
	// upstream follow the caller's decision. Values outside (0, 1] record all.
	SampleRatio float64

	ExportInterval time.Duration
}

// Provider owns the SDK providers installed by Init.
type Provider struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	shutdowns []func(context.Context) error
}

// Shutdown flushes and stops every exporter. It is safe on a disabled
// Provider and on the zero value.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.shutdowns) - 1; i >= 0; i-- {
		errs = append(errs, p.shutdowns[i](ctx))
	}
	return errors.Join(errs...)
}

// Init installs the W3C propagators and, when enabled, OTLP trace and metric
// exporters as the global providers. The propagators are installed even when
// export is disabled so device and stream requests keep their trace context.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Service == "" {
		return nil, errors.New("telemetry: service name is required")
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return &Provider{
			Tracer: otel.Tracer(cfg.Service),
			Meter:  otel.Meter(cfg.Service),
		}, nil
	}

	res, err := NewResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx) //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = defaultExportInterval
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	return &Provider{
		Tracer:    tracerProvider.Tracer(cfg.Service),
		Meter:     meterProvider.Meter(cfg.Service),
		shutdowns: []func(context.Context) error{tracerProvider.Shutdown, meterProvider.Shutdown},
	}, nil
}

// NewResource describes the running binary. Every ScreenLink service shares
// the screenlink namespace so dashboards can group the API and the worker.
func NewResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNamespace(serviceNamespace),
			semconv.ServiceName(cfg.Service),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithHost(),
		resource.WithProcessPID(),
	)
}

// Sampler returns the trace sampler for ratio.
func Sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
