package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"onebridge/internal/config"
)

const (
	tracerName    = "onebridge"
	exportTimeout = 5 * time.Second
)

// TracerProvider owns the SDK provider so the app can flush it on shutdown.
type TracerProvider struct {
	sdk *sdktrace.TracerProvider
}

func (p *TracerProvider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// Init installs the OTLP exporter as the global provider when tracing is
// enabled. Disabled tracing leaves the global no-op provider in place.
func Init(cfg config.TracingConfig, serviceName string) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{sdk: sdktrace.NewTracerProvider()}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(resourceName(cfg, serviceName))))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	exporter, err := newExporter(cfg.OTLP)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.Sampler)),
	)
	otel.SetTracerProvider(sdk)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &TracerProvider{sdk: sdk}, nil
}

func resourceName(cfg config.TracingConfig, serviceName string) string {
	switch {
	case serviceName != "":
		return serviceName
	case cfg.ServiceName != "":
		return cfg.ServiceName
	}
	return tracerName
}

func newExporter(cfg config.OTLPConfig) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

// samplerFor maps the configured sampler name; unknown names sample
// everything.
func samplerFor(cfg config.SamplerConfig) sdktrace.Sampler {
	samplers := map[string]func() sdktrace.Sampler{
		"always_off":            sdktrace.NeverSample,
		"traceidratio":          func() sdktrace.Sampler { return sdktrace.TraceIDRatioBased(cfg.Param) },
		"parentbased_always_on": func() sdktrace.Sampler { return sdktrace.ParentBased(sdktrace.AlwaysSample()) },
		"parentbased_traceidratio": func() sdktrace.Sampler {
			return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Param))
		},
	}
	if build, ok := samplers[cfg.Type]; ok {
		return build()
	}
	return sdktrace.AlwaysSample()
}

// StartSpan opens a span on the bridge's tracer. Without Init the global
// provider is a no-op and so is the span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}
