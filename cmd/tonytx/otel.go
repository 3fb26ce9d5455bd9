package main

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type tracingConfig struct {
	Enabled  bool   `env:"TONY_TXN_OTEL_ENABLED" envDefault:"true"`
	Endpoint string `env:"TONY_TXN_OTEL_ENDPOINT"`
	Service  string `env:"TONY_TXN_OTEL_SERVICE" envDefault:"tonytx"`
}

// setupTracing exports transaction spans over OTLP/HTTP when
// TONY_TXN_OTEL_ENDPOINT is set. Otherwise it registers nothing and the
// returned shutdown does nothing.
func setupTracing(ctx context.Context) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	cfg := tracingConfig{}
	if err := env.Parse(&cfg); err != nil {
		return noop, fmt.Errorf("tracing config: %w", err)
	}
	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
	)
	if err != nil {
		return noop, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.Service),
		),
	)
	if err != nil {
		return noop, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
