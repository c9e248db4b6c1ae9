// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry wires OpenTelemetry tracing and metrics for the
// governor service.
//
// Traces export over OTLP gRPC or to stdout; metrics export through the
// Prometheus bridge (scraped from the service's /metrics endpoint) or to
// stdout. Both sides can be disabled independently with the "none"
// exporter, which keeps the global no-op providers.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config controls which exporters the service wires at startup.
type Config struct {
	// ServiceName is reported as the OTel service.name resource attribute.
	ServiceName string

	// ServiceVersion is reported as service.version.
	ServiceVersion string

	// Environment is reported as deployment.environment.
	Environment string

	// TraceExporter selects the span exporter: "otlp", "stdout", or "none".
	TraceExporter string

	// MetricExporter selects the metric exporter: "prometheus", "stdout",
	// or "none".
	MetricExporter string

	// OTLPEndpoint is the host:port of the OTLP gRPC collector. Only used
	// when TraceExporter is "otlp".
	OTLPEndpoint string

	// OTLPInsecure disables TLS on the collector connection.
	OTLPInsecure bool
}

// DefaultConfig returns telemetry settings suitable for local development,
// with environment variable overrides:
//
//	STRAIT_ENV              deployment environment (default "development")
//	STRAIT_TRACE_EXPORTER   "otlp", "stdout", or "none" (default "none")
//	STRAIT_METRIC_EXPORTER  "prometheus", "stdout", or "none" (default "prometheus")
//	STRAIT_OTLP_ENDPOINT    OTLP gRPC collector address (default "localhost:4317")
//	STRAIT_OTLP_INSECURE    "true" to skip TLS (default "true")
func DefaultConfig() Config {
	return Config{
		ServiceName:    "governor",
		ServiceVersion: "0.1.0",
		Environment:    getEnvOr("STRAIT_ENV", "development"),
		TraceExporter:  getEnvOr("STRAIT_TRACE_EXPORTER", "none"),
		MetricExporter: getEnvOr("STRAIT_METRIC_EXPORTER", "prometheus"),
		OTLPEndpoint:   getEnvOr("STRAIT_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   getEnvOr("STRAIT_OTLP_INSECURE", "true") == "true",
	}
}

// Init configures the global tracer and meter providers.
//
// # Description
//
// Init builds the OTel resource from cfg, installs the selected trace and
// metric exporters, and returns a shutdown function that flushes and stops
// every provider it created. Exporters set to "none" (or left empty) are
// skipped without error. If the meter fails after the tracer succeeded, the
// tracer is shut down before the error is returned so a partial Init never
// leaks a provider.
//
// # Inputs
//
//   - ctx: Context for exporter construction. Must not be nil.
//   - cfg: Exporter selection and resource attributes.
//
// # Outputs
//
//   - func(context.Context) error: Shutdown hook. Never nil on success.
//   - error: ErrNilContext, ErrUnknownExporter, or an exporter init failure.
//
// # Thread Safety
//
// Init mutates global OTel state and must be called once at startup, before
// any goroutine reads the global providers.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	var shutdownFuncs []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			if e := fn(ctx); e != nil {
				err = e
			}
		}
		shutdownFuncs = nil
		return err
	}

	tracerShutdown, err := initTracer(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	if tracerShutdown != nil {
		shutdownFuncs = append(shutdownFuncs, tracerShutdown)
	}

	meterShutdown, err := initMeter(cfg, res)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("init meter: %w", err)
	}
	if meterShutdown != nil {
		shutdownFuncs = append(shutdownFuncs, meterShutdown)
	}

	return shutdown, nil
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	var (
		exporter trace.SpanExporter
		err      error
	)

	switch cfg.TraceExporter {
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts,
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func initMeter(cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	var reader metric.Reader

	switch cfg.MetricExporter {
	case "prometheus":
		exporter, err := promexporter.New()
		if err != nil {
			return nil, err
		}
		prometheusMu.Lock()
		prometheusHandler = promhttp.Handler()
		prometheusMu.Unlock()
		reader = exporter
	case "stdout":
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		reader = metric.NewPeriodicReader(exporter)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(reader),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

var (
	prometheusMu      sync.Mutex
	prometheusHandler http.Handler
)

// MetricsHandler returns the handler serving the Prometheus scrape endpoint.
// It falls back to the default promhttp handler when Init has not run with
// the "prometheus" exporter, so promauto-registered collectors are always
// reachable.
func MetricsHandler() http.Handler {
	prometheusMu.Lock()
	defer prometheusMu.Unlock()
	if prometheusHandler == nil {
		return promhttp.Handler()
	}
	return prometheusHandler
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
