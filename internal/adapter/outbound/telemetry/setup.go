// Package telemetry wires OpenTelemetry tracing and metrics for hrgate.
//
// Exporters write to a caller-supplied writer (stderr in production) since
// stdout carries the stdio JSON-RPC stream.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Exporter names accepted in Config.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// DefaultMetricInterval is the export period for the stdout metric exporter.
const DefaultMetricInterval = 60 * time.Second

// InstrumentationName names the tracer and meter hrgate components use.
const InstrumentationName = "github.com/Sentinel-Gate/hrgate"

// Config selects the exporters.
type Config struct {
	Traces         string
	Metrics        string
	MetricInterval time.Duration
	ServiceName    string
	Version        string
	Writer         io.Writer
}

// Providers holds the configured tracer and meter providers.
type Providers struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	shutdowns      []func(context.Context) error
}

// Tracer returns the hrgate tracer.
func (p *Providers) Tracer() trace.Tracer {
	return p.tracerProvider.Tracer(InstrumentationName)
}

// Meter returns the hrgate meter.
func (p *Providers) Meter() metric.Meter {
	return p.meterProvider.Meter(InstrumentationName)
}

// Shutdown flushes and stops every exporter.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.shutdowns) - 1; i >= 0; i-- {
		if err := p.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup builds the providers described by cfg and installs them as the
// global otel providers. Exporter "none" installs a no-op provider.
func Setup(cfg Config) (*Providers, error) {
	if cfg.Writer == nil {
		cfg.Writer = io.Discard
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "hrgate"
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	)

	p := &Providers{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}

	switch cfg.Traces {
	case "", ExporterNone:
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		p.tracerProvider = tp
		p.shutdowns = append(p.shutdowns, tp.Shutdown)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Traces)
	}

	switch cfg.Metrics {
	case "", ExporterNone:
	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			_ = p.Shutdown(context.Background())
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		interval := cfg.MetricInterval
		if interval <= 0 {
			interval = DefaultMetricInterval
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
			sdkmetric.WithResource(res),
		)
		p.meterProvider = mp
		p.shutdowns = append(p.shutdowns, mp.Shutdown)
	default:
		_ = p.Shutdown(context.Background())
		return nil, fmt.Errorf("unknown metric exporter %q", cfg.Metrics)
	}

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	return p, nil
}
