// Package telemetry builds the OpenTelemetry providers handed to the engine.
//
// Telemetry is off by default: Init returns no-op providers. When enabled,
// spans and metrics are exported as JSON to the given writer (normally stderr,
// so that command output on stdout stays parseable).
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
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/vetogate/internal/config"
)

// ServiceName is reported as service.name.
const ServiceName = "vetogate"

// metricInterval is how often metrics are exported.
const metricInterval = 15 * time.Second

// Providers holds the tracer and meter providers and their shutdown hooks.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	shutdown []func(context.Context) error
}

// Enabled reports whether Providers export anything.
func (p *Providers) Enabled() bool {
	return len(p.shutdown) > 0
}

// Shutdown flushes and stops every exporter.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	return errors.Join(errs...)
}

// Init builds providers for cfg and installs them as the otel globals.
func Init(cfg config.Telemetry, version string, w io.Writer) (*Providers, error) {
	if !cfg.Enabled {
		p := &Providers{
			TracerProvider: tracenoop.NewTracerProvider(),
			MeterProvider:  metricnoop.NewMeterProvider(),
		}
		otel.SetTracerProvider(p.TracerProvider)
		otel.SetMeterProvider(p.MeterProvider)
		return p, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", version),
	)

	traceOpts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if cfg.Pretty {
		traceOpts = append(traceOpts, stdouttrace.WithPrettyPrint())
	}
	spanExp, err := stdouttrace.New(traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(spanExp),
	)

	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(metricInterval))),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		shutdown:       []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}
