// Package telemetry exports traces and metrics for the HIS server over OTLP.
// With telemetry disabled every instrument is a no-op, so callers never need
// to check whether it is on.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type Config struct {
	Enabled         bool
	Endpoint        string
	ServiceName     string
	ServiceVersion  string
	Environment     string
	SampleRate      float64
	MetricsInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "his-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricsInterval == 0 {
		c.MetricsInterval = 15 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Endpoint == "" {
		return errors.New("telemetry endpoint is required when telemetry is enabled")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %g", c.SampleRate)
	}
	return nil
}

// Provider owns the tracer and meter providers and the server's instruments.
type Provider struct {
	cfg       Config
	tracers   trace.TracerProvider
	meter     metric.Meter
	shutdowns []func(context.Context) error

	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
	events   metric.Int64Counter
}

// New builds a provider from cfg. A disabled config yields no-op providers;
// an enabled one exports to cfg.Endpoint and installs itself globally.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	cfg.applyDefaults()
	if !cfg.Enabled {
		return NewWithProviders(cfg, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(hostOf(cfg.Endpoint))}
	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(hostOf(cfg.Endpoint))}
	if !strings.HasPrefix(cfg.Endpoint, "https://") {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}

	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	metricExporter, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.MetricsInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p, err := NewWithProviders(cfg, tp, mp)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	p.shutdowns = append(p.shutdowns, tp.Shutdown, mp.Shutdown)
	return p, nil
}

// NewWithProviders wires the server instruments onto existing providers.
func NewWithProviders(cfg Config, tp trace.TracerProvider, mp metric.MeterProvider) (*Provider, error) {
	cfg.applyDefaults()
	p := &Provider{
		cfg:     cfg,
		tracers: tp,
		meter:   mp.Meter(cfg.ServiceName),
	}

	var err error
	if p.requests, err = p.meter.Int64Counter("http.server.requests",
		metric.WithDescription("HTTP requests served."),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}
	if p.duration, err = p.meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of HTTP requests."),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	if p.active, err = p.meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("Requests currently being served."),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("create active request counter: %w", err)
	}
	if p.events, err = p.meter.Int64Counter("his.record.mutations",
		metric.WithDescription("Record mutations by collection and operation."),
		metric.WithUnit("{mutation}")); err != nil {
		return nil, fmt.Errorf("create mutation counter: %w", err)
	}
	return p, nil
}

func (p *Provider) Tracer() trace.Tracer {
	return p.tracers.Tracer(p.cfg.ServiceName)
}

// Shutdown flushes pending spans and metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdowns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newResource(cfg Config) (*resource.Resource, error) {
	host, _ := os.Hostname()
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		semconv.HostName(host),
	), nil
}

// hostOf strips the scheme; the OTLP HTTP exporters take host:port.
func hostOf(endpoint string) string {
	if _, rest, ok := strings.Cut(endpoint, "://"); ok {
		return strings.TrimSuffix(rest, "/")
	}
	return endpoint
}
