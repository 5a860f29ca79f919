package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// MeterProvider creates meters for different components.
type MeterProvider interface {
	// Meter returns a meter for the given component name.
	Meter(name string) Meter

	// Shutdown flushes and stops exporters.
	Shutdown(ctx context.Context) error

	// Handler returns the HTTP handler for /metrics.
	Handler() http.Handler
}

// Meter provides metric instruments for a specific component.
type Meter interface {
	Counter(name, description string) Counter
	Gauge(name, description string) Gauge
	Histogram(name, description string, buckets ...float64) Histogram
}

// Counter is a monotonically increasing metric.
type Counter interface {
	Add(ctx context.Context, value int64, attrs ...attribute.KeyValue)
	Inc(ctx context.Context, attrs ...attribute.KeyValue)
}

// Gauge records the latest value of something that goes up and down.
type Gauge interface {
	Record(ctx context.Context, value int64, attrs ...attribute.KeyValue)
}

// Histogram records distributions of values.
type Histogram interface {
	Record(ctx context.Context, value float64, attrs ...attribute.KeyValue)
	RecordDuration(ctx context.Context, start time.Time, attrs ...attribute.KeyValue)
}

// MetricExporter names a metric backend.
type MetricExporter string

const (
	ExporterPrometheus MetricExporter = "prometheus"
	ExporterOTLP       MetricExporter = "otlp"
)

// MeterProviderConfig configures the meter provider.
type MeterProviderConfig struct {
	ServiceName string
	Version     string
	Exporter    MetricExporter
	Endpoint    string            // OTLP gRPC endpoint URL
	Headers     map[string]string // OTLP headers
	Insecure    bool
}

type otelMeterProvider struct {
	provider   *sdkmetric.MeterProvider
	prometheus bool
}

// NewMeterProvider creates an OpenTelemetry meter provider exporting to
// Prometheus (default) or OTLP, and installs it globally.
func NewMeterProvider(ctx context.Context, cfg MeterProviderConfig) (MeterProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var reader sdkmetric.Reader
	isProm := false
	switch cfg.Exporter {
	case ExporterOTLP:
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpointURL(cfg.Endpoint)}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.Headers))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	case ExporterPrometheus, "":
		exp, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		reader, isProm = exp, true
	default:
		return nil, fmt.Errorf("unknown metric exporter %q", cfg.Exporter)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(provider)

	return &otelMeterProvider{provider: provider, prometheus: isProm}, nil
}

func (p *otelMeterProvider) Meter(name string) Meter {
	return &otelMeter{meter: p.provider.Meter(name)}
}

func (p *otelMeterProvider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

func (p *otelMeterProvider) Handler() http.Handler {
	if p.prometheus {
		return promhttp.Handler()
	}
	return http.NotFoundHandler()
}

type otelMeter struct {
	meter metric.Meter
}

func (m *otelMeter) Counter(name, description string) Counter {
	counter, err := m.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{counter: counter}
}

func (m *otelMeter) Gauge(name, description string) Gauge {
	gauge, err := m.meter.Int64Gauge(name, metric.WithDescription(description))
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{gauge: gauge}
}

func (m *otelMeter) Histogram(name, description string, buckets ...float64) Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(description)}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	histogram, err := m.meter.Float64Histogram(name, opts...)
	if err != nil {
		return noopHistogram{}
	}
	return &otelHistogram{histogram: histogram}
}

type otelCounter struct {
	counter metric.Int64Counter
}

func (c *otelCounter) Add(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	c.counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

func (c *otelCounter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

type otelGauge struct {
	gauge metric.Int64Gauge
}

func (g *otelGauge) Record(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	g.gauge.Record(ctx, value, metric.WithAttributes(attrs...))
}

type otelHistogram struct {
	histogram metric.Float64Histogram
}

func (h *otelHistogram) Record(ctx context.Context, value float64, attrs ...attribute.KeyValue) {
	h.histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordDuration records the milliseconds elapsed since start.
func (h *otelHistogram) RecordDuration(ctx context.Context, start time.Time, attrs ...attribute.KeyValue) {
	h.histogram.Record(ctx, float64(time.Since(start).Microseconds())/1000, metric.WithAttributes(attrs...))
}

// --- Noop ---

type noopCounter struct{}

func (noopCounter) Add(context.Context, int64, ...attribute.KeyValue) {}
func (noopCounter) Inc(context.Context, ...attribute.KeyValue)        {}

type noopGauge struct{}

func (noopGauge) Record(context.Context, int64, ...attribute.KeyValue) {}

type noopHistogram struct{}

func (noopHistogram) Record(context.Context, float64, ...attribute.KeyValue)           {}
func (noopHistogram) RecordDuration(context.Context, time.Time, ...attribute.KeyValue) {}

type noopMeterProvider struct{}

// NewNoopMeterProvider returns a meter provider that does nothing.
func NewNoopMeterProvider() MeterProvider {
	return noopMeterProvider{}
}

func (noopMeterProvider) Meter(string) Meter             { return noopMeter{} }
func (noopMeterProvider) Shutdown(context.Context) error { return nil }
func (noopMeterProvider) Handler() http.Handler          { return http.NotFoundHandler() }

type noopMeter struct{}

func (noopMeter) Counter(_, _ string) Counter                   { return noopCounter{} }
func (noopMeter) Gauge(_, _ string) Gauge                       { return noopGauge{} }
func (noopMeter) Histogram(_, _ string, _ ...float64) Histogram { return noopHistogram{} }
