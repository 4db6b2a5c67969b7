package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// DefaultLocale is the UI locale reported on the telemetry resource.
const DefaultLocale = "uz-UZ"

// ProviderConfig configures the telemetry pipeline.
type ProviderConfig struct {
	// ServiceName defaults to "eimkon".
	ServiceName string

	ServiceVersion string

	// Locale is reported as eimkon.locale. Default: [DefaultLocale].
	Locale string

	// SampleRatio is the fraction of new root traces that are sampled.
	// Zero or anything at or above one samples everything. Incoming
	// sampled parents are always honoured.
	SampleRatio float64

	// TraceExporter receives finished spans. When nil, spans are still
	// created so correlation IDs and log fields work, but nothing leaves
	// the process.
	TraceExporter sdktrace.SpanExporter

	// SetGlobal registers both providers as the OTel globals. main sets it;
	// tests leave it off.
	SetGlobal bool
}

// Provider owns the meter and tracer providers and the Prometheus registry
// that /metrics is served from. The registry is private to the Provider, so
// two Providers in one process never collide on collector registration.
type Provider struct {
	registry *prometheus.Registry
	meters   *sdkmetric.MeterProvider
	tracer   *sdktrace.TracerProvider
}

// InitProvider builds the telemetry pipeline: OTel metrics exported into a
// fresh Prometheus registry that also carries the Go runtime and process
// collectors, and a tracer provider sampling at cfg.SampleRatio.
func InitProvider(_ context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "eimkon"
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("eimkon.locale", cfg.Locale),
		),
	)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	p := &Provider{
		registry: reg,
		meters: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exp),
		),
		tracer: sdktrace.NewTracerProvider(traceOptions(res, cfg)...),
	}
	if cfg.SetGlobal {
		otel.SetMeterProvider(p.meters)
		otel.SetTracerProvider(p.tracer)
	}
	return p, nil
}

func traceOptions(res *resource.Resource, cfg ProviderConfig) []sdktrace.TracerProviderOption {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if r := cfg.SampleRatio; r > 0 && r < 1 {
		opts = append(opts, sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(r))))
	}
	if cfg.TraceExporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	return opts
}

// MeterProvider returns the provider the Prometheus exporter reads from.
func (p *Provider) MeterProvider() *sdkmetric.MeterProvider { return p.meters }

// TracerProvider returns the span provider.
func (p *Provider) TracerProvider() *sdktrace.TracerProvider { return p.tracer }

// Handler serves the Provider's registry in the Prometheus text format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Shutdown flushes pending spans and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(p.tracer.Shutdown(ctx), p.meters.Shutdown(ctx))
}
