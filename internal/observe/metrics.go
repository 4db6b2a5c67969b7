// Package observe provides application-wide observability primitives for
// E-Imkon: OpenTelemetry metrics, tracing, trace-aware structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] and scraped through
// [Provider.Handler]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all E-Imkon metrics.
const meterName = "github.com/eimkon/eimkon"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// NarrationSynthesisDuration tracks narration TTS latency on cache miss.
	// Attribute: "result" (ok, error, quota).
	NarrationSynthesisDuration metric.Float64Histogram

	// SessionDuration tracks how long tutor sessions stay open.
	SessionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// "method", "route".
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// ToolCalls counts dispatched tool calls. Attributes: "tool", "status".
	ToolCalls metric.Int64Counter

	// NarrationCache counts narration cache lookups. Attribute: "result"
	// (hit, miss, blocked).
	NarrationCache metric.Int64Counter

	// NarrationQuotaLatches counts how often narration was disabled for
	// quota exhaustion. At most one per process in practice.
	NarrationQuotaLatches metric.Int64Counter

	// SessionEvents counts realtime session events. Attribute: "kind".
	SessionEvents metric.Int64Counter

	// AudioChunks counts response audio chunks. Attribute: "status"
	// (scheduled, decode_error, schedule_error).
	AudioChunks metric.Int64Counter

	// Interruptions counts barge-in stop-alls with the number of chunks cut.
	Interruptions metric.Int64Counter

	// ProviderErrors counts remote backend errors. Attributes: "provider",
	// "kind".
	ProviderErrors metric.Int64Counter

	// CircuitTransitions counts breaker state changes. Attributes: "name",
	// "to".
	CircuitTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live tutor sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// EventSubscribers tracks connected UI event-stream clients.
	EventSubscribers metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for remote
// synthesis round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32,
}

// sessionBuckets spans short questions up to the remote session limit.
var sessionBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 900,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.NarrationSynthesisDuration, err = m.Float64Histogram("eimkon.narration.synthesis.duration",
		metric.WithDescription("Latency of narration text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("eimkon.tutor.session.duration",
		metric.WithDescription("Lifetime of realtime tutor sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("eimkon.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ToolCalls, err = m.Int64Counter("eimkon.tool.calls",
		metric.WithDescription("Total tool calls by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.NarrationCache, err = m.Int64Counter("eimkon.narration.cache",
		metric.WithDescription("Narration cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.NarrationQuotaLatches, err = m.Int64Counter("eimkon.narration.quota_latches",
		metric.WithDescription("Times narration was disabled after quota exhaustion."),
	); err != nil {
		return nil, err
	}
	if met.SessionEvents, err = m.Int64Counter("eimkon.tutor.session.events",
		metric.WithDescription("Realtime session events by kind."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunks, err = m.Int64Counter("eimkon.tutor.audio.chunks",
		metric.WithDescription("Response audio chunks by status."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("eimkon.tutor.interruptions",
		metric.WithDescription("Barge-in interruptions."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("eimkon.provider.errors",
		metric.WithDescription("Remote backend errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.CircuitTransitions, err = m.Int64Counter("eimkon.circuit.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("eimkon.tutor.active_sessions",
		metric.WithDescription("Number of live tutor sessions."),
	); err != nil {
		return nil, err
	}
	if met.EventSubscribers, err = m.Int64UpDownCounter("eimkon.ui.event_subscribers",
		metric.WithDescription("Number of connected UI event-stream clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records one dispatched tool call.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(Attr("tool", tool), Attr("status", status)))
}

// RecordNarrationCache records one narration cache lookup.
func (m *Metrics) RecordNarrationCache(ctx context.Context, result string) {
	m.NarrationCache.Add(ctx, 1, metric.WithAttributes(Attr("result", result)))
}

// RecordSessionEvent records one realtime session event.
func (m *Metrics) RecordSessionEvent(ctx context.Context, kind string) {
	m.SessionEvents.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}

// RecordAudioChunk records the fate of one response audio chunk.
func (m *Metrics) RecordAudioChunk(ctx context.Context, status string) {
	m.AudioChunks.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordProviderError records one remote backend error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordCircuitTransition records one breaker state change.
func (m *Metrics) RecordCircuitTransition(ctx context.Context, name, to string) {
	m.CircuitTransitions.Add(ctx, 1, metric.WithAttributes(Attr("name", name), Attr("to", to)))
}
