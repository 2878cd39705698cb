// Package observe provides application-wide observability primitives for
// Scribantia: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Scribantia metrics.
const meterName = "github.com/scribantia/scribantia"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency per window.
	STTDuration metric.Float64Histogram

	// TranslationDuration tracks LLM translation latency per finalized
	// sentence.
	TranslationDuration metric.Float64Histogram

	// --- Counters ---

	// WindowsEmitted counts audio windows handed to the STT provider.
	WindowsEmitted metric.Int64Counter

	// WindowsDropped counts audio windows discarded before STT. Use with
	// attribute: attribute.String("reason", "muted"|"silence").
	WindowsDropped metric.Int64Counter

	// CaptionsPublished counts outbound caption records. Use with attributes:
	//   attribute.String("kind", "transcription"|"translation"),
	//   attribute.Bool("final", ...)
	CaptionsPublished metric.Int64Counter

	// TranscriptsFiltered counts recognizer outputs rejected by the noise
	// gate. Use with attribute: attribute.String("reason", ...).
	TranscriptsFiltered metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts STT/LLM/publish failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of rooms currently being captioned.
	ActiveSessions metric.Int64UpDownCounter

	// ActivePipelines tracks the number of subscribed speaker pipelines
	// across all sessions.
	ActivePipelines metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for STT and translation round-trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("scribantia.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription per audio window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("scribantia.translation.duration",
		metric.WithDescription("Latency of LLM translation per finalized sentence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WindowsEmitted, err = m.Int64Counter("scribantia.windows.emitted",
		metric.WithDescription("Audio windows submitted for transcription."),
	); err != nil {
		return nil, err
	}
	if met.WindowsDropped, err = m.Int64Counter("scribantia.windows.dropped",
		metric.WithDescription("Audio windows discarded before transcription, by reason."),
	); err != nil {
		return nil, err
	}
	if met.CaptionsPublished, err = m.Int64Counter("scribantia.captions.published",
		metric.WithDescription("Outbound caption records by kind and finality."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptsFiltered, err = m.Int64Counter("scribantia.transcripts.filtered",
		metric.WithDescription("Recognizer outputs rejected by the noise gate, by reason."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("scribantia.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("scribantia.active_sessions",
		metric.WithDescription("Number of rooms currently being captioned."),
	); err != nil {
		return nil, err
	}
	if met.ActivePipelines, err = m.Int64UpDownCounter("scribantia.active_pipelines",
		metric.WithDescription("Number of subscribed speaker pipelines across all sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("scribantia.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordWindowDropped records a discarded audio window with its drop reason
// ("muted" or "silence").
func (m *Metrics) RecordWindowDropped(ctx context.Context, reason string) {
	m.WindowsDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordCaptionPublished records an outbound caption record.
func (m *Metrics) RecordCaptionPublished(ctx context.Context, kind string, final bool) {
	m.CaptionsPublished.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.Bool("final", final),
		),
	)
}

// RecordTranscriptFiltered records a transcript rejected by the noise gate.
func (m *Metrics) RecordTranscriptFiltered(ctx context.Context, reason string) {
	m.TranscriptsFiltered.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordProviderError records a provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
