// Package observe provides application-wide observability primitives for
// Noorvoice: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Noorvoice metrics.
const meterName = "github.com/noor-app/noorvoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TTSDuration tracks one-shot speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// ConnectDuration tracks live session handshake latency.
	ConnectDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksScheduled counts inbound audio chunks handed to the output
	// scheduler.
	ChunksScheduled metric.Int64Counter

	// DecodeErrors counts inbound chunks dropped because they failed to
	// decode.
	DecodeErrors metric.Int64Counter

	// CaptureFrames counts microphone frames read from the input line. Use
	// with attribute: attribute.String("muted", "true"|"false")
	CaptureFrames metric.Int64Counter

	// EmotionTransitions counts display-emotion changes. Use with attribute:
	//   attribute.String("state", ...)
	EmotionTransitions metric.Int64Counter

	// ClaimHandoffs counts audio-claim acquisitions that silenced another
	// producer. Use with attribute: attribute.String("owner", ...)
	ClaimHandoffs metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions (0 or 1 in
	// practice, the daemon runs single-flight).
	ActiveSessions metric.Int64UpDownCounter

	// ActiveSources tracks the number of currently scheduled playback
	// sources.
	ActiveSources metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
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
	if met.TTSDuration, err = m.Float64Histogram("noorvoice.tts.duration",
		metric.WithDescription("Latency of one-shot text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConnectDuration, err = m.Float64Histogram("noorvoice.live.connect.duration",
		metric.WithDescription("Latency of the live session handshake."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksScheduled, err = m.Int64Counter("noorvoice.audio.chunks_scheduled",
		metric.WithDescription("Total inbound audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("noorvoice.audio.decode_errors",
		metric.WithDescription("Total inbound audio chunks dropped due to decode failure."),
	); err != nil {
		return nil, err
	}
	if met.CaptureFrames, err = m.Int64Counter("noorvoice.capture.frames",
		metric.WithDescription("Total microphone frames read, by mute state."),
	); err != nil {
		return nil, err
	}
	if met.EmotionTransitions, err = m.Int64Counter("noorvoice.emotion.transitions",
		metric.WithDescription("Total display-emotion transitions by state."),
	); err != nil {
		return nil, err
	}
	if met.ClaimHandoffs, err = m.Int64Counter("noorvoice.audio.claim_handoffs",
		metric.WithDescription("Total audio-claim acquisitions by owner."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("noorvoice.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("noorvoice.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSources, err = m.Int64UpDownCounter("noorvoice.audio.active_sources",
		metric.WithDescription("Number of currently scheduled playback sources."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("noorvoice.http.request.duration",
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

// RecordEmotionTransition is a convenience method that records an emotion
// transition counter increment.
func (m *Metrics) RecordEmotionTransition(ctx context.Context, state string) {
	m.EmotionTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}

// RecordClaimHandoff is a convenience method that records a claim handoff
// counter increment.
func (m *Metrics) RecordClaimHandoff(ctx context.Context, owner string) {
	m.ClaimHandoffs.Add(ctx, 1,
		metric.WithAttributes(attribute.String("owner", owner)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
