// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/audioalchemy/audioalchemy"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use since the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// SynthesisDuration tracks end-to-end text-to-speech latency, fallback
	// included.
	SynthesisDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-to-text latency.
	TranscriptionDuration metric.Float64Histogram

	// TranslationDuration tracks LLM translation latency.
	TranslationDuration metric.Float64Histogram

	// CloneDuration tracks voice clone creation latency.
	CloneDuration metric.Float64Histogram

	// --- Counters ---

	// TierAttempts counts fallback tier executions. Use with attributes:
	//   attribute.String("tier", ...), attribute.String("status", ...)
	TierAttempts metric.Int64Counter

	// Syntheses counts completed synthesis requests. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("tier", ...)
	Syntheses metric.Int64Counter

	// CloneOps counts clone lifecycle operations. Use with attributes:
	//   attribute.String("op", ...), attribute.String("backend", ...), attribute.String("status", ...)
	CloneOps metric.Int64Counter

	// BackendErrors counts synthesis backend failures. Use with attribute:
	//   attribute.String("backend", ...)
	BackendErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveClones tracks the number of registered voice clones.
	ActiveClones metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// speech-pipeline latencies, where a cloud synthesis call can take several
// seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SynthesisDuration, err = m.Float64Histogram("audioalchemy.synthesis.duration",
		metric.WithDescription("End-to-end latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("audioalchemy.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("audioalchemy.translation.duration",
		metric.WithDescription("Latency of LLM translation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CloneDuration, err = m.Float64Histogram("audioalchemy.clone.duration",
		metric.WithDescription("Latency of voice clone creation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TierAttempts, err = m.Int64Counter("audioalchemy.tier.attempts",
		metric.WithDescription("Total fallback tier executions by tier and status."),
	); err != nil {
		return nil, err
	}
	if met.Syntheses, err = m.Int64Counter("audioalchemy.syntheses",
		metric.WithDescription("Total completed syntheses by backend and winning tier."),
	); err != nil {
		return nil, err
	}
	if met.CloneOps, err = m.Int64Counter("audioalchemy.clone.ops",
		metric.WithDescription("Total clone lifecycle operations by op, backend, and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("audioalchemy.backend.errors",
		metric.WithDescription("Total synthesis backend failures by backend."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveClones, err = m.Int64UpDownCounter("audioalchemy.active_clones",
		metric.WithDescription("Number of registered voice clones."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("audioalchemy.http.request.duration",
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

// RecordSynthesis records one completed synthesis with its latency.
func (m *Metrics) RecordSynthesis(ctx context.Context, backend, tier string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("tier", tier),
	)
	m.Syntheses.Add(ctx, 1, attrs)
	m.SynthesisDuration.Record(ctx, seconds, attrs)
}

// RecordTierAttempt records one fallback tier execution.
func (m *Metrics) RecordTierAttempt(ctx context.Context, tier, status string) {
	m.TierAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("status", status),
		),
	)
}

// RecordCloneOp records one clone lifecycle operation.
func (m *Metrics) RecordCloneOp(ctx context.Context, op, backend, status string) {
	m.CloneOps.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}

// RecordBackendError records one backend failure.
func (m *Metrics) RecordBackendError(ctx context.Context, backend string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}
