// Package observe provides application-wide observability primitives for
// Quill: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voiceai/quill/pkg/backend"
)

// meterName is the instrumentation scope name used for all Quill metrics.
const meterName = "github.com/voiceai/quill"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TranscriptionDuration tracks backend transcription latency. Use with
	// attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	TranscriptionDuration metric.Float64Histogram

	// ChunksDispatched counts chunks handed to the backend. Use with
	// attribute:
	//   attribute.String("status", "ok"|"empty"|"error")
	ChunksDispatched metric.Int64Counter

	// BackendErrors counts failed backend calls by backend name.
	BackendErrors metric.Int64Counter

	// ActiveSessions tracks the number of live recording sessions
	// (0 or 1 per process, kept as a gauge for fleet aggregation).
	ActiveSessions metric.Int64UpDownCounter

	// CapturedBytes counts raw PCM bytes appended to session buffers.
	CapturedBytes metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// chunk transcription latencies, which run up to the 15 s call timeout.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("quill.transcription.duration",
		metric.WithDescription("Latency of backend transcription calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunksDispatched, err = m.Int64Counter("quill.chunks.dispatched",
		metric.WithDescription("Total chunks dispatched for transcription by status."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("quill.backend.errors",
		metric.WithDescription("Total failed backend calls by backend name."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("quill.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.CapturedBytes, err = m.Int64Counter("quill.capture.bytes",
		metric.WithDescription("Raw PCM bytes captured into session buffers."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("quill.http.request.duration",
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

// RecordChunk records a dispatched chunk with its outcome status.
func (m *Metrics) RecordChunk(ctx context.Context, status string) {
	m.ChunksDispatched.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// instrumentedTranscriber wraps a backend.Transcriber and records latency
// and error metrics around every call.
type instrumentedTranscriber struct {
	inner   backend.Transcriber
	name    string
	metrics *Metrics
}

// InstrumentTranscriber wraps t so that every Transcribe call records its
// latency to [Metrics.TranscriptionDuration] and failures to
// [Metrics.BackendErrors], attributed to name.
func InstrumentTranscriber(t backend.Transcriber, name string, m *Metrics) backend.Transcriber {
	return &instrumentedTranscriber{inner: t, name: name, metrics: m}
}

// Transcribe implements backend.Transcriber.
func (it *instrumentedTranscriber) Transcribe(ctx context.Context, pcm []byte, language string) (string, error) {
	start := time.Now()
	text, err := it.inner.Transcribe(ctx, pcm, language)

	status := "ok"
	if err != nil {
		status = "error"
		it.metrics.BackendErrors.Add(ctx, 1,
			metric.WithAttributes(Attr("backend", it.name)),
		)
	}
	it.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(Attr("backend", it.name), Attr("status", status)),
	)
	return text, err
}
