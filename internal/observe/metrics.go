// Package observe provides the observability primitives shared by the
// speechkit binaries: OpenTelemetry metrics, tracing helpers, a trace-aware
// logger and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. [DefaultMetrics] uses the global provider;
// tests should use [NewMetrics] with their own [metric.MeterProvider] so
// they do not share state.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all speechkit metrics.
const meterName = "github.com/MrWong99/speechkit"

// Metrics holds the OpenTelemetry instruments recorded by the speech
// pipeline. All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// StageDuration tracks the duration of one pipeline stage. Use with
	// attribute.String("phase", ...).
	StageDuration metric.Float64Histogram

	// PipelineDuration tracks the total latency of one segment, first chunk
	// to transcript.
	PipelineDuration metric.Float64Histogram

	// --- Quality histograms ---

	// RecognitionAccuracy tracks word accuracy against a reference. Use with
	// attribute.String("match", "strict"|"phonetic").
	RecognitionAccuracy metric.Float64Histogram

	// RecognitionConfidence tracks the confidence reported by the recognizer.
	RecognitionConfidence metric.Float64Histogram

	// --- Counters ---

	// SegmentFlushes counts segments handed to recognition. Use with
	// attribute.String("reason", ...).
	SegmentFlushes metric.Int64Counter

	// CacheLookups counts result-cache lookups. Use with attributes:
	//   attribute.String("tier", "local"|"remote"), attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// RecognizerRequests counts recognizer calls. Use with attributes:
	//   attribute.String("recognizer", ...), attribute.String("status", ...)
	RecognizerRequests metric.Int64Counter

	// RecognitionErrors counts failed recognizer calls. Use with
	// attribute.String("recognizer", ...).
	RecognitionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open pipeline sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.String("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// interactive speech recognition.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// ratioBuckets covers values in [0, 1].
var ratioBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("speechkit.stage.duration",
		metric.WithDescription("Latency of one speech pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("speechkit.pipeline.duration",
		metric.WithDescription("End-to-end latency from first buffered chunk to transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognitionAccuracy, err = m.Float64Histogram("speechkit.recognition.accuracy",
		metric.WithDescription("Word accuracy of recognitions against a reference transcript."),
		metric.WithExplicitBucketBoundaries(ratioBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognitionConfidence, err = m.Float64Histogram("speechkit.recognition.confidence",
		metric.WithDescription("Confidence reported by the recognizer."),
		metric.WithExplicitBucketBoundaries(ratioBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentFlushes, err = m.Int64Counter("speechkit.segment.flushes",
		metric.WithDescription("Total segments flushed for recognition by reason."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("speechkit.cache.lookups",
		metric.WithDescription("Total result cache lookups by tier and result."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerRequests, err = m.Int64Counter("speechkit.recognizer.requests",
		metric.WithDescription("Total recognizer calls by recognizer and status."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("speechkit.recognizer.errors",
		metric.WithDescription("Total failed recognizer calls by recognizer."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("speechkit.active_sessions",
		metric.WithDescription("Number of open pipeline sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("speechkit.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// RecordCacheLookup records one cache lookup on the given tier.
func (m *Metrics) RecordCacheLookup(ctx context.Context, tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("result", result),
		),
	)
}

// RecordRecognizerRequest records one recognizer call. A failed call is also
// counted in [Metrics.RecognitionErrors].
func (m *Metrics) RecordRecognizerRequest(ctx context.Context, recognizer string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecognitionErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("recognizer", recognizer)),
		)
	}
	m.RecognizerRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("recognizer", recognizer),
			attribute.String("status", status),
		),
	)
}

// RecordSegmentFlush records one flushed segment.
func (m *Metrics) RecordSegmentFlush(ctx context.Context, reason string) {
	m.SegmentFlushes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
