package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/speechkit/pkg/perf"
)

// Compile-time interface assertion.
var _ perf.Sink = (*Sink)(nil)

// Sink mirrors everything a [perf.Monitor] records into [Metrics]. The
// attributes given to [NewSink] are attached to every observation.
type Sink struct {
	m     *Metrics
	attrs []attribute.KeyValue
}

// NewSink returns a [perf.Sink] backed by m.
func NewSink(m *Metrics, attrs ...attribute.KeyValue) *Sink {
	return &Sink{m: m, attrs: attrs}
}

func (s *Sink) with(extra ...attribute.KeyValue) metric.MeasurementOption {
	all := make([]attribute.KeyValue, 0, len(s.attrs)+len(extra))
	all = append(all, s.attrs...)
	return metric.WithAttributes(append(all, extra...)...)
}

// RecordRecognition implements [perf.Sink].
func (s *Sink) RecordRecognition(rm perf.RecognitionMetric) {
	ctx := context.Background()
	s.m.RecognitionAccuracy.Record(ctx, rm.Accuracy, s.with(Attr("match", "strict")))
	s.m.RecognitionAccuracy.Record(ctx, rm.PhoneticAccuracy, s.with(Attr("match", "phonetic")))
	s.m.RecognitionConfidence.Record(ctx, rm.Confidence, s.with())
}

// RecordBreakdown implements [perf.Sink].
func (s *Sink) RecordBreakdown(b perf.Breakdown) {
	ctx := context.Background()
	for _, p := range perf.Phases {
		s.m.StageDuration.Record(ctx, b.Phase(p).Seconds(), s.with(Attr("phase", string(p))))
	}
	s.m.PipelineDuration.Record(ctx, b.Total.Seconds(), s.with())
}

// RecordCacheLookup implements [perf.Sink].
func (s *Sink) RecordCacheLookup(hit bool) {
	s.m.RecordCacheLookup(context.Background(), "local", hit)
}
