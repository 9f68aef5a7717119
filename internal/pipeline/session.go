// Package pipeline drives captured audio through the speech pipeline:
// segment buffer, fingerprint, result cache tiers and recognizer, recording
// accuracy and per-stage latency in a [perf.Monitor] along the way.
//
// A [Session] belongs to one capture stream. It owns its buffer, monitor and
// local cache; only the recognizer and the optional remote cache tier are
// shared between sessions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/speechkit/internal/observe"
	"github.com/MrWong99/speechkit/pkg/audio"
	"github.com/MrWong99/speechkit/pkg/fingerprint"
	"github.com/MrWong99/speechkit/pkg/perf"
	"github.com/MrWong99/speechkit/pkg/recognizer"
	"github.com/MrWong99/speechkit/pkg/resultcache"
	"github.com/MrWong99/speechkit/pkg/segment"
	"github.com/MrWong99/speechkit/pkg/types"
)

// Source tells where the transcript of a segment came from.
type Source string

const (
	SourceRecognizer  Source = "recognizer"
	SourceLocalCache  Source = "local_cache"
	SourceRemoteCache Source = "remote_cache"
)

// Flush reasons, used as metric attributes.
const (
	reasonReady     = "ready"
	reasonFull      = "full"
	reasonOversized = "oversized"
	reasonFinal     = "final"
)

// Result describes one processed segment.
type Result struct {
	// Seq numbers segments within the session, starting at 1.
	Seq int `json:"seq"`

	Transcript  types.Transcript        `json:"transcript"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Source      Source                  `json:"source"`
	Breakdown   perf.Breakdown          `json:"breakdown"`

	// Start and End are the capture timestamps of the first and last chunk.
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`

	// Audio is the duration of the segment's audio.
	Audio time.Duration `json:"audio"`
}

// Config holds the tunables of a [Session].
type Config struct {
	Segment   segment.Config
	Precision int
	Monitor   perf.Config

	// RecognizerName labels metrics and logs.
	RecognizerName string

	// RecognizerTimeout bounds each recognizer call. 0 means no limit beyond
	// the caller's context.
	RecognizerTimeout time.Duration
}

// SessionConfig holds the configuration and shared dependencies of a
// [Session].
type SessionConfig struct {
	Config

	// Recognizer transcribes segments. Required.
	Recognizer recognizer.Recognizer

	// Remote is the optional shared cache tier. Nil disables it.
	Remote *resultcache.Guard

	// Metrics receives pipeline metrics. Nil disables export.
	Metrics *observe.Metrics

	// OnResult, if set, is called for every processed segment before the
	// post-processing stage is closed.
	OnResult func(Result)

	// Now replaces time.Now. Intended for tests.
	Now func() time.Time
}

// Session processes one capture stream. It is not safe for concurrent use.
type Session struct {
	id       string
	cfg      Config
	buf      *segment.Buffer
	fp       *fingerprint.Fingerprinter
	mon      *perf.Monitor
	rec      recognizer.Recognizer
	remote   *resultcache.Guard
	metrics  *observe.Metrics
	onResult func(Result)
	now      func() time.Time

	seq    int
	errors int
	closed bool

	// Accumulated for Score.
	texts      []string
	confidence float64
	latency    time.Duration
}

// NewSession creates a Session with its own buffer, monitor and local cache.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Recognizer == nil {
		return nil, errors.New("pipeline: recognizer must not be nil")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RecognizerName == "" {
		cfg.RecognizerName = "unknown"
	}

	opts := []perf.Option{perf.WithClock(cfg.Now)}
	if cfg.Metrics != nil {
		opts = append(opts, perf.WithSink(observe.NewSink(cfg.Metrics, observe.Attr("recognizer", cfg.RecognizerName))))
	}

	buf := segment.New(cfg.Segment)
	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg.Config,
		buf:      buf,
		fp:       fingerprint.New(buf.Config().Format, cfg.Precision),
		mon:      perf.New(cfg.Monitor, opts...),
		rec:      cfg.Recognizer,
		remote:   cfg.Remote,
		metrics:  cfg.Metrics,
		onResult: cfg.OnResult,
		now:      cfg.Now,
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Format returns the PCM format the session expects chunks in.
func (s *Session) Format() audio.Format {
	return s.buf.Config().Format
}

// Monitor returns the session's performance monitor.
func (s *Session) Monitor() *perf.Monitor {
	return s.mon
}

// Push adds chunk to the segment under construction and processes every
// segment that becomes ready as a result. Usually that is zero or one; a
// chunk that does not fit flushes the pending segment first, and a chunk
// longer than the buffer cap is then recognised on its own.
//
// On error the failing segment is dropped and the results processed before
// it are returned alongside the error. A failed flush of the pending segment
// does not drop chunk: it is still buffered or recognised, and its own
// outcome is returned together with the flush error.
func (s *Session) Push(ctx context.Context, chunk audio.Chunk) ([]Result, error) {
	if s.closed {
		return nil, errors.New("pipeline: session closed")
	}
	if len(chunk.Data) == 0 {
		return nil, nil
	}

	var (
		results  []Result
		flushErr error
	)
	for attempt := 0; ; attempt++ {
		wasEmpty := s.buf.Empty()
		status := s.buf.Add(chunk)
		if status != segment.StatusRejected && wasEmpty {
			s.mon.StartTiming(string(perf.PhaseCapture))
		}

		switch status {
		case segment.StatusBuffering:
			return results, flushErr

		case segment.StatusReady:
			res, err := s.flush(ctx, reasonReady)
			if err != nil {
				return results, errors.Join(flushErr, err)
			}
			return append(results, res), flushErr

		case segment.StatusRejected:
			if attempt == 0 && !wasEmpty {
				// Make room and retry once with an empty buffer. The pending
				// segment is gone either way; the chunk must not be.
				res, err := s.flush(ctx, reasonFull)
				if err != nil {
					flushErr = err
				} else {
					results = append(results, res)
				}
				continue
			}
			s.mon.StartTiming(string(perf.PhaseCapture))
			res, err := s.process(ctx, segment.Segment{
				Data: chunk.Data,
				Stats: segment.Stats{
					ChunkCount:    1,
					TotalSize:     len(chunk.Data),
					TotalDuration: s.Format().Duration(len(chunk.Data)),
				},
				Start: chunk.Timestamp,
				End:   chunk.Timestamp,
			}, reasonOversized)
			if err != nil {
				return results, errors.Join(flushErr, err)
			}
			return append(results, res), flushErr
		}
	}
}

// Flush processes whatever is buffered, e.g. at the end of a stream. The
// boolean is false when the buffer was empty.
func (s *Session) Flush(ctx context.Context) (Result, bool, error) {
	if s.buf.Empty() {
		return Result{}, false, nil
	}
	res, err := s.flush(ctx, reasonFinal)
	if err != nil {
		return Result{}, false, err
	}
	return res, true, nil
}

func (s *Session) flush(ctx context.Context, reason string) (Result, error) {
	s.mon.StartTiming(string(perf.PhasePreprocessing))
	seg, _ := s.buf.FlushSegment()
	return s.process(ctx, seg, reason)
}

// process runs one merged segment through fingerprint, cache tiers and
// recognizer. The preprocessing stopwatch may already be running.
func (s *Session) process(ctx context.Context, seg segment.Segment, reason string) (Result, error) {
	s.seq++
	ctx, span := observe.StartSpan(ctx, "pipeline.segment", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.Int("segment.seq", s.seq),
		attribute.String("segment.reason", reason),
		attribute.Int("segment.bytes", seg.TotalSize),
	))
	defer span.End()
	log := observe.Logger(ctx).With("session_id", s.id, "seq", s.seq)

	if s.metrics != nil {
		s.metrics.RecordSegmentFlush(ctx, reason)
	}

	var b perf.Breakdown
	b.Capture = s.mon.EndTiming(string(perf.PhaseCapture))

	if reason == reasonOversized {
		s.mon.StartTiming(string(perf.PhasePreprocessing))
	}
	fp := s.fp.FromPCM(seg.Data)
	t, source, hit := s.lookup(ctx, fp)
	b.Preprocessing = s.mon.EndTiming(string(perf.PhasePreprocessing))

	if !hit {
		s.mon.StartTiming(string(perf.PhaseRecognition))
		var err error
		t, err = s.recognize(ctx, seg.Data)
		b.Recognition = s.mon.EndTiming(string(perf.PhaseRecognition))
		if err != nil {
			s.errors++
			observe.FailSpan(span, err)
			log.Warn("segment recognition failed", "reason", reason, "error", err)
			return Result{}, fmt.Errorf("pipeline: segment %d: %w", s.seq, err)
		}
		source = SourceRecognizer
	}

	s.mon.StartTiming(string(perf.PhasePostprocessing))
	if source != SourceLocalCache {
		s.mon.SetCache(fp, t)
	}
	if source == SourceRecognizer {
		s.remote.Set(ctx, string(fp), t)
	}
	res := Result{
		Seq:         s.seq,
		Transcript:  t,
		Fingerprint: fp,
		Source:      source,
		Start:       seg.Start,
		End:         seg.End,
		Audio:       seg.TotalDuration,
	}
	if s.onResult != nil {
		s.onResult(res)
	}
	b.Postprocessing = s.mon.EndTiming(string(perf.PhasePostprocessing))
	b.Total = b.Sum()
	res.Breakdown = b
	s.mon.RecordLatencyBreakdown(b)

	if text := strings.TrimSpace(t.Text); text != "" {
		s.texts = append(s.texts, text)
	}
	s.confidence += t.Confidence
	s.latency += b.Total

	span.SetAttributes(attribute.String("segment.source", string(source)))
	log.Debug("segment processed",
		"reason", reason,
		"source", source,
		"fingerprint", fp,
		"audio", seg.TotalDuration,
		"total", b.Total,
	)
	return res, nil
}

// lookup consults the local cache, then the remote tier. A remote hit is
// copied into the local cache by the caller.
func (s *Session) lookup(ctx context.Context, fp fingerprint.Fingerprint) (types.Transcript, Source, bool) {
	if t, ok := s.mon.CheckCache(fp); ok {
		return t, SourceLocalCache, true
	}
	if s.remote == nil {
		return types.Transcript{}, "", false
	}
	t, ok := s.remote.Get(ctx, string(fp))
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(ctx, "remote", ok)
	}
	if !ok {
		return types.Transcript{}, "", false
	}
	return t, SourceRemoteCache, true
}

func (s *Session) recognize(ctx context.Context, pcm []byte) (types.Transcript, error) {
	ctx, span := observe.StartSpan(ctx, "recognizer.recognize", trace.WithAttributes(
		attribute.String("recognizer", s.cfg.RecognizerName),
	))
	defer span.End()

	if s.cfg.RecognizerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RecognizerTimeout)
		defer cancel()
	}

	t, err := s.rec.Recognize(ctx, pcm, s.Format())
	if s.metrics != nil {
		s.metrics.RecordRecognizerRequest(ctx, s.cfg.RecognizerName, err)
	}
	observe.FailSpan(span, err)
	return t, err
}

// Transcript returns the text of every processed segment joined by spaces.
func (s *Session) Transcript() string {
	return strings.Join(s.texts, " ")
}

// Score compares the session transcript against reference and records the
// outcome in the monitor. Confidence is the mean over processed segments and
// latency the sum of their pipeline latencies.
func (s *Session) Score(reference string) perf.RecognitionMetric {
	var conf float64
	if processed := s.seq - s.errors; processed > 0 {
		conf = s.confidence / float64(processed)
	}
	return s.mon.RecordRecognition(reference, s.Transcript(), conf, s.latency)
}

// Report summarises the session.
type Report struct {
	SessionID  string      `json:"session_id"`
	Segments   int         `json:"segments"`
	Errors     int         `json:"errors"`
	Transcript string      `json:"transcript"`
	Remote     string      `json:"remote_cache,omitempty"`
	Perf       perf.Report `json:"performance"`
}

// Report returns the session summary including the monitor report.
func (s *Session) Report() Report {
	r := Report{
		SessionID:  s.id,
		Segments:   s.seq,
		Errors:     s.errors,
		Transcript: s.Transcript(),
		Perf:       s.mon.Report(),
	}
	switch {
	case s.remote == nil:
	case s.remote.IsDegraded():
		r.Remote = "degraded"
	default:
		r.Remote = "ok"
	}
	return r
}

// Close discards any buffered audio and releases the session. Buffered
// audio that should be recognised must be flushed first.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.buf.Clear()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}
