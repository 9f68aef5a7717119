// Package perf measures how well the speech pipeline performs: how accurate
// recognitions are, where latency is spent, and how often the result cache
// saves a recognition call.
//
// [Monitor] is the single integration point. It owns one [AccuracyTracker],
// one [LatencyMonitor] and one result cache and only forwards calls to them.
// Create one Monitor per session with [New]; sessions never share a cache
// or a tracker.
package perf

import (
	"time"

	"github.com/MrWong99/speechkit/pkg/fingerprint"
	"github.com/MrWong99/speechkit/pkg/resultcache"
	"github.com/MrWong99/speechkit/pkg/types"
)

// Config sizes the components owned by a [Monitor]. Zero values take the
// package defaults.
type Config struct {
	AccuracyWindow int
	LatencyWindow  int
	CacheCapacity  int

	// SuccessThreshold is passed to [AccuracyConfig]; nil takes the default.
	SuccessThreshold *float64
}

// Sink receives a copy of everything a [Monitor] records, e.g. to export it
// as metrics. Implementations must not block.
type Sink interface {
	RecordRecognition(m RecognitionMetric)
	RecordBreakdown(b Breakdown)
	RecordCacheLookup(hit bool)
}

// Option configures a [Monitor].
type Option func(*Monitor)

// WithSink mirrors recorded values to s.
func WithSink(s Sink) Option {
	return func(m *Monitor) {
		m.sink = s
	}
}

// WithClock replaces time.Now for timestamps and stopwatches. Intended for
// tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// Report is the combined view returned by [Monitor.Report].
type Report struct {
	Accuracy Statistics `json:"accuracy"`

	// Latency is nil when no breakdown has been recorded.
	Latency *Breakdown `json:"latency,omitempty"`

	// SlowestPhase is empty when no breakdown has been recorded.
	SlowestPhase Phase `json:"slowest_phase,omitempty"`

	Cache       resultcache.Stats `json:"cache"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Monitor is the per-session performance façade. It is not safe for
// concurrent use.
type Monitor struct {
	accuracy *AccuracyTracker
	latency  *LatencyMonitor
	cache    *resultcache.LRU[fingerprint.Fingerprint, types.Transcript]
	sink     Sink
	now      func() time.Time
}

// New creates a Monitor with freshly allocated components.
func New(cfg Config, opts ...Option) *Monitor {
	m := &Monitor{now: time.Now}
	for _, o := range opts {
		o(m)
	}
	m.accuracy = NewAccuracyTracker(AccuracyConfig{
		Window:           cfg.AccuracyWindow,
		SuccessThreshold: cfg.SuccessThreshold,
		Now:              m.now,
	})
	m.latency = newLatencyMonitor(cfg.LatencyWindow, m.now)
	m.cache = resultcache.NewLRU[fingerprint.Fingerprint, types.Transcript](cfg.CacheCapacity)
	return m
}

// RecordRecognition forwards to [AccuracyTracker.RecordRecognition].
func (m *Monitor) RecordRecognition(reference, recognized string, confidence float64, latency time.Duration) RecognitionMetric {
	rm := m.accuracy.RecordRecognition(reference, recognized, confidence, latency)
	if m.sink != nil {
		m.sink.RecordRecognition(rm)
	}
	return rm
}

// RecordLatencyBreakdown forwards to [LatencyMonitor.RecordBreakdown].
func (m *Monitor) RecordLatencyBreakdown(b Breakdown) {
	if b.Total == 0 {
		b.Total = b.Sum()
	}
	m.latency.RecordBreakdown(b)
	if m.sink != nil {
		m.sink.RecordBreakdown(b)
	}
}

// StartTiming forwards to [LatencyMonitor.StartTiming].
func (m *Monitor) StartTiming(name string) {
	m.latency.StartTiming(name)
}

// EndTiming forwards to [LatencyMonitor.EndTiming].
func (m *Monitor) EndTiming(name string) time.Duration {
	return m.latency.EndTiming(name)
}

// CheckCache looks fp up in the result cache, promoting it on a hit.
func (m *Monitor) CheckCache(fp fingerprint.Fingerprint) (types.Transcript, bool) {
	t, ok := m.cache.Get(fp)
	if m.sink != nil {
		m.sink.RecordCacheLookup(ok)
	}
	return t, ok
}

// SetCache stores t under fp in the result cache.
func (m *Monitor) SetCache(fp fingerprint.Fingerprint, t types.Transcript) {
	m.cache.Set(fp, t)
}

// AccuracyStats forwards to [AccuracyTracker.Statistics].
func (m *Monitor) AccuracyStats(n int) Statistics {
	return m.accuracy.Statistics(n)
}

// LatencyStats forwards to [LatencyMonitor.AverageBreakdown].
func (m *Monitor) LatencyStats() (Breakdown, bool) {
	return m.latency.AverageBreakdown()
}

// SlowestPhase forwards to [LatencyMonitor.SlowestPhase].
func (m *Monitor) SlowestPhase() (Phase, bool) {
	return m.latency.SlowestPhase()
}

// CacheStats returns the result cache statistics.
func (m *Monitor) CacheStats() resultcache.Stats {
	return m.cache.Stats()
}

// Report combines accuracy statistics over the default count, the average
// latency breakdown, the slowest phase and cache statistics.
func (m *Monitor) Report() Report {
	r := Report{
		Accuracy:    m.accuracy.Statistics(DefaultStatisticsCount),
		Cache:       m.cache.Stats(),
		GeneratedAt: m.now(),
	}
	if avg, ok := m.latency.AverageBreakdown(); ok {
		r.Latency = &avg
	}
	if p, ok := m.latency.SlowestPhase(); ok {
		r.SlowestPhase = p
	}
	return r
}

// Reset clears the accuracy window, the latency window and open timings,
// and the result cache.
func (m *Monitor) Reset() {
	m.accuracy.Reset()
	m.latency.Reset()
	m.cache.Reset()
}
