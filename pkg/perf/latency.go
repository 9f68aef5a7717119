package perf

import (
	"cmp"
	"log/slog"
	"slices"
	"time"
)

// DefaultLatencyWindow is the number of breakdowns retained.
const DefaultLatencyWindow = 100

// Phase names one stage of the recognition pipeline.
type Phase string

const (
	PhaseCapture        Phase = "capture"
	PhasePreprocessing  Phase = "preprocessing"
	PhaseRecognition    Phase = "recognition"
	PhasePostprocessing Phase = "postprocessing"
)

// Phases lists the pipeline stages in pipeline order.
var Phases = []Phase{PhaseCapture, PhasePreprocessing, PhaseRecognition, PhasePostprocessing}

// Breakdown decomposes the latency of one pass through the pipeline.
type Breakdown struct {
	Capture        time.Duration `json:"capture"`
	Preprocessing  time.Duration `json:"preprocessing"`
	Recognition    time.Duration `json:"recognition"`
	Postprocessing time.Duration `json:"postprocessing"`
	Total          time.Duration `json:"total"`
}

// Phase returns the duration recorded for p.
func (b Breakdown) Phase(p Phase) time.Duration {
	switch p {
	case PhaseCapture:
		return b.Capture
	case PhasePreprocessing:
		return b.Preprocessing
	case PhaseRecognition:
		return b.Recognition
	case PhasePostprocessing:
		return b.Postprocessing
	default:
		return 0
	}
}

// Sum returns the sum of the four stages.
func (b Breakdown) Sum() time.Duration {
	return b.Capture + b.Preprocessing + b.Recognition + b.Postprocessing
}

// LatencyMonitor records named stopwatch intervals and full pipeline
// breakdowns. It is owned by one session and is not safe for concurrent use.
type LatencyMonitor struct {
	open       map[string]time.Time
	breakdowns window[Breakdown]
	now        func() time.Time
}

// NewLatencyMonitor returns a monitor retaining at most size breakdowns. A
// non-positive size selects [DefaultLatencyWindow].
func NewLatencyMonitor(size int) *LatencyMonitor {
	return newLatencyMonitor(size, time.Now)
}

func newLatencyMonitor(size int, now func() time.Time) *LatencyMonitor {
	if size <= 0 {
		size = DefaultLatencyWindow
	}
	return &LatencyMonitor{
		open:       make(map[string]time.Time),
		breakdowns: newWindow[Breakdown](size),
		now:        now,
	}
}

// StartTiming opens the stopwatch called name. Starting a name that is
// already open discards the earlier start.
func (m *LatencyMonitor) StartTiming(name string) {
	m.open[name] = m.now()
}

// EndTiming closes the stopwatch called name and returns the elapsed time.
// Ending a name that was never started logs a warning and returns 0.
func (m *LatencyMonitor) EndTiming(name string) time.Duration {
	start, ok := m.open[name]
	if !ok {
		slog.Warn("latency monitor: no timing started", "name", name)
		return 0
	}
	delete(m.open, name)
	return m.now().Sub(start)
}

// OpenTimings returns the names of stopwatches started but not yet ended.
func (m *LatencyMonitor) OpenTimings() []string {
	names := make([]string, 0, len(m.open))
	for name := range m.open {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RecordBreakdown appends b to the window. A zero Total is filled in with
// the sum of the stages.
func (m *LatencyMonitor) RecordBreakdown(b Breakdown) {
	if b.Total == 0 {
		b.Total = b.Sum()
	}
	m.breakdowns.add(b)
}

// AverageBreakdown returns the field-wise mean of the retained breakdowns.
// The boolean is false when none have been recorded.
func (m *LatencyMonitor) AverageBreakdown() (Breakdown, bool) {
	all := m.breakdowns.last(0)
	if len(all) == 0 {
		return Breakdown{}, false
	}

	var sum Breakdown
	for _, b := range all {
		sum.Capture += b.Capture
		sum.Preprocessing += b.Preprocessing
		sum.Recognition += b.Recognition
		sum.Postprocessing += b.Postprocessing
		sum.Total += b.Total
	}
	n := time.Duration(len(all))
	return Breakdown{
		Capture:        sum.Capture / n,
		Preprocessing:  sum.Preprocessing / n,
		Recognition:    sum.Recognition / n,
		Postprocessing: sum.Postprocessing / n,
		Total:          sum.Total / n,
	}, true
}

// SlowestPhase returns the stage with the largest average duration. Ties go
// to the stage that comes first in the pipeline. The boolean is false when
// no breakdowns have been recorded.
func (m *LatencyMonitor) SlowestPhase() (Phase, bool) {
	avg, ok := m.AverageBreakdown()
	if !ok {
		return "", false
	}
	ranked := slices.Clone(Phases)
	slices.SortStableFunc(ranked, func(a, b Phase) int {
		return cmp.Compare(avg.Phase(b), avg.Phase(a))
	})
	return ranked[0], true
}

// Len returns the number of retained breakdowns.
func (m *LatencyMonitor) Len() int {
	return m.breakdowns.len()
}

// Reset drops every breakdown and open stopwatch.
func (m *LatencyMonitor) Reset() {
	m.breakdowns.reset()
	clear(m.open)
}
