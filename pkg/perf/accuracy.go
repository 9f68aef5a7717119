package perf

import (
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

const (
	// DefaultAccuracyWindow is the number of recognition records retained.
	DefaultAccuracyWindow = 1000

	// DefaultSuccessThreshold is the accuracy a recognition must exceed to
	// count as successful.
	DefaultSuccessThreshold = 0.7

	// DefaultStatisticsCount is the number of recent records summarised when
	// a non-positive count is requested.
	DefaultStatisticsCount = 10
)

// RecognitionMetric is one recorded recognition outcome.
type RecognitionMetric struct {
	// Accuracy is the word-level, order-sensitive match ratio in [0, 1].
	Accuracy float64 `json:"accuracy"`

	// PhoneticAccuracy additionally credits positions whose words sound
	// alike (same Double Metaphone code). Always >= Accuracy.
	PhoneticAccuracy float64 `json:"phonetic_accuracy"`

	Latency    time.Duration `json:"latency"`
	Confidence float64       `json:"confidence"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Statistics summarises the most recent recognition records.
type Statistics struct {
	Total                   int           `json:"total"`
	Successful              int           `json:"successful"`
	Failed                  int           `json:"failed"`
	SuccessRate             float64       `json:"success_rate"`
	AverageLatency          time.Duration `json:"average_latency"`
	AverageAccuracy         float64       `json:"average_accuracy"`
	AveragePhoneticAccuracy float64       `json:"average_phonetic_accuracy"`
	AverageConfidence       float64       `json:"average_confidence"`
}

// AccuracyConfig configures an [AccuracyTracker]. Zero values take defaults.
type AccuracyConfig struct {
	// Window is the number of records retained; older ones are dropped.
	Window int

	// SuccessThreshold is the accuracy a record must exceed to be counted
	// as successful. Nil means [DefaultSuccessThreshold]; 0 counts any
	// record with at least one matching word.
	SuccessThreshold *float64

	// Now stamps records. Nil means time.Now.
	Now func() time.Time
}

// Threshold returns a pointer to v, for [AccuracyConfig.SuccessThreshold].
func Threshold(v float64) *float64 {
	return &v
}

// AccuracyTracker keeps a rolling window of recognition outcomes. It is
// owned by one session and is not safe for concurrent use.
type AccuracyTracker struct {
	records   window[RecognitionMetric]
	threshold float64
	now       func() time.Time
}

// NewAccuracyTracker returns an empty tracker.
func NewAccuracyTracker(cfg AccuracyConfig) *AccuracyTracker {
	if cfg.Window <= 0 {
		cfg.Window = DefaultAccuracyWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	threshold := DefaultSuccessThreshold
	if cfg.SuccessThreshold != nil {
		threshold = *cfg.SuccessThreshold
	}
	return &AccuracyTracker{
		records:   newWindow[RecognitionMetric](cfg.Window),
		threshold: threshold,
		now:       cfg.Now,
	}
}

// RecordRecognition scores recognized against reference and appends the
// result to the window. The stored metric is returned.
func (t *AccuracyTracker) RecordRecognition(reference, recognized string, confidence float64, latency time.Duration) RecognitionMetric {
	strict, phonetic := compareWords(reference, recognized)
	m := RecognitionMetric{
		Accuracy:         strict,
		PhoneticAccuracy: phonetic,
		Latency:          latency,
		Confidence:       confidence,
		Timestamp:        t.now(),
	}
	t.records.add(m)
	return m
}

// Statistics summarises the n most recent records; n <= 0 means
// [DefaultStatisticsCount]. An empty tracker yields zero statistics.
func (t *AccuracyTracker) Statistics(n int) Statistics {
	if n <= 0 {
		n = DefaultStatisticsCount
	}
	recent := t.records.last(n)
	if len(recent) == 0 {
		return Statistics{}
	}

	var s Statistics
	var latency time.Duration
	var accuracy, phonetic, confidence float64
	for _, m := range recent {
		if m.Accuracy > t.threshold {
			s.Successful++
		}
		latency += m.Latency
		accuracy += m.Accuracy
		phonetic += m.PhoneticAccuracy
		confidence += m.Confidence
	}

	total := float64(len(recent))
	s.Total = len(recent)
	s.Failed = s.Total - s.Successful
	s.SuccessRate = float64(s.Successful) / total
	s.AverageLatency = latency / time.Duration(len(recent))
	s.AverageAccuracy = accuracy / total
	s.AveragePhoneticAccuracy = phonetic / total
	s.AverageConfidence = confidence / total
	return s
}

// AverageAccuracy is the mean accuracy of the n most recent records.
func (t *AccuracyTracker) AverageAccuracy(n int) float64 {
	return t.Statistics(n).AverageAccuracy
}

// AverageConfidence is the mean confidence of the n most recent records.
func (t *AccuracyTracker) AverageConfidence(n int) float64 {
	return t.Statistics(n).AverageConfidence
}

// Records returns the retained records, oldest first.
func (t *AccuracyTracker) Records() []RecognitionMetric {
	return t.records.last(0)
}

// Len returns the number of retained records.
func (t *AccuracyTracker) Len() int {
	return t.records.len()
}

// Reset drops every record.
func (t *AccuracyTracker) Reset() {
	t.records.reset()
}

// WordAccuracy compares reference and recognized word by word: both are
// split on whitespace, compared position by position up to the longer
// length (positions missing from either side count as mismatches) and the
// match count is divided by that length. There is no partial credit and no
// realignment, so an inserted word shifts every following position. Two
// empty strings are a perfect match.
func WordAccuracy(reference, recognized string) float64 {
	strict, _ := compareWords(reference, recognized)
	return strict
}

// compareWords returns the strict and phonetic match ratios.
func compareWords(reference, recognized string) (strict, phonetic float64) {
	ref := strings.Fields(reference)
	rec := strings.Fields(recognized)

	longest := max(len(ref), len(rec))
	if longest == 0 {
		return 1, 1
	}

	var exact, alike int
	for i := range min(len(ref), len(rec)) {
		switch {
		case ref[i] == rec[i]:
			exact++
			alike++
		case soundsAlike(ref[i], rec[i]):
			alike++
		}
	}
	return float64(exact) / float64(longest), float64(alike) / float64(longest)
}

// soundsAlike reports whether two words share a Double Metaphone code,
// ignoring case and surrounding punctuation.
func soundsAlike(a, b string) bool {
	a, b = normalizeWord(a), normalizeWord(b)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	if ap == "" || bp == "" {
		return false
	}
	return ap == bp || (as != "" && as == bs) || ap == bs || as == bp
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.Trim(w, ".,;:!?\"'()[]{}"))
}
