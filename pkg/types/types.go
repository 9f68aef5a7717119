// Package types defines the data shared between recognizers, the result
// cache, and the pipeline driver. It lives in its own package to avoid
// import cycles between those layers.
package types

import "time"

// Transcript is the outcome of one recognition call for one segment.
type Transcript struct {
	// Text is the recognized speech content.
	Text string `json:"text"`

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// recognizer does not report confidence.
	Confidence float64 `json:"confidence"`

	// Language is the language reported or requested for recognition, if known.
	Language string `json:"language,omitempty"`

	// Duration is the estimated length of the recognized audio.
	Duration time.Duration `json:"duration"`
}
