// Package audio defines the audio primitives shared by the speechkit
// pipeline: timestamped capture chunks, the PCM format they are encoded in,
// and helpers for converting between formats.
//
// Everything in this package treats audio as raw little-endian PCM. Encoded
// formats (Opus, WebM) are the capture layer's concern.
package audio

import (
	"fmt"
	"time"
)

// Chunk is a single capture event: an opaque buffer of audio bytes together
// with the moment it was captured. Chunks arrive at irregular intervals and
// with irregular sizes.
type Chunk struct {
	// Data holds the audio bytes. The buffer is owned by whoever holds the
	// chunk; the segment buffer keeps the slice it is given without copying.
	Data []byte

	// Timestamp marks when this chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// Format describes how PCM bytes map to time.
type Format struct {
	// SampleRate in Hz (e.g., 16000 for recognition, 48000 for WebRTC).
	SampleRate int

	// BitDepth is the number of bits per sample. Only 16 is decoded by the
	// sample helpers, but any positive value is valid for duration estimates.
	BitDepth int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// DefaultFormat is the recognition-ready format: 16 kHz, 16-bit, mono.
var DefaultFormat = Format{SampleRate: 16000, BitDepth: 16, Channels: 1}

// BytesPerSecond returns the number of bytes one second of audio occupies in
// this format. Returns 0 for an incomplete format.
func (f Format) BytesPerSecond() int {
	if f.SampleRate <= 0 || f.BitDepth <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * f.BitDepth / 8 * f.Channels
}

// DurationMs estimates the playback duration of n bytes in milliseconds:
// n / (sampleRate·bitDepth/8·channels) · 1000. A format that does not match
// the real encoding skews the result but never fails; an incomplete format
// yields 0.
func (f Format) DurationMs(n int) float64 {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return float64(n) * 1000 / float64(bps)
}

// Duration is [Format.DurationMs] expressed as a [time.Duration].
func (f Format) Duration(n int) time.Duration {
	return time.Duration(f.DurationMs(n) * float64(time.Millisecond))
}

// String returns a human-readable description, e.g. "16000Hz 16bit mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %dbit %s", f.SampleRate, f.BitDepth, ch)
}
