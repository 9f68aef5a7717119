// Package fingerprint derives cheap, approximate identifiers for audio
// segments so that near-duplicate audio can skip recognition.
//
// A fingerprint is a summary of coarse acoustic features (duration, mean
// amplitude, RMS energy and zero-crossing rate) rounded to a fixed precision
// and joined into a string. It is a similarity key, not a hash: two
// perceptually different segments may collide (a false cache hit, accepted as
// an approximation) and two near-identical ones may not (a false miss, which
// merely costs a recognition call). Identical input always yields the same
// fingerprint.
package fingerprint

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/speechkit/pkg/audio"
)

// DefaultPrecision is the number of decimal places kept for amplitude
// features.
const DefaultPrecision = 3

// encodedSamples is the number of evenly spaced bytes read by [FromEncoded].
const encodedSamples = 16

// Fingerprint is a heuristic identifier for a segment of audio.
type Fingerprint string

// Features is the acoustic summary a fingerprint is built from.
type Features struct {
	// DurationMs is the estimated segment length in milliseconds.
	DurationMs float64

	// MeanAmplitude is the mean absolute sample value, in [0, 1].
	MeanAmplitude float64

	// RMS is the root-mean-square energy, in [0, 1].
	RMS float64

	// ZeroCrossingRate is the fraction of adjacent sample pairs whose signs
	// differ, in [0, 1].
	ZeroCrossingRate float64
}

// Extract computes the features of normalised samples (see
// [audio.Normalize]) lasting durationMs.
func Extract(samples []float64, durationMs float64) Features {
	f := Features{DurationMs: durationMs}
	if len(samples) == 0 {
		return f
	}

	abs := make([]float64, len(samples))
	for i, s := range samples {
		abs[i] = math.Abs(s)
	}
	f.MeanAmplitude = stat.Mean(abs, nil)
	f.RMS = floats.Norm(samples, 2) / math.Sqrt(float64(len(samples)))

	if len(samples) > 1 {
		crossings := 0
		for i := 1; i < len(samples); i++ {
			if (samples[i-1] >= 0) != (samples[i] >= 0) {
				crossings++
			}
		}
		f.ZeroCrossingRate = float64(crossings) / float64(len(samples)-1)
	}
	return f
}

// Fingerprinter turns segments into fingerprints. The zero value uses
// [DefaultPrecision] and [audio.DefaultFormat].
type Fingerprinter struct {
	// Precision is the number of decimal places kept for amplitude features.
	// Lower values make more segments collide. Zero selects DefaultPrecision;
	// a negative value keeps no decimals.
	Precision int

	// Format describes the PCM passed to [Fingerprinter.FromPCM].
	Format audio.Format
}

// New returns a Fingerprinter for the given format and precision.
func New(format audio.Format, precision int) *Fingerprinter {
	return &Fingerprinter{Precision: precision, Format: format}
}

// FromPCM fingerprints 16-bit little-endian PCM in the configured format.
func (fp *Fingerprinter) FromPCM(pcm []byte) Fingerprint {
	format := fp.Format
	if format == (audio.Format{}) {
		format = audio.DefaultFormat
	}
	return fp.FromFeatures(Extract(audio.Normalize(pcm), format.DurationMs(len(pcm))))
}

// FromSamples fingerprints normalised samples recorded at sampleRate. The
// samples are treated as mono.
func (fp *Fingerprinter) FromSamples(samples []float64, sampleRate int) Fingerprint {
	var durationMs float64
	if sampleRate > 0 {
		durationMs = float64(len(samples)) * 1000 / float64(sampleRate)
	}
	return fp.FromFeatures(Extract(samples, durationMs))
}

// FromFeatures renders already extracted features.
func (fp *Fingerprinter) FromFeatures(f Features) Fingerprint {
	prec := fp.Precision
	switch {
	case prec == 0:
		prec = DefaultPrecision
	case prec < 0:
		prec = 0
	}

	parts := []string{
		strconv.FormatFloat(math.Round(f.DurationMs), 'f', 0, 64),
		strconv.FormatFloat(f.MeanAmplitude, 'f', prec, 64),
		strconv.FormatFloat(f.RMS, 'f', prec, 64),
		strconv.FormatFloat(f.ZeroCrossingRate, 'f', prec, 64),
	}
	return Fingerprint(strings.Join(parts, "_"))
}

// FromEncoded is the crude variant for audio that is already encoded (Opus,
// WebM) and cannot be decoded into samples: it hex-encodes sixteen bytes read
// at evenly spaced offsets. Buffers with a shared container header and
// similar payload may collide. An empty buffer yields an empty fingerprint.
func FromEncoded(data []byte) Fingerprint {
	if len(data) == 0 {
		return ""
	}
	sampled := make([]byte, encodedSamples)
	for i := range encodedSamples {
		sampled[i] = data[i*len(data)/encodedSamples]
	}
	return Fingerprint(hex.EncodeToString(sampled))
}
