package audio

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
)

// DecodeInt16 interprets pcm as little-endian signed 16-bit samples. A
// trailing odd byte is ignored.
func DecodeInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// EncodeInt16 is the inverse of [DecodeInt16].
func EncodeInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Normalize converts 16-bit PCM into float samples in the range [-1, 1).
func Normalize(pcm []byte) []float64 {
	raw := DecodeInt16(pcm)
	out := make([]float64, len(raw))
	for i, s := range raw {
		out[i] = float64(s) / 32768
	}
	return out
}

// Downmix averages interleaved frames of the given channel count into mono
// samples. Mono input is returned as-is.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for c := range channels {
			sum += int32(samples[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// Upmix duplicates each mono sample into every output channel.
func Upmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)*channels)
	for i, s := range samples {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
	return out
}

// Resample converts interleaved samples from srcRate to dstRate using linear
// interpolation, channel by channel. Invalid rates leave the input untouched.
func Resample(samples []int16, channels, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || channels <= 0 {
		return samples
	}
	srcFrames := len(samples) / channels
	if srcFrames == 0 {
		return samples
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]int16, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for c := range channels {
			a := float64(samples[idx*channels+c])
			b := float64(samples[next*channels+c])
			out[i*channels+c] = clamp16(a*(1-frac) + b*frac)
		}
	}
	return out
}

func clamp16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Converter rewrites 16-bit chunks from a source format into Target. It logs
// a warning on the first mismatch it sees. Create one per stream; it is not
// designed for shared use across goroutines.
type Converter struct {
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns chunk re-encoded in the target format. Matching formats are
// returned unchanged. Chunks with an odd byte count cannot be 16-bit PCM and
// come back with nil Data.
func (c *Converter) Convert(chunk Chunk, src Format) Chunk {
	if len(chunk.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: odd byte count in PCM data, dropping chunk",
				"bytes", len(chunk.Data),
				"format", src.String(),
			)
		})
		return Chunk{Timestamp: chunk.Timestamp}
	}
	if src.SampleRate == c.Target.SampleRate && src.Channels == c.Target.Channels {
		return chunk
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", src.String(),
			"to", c.Target.String(),
		)
	})

	samples := DecodeInt16(chunk.Data)
	channels := src.Channels

	// Downmix before resampling so less data is interpolated.
	if c.Target.Channels == 1 && channels > 1 {
		samples = Downmix(samples, channels)
		channels = 1
	}
	samples = Resample(samples, channels, src.SampleRate, c.Target.SampleRate)
	if c.Target.Channels > 1 && channels == 1 {
		samples = Upmix(samples, c.Target.Channels)
	}

	return Chunk{Data: EncodeInt16(samples), Timestamp: chunk.Timestamp}
}
