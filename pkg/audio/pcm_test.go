package audio_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/speechkit/pkg/audio"
)

func TestFormat_DurationMs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format audio.Format
		bytes  int
		want   float64
	}{
		{"one second default", audio.DefaultFormat, 32000, 1000},
		{"300ms default", audio.DefaultFormat, 9600, 300},
		{"stereo 48k", audio.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}, 192000, 1000},
		{"zero sample rate", audio.Format{BitDepth: 16, Channels: 1}, 32000, 0},
		{"empty buffer", audio.DefaultFormat, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.format.DurationMs(tt.bytes); got != tt.want {
				t.Errorf("DurationMs(%d) = %v, want %v", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestFormat_Duration(t *testing.T) {
	t.Parallel()

	if got := audio.DefaultFormat.Duration(16000); got != 500*time.Millisecond {
		t.Errorf("Duration(16000) = %v, want 500ms", got)
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()

	if got := audio.DefaultFormat.String(); got != "16000Hz 16bit mono" {
		t.Errorf("String() = %q", got)
	}
	if got := (audio.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}).String(); got != "48000Hz 16bit stereo" {
		t.Errorf("String() = %q", got)
	}
}

func TestDecodeEncodeInt16(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1, -1, 32767, -32768}
	got := audio.DecodeInt16(audio.EncodeInt16(samples))
	if !slices.Equal(got, samples) {
		t.Errorf("round trip = %v, want %v", got, samples)
	}

	// Trailing odd byte is ignored.
	if n := len(audio.DecodeInt16([]byte{1, 0, 2})); n != 1 {
		t.Errorf("odd input decoded %d samples, want 1", n)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	got := audio.Normalize(audio.EncodeInt16([]int16{0, 16384, -32768}))
	want := []float64{0, 0.5, -1}
	if !slices.Equal(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	got := audio.Downmix([]int16{100, 200, -100, -200, 32767, 32767}, 2)
	want := []int16{150, -150, 32767}
	if !slices.Equal(got, want) {
		t.Errorf("Downmix = %v, want %v", got, want)
	}
}

func TestUpmix(t *testing.T) {
	t.Parallel()

	got := audio.Upmix([]int16{1, 2, 3}, 2)
	want := []int16{1, 1, 2, 2, 3, 3}
	if !slices.Equal(got, want) {
		t.Errorf("Upmix = %v, want %v", got, want)
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	t.Run("upsample mono", func(t *testing.T) {
		t.Parallel()
		got := audio.Resample([]int16{0, 100}, 1, 1000, 2000)
		want := []int16{0, 50, 100, 100}
		if !slices.Equal(got, want) {
			t.Errorf("Resample = %v, want %v", got, want)
		}
	})

	t.Run("downsample mono", func(t *testing.T) {
		t.Parallel()
		got := audio.Resample([]int16{0, 10, 20, 30}, 1, 2000, 1000)
		want := []int16{0, 20}
		if !slices.Equal(got, want) {
			t.Errorf("Resample = %v, want %v", got, want)
		}
	})

	t.Run("stereo keeps channels apart", func(t *testing.T) {
		t.Parallel()
		got := audio.Resample([]int16{0, 1000, 100, 2000}, 2, 1000, 2000)
		want := []int16{0, 1000, 50, 1500, 100, 2000, 100, 2000}
		if !slices.Equal(got, want) {
			t.Errorf("Resample = %v, want %v", got, want)
		}
	})

	t.Run("invalid rate", func(t *testing.T) {
		t.Parallel()
		in := []int16{1, 2, 3}
		if got := audio.Resample(in, 1, 0, 16000); !slices.Equal(got, in) {
			t.Errorf("Resample with zero rate = %v, want input", got)
		}
	})
}

func TestConverter_NoOp(t *testing.T) {
	t.Parallel()

	c := audio.Converter{Target: audio.DefaultFormat}
	in := audio.Chunk{Data: audio.EncodeInt16([]int16{1, 2, 3}), Timestamp: time.Second}
	out := c.Convert(in, audio.DefaultFormat)
	if &out.Data[0] != &in.Data[0] {
		t.Error("matching format should return the chunk unchanged")
	}
}

func TestConverter_StereoToMono16k(t *testing.T) {
	t.Parallel()

	c := audio.Converter{Target: audio.DefaultFormat}
	src := audio.Format{SampleRate: 32000, BitDepth: 16, Channels: 2}
	// Four stereo frames at 32 kHz become two mono samples at 16 kHz.
	in := audio.Chunk{Data: audio.EncodeInt16([]int16{100, 300, 0, 0, 500, 700, 0, 0}), Timestamp: 40 * time.Millisecond}

	out := c.Convert(in, src)
	got := audio.DecodeInt16(out.Data)
	want := []int16{200, 600}
	if !slices.Equal(got, want) {
		t.Errorf("Convert = %v, want %v", got, want)
	}
	if out.Timestamp != in.Timestamp {
		t.Errorf("Timestamp = %v, want %v", out.Timestamp, in.Timestamp)
	}
}

func TestConverter_OddByteCount(t *testing.T) {
	t.Parallel()

	c := audio.Converter{Target: audio.DefaultFormat}
	out := c.Convert(audio.Chunk{Data: []byte{1, 2, 3}}, audio.DefaultFormat)
	if out.Data != nil {
		t.Errorf("odd byte count should drop data, got %v", out.Data)
	}
}
