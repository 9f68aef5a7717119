package segment

import (
	"bytes"
	"testing"
	"time"

	"github.com/MrWong99/speechkit/pkg/audio"
)

// chunkOf returns a chunk whose estimated duration in the default format is
// ms milliseconds, filled with fill.
func chunkOf(ms int, fill byte) audio.Chunk {
	return audio.Chunk{
		Data:      bytes.Repeat([]byte{fill}, ms*32),
		Timestamp: time.Duration(fill) * time.Millisecond,
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	b := New(Config{})
	cfg := b.Config()
	if cfg.BufferSize != 2*time.Second {
		t.Errorf("BufferSize = %v, want 2s", cfg.BufferSize)
	}
	if cfg.BufferThreshold != time.Second {
		t.Errorf("BufferThreshold = %v, want 1s", cfg.BufferThreshold)
	}
	if cfg.MinAudioLength != 500*time.Millisecond {
		t.Errorf("MinAudioLength = %v, want 500ms", cfg.MinAudioLength)
	}
	if cfg.Format != audio.DefaultFormat {
		t.Errorf("Format = %v, want %v", cfg.Format, audio.DefaultFormat)
	}
}

func TestBuffer_ReadyAtThreshold(t *testing.T) {
	t.Parallel()

	b := New(DefaultConfig())

	steps := []struct {
		chunk audio.Chunk
		want  Status
	}{
		{chunkOf(300, 1), StatusBuffering},
		{chunkOf(300, 2), StatusBuffering},
		{chunkOf(500, 3), StatusReady},
	}
	for i, s := range steps {
		if got := b.Add(s.chunk); got != s.want {
			t.Fatalf("Add #%d = %v, want %v", i+1, got, s.want)
		}
	}

	data, ok := b.Flush()
	if !ok {
		t.Fatal("Flush reported nothing to flush")
	}
	want := append(append(chunkOf(300, 1).Data, chunkOf(300, 2).Data...), chunkOf(500, 3).Data...)
	if !bytes.Equal(data, want) {
		t.Error("flushed data is not the in-order concatenation of the three chunks")
	}
}

func TestBuffer_ReadyKeepsRetaining(t *testing.T) {
	t.Parallel()

	b := New(DefaultConfig())
	if got := b.Add(chunkOf(1000, 1)); got != StatusReady {
		t.Fatalf("Add = %v, want ready", got)
	}
	// Still under the cap: accepted and still ready.
	if got := b.Add(chunkOf(500, 2)); got != StatusReady {
		t.Fatalf("Add = %v, want ready", got)
	}
	if got := b.Stats().ChunkCount; got != 2 {
		t.Errorf("ChunkCount = %d, want 2", got)
	}
}

func TestBuffer_NeverRejectsUnderCap(t *testing.T) {
	t.Parallel()

	b := New(DefaultConfig())
	var want []byte
	// 19 chunks of 100ms = 1900ms, below the 2000ms cap.
	for i := range 19 {
		c := chunkOf(100, byte(i))
		if got := b.Add(c); got == StatusRejected {
			t.Fatalf("Add #%d rejected under cap", i)
		}
		want = append(want, c.Data...)
	}
	got, _ := b.Flush()
	if !bytes.Equal(got, want) {
		t.Error("flush did not preserve arrival order")
	}
}

func TestBuffer_RejectsOverCap(t *testing.T) {
	t.Parallel()

	b := New(DefaultConfig())
	b.Add(chunkOf(1500, 1))
	if got := b.Add(chunkOf(600, 2)); got != StatusRejected {
		t.Fatalf("Add = %v, want rejected", got)
	}
	st := b.Stats()
	if st.ChunkCount != 1 || st.TotalDuration != 1500*time.Millisecond {
		t.Errorf("rejected chunk changed state: %+v", st)
	}
	// Exactly filling the cap is allowed.
	if got := b.Add(chunkOf(500, 3)); got != StatusReady {
		t.Errorf("Add up to cap = %v, want ready", got)
	}
}

func TestBuffer_OversizedChunkRejectedWhenEmpty(t *testing.T) {
	t.Parallel()

	b := New(DefaultConfig())
	if got := b.Add(chunkOf(2001, 1)); got != StatusRejected {
		t.Fatalf("Add = %v, want rejected", got)
	}
	if !b.Empty() {
		t.Error("buffer should remain empty")
	}
}

func TestBuffer_FlushEmpty(t *testing.T) {
	t.Parallel()

	b := New(DefaultConfig())
	data, ok := b.Flush()
	if ok || data != nil {
		t.Errorf("Flush on empty = (%v, %v), want (nil, false)", data, ok)
	}
}

func TestBuffer_FlushResets(t *testing.T) {
	t.Parallel()

	b := New(DefaultConfig())
	b.Add(chunkOf(200, 1))
	b.Add(chunkOf(200, 2))

	seg, ok := b.FlushSegment()
	if !ok {
		t.Fatal("FlushSegment reported nothing to flush")
	}
	if seg.ChunkCount != 2 || seg.TotalSize != 2*200*32 || seg.TotalDuration != 400*time.Millisecond {
		t.Errorf("segment stats = %+v", seg.Stats)
	}
	if seg.Start != 1*time.Millisecond || seg.End != 2*time.Millisecond {
		t.Errorf("segment span = %v..%v, want 1ms..2ms", seg.Start, seg.End)
	}

	if st := b.Stats(); st != (Stats{}) {
		t.Errorf("stats after flush = %+v, want zero", st)
	}
	if _, ok := b.Flush(); ok {
		t.Error("second flush should have nothing to flush")
	}
}

func TestBuffer_Clear(t *testing.T) {
	t.Parallel()

	b := New(DefaultConfig())
	b.Add(chunkOf(800, 1))
	b.Clear()

	if !b.Empty() {
		t.Error("buffer not empty after Clear")
	}
	// Cleared audio no longer counts towards the threshold.
	if got := b.Add(chunkOf(800, 2)); got != StatusBuffering {
		t.Errorf("Add after Clear = %v, want buffering", got)
	}
}

func TestBuffer_FormatSkewsThresholds(t *testing.T) {
	t.Parallel()

	// Declaring 8 kHz for what is really 16 kHz audio doubles every estimate.
	cfg := DefaultConfig()
	cfg.Format = audio.Format{SampleRate: 8000, BitDepth: 16, Channels: 1}
	b := New(cfg)

	if got := b.Add(chunkOf(500, 1)); got != StatusReady {
		t.Errorf("Add = %v, want ready (500ms real is 1000ms estimated)", got)
	}
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	tests := map[Status]string{
		StatusBuffering: "buffering",
		StatusReady:     "ready",
		StatusRejected:  "rejected",
		Status(42):      "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}
