// Package segment accumulates small, irregular capture chunks into longer
// recognition-ready segments.
//
// Recognition quality drops sharply on sub-second fragments and each
// recognition round-trip costs far more than holding a few more chunks in
// memory, so the [Buffer] collects chunks until their estimated duration
// reaches a ready threshold and hands the decision of when to flush back to
// the caller.
//
// Usage:
//
//	buf := segment.New(segment.DefaultConfig())
//	switch buf.Add(chunk) {
//	case segment.StatusReady:
//	    seg, _ := buf.Flush()
//	    recognize(seg)
//	case segment.StatusRejected:
//	    seg, ok := buf.Flush()
//	    ...
//	}
package segment

import (
	"time"

	"github.com/MrWong99/speechkit/pkg/audio"
)

const (
	defaultBufferSize      = 2000 * time.Millisecond
	defaultBufferThreshold = 1000 * time.Millisecond
	defaultMinAudioLength  = 500 * time.Millisecond
)

// Config controls when a [Buffer] reports a segment as ready and when it
// refuses more audio.
type Config struct {
	// BufferSize is the hard cap on the accumulated duration. A chunk that
	// would push the segment past it is rejected.
	BufferSize time.Duration

	// BufferThreshold is the accumulated duration at which [Buffer.Add]
	// starts reporting [StatusReady].
	BufferThreshold time.Duration

	// MinAudioLength documents the shortest segment worth recognising. It is
	// carried for callers and configuration validation but is not enforced by
	// the buffer; BufferThreshold is the effective lower bound.
	MinAudioLength time.Duration

	// Format is used to estimate chunk durations from their byte length. A
	// format that does not match the real encoding skews all thresholds.
	Format audio.Format
}

// DefaultConfig returns the 2 s cap / 1 s threshold / 16 kHz mono defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:      defaultBufferSize,
		BufferThreshold: defaultBufferThreshold,
		MinAudioLength:  defaultMinAudioLength,
		Format:          audio.DefaultFormat,
	}
}

// Status is the outcome of [Buffer.Add].
type Status int

const (
	// StatusBuffering means the chunk was retained and the segment is not
	// yet long enough.
	StatusBuffering Status = iota

	// StatusReady means the chunk was retained and the segment has reached
	// the ready threshold. Nothing is flushed automatically.
	StatusReady

	// StatusRejected means the chunk was not retained because it would
	// exceed the hard cap. The caller must flush and handle the chunk itself.
	StatusRejected
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusBuffering:
		return "buffering"
	case StatusReady:
		return "ready"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Stats summarises the segment currently held by a [Buffer].
type Stats struct {
	ChunkCount    int
	TotalSize     int
	TotalDuration time.Duration
}

// Segment is a flushed run of chunks merged into one buffer.
type Segment struct {
	// Data is the concatenation of all chunks in arrival order.
	Data []byte

	Stats

	// Start and End are the capture timestamps of the first and last chunk.
	Start time.Duration
	End   time.Duration
}

// Buffer owns the chunks of the segment under construction.
//
// A Buffer belongs to exactly one capture stream and is not safe for
// concurrent use.
type Buffer struct {
	cfg         Config
	capMs       float64
	thresholdMs float64

	chunks     []audio.Chunk
	totalSize  int
	durationMs float64
}

// New creates an empty Buffer. Zero-valued fields in cfg take their defaults.
func New(cfg Config) *Buffer {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.BufferThreshold <= 0 {
		cfg.BufferThreshold = def.BufferThreshold
	}
	if cfg.MinAudioLength <= 0 {
		cfg.MinAudioLength = def.MinAudioLength
	}
	if cfg.Format == (audio.Format{}) {
		cfg.Format = def.Format
	}
	return &Buffer{
		cfg:         cfg,
		capMs:       float64(cfg.BufferSize) / float64(time.Millisecond),
		thresholdMs: float64(cfg.BufferThreshold) / float64(time.Millisecond),
	}
}

// Config returns the effective configuration.
func (b *Buffer) Config() Config {
	return b.cfg
}

// Add appends chunk to the segment unless doing so would exceed the hard
// cap. A chunk that alone is longer than the cap is always rejected, even
// when the buffer is empty. Accepted chunks are retained whatever the
// returned status; only [Buffer.Flush] or [Buffer.Clear] release them.
func (b *Buffer) Add(chunk audio.Chunk) Status {
	d := b.cfg.Format.DurationMs(len(chunk.Data))
	if b.durationMs+d > b.capMs {
		return StatusRejected
	}

	b.chunks = append(b.chunks, chunk)
	b.totalSize += len(chunk.Data)
	b.durationMs += d

	if b.durationMs >= b.thresholdMs {
		return StatusReady
	}
	return StatusBuffering
}

// Flush merges the retained chunks in arrival order, resets the buffer and
// returns the merged bytes. The boolean is false when there was nothing to
// flush.
func (b *Buffer) Flush() ([]byte, bool) {
	seg, ok := b.FlushSegment()
	return seg.Data, ok
}

// FlushSegment is [Buffer.Flush] returning the segment statistics and
// capture timestamps alongside the merged bytes.
func (b *Buffer) FlushSegment() (Segment, bool) {
	if len(b.chunks) == 0 {
		return Segment{}, false
	}

	data := make([]byte, 0, b.totalSize)
	for _, c := range b.chunks {
		data = append(data, c.Data...)
	}
	seg := Segment{
		Data:  data,
		Stats: b.Stats(),
		Start: b.chunks[0].Timestamp,
		End:   b.chunks[len(b.chunks)-1].Timestamp,
	}
	b.Clear()
	return seg, true
}

// Clear discards every retained chunk without returning it. Already flushed
// segments are unaffected.
func (b *Buffer) Clear() {
	b.chunks = nil
	b.totalSize = 0
	b.durationMs = 0
}

// Stats reports the size of the segment under construction.
func (b *Buffer) Stats() Stats {
	return Stats{
		ChunkCount:    len(b.chunks),
		TotalSize:     b.totalSize,
		TotalDuration: time.Duration(b.durationMs * float64(time.Millisecond)),
	}
}

// Empty reports whether the buffer holds no chunks.
func (b *Buffer) Empty() bool {
	return len(b.chunks) == 0
}
