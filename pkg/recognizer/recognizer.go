// Package recognizer defines the speech recognition backend the pipeline
// hands finished segments to.
//
// Implementations are batch recognizers: one call transcribes one segment of
// raw PCM. Streaming and partial results are out of scope; the segment
// buffer decides when audio is ready.
package recognizer

import (
	"context"
	"errors"

	"github.com/MrWong99/speechkit/pkg/audio"
	"github.com/MrWong99/speechkit/pkg/types"
)

// ErrEmptyAudio is returned when Recognize is called without any PCM data.
var ErrEmptyAudio = errors.New("recognizer: empty audio")

// Recognizer transcribes a segment of 16-bit little-endian PCM.
//
// Implementations must be safe for concurrent use; one recognizer is shared
// by every session of a process.
type Recognizer interface {
	// Recognize transcribes pcm, recorded in format. A backend that reports
	// no confidence score sets Confidence to 1.
	Recognize(ctx context.Context, pcm []byte, format audio.Format) (types.Transcript, error)
}

// Func adapts an ordinary function to the [Recognizer] interface.
type Func func(ctx context.Context, pcm []byte, format audio.Format) (types.Transcript, error)

// Recognize calls f.
func (f Func) Recognize(ctx context.Context, pcm []byte, format audio.Format) (types.Transcript, error) {
	return f(ctx, pcm, format)
}
