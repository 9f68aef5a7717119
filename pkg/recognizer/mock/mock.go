// Package mock provides a test double for [recognizer.Recognizer].
//
// Recognizer returns Transcript/Err by default, or the result of RecognizeFunc
// when set, and records every call:
//
//	rec := &mock.Recognizer{Transcript: types.Transcript{Text: "hello", Confidence: 0.9}}
//	sess, _ := pipeline.NewSession(pipeline.SessionConfig{Config: cfg, Recognizer: rec})
//	...
//	if len(rec.Calls()) != 1 { ... }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speechkit/pkg/audio"
	"github.com/MrWong99/speechkit/pkg/recognizer"
	"github.com/MrWong99/speechkit/pkg/types"
)

// Ensure Recognizer implements recognizer.Recognizer at compile time.
var _ recognizer.Recognizer = (*Recognizer)(nil)

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	// PCM is a copy of the audio passed to Recognize.
	PCM []byte
	// Format is the format passed to Recognize.
	Format audio.Format
}

// Recognizer is a mock implementation of recognizer.Recognizer. It is safe
// for concurrent use.
type Recognizer struct {
	mu    sync.Mutex
	calls []RecognizeCall

	// Transcript is returned by Recognize when RecognizeFunc is nil.
	Transcript types.Transcript

	// Err is returned by Recognize when RecognizeFunc is nil.
	Err error

	// RecognizeFunc, when set, computes the result instead of Transcript/Err.
	RecognizeFunc func(ctx context.Context, pcm []byte, format audio.Format) (types.Transcript, error)
}

// Recognize records the call and returns the configured result.
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, format audio.Format) (types.Transcript, error) {
	r.mu.Lock()
	r.calls = append(r.calls, RecognizeCall{PCM: append([]byte(nil), pcm...), Format: format})
	fn := r.RecognizeFunc
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, pcm, format)
	}
	if len(pcm) == 0 {
		return types.Transcript{}, recognizer.ErrEmptyAudio
	}
	return r.Transcript, r.Err
}

// Calls returns a copy of the recorded calls.
func (r *Recognizer) Calls() []RecognizeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecognizeCall(nil), r.calls...)
}

// Reset clears all recorded calls.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
