// Package openai provides a recognizer backed by the OpenAI audio
// transcription API, or any server compatible with it.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/speechkit/pkg/audio"
	"github.com/MrWong99/speechkit/pkg/audio/wav"
	"github.com/MrWong99/speechkit/pkg/recognizer"
	"github.com/MrWong99/speechkit/pkg/types"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = string(oai.AudioModelWhisper1)

// Compile-time interface assertion.
var _ recognizer.Recognizer = (*Recognizer)(nil)

// Recognizer implements [recognizer.Recognizer] using the OpenAI API.
//
// Models of the gpt-4o transcribe family are asked for token log
// probabilities, and Confidence is their geometric mean probability. Other
// models (whisper-1 included) report nothing to derive it from, so their
// transcripts carry Confidence 1.
type Recognizer struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the recognizer.
type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Recognizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. for a
// self-hosted compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 language hint.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a Recognizer. If model is empty, [DefaultModel] is used.
// An empty apiKey is rejected unless a base URL is set, since compatible
// self-hosted servers often need none.
func New(apiKey, model string, opts ...Option) (*Recognizer, error) {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	if apiKey == "" && cfg.baseURL == "" {
		return nil, errors.New("openai recognizer: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Recognizer{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Model returns the configured transcription model.
func (r *Recognizer) Model() string {
	return r.model
}

// Recognize implements [recognizer.Recognizer].
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, format audio.Format) (types.Transcript, error) {
	if len(pcm) == 0 {
		return types.Transcript{}, recognizer.ErrEmptyAudio
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav.Encode(pcm, format)), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(r.model),
	}
	if r.language != "" {
		params.Language = oai.String(r.language)
	}
	if supportsLogprobs(r.model) {
		params.Include = []oai.TranscriptionInclude{oai.TranscriptionIncludeLogprobs}
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai recognizer: transcribe: %w", err)
	}

	return types.Transcript{
		Text:       strings.TrimSpace(resp.Text),
		Confidence: confidence(resp.Logprobs),
		Language:   r.language,
		Duration:   format.Duration(len(pcm)),
	}, nil
}

// supportsLogprobs reports whether model returns token log probabilities.
func supportsLogprobs(model string) bool {
	return strings.HasPrefix(model, "gpt-4o")
}

// confidence is the geometric mean token probability, or 1 without logprobs.
func confidence(lps []oai.TranscriptionLogprob) float64 {
	if len(lps) == 0 {
		return 1
	}
	vals := make([]float64, len(lps))
	for i, lp := range lps {
		vals[i] = lp.Logprob
	}
	return math.Exp(stat.Mean(vals, nil))
}
