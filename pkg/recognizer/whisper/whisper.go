// Package whisper provides a recognizer backed by a running whisper.cpp
// server (the whisper-server binary), which exposes POST /inference.
//
// Each Recognize call wraps the segment in a WAV container and uploads it as
// multipart/form-data. The server is asked for verbose JSON so that segment
// log-probabilities can be turned into a confidence score.
//
// Usage:
//
//	r, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	t, err := r.Recognize(ctx, pcm, audio.DefaultFormat)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/speechkit/pkg/audio"
	"github.com/MrWong99/speechkit/pkg/audio/wav"
	"github.com/MrWong99/speechkit/pkg/recognizer"
	"github.com/MrWong99/speechkit/pkg/types"
)

const defaultTimeout = 30 * time.Second

// Compile-time interface assertion.
var _ recognizer.Recognizer = (*Recognizer)(nil)

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithModel sets the model identifier forwarded to the server (e.g.
// "base.en"). When empty the server uses whichever model it was started
// with.
func WithModel(model string) Option {
	return func(r *Recognizer) {
		r.model = model
	}
}

// WithLanguage sets the language hint sent to the server (e.g. "en", "de").
// Empty lets the server detect the language.
func WithLanguage(lang string) Option {
	return func(r *Recognizer) {
		r.language = lang
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Recognizer) {
		r.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(r *Recognizer) {
		if d > 0 {
			r.httpClient = &http.Client{Timeout: d}
		}
	}
}

// Recognizer implements [recognizer.Recognizer] against a whisper.cpp
// server. It holds no per-call state and is safe for concurrent use.
type Recognizer struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Recognizer for the whisper.cpp server at serverURL (e.g.
// "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Recognizer, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	r := &Recognizer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// inferenceResponse is the subset of the server's verbose JSON we use.
type inferenceResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		AvgLogprob *float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// Recognize implements [recognizer.Recognizer].
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, format audio.Format) (types.Transcript, error) {
	if len(pcm) == 0 {
		return types.Transcript{}, recognizer.ErrEmptyAudio
	}

	body, contentType, err := r.form(pcm, format)
	if err != nil {
		return types.Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.serverURL+"/inference", body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	lang := result.Language
	if lang == "" {
		lang = r.language
	}
	return types.Transcript{
		Text:       strings.TrimSpace(result.Text),
		Confidence: confidence(result),
		Language:   lang,
		Duration:   format.Duration(len(pcm)),
	}, nil
}

// form builds the multipart upload for one segment.
func (r *Recognizer) form(pcm []byte, format audio.Format) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav.Encode(pcm, format)); err != nil {
		return nil, "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := [][2]string{
		{"response_format", "verbose_json"},
		{"language", r.language},
		{"model", r.model},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// confidence maps the mean segment log-probability to [0, 1]. Responses
// without log-probabilities score 1.
func confidence(res inferenceResponse) float64 {
	var sum float64
	var n int
	for _, s := range res.Segments {
		if s.AvgLogprob == nil {
			continue
		}
		sum += *s.AvgLogprob
		n++
	}
	if n == 0 {
		return 1
	}
	return min(1, math.Exp(sum/float64(n)))
}
