package openai

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	oai "github.com/openai/openai-go"

	"github.com/MrWong99/speechkit/pkg/audio"
	"github.com/MrWong99/speechkit/pkg/recognizer"
)

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()
	r, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Model() != DefaultModel {
		t.Errorf("Model() = %q, want %q", r.Model(), DefaultModel)
	}
}

func TestNew_RequiresKeyWithoutBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := New("", ""); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("", "", WithBaseURL("http://localhost:9000/v1")); err != nil {
		t.Errorf("self-hosted base URL without key: %v", err)
	}
}

func TestRecognize_EmptyAudio(t *testing.T) {
	t.Parallel()
	r, _ := New("sk-test", "")
	if _, err := r.Recognize(context.Background(), nil, audio.DefaultFormat); !errors.Is(err, recognizer.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestRecognize_CompatibleServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q", got)
		}
		if _, hdr, err := r.FormFile("file"); err != nil || hdr.Filename != "audio.wav" {
			t.Errorf("file part = %v, %v", hdr, err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"the cat sat"}`))
	}))
	defer srv.Close()

	r, err := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"), WithLanguage("en"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Recognize(context.Background(), make([]byte, 3200), audio.DefaultFormat)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if got.Text != "the cat sat" || got.Confidence != 1 || got.Language != "en" {
		t.Errorf("got %+v", got)
	}
}

func TestRecognize_LogprobConfidence(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		include := append(r.MultipartForm.Value["include[]"], r.MultipartForm.Value["include"]...)
		if len(include) != 1 || include[0] != "logprobs" {
			t.Errorf("include = %v, want [logprobs]", include)
		}
		w.Header().Set("Content-Type", "application/json")
		// ln(0.5) for both tokens.
		_, _ = w.Write([]byte(`{"text":"hi there","logprobs":[` +
			`{"token":"hi","logprob":-0.6931471805599453},` +
			`{"token":" there","logprob":-0.6931471805599453}]}`))
	}))
	defer srv.Close()

	r, err := New("sk-test", "gpt-4o-transcribe", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Recognize(context.Background(), make([]byte, 3200), audio.DefaultFormat)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if math.Abs(got.Confidence-0.5) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.5", got.Confidence)
	}
}

func TestConfidence(t *testing.T) {
	t.Parallel()

	if got := confidence(nil); got != 1 {
		t.Errorf("confidence(nil) = %v, want 1", got)
	}
	lps := []oai.TranscriptionLogprob{{Logprob: 0}, {Logprob: math.Log(0.25)}}
	if got := confidence(lps); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("confidence = %v, want 0.5", got)
	}
}

func TestSupportsLogprobs(t *testing.T) {
	t.Parallel()

	for model, want := range map[string]bool{
		"whisper-1":              false,
		"gpt-4o-transcribe":      true,
		"gpt-4o-mini-transcribe": true,
	} {
		if got := supportsLogprobs(model); got != want {
			t.Errorf("supportsLogprobs(%q) = %v, want %v", model, got, want)
		}
	}
}
