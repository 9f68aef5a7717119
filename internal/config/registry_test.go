package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/speechkit/internal/config"
	"github.com/MrWong99/speechkit/pkg/recognizer"
	"github.com/MrWong99/speechkit/pkg/recognizer/mock"
)

func TestRegistry_CreateRecognizer(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	want := &mock.Recognizer{}
	var gotCfg config.RecognizerConfig
	reg.RegisterRecognizer("mock", func(cfg config.RecognizerConfig) (recognizer.Recognizer, error) {
		gotCfg = cfg
		return want, nil
	})

	rec, err := reg.CreateRecognizer(config.RecognizerConfig{Name: "mock", Language: "de"})
	if err != nil {
		t.Fatalf("CreateRecognizer: %v", err)
	}
	if rec != want {
		t.Error("CreateRecognizer returned a different instance")
	}
	if gotCfg.Language != "de" {
		t.Errorf("factory got %+v", gotCfg)
	}
	if names := reg.Recognizers(); !slices.Equal(names, []string{"mock"}) {
		t.Errorf("Recognizers() = %v", names)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()

	_, err := config.NewRegistry().CreateRecognizer(config.RecognizerConfig{Name: "nope"})
	if !errors.Is(err, config.ErrRecognizerNotRegistered) {
		t.Errorf("err = %v, want ErrRecognizerNotRegistered", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	reg := config.NewRegistry()
	reg.RegisterRecognizer("broken", func(config.RecognizerConfig) (recognizer.Recognizer, error) {
		return nil, boom
	})
	if _, err := reg.CreateRecognizer(config.RecognizerConfig{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}
