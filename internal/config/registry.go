package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/speechkit/pkg/recognizer"
)

// ErrRecognizerNotRegistered is returned by [Registry.CreateRecognizer] when
// no factory has been registered under the requested name.
var ErrRecognizerNotRegistered = errors.New("config: recognizer not registered")

// RecognizerFactory builds a recognizer from its config block.
type RecognizerFactory func(RecognizerConfig) (recognizer.Recognizer, error)

// Registry maps recognizer names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu          sync.RWMutex
	recognizers map[string]RecognizerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognizers: make(map[string]RecognizerFactory),
	}
}

// RegisterRecognizer registers factory under name. Registering the same
// name again overwrites the previous factory.
func (r *Registry) RegisterRecognizer(name string, factory RecognizerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizers[name] = factory
}

// Recognizers returns the registered names in no particular order.
func (r *Registry) Recognizers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.recognizers))
	for name := range r.recognizers {
		names = append(names, name)
	}
	return names
}

// CreateRecognizer instantiates the recognizer registered under cfg.Name.
// Returns [ErrRecognizerNotRegistered] if there is none.
func (r *Registry) CreateRecognizer(cfg RecognizerConfig) (recognizer.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.recognizers[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRecognizerNotRegistered, cfg.Name)
	}
	rec, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create recognizer %q: %w", cfg.Name, err)
	}
	return rec, nil
}
