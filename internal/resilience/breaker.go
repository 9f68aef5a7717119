// Package resilience keeps recognition going when a recognizer backend
// misbehaves.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open).
// [Failover] puts one breaker in front of each configured recognizer and
// tries them in order, so a failing primary is bypassed until it recovers.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/speechkit/pkg/recognizer"
)

// ErrCircuitOpen is returned by [Breaker.Do] without calling the function
// while the breaker is open, or half-open with its probe budget spent.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// Breaker defaults, used for zero [BreakerConfig] fields.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since it tripped.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker].
type BreakerConfig struct {
	// Name labels log messages.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: [DefaultMaxFailures].
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: [DefaultResetTimeout].
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of probes admitted while half-open and
	// the number of successes needed to close. Default: [DefaultHalfOpenMax].
	HalfOpenMax int

	// Now replaces time.Now. Intended for tests.
	Now func() time.Time
}

// Breaker implements the circuit breaker pattern around recognizer calls.
//
// Caller cancellation and [recognizer.ErrEmptyAudio] say nothing about the
// backend's health and are neither counted as failures nor as successes.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	successes int
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Do calls fn if the breaker admits it and returns fn's error, or
// [ErrCircuitOpen] when it does not.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(probe, err)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probes, b.successes = 0, 0
		slog.Info("circuit breaker half-open", "name", b.cfg.Name)
	}
	if b.state == StateHalfOpen {
		if b.probes >= b.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) settle(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if neutral(err) {
		if probe {
			b.probes--
		}
		return
	}

	if probe {
		if err != nil {
			b.trip("probe failed")
			return
		}
		b.successes++
		if b.successes >= b.cfg.HalfOpenMax {
			b.state = StateClosed
			b.failures = 0
			slog.Info("circuit breaker closed", "name", b.cfg.Name)
		}
		return
	}

	// A call admitted while closed may settle after a concurrent call has
	// already tripped the breaker; it does not reset the open timer.
	if b.state != StateClosed {
		return
	}
	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.cfg.MaxFailures {
		b.trip("too many consecutive failures")
	}
}

// trip opens the breaker. b.mu must be held.
func (b *Breaker) trip(reason string) {
	b.state = StateOpen
	b.openedAt = b.cfg.Now()
	slog.Warn("circuit breaker opened",
		"name", b.cfg.Name,
		"reason", reason,
		"consecutive_failures", b.failures,
	)
}

func neutral(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, recognizer.ErrEmptyAudio)
}

// State returns the breaker's state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures, b.probes, b.successes = 0, 0, 0
}
