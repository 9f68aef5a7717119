package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/speechkit/pkg/recognizer"
)

var errTest = errors.New("test error")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures, halfOpenMax int) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  maxFailures,
		ResetTimeout: time.Minute,
		HalfOpenMax:  halfOpenMax,
		Now:          clk.now,
	})
	return b, clk
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNewBreaker_Defaults(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test"})
	if b.cfg.MaxFailures != DefaultMaxFailures {
		t.Errorf("MaxFailures = %d, want %d", b.cfg.MaxFailures, DefaultMaxFailures)
	}
	if b.cfg.ResetTimeout != DefaultResetTimeout {
		t.Errorf("ResetTimeout = %v, want %v", b.cfg.ResetTimeout, DefaultResetTimeout)
	}
	if b.cfg.HalfOpenMax != DefaultHalfOpenMax {
		t.Errorf("HalfOpenMax = %d, want %d", b.cfg.HalfOpenMax, DefaultHalfOpenMax)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_ClosedPassesResult(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(3, 1)
	called := false
	if err := b.Do(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
	if err := b.Do(fail); !errors.Is(err, errTest) {
		t.Errorf("Do = %v, want errTest", err)
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(3, 1)
	for range 3 {
		_ = b.Do(fail)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn called while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(3, 1)
	_ = b.Do(fail)
	_ = b.Do(fail)
	_ = b.Do(succeed)
	_ = b.Do(fail)
	_ = b.Do(fail)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed; success should reset the count", b.State())
	}
}

func TestBreaker_NeutralErrorsDoNotCount(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(2, 1)
	neutralErrs := []error{
		context.Canceled,
		fmt.Errorf("whisper: %w", context.Canceled),
		recognizer.ErrEmptyAudio,
	}
	for _, e := range neutralErrs {
		_ = b.Do(func() error { return e })
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after neutral errors", b.State())
	}

	// A deadline is the backend being slow and does count.
	_ = b.Do(func() error { return context.DeadlineExceeded })
	_ = b.Do(func() error { return context.DeadlineExceeded })
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open after timeouts", b.State())
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	t.Parallel()

	b, clk := newTestBreaker(1, 2)
	_ = b.Do(fail)

	clk.advance(59 * time.Second)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open before the reset timeout", b.State())
	}
	clk.advance(time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after the reset timeout", b.State())
	}
}

func TestBreaker_HalfOpenClosesAfterProbes(t *testing.T) {
	t.Parallel()

	b, clk := newTestBreaker(1, 2)
	_ = b.Do(fail)
	clk.advance(time.Minute)

	for i := range 2 {
		if err := b.Do(succeed); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probes", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b, clk := newTestBreaker(1, 3)
	_ = b.Do(fail)
	clk.advance(time.Minute)

	if err := b.Do(fail); !errors.Is(err, errTest) {
		t.Fatalf("probe err = %v, want errTest", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
	// The open timer restarts at the failed probe.
	clk.advance(30 * time.Second)
	if err := b.Do(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_HalfOpenProbeBudget(t *testing.T) {
	t.Parallel()

	b, clk := newTestBreaker(1, 1)
	_ = b.Do(fail)
	clk.advance(time.Minute)

	// The single probe is in flight while a second call arrives.
	var inner error
	err := b.Do(func() error {
		inner = b.Do(succeed)
		return nil
	})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !errors.Is(inner, ErrCircuitOpen) {
		t.Errorf("concurrent call err = %v, want ErrCircuitOpen", inner)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_CancelledProbeReturnsSlot(t *testing.T) {
	t.Parallel()

	b, clk := newTestBreaker(1, 1)
	_ = b.Do(fail)
	clk.advance(time.Minute)

	_ = b.Do(func() error { return context.Canceled })
	if err := b.Do(succeed); err != nil {
		t.Fatalf("probe after cancelled probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(1, 1)
	_ = b.Do(fail)
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", b.State())
	}
	if err := b.Do(succeed); err != nil {
		t.Fatalf("Do after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
