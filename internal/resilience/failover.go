package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/speechkit/pkg/audio"
	"github.com/MrWong99/speechkit/pkg/recognizer"
	"github.com/MrWong99/speechkit/pkg/types"
)

// ErrAllFailed is returned by [Failover.Recognize] when every backend failed
// or was skipped because its breaker is open.
var ErrAllFailed = errors.New("resilience: all recognizers failed")

var _ recognizer.Recognizer = (*Failover)(nil)

// Backend is a named recognizer taking part in a [Failover].
type Backend struct {
	Name       string
	Recognizer recognizer.Recognizer
}

type guarded struct {
	name    string
	rec     recognizer.Recognizer
	breaker *Breaker
}

// Failover implements [recognizer.Recognizer] by trying its backends in
// order, each behind a dedicated [Breaker].
type Failover struct {
	backends []guarded
}

// NewFailover creates a Failover over backends, primary first. Every backend
// gets a breaker configured from cfg and named after the backend.
func NewFailover(cfg BreakerConfig, backends ...Backend) (*Failover, error) {
	if len(backends) == 0 {
		return nil, errors.New("resilience: failover needs at least one recognizer")
	}
	f := &Failover{backends: make([]guarded, 0, len(backends))}
	for i, b := range backends {
		if b.Recognizer == nil {
			return nil, fmt.Errorf("resilience: backend %d (%q) has no recognizer", i, b.Name)
		}
		bc := cfg
		bc.Name = b.Name
		f.backends = append(f.backends, guarded{name: b.Name, rec: b.Recognizer, breaker: NewBreaker(bc)})
	}
	return f, nil
}

// Recognize implements [recognizer.Recognizer]. Empty audio is rejected up
// front with [recognizer.ErrEmptyAudio] instead of being sent to every
// backend.
func (f *Failover) Recognize(ctx context.Context, pcm []byte, format audio.Format) (types.Transcript, error) {
	if len(pcm) == 0 {
		return types.Transcript{}, recognizer.ErrEmptyAudio
	}

	var errs []error
	for _, b := range f.backends {
		if err := ctx.Err(); err != nil {
			return types.Transcript{}, err
		}

		var tr types.Transcript
		err := b.breaker.Do(func() error {
			var rerr error
			tr, rerr = b.rec.Recognize(ctx, pcm, format)
			return rerr
		})
		if err == nil {
			return tr, nil
		}

		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping recognizer, circuit open", "recognizer", b.name)
		} else {
			slog.Warn("recognizer failed, trying next", "recognizer", b.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
	}
	return types.Transcript{}, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// States reports the breaker state of each backend by name.
func (f *Failover) States() map[string]State {
	out := make(map[string]State, len(f.backends))
	for _, b := range f.backends {
		out[b.name] = b.breaker.State()
	}
	return out
}

// Ready returns nil while at least one backend would accept a call. It fits
// a readiness probe.
func (f *Failover) Ready(context.Context) error {
	for _, b := range f.backends {
		if b.breaker.State() != StateOpen {
			return nil
		}
	}
	return fmt.Errorf("resilience: all %d recognizer circuits open", len(f.backends))
}
