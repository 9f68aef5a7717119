package resultcache

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/speechkit/pkg/types"
)

// Store is a result tier shared between sessions, typically backed by a
// network service. Keys are fingerprints.
type Store interface {
	// Get returns the stored transcript. A missing key is (zero, false, nil).
	Get(ctx context.Context, key string) (types.Transcript, bool, error)

	// Set stores t under key.
	Set(ctx context.Context, key string, t types.Transcript) error
}

// Guard wraps a [Store] and makes all operations non-fatal. If the store
// fails, lookups report a miss, writes are dropped, a warning is logged and
// the guard is marked degraded until the next successful call.
//
// All methods are safe for concurrent use.
type Guard struct {
	store    Store
	degraded atomic.Bool
}

// NewGuard wraps store. A nil store yields a guard that always misses.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// Get looks key up in the underlying store.
func (g *Guard) Get(ctx context.Context, key string) (types.Transcript, bool) {
	if g == nil || g.store == nil {
		return types.Transcript{}, false
	}
	t, ok, err := g.store.Get(ctx, key)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("result cache guard: Get failed, treating as miss",
			"key", key,
			"error", err,
		)
		return types.Transcript{}, false
	}
	g.degraded.Store(false)
	return t, ok
}

// Set writes t to the underlying store.
func (g *Guard) Set(ctx context.Context, key string, t types.Transcript) {
	if g == nil || g.store == nil {
		return
	}
	if err := g.store.Set(ctx, key, t); err != nil {
		g.degraded.Store(true)
		slog.Warn("result cache guard: Set failed, dropping entry",
			"key", key,
			"error", err,
		)
		return
	}
	g.degraded.Store(false)
}

// IsDegraded reports whether the most recent store call failed.
func (g *Guard) IsDegraded() bool {
	if g == nil {
		return false
	}
	return g.degraded.Load()
}
