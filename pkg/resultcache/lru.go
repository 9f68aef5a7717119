// Package resultcache remembers recognition results keyed by audio
// fingerprint so that near-duplicate segments skip the recognition call.
//
// [LRU] is the in-process, per-session cache: capacity-bounded with strict
// least-recently-used eviction and no expiry. [Guard] optionally fronts a
// shared [Store] (see the redisstore sub-package) that outlives a single
// session; its failures are logged and swallowed so the interactive path
// never fails because of it.
package resultcache

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultCapacity is the capacity used when none is configured.
const DefaultCapacity = 1000

// Stats is a point-in-time view of an [LRU].
type Stats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// LRU is a capacity-bounded map whose entries are ordered by recency of use.
// Reading or writing an entry makes it the most recently used; inserting a
// new key into a full cache evicts the least recently used one. Recency is
// purely call order.
//
// An LRU is owned by one session and is not safe for concurrent use.
type LRU[K comparable, V any] struct {
	// entries is ordered oldest (least recently used) to newest.
	entries  *orderedmap.OrderedMap[K, V]
	capacity int

	hits      int64
	misses    int64
	evictions int64
}

// NewLRU creates an empty cache holding at most capacity entries. A
// non-positive capacity selects [DefaultCapacity].
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU[K, V]{
		entries:  orderedmap.New[K, V](),
		capacity: capacity,
	}
}

// Get returns the value stored under key and promotes it to most recently
// used. A miss is the normal outcome for novel audio, not an error.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return v, false
	}
	c.hits++
	_ = c.entries.MoveToBack(key)
	return v, true
}

// Set stores value under key as the most recently used entry. Overwriting
// an existing key never evicts; inserting a new key into a full cache evicts
// exactly one entry, the least recently used.
func (c *LRU[K, V]) Set(key K, value V) {
	if _, ok := c.entries.Get(key); ok {
		c.entries.Set(key, value)
		_ = c.entries.MoveToBack(key)
		return
	}
	if c.entries.Len() >= c.capacity {
		if oldest := c.entries.Oldest(); oldest != nil {
			c.entries.Delete(oldest.Key)
			c.evictions++
		}
	}
	c.entries.Set(key, value)
}

// Has reports whether key is cached without changing its recency.
func (c *LRU[K, V]) Has(key K) bool {
	_, ok := c.entries.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (c *LRU[K, V]) Delete(key K) bool {
	_, ok := c.entries.Delete(key)
	return ok
}

// Clear drops every entry. Hit and miss counters are kept.
func (c *LRU[K, V]) Clear() {
	c.entries = orderedmap.New[K, V]()
}

// Reset drops every entry and zeroes the counters.
func (c *LRU[K, V]) Reset() {
	c.Clear()
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	return c.entries.Len()
}

// Capacity returns the maximum number of entries.
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// Keys returns the cached keys from least to most recently used.
func (c *LRU[K, V]) Keys() []K {
	keys := make([]K, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Stats returns size, capacity and lookup counters.
func (c *LRU[K, V]) Stats() Stats {
	s := Stats{
		Size:      c.entries.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
