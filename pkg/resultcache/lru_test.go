package resultcache

import (
	"fmt"
	"slices"
	"testing"
)

func TestNewLRU_DefaultCapacity(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, int](0)
	if c.Capacity() != DefaultCapacity {
		t.Errorf("Capacity = %d, want %d", c.Capacity(), DefaultCapacity)
	}
}

func TestLRU_GetSet(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, string](3)
	c.Set("a", "alpha")

	v, ok := c.Get("a")
	if !ok || v != "alpha" {
		t.Errorf("Get(a) = (%q, %v), want (alpha, true)", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.HitRate != 0.5 {
		t.Errorf("stats = %+v, want 1 hit, 1 miss, 0.5 rate", st)
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, int](3)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Reading a promotes it; b is now the least recently used.
	c.Get("a")
	c.Set("d", 4)

	if c.Has("b") {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !c.Has(k) {
			t.Errorf("%s should still be cached", k)
		}
	}
	if got := c.Keys(); !slices.Equal(got, []string{"c", "a", "d"}) {
		t.Errorf("Keys = %v, want [c a d]", got)
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestLRU_OverwritePromotesWithoutEvicting(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("a = %d, want 10", v)
	}

	c.Set("c", 3)
	if c.Has("b") {
		t.Error("b should be evicted after a was overwritten")
	}
}

func TestLRU_HasDoesNotPromote(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Has("a")
	c.Set("c", 3)

	if c.Has("a") {
		t.Error("Has must not promote; a should have been evicted")
	}
}

func TestLRU_BoundedByCapacity(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, int](1000)
	for i := range 1001 {
		c.Set(fmt.Sprintf("fp-%d", i), i)
		if c.Len() > 1000 {
			t.Fatalf("Len = %d after %d inserts, exceeds capacity", c.Len(), i+1)
		}
	}

	if c.Has("fp-0") {
		t.Error("first inserted key should be evicted")
	}
	if !c.Has("fp-1") || !c.Has("fp-1000") {
		t.Error("remaining keys should be cached")
	}
	if c.Len() != 1000 {
		t.Errorf("Len = %d, want 1000", c.Len())
	}
}

func TestLRU_DeleteAndClear(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, int](4)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")

	if !c.Delete("a") {
		t.Error("Delete(a) = false, want true")
	}
	if c.Delete("a") {
		t.Error("second Delete(a) = true, want false")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
	if c.Stats().Hits != 1 {
		t.Error("Clear should keep counters")
	}

	c.Reset()
	if st := c.Stats(); st.Hits != 0 || st.Misses != 0 {
		t.Errorf("counters after Reset = %+v", st)
	}
}
