package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/speechkit/pkg/types"
)

// testStore connects to the Redis instance named by SPEECHKIT_TEST_REDIS_ADDR
// and skips the test when it is unset.
func testStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("SPEECHKIT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SPEECHKIT_TEST_REDIS_ADDR not set; skipping Redis integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	// A fresh prefix per test keeps runs independent.
	return New(client, "speechkit-test-"+uuid.NewString(), time.Minute)
}

func TestKey(t *testing.T) {
	t.Parallel()

	s := New(nil, "", 0)
	if got := s.Key("100_0.1_0.2_0.3"); got != "speechkit:100_0.1_0.2_0.3" {
		t.Errorf("Key = %q", got)
	}
	s = New(nil, "tenant-a", 0)
	if got := s.Key("fp"); got != "tenant-a:fp" {
		t.Errorf("Key = %q", got)
	}
}

func TestStore_SetGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	want := types.Transcript{Text: "the cat sat", Confidence: 0.9, Language: "en", Duration: time.Second}
	if err := s.Set(ctx, "fp", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "fp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || got != want {
		t.Errorf("Get = (%+v, %v), want %+v", got, ok, want)
	}
}

func TestStore_Miss(t *testing.T) {
	s := testStore(t)

	_, ok, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get on unknown key should miss")
	}
}

func TestStore_CorruptEntryIsMiss(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.rdb.Set(ctx, s.Key("bad"), "{not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, ok, err := s.Get(ctx, "bad")
	if err != nil || ok {
		t.Errorf("Get corrupt = (ok=%v, err=%v), want miss", ok, err)
	}
	if n, _ := s.rdb.Exists(ctx, s.Key("bad")).Result(); n != 0 {
		t.Error("corrupt entry should be deleted")
	}
}
