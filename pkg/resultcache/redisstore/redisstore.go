// Package redisstore implements [resultcache.Store] on top of Redis so that
// recognition results can be shared between sessions and survive restarts.
//
// Keys are namespaced as "<prefix>:<fingerprint>" and values are JSON-encoded
// [types.Transcript] values written with a fixed TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/speechkit/pkg/resultcache"
	"github.com/MrWong99/speechkit/pkg/types"
)

// DefaultPrefix is the key namespace used when none is given.
const DefaultPrefix = "speechkit"

var _ resultcache.Store = (*Store)(nil)

// Store is a Redis-backed result tier.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New returns a Store using rdb. An empty prefix selects [DefaultPrefix]; a
// non-positive ttl stores entries without expiry.
func New(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Dial connects to addr, which may be a host:port pair or a redis:// URL,
// and verifies the connection with PING.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	var opt *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		var err error
		if opt, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("redisstore: parse url: %w", err)
		}
	} else {
		opt = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", opt.Addr, err)
	}
	return client, nil
}

// Key returns the namespaced Redis key for a fingerprint.
func (s *Store) Key(fingerprint string) string {
	return s.prefix + ":" + fingerprint
}

// Get implements [resultcache.Store]. Corrupt entries are deleted and
// reported as a miss.
func (s *Store) Get(ctx context.Context, key string) (types.Transcript, bool, error) {
	raw, err := s.rdb.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Transcript{}, false, nil
	}
	if err != nil {
		return types.Transcript{}, false, fmt.Errorf("redisstore: get: %w", err)
	}

	var t types.Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		_ = s.rdb.Del(ctx, s.Key(key)).Err()
		return types.Transcript{}, false, nil
	}
	return t, true, nil
}

// Set implements [resultcache.Store].
func (s *Store) Set(ctx context.Context, key string, t types.Transcript) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("redisstore: encode: %w", err)
	}
	if err := s.rdb.Set(ctx, s.Key(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set: %w", err)
	}
	return nil
}
