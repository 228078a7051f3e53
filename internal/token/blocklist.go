package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBlocklistUnavailable is returned when the revocation store cannot be
// reached. Validation never treats an unreachable store as "not revoked".
var ErrBlocklistUnavailable = errors.New("token blocklist unavailable")

// Blocklist records revoked token ids. A completed Add must be visible to
// every subsequent Contains, across goroutines.
type Blocklist interface {
	Add(ctx context.Context, tokenID string, ttl time.Duration) error
	Contains(ctx context.Context, tokenID string) (bool, error)
}

const defaultKeyPrefix = "jwt:block:"

// RedisBlocklist stores revocations as short-TTL keys so they expire on their
// own once the token could no longer be presented anyway.
type RedisBlocklist struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisBlocklist(rdb *redis.Client, prefix string) *RedisBlocklist {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisBlocklist{rdb: rdb, prefix: prefix}
}

func (b *RedisBlocklist) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := b.rdb.Set(ctx, b.prefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBlocklistUnavailable, err)
	}
	return nil
}

func (b *RedisBlocklist) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := b.rdb.Exists(ctx, b.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBlocklistUnavailable, err)
	}
	return n > 0, nil
}

// MemoryBlocklist is the process-local fallback used in development and
// tests. Entries are dropped lazily once their expiry passes.
type MemoryBlocklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryBlocklist() *MemoryBlocklist {
	return &MemoryBlocklist{entries: make(map[string]time.Time), now: time.Now}
}

func (b *MemoryBlocklist) Add(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	exp := b.now().Add(ttl)
	// Never shorten an existing revocation.
	if cur, ok := b.entries[tokenID]; !ok || exp.After(cur) {
		b.entries[tokenID] = exp
	}
	if len(b.entries)%256 == 0 {
		b.sweepLocked()
	}
	return nil
}

func (b *MemoryBlocklist) Contains(_ context.Context, tokenID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !b.now().Before(exp) {
		delete(b.entries, tokenID)
		return false, nil
	}
	return true, nil
}

func (b *MemoryBlocklist) sweepLocked() {
	now := b.now()
	for id, exp := range b.entries {
		if !now.Before(exp) {
			delete(b.entries, id)
		}
	}
}
