package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/identity-system/internal/core/domain"
)

const defaultKeyPrefix = "revoked:"

// ErrNonPositiveTTL is returned when an entry would be written already dead.
var ErrNonPositiveTTL = errors.New("revocation entry ttl must be positive")

// RevocationStore is a token denylist backed by Redis key expiry.
// Key format: <prefix><token_key>
type RevocationStore struct {
	client *redis.Client
	prefix string
}

// NewRevocationStore wraps the given Redis client. An empty prefix falls back
// to "revoked:".
func NewRevocationStore(client *redis.Client, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RevocationStore{client: client, prefix: prefix}
}

// Put writes marker under key for ttl, replacing any previous entry.
func (s *RevocationStore) Put(ctx context.Context, key, marker string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNonPositiveTTL
	}
	if err := s.client.Set(ctx, s.key(key), marker, ttl).Err(); err != nil {
		return fmt.Errorf("revocation put: %w: %w", domain.ErrServiceUnavailable, err)
	}
	return nil
}

// Get returns the stored marker, if any. Redis drops keys as soon as their TTL
// elapses, so an expired entry is never reported.
func (s *RevocationStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("revocation get: %w: %w", domain.ErrServiceUnavailable, err)
	}
	return v, true, nil
}

// PutIfAbsent writes marker only if key is not already present.
func (s *RevocationStore) PutIfAbsent(ctx context.Context, key, marker string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrNonPositiveTTL
	}
	ok, err := s.client.SetNX(ctx, s.key(key), marker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("revocation claim: %w: %w", domain.ErrServiceUnavailable, err)
	}
	return ok, nil
}

func (s *RevocationStore) key(k string) string {
	return s.prefix + k
}
