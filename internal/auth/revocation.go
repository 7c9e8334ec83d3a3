package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "bl:"

// RevocationStore records blacklisted tokens until they would have expired.
type RevocationStore interface {
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
	BlacklistOnce(ctx context.Context, token string, ttl time.Duration) (bool, error)
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// RedisRevocationStore keeps one key per blacklisted token, named after the
// token's SHA-256 so raw credentials never reach Redis.
type RedisRevocationStore struct {
	redis redis.UniversalClient
}

var _ RevocationStore = (*RedisRevocationStore)(nil)

func NewRedisRevocationStore(client redis.UniversalClient) *RedisRevocationStore {
	return &RedisRevocationStore{redis: client}
}

// Blacklist is a no-op for ttl <= 0: an expired token needs no entry.
// Repeated calls overwrite the entry.
func (s *RedisRevocationStore) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, blacklistKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}

// BlacklistOnce inserts the entry only if it is absent and reports whether
// this call created it. A token that verifies but has no remaining lifetime
// is treated as already consumed.
func (s *RedisRevocationStore) BlacklistOnce(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	created, err := s.redis.SetNX(ctx, blacklistKey(token), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return created, nil
}

// IsBlacklisted never reports false on a store error.
func (s *RedisRevocationStore) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := s.redis.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return n > 0, nil
}

func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return blacklistKeyPrefix + hex.EncodeToString(sum[:])
}
