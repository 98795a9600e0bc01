package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisTokenPrefix = "revoked:jti:"
	redisUserPrefix  = "revoked:user:"
)

// RedisRevocationStore shares revocations between server replicas. Token keys
// expire with the token; user cut-offs expire after retain.
type RedisRevocationStore struct {
	rdb    redis.UniversalClient
	retain time.Duration
}

func NewRedisRevocationStore(rdb redis.UniversalClient, retain time.Duration) *RedisRevocationStore {
	return &RedisRevocationStore{rdb: rdb, retain: retain}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, redisTokenPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) RevokeUser(ctx context.Context, userID string, at time.Time) error {
	key := redisUserPrefix + userID
	if err := s.rdb.Set(ctx, key, at.Unix(), s.retain).Err(); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	n, err := s.rdb.Exists(ctx, redisTokenPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	raw, err := s.rdb.Get(ctx, redisUserPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user revocation: %w", err)
	}
	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse user revocation %q: %w", raw, err)
	}
	return issuedBefore(issuedAt, time.Unix(cutoff, 0)), nil
}
