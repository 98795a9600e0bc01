package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisForTest connects to REDIS_URL or skips the test.
func redisForTest(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisRevocationStore(t *testing.T) {
	rdb := redisForTest(t)
	store := NewRedisRevocationStore(rdb, time.Hour)
	ctx := context.Background()

	jti := uuid.NewString()
	userID := uuid.NewString()
	t.Cleanup(func() {
		rdb.Del(ctx, redisTokenPrefix+jti, redisUserPrefix+userID)
	})

	if got, err := store.IsRevoked(ctx, jti, userID, time.Now()); err != nil || got {
		t.Fatalf("expected fresh token to be valid, got %v (%v)", got, err)
	}

	if err := store.Revoke(ctx, jti, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if got, _ := store.IsRevoked(ctx, jti, userID, time.Now()); !got {
		t.Error("expected revoked jti to be rejected")
	}
	ttl := rdb.TTL(ctx, redisTokenPrefix+jti).Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected jti key ttl within token lifetime, got %s", ttl)
	}

	cutoff := time.Now()
	if err := store.RevokeUser(ctx, userID, cutoff); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if got, _ := store.IsRevoked(ctx, uuid.NewString(), userID, cutoff.Add(-time.Hour)); !got {
		t.Error("expected token issued before the cut-off to be rejected")
	}
	if got, _ := store.IsRevoked(ctx, uuid.NewString(), userID, cutoff.Truncate(time.Second)); !got {
		t.Error("expected token issued in the cut-off second to be rejected")
	}
	if got, _ := store.IsRevoked(ctx, uuid.NewString(), userID, cutoff.Add(2*time.Second)); got {
		t.Error("expected token issued after the cut-off to pass")
	}
}

func TestRedisRevocationStore_ExpiredTokenIsNoop(t *testing.T) {
	rdb := redisForTest(t)
	store := NewRedisRevocationStore(rdb, time.Hour)
	ctx := context.Background()

	jti := uuid.NewString()
	if err := store.Revoke(ctx, jti, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := rdb.Exists(ctx, redisTokenPrefix+jti).Val(); n != 0 {
		t.Error("expected no key for an already expired token")
	}
}
