package tokenstore

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocation store for JWT jtis. Redis-backed when UseRedis has been called,
// otherwise an in-memory map (single-process deployments, tests).

const redisKeyPrefix = "revoked_jti:"

var (
	mu            sync.RWMutex
	revokedTokens = map[string]struct{}{}

	rdb *redis.Client
)

// UseRedis switches the store to Redis. A failed ping keeps the in-memory
// fallback so a missing Redis never locks users out.
func UseRedis(addr string) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[tokenstore] redis %s unreachable, using in-memory store: %v", addr, err)
		return
	}
	mu.Lock()
	rdb = client
	mu.Unlock()
	log.Printf("[tokenstore] using redis at %s", addr)
}

// RevokeToken marks a jti revoked. ttl bounds the entry's lifetime in Redis;
// it should cover the token's remaining validity.
func RevokeToken(ctx context.Context, jti string, ttl time.Duration) {
	if jti == "" {
		return
	}
	mu.RLock()
	client := rdb
	mu.RUnlock()
	if client != nil {
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		if err := client.Set(ctx, redisKeyPrefix+jti, "1", ttl).Err(); err == nil {
			return
		} else {
			log.Printf("[tokenstore] redis revoke failed, falling back to memory: %v", err)
		}
	}
	mu.Lock()
	revokedTokens[jti] = struct{}{}
	mu.Unlock()
}

// IsRevoked reports whether a jti has been revoked.
func IsRevoked(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}
	mu.RLock()
	client := rdb
	_, inMem := revokedTokens[jti]
	mu.RUnlock()
	if inMem {
		return true
	}
	if client != nil {
		n, err := client.Exists(ctx, redisKeyPrefix+jti).Result()
		if err != nil {
			log.Printf("[tokenstore] redis lookup failed: %v", err)
			return false
		}
		return n > 0
	}
	return false
}
