// Package cooldown remembers project URLs whose capture failed recently, so a
// dead site is answered with the fallback instead of relaunching a browser.
package cooldown

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"projectpreview/internal/infra/logging"
)

const redisTimeout = time.Second

// RedisCooldown stores failure markers with a TTL in Redis.
type RedisCooldown struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCooldown(client *redis.Client, ttl time.Duration) *RedisCooldown {
	return &RedisCooldown{client: client, ttl: ttl}
}

func key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "preview:cooldown:" + hex.EncodeToString(sum[:])
}

// Active reports whether url failed within the cooldown window.
// Redis errors are logged and treated as "not cooling down".
func (c *RedisCooldown) Active(ctx context.Context, url string) bool {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	_, err := c.client.Get(ctx, key(url)).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return false
	}
	return true
}

// Mark records a failed capture of url with the reason label.
func (c *RedisCooldown) Mark(ctx context.Context, url, reason string) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key(url), reason, c.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}
