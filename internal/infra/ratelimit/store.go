// Package ratelimit provides the storage behind Fiber's limiter middleware.
package ratelimit

import (
	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"

	"projectpreview/internal/config"
	"projectpreview/internal/infra/logging"
)

type RedisConfig struct {
	Addr string
	DB   int
}

func RedisConfigFrom(cfg config.Config) RedisConfig {
	return RedisConfig{Addr: cfg.Cache.RedisHost, DB: cfg.Cache.RateLimitDB}
}

// NewStore returns Redis-backed limiter storage, or in-memory storage when no
// address is configured or the Redis client cannot be created.
func NewStore(rc RedisConfig) (store fiber.Storage) {
	store = memoryStorage.New()
	if rc.Addr == "" {
		logging.Info("Using in-memory storage for rate limiting")
		return store
	}

	// redis/v2 New panics when the initial ping fails.
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Redis limiter store init failed, falling back to memory", "addr", rc.Addr, "panic", r)
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{rc.Addr},
		Database: rc.DB,
	})
	logging.Info("Using Redis for rate limiting", "addr", rc.Addr, "db", rc.DB)
	return store
}
