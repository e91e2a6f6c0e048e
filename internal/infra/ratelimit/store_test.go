package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectpreview/internal/config"
)

func TestNewStore_MemoryWithoutAddr(t *testing.T) {
	s := NewStore(RedisConfig{})
	require.NotNil(t, s)
	require.NoError(t, s.Set("k", []byte("v"), time.Minute))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestNewStore_UnreachableRedisFallsBack(t *testing.T) {
	assert.NotNil(t, NewStore(RedisConfig{Addr: "127.0.0.1:1"}))
}

func TestNewStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	s := NewStore(RedisConfig{Addr: mr.Addr()})
	require.NotNil(t, s)
	require.NoError(t, s.Set("limiter-key", []byte("1"), time.Minute))
	assert.True(t, mr.Exists("limiter-key"))
}

func TestRedisConfigFrom(t *testing.T) {
	var cfg config.Config
	cfg.Cache.RedisHost = "redis:6379"
	cfg.Cache.RateLimitDB = 3
	assert.Equal(t, RedisConfig{Addr: "redis:6379", DB: 3}, RedisConfigFrom(cfg))
}
