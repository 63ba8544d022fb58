package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	cache, err := NewCache(Config{
		RedisURL:      "redis://" + s.Addr(),
		RedisPoolSize: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return cache, s
}

func TestNewCache_InvalidURL(t *testing.T) {
	_, err := NewCache(Config{RedisURL: "not-a-url"})
	assert.Error(t, err)
}

func TestNewCache_Unreachable(t *testing.T) {
	_, err := NewCache(Config{RedisURL: "redis://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestCache_UnreadCount(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	t.Run("miss on empty cache", func(t *testing.T) {
		count, ok, err := cache.GetUnreadCount(ctx, 42)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, count)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, cache.SetUnreadCount(ctx, 42, 7))

		count, ok, err := cache.GetUnreadCount(ctx, 42)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(7), count)
	})

	t.Run("incr bumps existing entry", func(t *testing.T) {
		require.NoError(t, cache.SetUnreadCount(ctx, 42, 7))
		require.NoError(t, cache.IncrUnreadCount(ctx, 42))

		count, ok, err := cache.GetUnreadCount(ctx, 42)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(8), count)
	})

	t.Run("incr on miss stays a miss", func(t *testing.T) {
		require.NoError(t, cache.IncrUnreadCount(ctx, 99))

		_, ok, err := cache.GetUnreadCount(ctx, 99)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalidate drops entry", func(t *testing.T) {
		require.NoError(t, cache.SetUnreadCount(ctx, 42, 3))
		require.NoError(t, cache.InvalidateUnreadCount(ctx, 42))

		_, ok, err := cache.GetUnreadCount(ctx, 42)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCache_CorruptValueTreatedAsMiss(t *testing.T) {
	cache, s := newTestCache(t)
	ctx := context.Background()

	s.Set(unreadKey(42), "not-a-number")

	count, ok, err := cache.GetUnreadCount(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, count)
}

func TestCache_Ping(t *testing.T) {
	cache, s := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Ping(ctx))

	s.Close()
	assert.Error(t, cache.Ping(ctx))
}
