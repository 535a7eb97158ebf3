package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := New(16, rdb, zerolog.Nop())
	require.NoError(t, err)
	return c, mr
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "entity_definitions:widget", map[string]string{"name": "widget"}, time.Minute))

	var out map[string]string
	found, err := c.Get(ctx, "entity_definitions:widget", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "widget", out["name"])
}

func TestCache_MemoryFirstThenRedisPromotion(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	c.memory.Remove("k") // force a redis-tier hit

	var out string
	found, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", out)

	// promoted back into memory
	_, inMemory := c.memory.Peek("k")
	require.True(t, inMemory)
}

func TestCache_Delete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "api_key:hash:abc", "v", 0))
	require.NoError(t, c.Delete(ctx, "api_key:hash:abc"))

	var out string
	found, _ := c.Get(ctx, "api_key:hash:abc", &out)
	require.False(t, found)
}

func TestCache_DeleteByPrefix(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "entity_definitions:a", "1", 0))
	require.NoError(t, c.Set(ctx, "entity_definitions:b", "2", 0))
	require.NoError(t, c.Set(ctx, "system_settings:x", "3", 0))

	dryCount, err := c.DeleteByPrefix(ctx, "entity_definitions:", true)
	require.NoError(t, err)
	require.Equal(t, 2, dryCount)

	var out string
	found, _ := c.Get(ctx, "entity_definitions:a", &out)
	require.True(t, found, "dry run must not delete")

	count, err := c.DeleteByPrefix(ctx, "entity_definitions:", false)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	found, _ = c.Get(ctx, "entity_definitions:a", &out)
	require.False(t, found)
	found, _ = c.Get(ctx, "system_settings:x", &out)
	require.True(t, found, "other prefixes untouched")
}

func TestCache_ZeroTTLMeansNoExpiration(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	mr.FastForward(24 * time.Hour)

	var out string
	found, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, found)
}
