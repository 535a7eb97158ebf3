// Package cache implements the two-tier (in-memory LRU + optional Redis)
// typed cache used by auth, entity definitions, and settings.
package cache

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/user/entityflow/internal/core/errs"
)

// entry is what's stored in the memory tier: the raw JSON plus the
// wall-clock deadline it expires at (zero means no expiration).
type entry struct {
	raw      []byte
	deadline time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// Cache is the two-tier typed cache. Redis may be nil, in which case the
// cache degrades to memory-only (still useful for single-process tests and
// deployments without a shared cache).
type Cache struct {
	memory *lru.Cache[string, entry]
	redis  *redis.Client
	log    zerolog.Logger
}

// New builds a Cache with the given in-memory capacity and optional Redis
// client (pass nil to run memory-only).
func New(memoryCapacity int, rdb *redis.Client, log zerolog.Logger) (*Cache, error) {
	if memoryCapacity <= 0 {
		memoryCapacity = 1024
	}
	m, err := lru.New[string, entry](memoryCapacity)
	if err != nil {
		return nil, errs.Wrap(errs.Config, err, "build in-memory cache")
	}
	return &Cache{memory: m, redis: rdb, log: log}, nil
}

// Get looks up key, unmarshalling into dst if found. It reports whether the
// key was present. A Redis hit promotes the entry into memory with the
// remaining TTL. Redis unavailability is logged and treated as a miss,
// never a hard error: bypass the cache rather than block the request.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if e, ok := c.memory.Get(key); ok {
		if e.expired(time.Now()) {
			c.memory.Remove(key)
		} else {
			return true, json.Unmarshal(e.raw, dst)
		}
	}

	if c.redis == nil {
		return false, nil
	}

	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		c.log.Warn().Err(err).Str("key", key).Msg("cache: redis get failed, bypassing")
		return false, nil
	}

	var deadline time.Time
	if ttl, err := c.redis.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		deadline = time.Now().Add(ttl)
		c.memory.Add(key, entry{raw: raw, deadline: deadline})
	} else {
		c.memory.Add(key, entry{raw: raw})
	}

	return true, json.Unmarshal(raw, dst)
}

// Set writes value to both tiers. ttl == 0 means no expiration.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errs.Wrap(errs.Conversion, err, "marshal cache value")
	}

	var deadline time.Time
	if ttl > 0 {
		deadline = time.Now().Add(ttl)
	}
	c.memory.Add(key, entry{raw: raw, deadline: deadline})

	if c.redis == nil {
		return nil
	}
	if err := c.redis.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache: redis set failed, memory tier still updated")
	}
	return nil
}

// Delete removes key from both tiers, synchronously: revocations must
// invalidate the specific key synchronously with the DB write.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.memory.Remove(key)
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache: redis delete failed")
	}
	return nil
}

// DeleteByPrefix removes every key starting with prefix from both tiers and
// returns the count removed. In dryRun mode it counts without deleting.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string, dryRun bool) (int, error) {
	count := 0

	inMemory := map[string]struct{}{}
	for _, k := range c.memory.Keys() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			inMemory[k] = struct{}{}
			count++
			if !dryRun {
				c.memory.Remove(k)
			}
		}
	}

	if c.redis == nil {
		return count, nil
	}

	var cursor uint64
	matched := map[string]struct{}{}
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			c.log.Warn().Err(err).Str("prefix", prefix).Msg("cache: redis scan failed, bypassing")
			return count, nil
		}
		for _, k := range keys {
			matched[k] = struct{}{}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	batch := make([]string, 0, 200)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if !dryRun {
			if err := c.redis.Del(ctx, batch...).Err(); err != nil {
				return err
			}
		}
		batch = batch[:0]
		return nil
	}

	for k := range matched {
		if _, alreadyCounted := inMemory[k]; !alreadyCounted {
			count++
		}
		batch = append(batch, k)
		if len(batch) == 200 {
			if err := flush(); err != nil {
				c.log.Warn().Err(err).Msg("cache: redis batched delete failed")
				break
			}
		}
	}
	if err := flush(); err != nil {
		c.log.Warn().Err(err).Msg("cache: redis batched delete failed")
	}

	return count, nil
}

// Clear empties both tiers entirely.
func (c *Cache) Clear(ctx context.Context) error {
	c.memory.Purge()
	if c.redis == nil {
		return nil
	}
	if err := c.redis.FlushDB(ctx).Err(); err != nil {
		c.log.Warn().Err(err).Msg("cache: redis flush failed")
	}
	return nil
}

// Key-building helpers shared by the cache's keyed callers.

func EntityDefinitionKey(entityType string) string { return "entity_definitions:" + entityType }
func APIKeyHashKey(hexHash string) string          { return "api_key:hash:" + hexHash }
func SystemSettingKey(name string) string          { return "system_settings:" + name }
