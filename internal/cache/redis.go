package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/muzz-matchmaking/internal/config"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
)

// ErrMiss is returned by typed getters on a cache miss.
var ErrMiss = errors.New("cache: miss")

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

func (c *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.Client.Expire(ctx, key, ttl).Err()
}

// KeyForLikeCount generates Redis key for a user's like count
func (c *RedisCache) KeyForLikeCount(userID uint64) string {
	return fmt.Sprintf("likes:count:%d", userID)
}

// KeyForScore is the hot-cache key of a canonical pair's compatibility score.
func (c *RedisCache) KeyForScore(p pair.Pair) string {
	return "compat:score:" + p.String()
}

// KeyForWindow is the counter key of a fixed rate-limit window.
func (c *RedisCache) KeyForWindow(identifier string, windowStart time.Time) string {
	return fmt.Sprintf("rl:%s:%d", identifier, windowStart.Unix())
}

// GetLikeCount reads the cached like count and refreshes its TTL.
func (c *RedisCache) GetLikeCount(ctx context.Context, userID uint64, ttl time.Duration) (uint64, error) {
	key := c.KeyForLikeCount(userID)
	val, err := c.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return 0, ErrMiss
	} else if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, ErrMiss
	}
	// refresh TTL since this user is active
	_ = c.Expire(ctx, key, ttl)
	return n, nil
}

// SetLikeCount stores a like count computed from the database.
func (c *RedisCache) SetLikeCount(ctx context.Context, userID uint64, count int64, ttl time.Duration) error {
	return c.Set(ctx, c.KeyForLikeCount(userID), strconv.FormatInt(count, 10), ttl)
}

// InvalidateLikeCount drops the cached count; the next read goes to the DB.
func (c *RedisCache) InvalidateLikeCount(ctx context.Context, userID uint64) error {
	return c.Del(ctx, c.KeyForLikeCount(userID))
}

// GetJSON decodes a JSON value stored under key into dst.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dst any) error {
	raw, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	} else if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// SetJSON encodes value as JSON under key.
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw, ttl)
}

// IncrWindow atomically increments a window counter and pins its expiry in
// the same MULTI block, returning the new count.
func (c *RedisCache) IncrWindow(ctx context.Context, key string, expireAt time.Time) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, expireAt)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
