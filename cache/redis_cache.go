package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ammiranda/orgtree/models"
)

const (
	redisTreeKey       = "orgtree:forest"
	redisGenerationKey = "orgtree:generation"
)

// RedisCache implements CacheProvider using Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis cache provider from REDIS_HOST, REDIS_PORT
// and REDIS_PASSWORD
func NewRedisCache() *RedisCache {
	redisHost := os.Getenv("REDIS_HOST")
	if redisHost == "" {
		redisHost = "localhost"
	}
	redisPort := os.Getenv("REDIS_PORT")
	if redisPort == "" {
		redisPort = "6379"
	}

	return NewRedisCacheWithClient(redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", redisHost, redisPort),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}))
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, ttl: defaultTTL}
}

// Initialize checks the connection
func (c *RedisCache) Initialize(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetTree retrieves the forest from Redis if available
func (c *RedisCache) GetTree(ctx context.Context) ([]*models.Node, bool) {
	data, err := c.client.Get(ctx, redisTreeKey).Bytes()
	if err != nil {
		return nil, false
	}

	var nodes []*models.Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, false
	}
	return nodes, true
}

// Generation reads the shared counter; a missing key is generation zero
func (c *RedisCache) Generation(ctx context.Context) (uint64, error) {
	gen, err := c.client.Get(ctx, redisGenerationKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetTree stores the forest with the configured TTL. The generation key is
// watched, so an invalidation from any process aborts the write.
func (c *RedisCache) SetTree(ctx context.Context, gen uint64, tree []*models.Node) (bool, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return false, fmt.Errorf("error encoding tree: %w", err)
	}

	stored := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, redisGenerationKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisTreeKey, data, c.ttl)
			return nil
		})
		stored = err == nil
		return err
	}, redisGenerationKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return stored, err
}

// InvalidateCache advances the generation and removes the forest in one
// transaction
func (c *RedisCache) InvalidateCache(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, redisGenerationKey)
		pipe.Del(ctx, redisTreeKey)
		return nil
	})
	return err
}

// SetCacheTTL sets the cache time-to-live duration
func (c *RedisCache) SetCacheTTL(ttl time.Duration) {
	c.ttl = ttl
}
