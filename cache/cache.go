// Package cache holds the assembled forest between mutations. The backend is
// chosen once at startup and shared through package-level functions.
//
// Every backend keeps a generation counter next to the forest. Readers take
// the generation before loading the forest and store it only if no
// invalidation happened in between. For Redis and DynamoDB the counter lives
// in the shared store, so the check holds across processes.
package cache

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/ammiranda/orgtree/internal/metrics"
	"github.com/ammiranda/orgtree/models"
)

var (
	provider CacheProvider
	once     sync.Once
	mu       sync.RWMutex
)

// CacheProvider defines the interface for cache implementations.
type CacheProvider interface {
	// GetTree returns the cached forest and whether it was present.
	GetTree(ctx context.Context) ([]*models.Node, bool)

	// Generation returns the current invalidation counter.
	Generation(ctx context.Context) (uint64, error)

	// SetTree stores the forest until the TTL passes or the cache is
	// invalidated. It stores nothing and reports false when the
	// generation is no longer gen.
	SetTree(ctx context.Context, gen uint64, tree []*models.Node) (bool, error)

	// InvalidateCache drops the cached forest and advances the generation.
	// Called after every mutation.
	InvalidateCache(ctx context.Context) error

	// SetCacheTTL sets how long a stored forest stays valid.
	SetCacheTTL(ttl time.Duration)

	// Initialize prepares the backend, e.g. connects or creates tables.
	Initialize(ctx context.Context) error
}

// Initialize sets up the cache provider: Redis when REDIS_HOST is set,
// DynamoDB when CACHE_BACKEND=dynamodb, in-process memory otherwise.
func Initialize(ctx context.Context, ttl time.Duration) error {
	var err error
	once.Do(func() {
		var p CacheProvider
		switch {
		case os.Getenv("REDIS_HOST") != "":
			p = NewRedisCache()
		case os.Getenv("CACHE_BACKEND") == "dynamodb":
			p, err = NewDynamoDBCache(ctx)
			if err != nil {
				return
			}
		default:
			p = NewMemoryCache()
		}
		if ttl > 0 {
			p.SetCacheTTL(ttl)
		}
		if err = p.Initialize(ctx); err != nil {
			return
		}
		mu.Lock()
		provider = p
		mu.Unlock()
	})
	return err
}

// Generation identifies the current cache epoch. Pass it to SetTree so a
// forest read before a mutation is not stored after the invalidation.
func Generation(ctx context.Context) (uint64, error) {
	mu.RLock()
	defer mu.RUnlock()
	if provider == nil {
		return 0, nil
	}
	return provider.Generation(ctx)
}

// GetTree retrieves the forest from cache if available
func GetTree(ctx context.Context) ([]*models.Node, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if provider == nil {
		return nil, false
	}
	tree, ok := provider.GetTree(ctx)
	if ok {
		metrics.CacheHit()
	} else {
		metrics.CacheMiss()
	}
	return tree, ok
}

// SetTree stores the forest unless the cache was invalidated since gen
func SetTree(ctx context.Context, gen uint64, tree []*models.Node) error {
	mu.RLock()
	defer mu.RUnlock()
	if provider == nil {
		return nil
	}
	_, err := provider.SetTree(ctx, gen, tree)
	return err
}

// InvalidateCache removes all cached data
func InvalidateCache(ctx context.Context) error {
	mu.RLock()
	defer mu.RUnlock()
	if provider == nil {
		return nil
	}
	return provider.InvalidateCache(ctx)
}

// SetCacheTTL sets the cache time-to-live duration
func SetCacheTTL(ttl time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	if provider != nil {
		provider.SetCacheTTL(ttl)
	}
}

// SetProvider allows changing the cache provider at runtime
func SetProvider(ctx context.Context, p CacheProvider) error {
	if err := p.Initialize(ctx); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	provider = p
	return nil
}

// ResetProvider resets the cache provider for testing
func ResetProvider() {
	mu.Lock()
	defer mu.Unlock()
	provider = nil
	once = sync.Once{}
}
