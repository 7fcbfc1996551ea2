package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ammiranda/orgtree/models"
)

const defaultTTL = 5 * time.Minute

// MemoryCache implements CacheProvider in process memory
type MemoryCache struct {
	mu     sync.RWMutex
	tree   []*models.Node
	ttl    time.Duration
	expiry time.Time
	gen    uint64
	now    func() time.Time
}

// NewMemoryCache creates a new in-memory cache provider
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{ttl: defaultTTL, now: time.Now}
}

// Initialize performs any necessary setup for the cache provider
func (c *MemoryCache) Initialize(ctx context.Context) error {
	return nil
}

// GetTree retrieves the forest if present and not expired
func (c *MemoryCache) GetTree(ctx context.Context) ([]*models.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.tree == nil || c.now().After(c.expiry) {
		return nil, false
	}
	return c.tree, true
}

func (c *MemoryCache) Generation(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen, nil
}

// SetTree stores the forest if gen is still current
func (c *MemoryCache) SetTree(ctx context.Context, gen uint64, tree []*models.Node) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false, nil
	}
	c.tree = tree
	c.expiry = c.now().Add(c.ttl)
	return true, nil
}

// InvalidateCache removes all cached data
func (c *MemoryCache) InvalidateCache(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.tree = nil
	c.expiry = time.Time{}
	return nil
}

// SetCacheTTL sets the TTL; an entry already stored keeps its expiry
func (c *MemoryCache) SetCacheTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}
