package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ammiranda/orgtree/models"
)

// ErrMockCache is returned by MockCache when it is set to fail
var ErrMockCache = errors.New("mock cache failure")

// MockCache is a cache provider that records calls, for handler tests
type MockCache struct {
	mu              sync.RWMutex
	data            []*models.Node
	gen             uint64
	ttl             time.Duration
	GetTreeCalls    int
	SetTreeCalls    int
	InvalidateCalls int
	InitCalls       int
	ShouldFail      bool
}

// NewMockCache creates a new mock cache provider
func NewMockCache() *MockCache {
	return &MockCache{ttl: defaultTTL}
}

// Initialize performs any necessary setup for the cache provider
func (c *MockCache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InitCalls++
	if c.ShouldFail {
		return ErrMockCache
	}
	return nil
}

// GetTree returns the stored forest
func (c *MockCache) GetTree(ctx context.Context) ([]*models.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GetTreeCalls++
	if c.ShouldFail || c.data == nil {
		return nil, false
	}
	return c.data, true
}

// Generation never fails, so a failing mock still reaches SetTree
func (c *MockCache) Generation(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen, nil
}

// SetTree stores the forest if gen is still current
func (c *MockCache) SetTree(ctx context.Context, gen uint64, tree []*models.Node) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetTreeCalls++
	if c.ShouldFail {
		return false, ErrMockCache
	}
	if gen != c.gen {
		return false, nil
	}
	c.data = tree
	return true, nil
}

// InvalidateCache drops the stored forest
func (c *MockCache) InvalidateCache(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InvalidateCalls++
	if c.ShouldFail {
		return ErrMockCache
	}
	c.gen++
	c.data = nil
	return nil
}

// SetCacheTTL sets the cache time-to-live duration
func (c *MockCache) SetCacheTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Counts returns the number of get, set and invalidate calls
func (c *MockCache) Counts() (get, set, invalidate int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.GetTreeCalls, c.SetTreeCalls, c.InvalidateCalls
}
