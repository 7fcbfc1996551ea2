package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammiranda/orgtree/models"
)

func sampleForest() []*models.Node {
	root := models.NewNode(1, "Engineering")
	root.AddChild(models.NewNode(2, "Software"))
	return []*models.Node{root, models.NewNode(3, "Sales")}
}

// shape flattens a forest into names in pre-order
func shape(nodes []*models.Node) []string {
	var out []string
	var walk func(ns []*models.Node)
	walk = func(ns []*models.Node) {
		for _, n := range ns {
			out = append(out, n.Name)
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}

func currentGen(t *testing.T) uint64 {
	t.Helper()
	gen, err := Generation(context.Background())
	require.NoError(t, err)
	return gen
}

func store(t *testing.T, p CacheProvider) {
	t.Helper()
	ctx := context.Background()
	gen, err := p.Generation(ctx)
	require.NoError(t, err)
	stored, err := p.SetTree(ctx, gen, sampleForest())
	require.NoError(t, err)
	require.True(t, stored)
}

func useProvider(t *testing.T, p CacheProvider) {
	t.Helper()
	ResetProvider()
	t.Cleanup(ResetProvider)
	require.NoError(t, SetProvider(context.Background(), p))
}

func TestFacadeWithoutProvider(t *testing.T) {
	ResetProvider()
	ctx := context.Background()

	_, ok := GetTree(ctx)
	assert.False(t, ok)
	assert.NoError(t, SetTree(ctx, currentGen(t), sampleForest()))
	assert.NoError(t, InvalidateCache(ctx))
	SetCacheTTL(time.Minute)
}

func TestFacadeStoresAndInvalidates(t *testing.T) {
	mock := NewMockCache()
	useProvider(t, mock)
	ctx := context.Background()

	_, ok := GetTree(ctx)
	assert.False(t, ok)

	require.NoError(t, SetTree(ctx, currentGen(t), sampleForest()))
	tree, ok := GetTree(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"Engineering", "Software", "Sales"}, shape(tree))

	require.NoError(t, InvalidateCache(ctx))
	_, ok = GetTree(ctx)
	assert.False(t, ok)

	get, set, invalidate := mock.Counts()
	assert.Equal(t, 3, get)
	assert.Equal(t, 1, set)
	assert.Equal(t, 1, invalidate)
}

func TestFacadeDropsStaleForest(t *testing.T) {
	mock := NewMockCache()
	useProvider(t, mock)
	ctx := context.Background()

	// a reader starts building the forest, then a mutation lands
	gen := currentGen(t)
	require.NoError(t, InvalidateCache(ctx))

	require.NoError(t, SetTree(ctx, gen, sampleForest()))
	_, ok := GetTree(ctx)
	assert.False(t, ok, "forest read before the mutation must not be cached")
	assert.Equal(t, gen+1, currentGen(t))

	require.NoError(t, SetTree(ctx, currentGen(t), sampleForest()))
	_, ok = GetTree(ctx)
	assert.True(t, ok)
}

func TestFacadeReportsProviderErrors(t *testing.T) {
	mock := NewMockCache()
	useProvider(t, mock)
	mock.ShouldFail = true
	ctx := context.Background()

	assert.ErrorIs(t, SetTree(ctx, currentGen(t), sampleForest()), ErrMockCache)
	assert.ErrorIs(t, InvalidateCache(ctx), ErrMockCache)
	_, ok := GetTree(ctx)
	assert.False(t, ok)
}

func TestSetProviderRejectsFailingInitialize(t *testing.T) {
	ResetProvider()
	t.Cleanup(ResetProvider)
	mock := NewMockCache()
	mock.ShouldFail = true

	assert.ErrorIs(t, SetProvider(context.Background(), mock), ErrMockCache)
	_, ok := GetTree(context.Background())
	assert.False(t, ok)
}

func TestInitializeDefaultsToMemory(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	t.Setenv("CACHE_BACKEND", "")
	ResetProvider()
	t.Cleanup(ResetProvider)
	ctx := context.Background()

	require.NoError(t, Initialize(ctx, time.Minute))
	mu.RLock()
	p := provider
	mu.RUnlock()
	require.IsType(t, &MemoryCache{}, p)
	assert.Equal(t, time.Minute, p.(*MemoryCache).ttl)

	// later calls keep the first provider
	require.NoError(t, Initialize(ctx, time.Hour))
	assert.Equal(t, time.Minute, p.(*MemoryCache).ttl)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	c.SetCacheTTL(time.Minute)
	ctx := context.Background()

	store(t, c)
	_, ok := c.GetTree(ctx)
	assert.True(t, ok)

	clock = clock.Add(59 * time.Second)
	_, ok = c.GetTree(ctx)
	assert.True(t, ok)

	clock = clock.Add(2 * time.Second)
	_, ok = c.GetTree(ctx)
	assert.False(t, ok)
}

func TestMemoryCacheInvalidate(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	store(t, c)
	require.NoError(t, c.InvalidateCache(ctx))
	_, ok := c.GetTree(ctx)
	assert.False(t, ok)
}

func TestMemoryCacheRefusesStaleGeneration(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, c.InvalidateCache(ctx))

	stored, err := c.SetTree(ctx, gen, sampleForest())
	require.NoError(t, err)
	assert.False(t, stored)
	_, ok := c.GetTree(ctx)
	assert.False(t, ok)
}

func TestDynamoDBCacheCreatesTableOnce(t *testing.T) {
	client := NewMockDynamoDBClient()
	c := NewDynamoDBCacheWithClient(client)
	ctx := context.Background()

	assert.False(t, client.HasTable(defaultTableName))
	require.NoError(t, c.Initialize(ctx))
	assert.True(t, client.HasTable(defaultTableName))
	require.NoError(t, c.Initialize(ctx))
}

func TestDynamoDBCacheInitializeFailure(t *testing.T) {
	client := NewMockDynamoDBClient()
	client.Err = errors.New("access denied")
	c := NewDynamoDBCacheWithClient(client)

	err := c.Initialize(context.Background())
	assert.ErrorIs(t, err, client.Err)
	assert.False(t, client.HasTable(defaultTableName))
}

func TestDynamoDBCacheRoundTrip(t *testing.T) {
	client := NewMockDynamoDBClient()
	c := NewDynamoDBCacheWithClient(client)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	c.SetCacheTTL(time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))

	_, ok := c.GetTree(ctx)
	assert.False(t, ok)

	store(t, c)
	tree, ok := c.GetTree(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"Engineering", "Software", "Sales"}, shape(tree))
	assert.Equal(t, int64(2), tree[0].Children[0].ID)

	clock = clock.Add(2 * time.Minute)
	_, ok = c.GetTree(ctx)
	assert.False(t, ok, "expired items are ignored before DynamoDB reaps them")

	clock = clock.Add(-2 * time.Minute)
	require.NoError(t, c.InvalidateCache(ctx))
	_, ok = c.GetTree(ctx)
	assert.False(t, ok)
}

func TestDynamoDBCacheReadErrorIsMiss(t *testing.T) {
	client := NewMockDynamoDBClient()
	c := NewDynamoDBCacheWithClient(client)
	ctx := context.Background()
	store(t, c)

	client.Err = errors.New("throttled")
	_, ok := c.GetTree(ctx)
	assert.False(t, ok)
	_, err := c.Generation(ctx)
	assert.ErrorIs(t, err, client.Err)
	_, err = c.SetTree(ctx, 0, sampleForest())
	assert.ErrorIs(t, err, client.Err)
	assert.ErrorIs(t, c.InvalidateCache(ctx), client.Err)
}

func TestDynamoDBCacheGenerationIsShared(t *testing.T) {
	client := NewMockDynamoDBClient()
	reader := NewDynamoDBCacheWithClient(client)
	writer := NewDynamoDBCacheWithClient(client)
	ctx := context.Background()

	// reader loads the forest while another instance handles a mutation
	gen, err := reader.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, writer.InvalidateCache(ctx))

	stored, err := reader.SetTree(ctx, gen, sampleForest())
	require.NoError(t, err)
	assert.False(t, stored)
	_, ok := writer.GetTree(ctx)
	assert.False(t, ok)

	next, err := reader.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)
	stored, err = reader.SetTree(ctx, next, sampleForest())
	require.NoError(t, err)
	assert.True(t, stored)

	tree, ok := writer.GetTree(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"Engineering", "Software", "Sales"}, shape(tree))
}

func TestDynamoDBCacheReseedsAfterReap(t *testing.T) {
	client := NewMockDynamoDBClient()
	c := NewDynamoDBCacheWithClient(client)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)

	// the table TTL removed the item
	_, err = client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(defaultTableName),
		Key:       c.key(),
	})
	require.NoError(t, err)

	stored, err := c.SetTree(ctx, gen, sampleForest())
	require.NoError(t, err)
	assert.False(t, stored)

	clock = clock.Add(time.Second)
	fresh, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, gen, fresh)
}

func TestNewRedisCacheReadsEnvironment(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_PASSWORD", "hunter2")

	c := NewRedisCache()
	defer c.client.Close()
	assert.Equal(t, "cache.internal:6380", c.client.Options().Addr)
	assert.Equal(t, "hunter2", c.client.Options().Password)
	assert.Equal(t, defaultTTL, c.ttl)
}
