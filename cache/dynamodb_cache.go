package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ammiranda/orgtree/models"
)

const (
	defaultTableName = "OrgTreeCache"
	forestKey        = "forest"

	// casAttempts bounds the compare-and-swap loops on the cache item
	casAttempts = 5

	conditionItemAbsent     = "attribute_not_exists(#key)"
	conditionSameGeneration = "#gen = :gen"
)

// DynamoDBAPI is the subset of the DynamoDB client the cache uses
type DynamoDBAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBCache implements CacheProvider with one DynamoDB item per view.
// Lambda instances share it, unlike MemoryCache.
type DynamoDBCache struct {
	client DynamoDBAPI
	table  string
	ttl    time.Duration
	now    func() time.Time
}

// cacheItem is the stored item. ExpiresAt doubles as the table's TTL
// attribute; reads check it too because DynamoDB expiry is lazy. After an
// invalidation the item keeps only its generation and carries no TTL, so
// the counter is never reaped.
type cacheItem struct {
	Key        string         `dynamodbav:"key"`
	Generation uint64         `dynamodbav:"gen"`
	Data       []*models.Node `dynamodbav:"data,omitempty"`
	Timestamp  int64          `dynamodbav:"timestamp,omitempty"`
	ExpiresAt  int64          `dynamodbav:"ttl,omitempty"`
}

// NewDynamoDBCache creates a cache on the default AWS configuration. The
// table name comes from CACHE_TABLE.
func NewDynamoDBCache(ctx context.Context) (*DynamoDBCache, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	c := NewDynamoDBCacheWithClient(dynamodb.NewFromConfig(cfg))
	if table := os.Getenv("CACHE_TABLE"); table != "" {
		c.table = table
	}
	return c, nil
}

// NewDynamoDBCacheWithClient creates a cache on a custom client
func NewDynamoDBCacheWithClient(client DynamoDBAPI) *DynamoDBCache {
	return &DynamoDBCache{
		client: client,
		table:  defaultTableName,
		ttl:    defaultTTL,
		now:    time.Now,
	}
}

// Initialize creates the table if it doesn't exist
func (c *DynamoDBCache) Initialize(ctx context.Context) error {
	_, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.table),
	})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("error describing cache table: %w", err)
	}

	_, err = c.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(c.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("key"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("key"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("error creating cache table: %w", err)
	}
	return nil
}

func (c *DynamoDBCache) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: forestKey},
	}
}

func (c *DynamoDBCache) load(ctx context.Context) (*cacheItem, error) {
	result, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		Key:            c.key(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, nil
	}
	var item cacheItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// put writes item only while the stored generation is still gen. It
// reports false when another writer got there first.
func (c *DynamoDBCache) put(ctx context.Context, item cacheItem, condition string, gen uint64) (bool, error) {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return false, fmt.Errorf("error encoding cache item: %w", err)
	}
	input := &dynamodb.PutItemInput{
		TableName:                aws.String(c.table),
		Item:                     av,
		ConditionExpression:      aws.String(condition),
		ExpressionAttributeNames: map[string]string{"#key": "key"},
	}
	if condition == conditionSameGeneration {
		input.ExpressionAttributeNames = map[string]string{"#gen": "gen"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":gen": &types.AttributeValueMemberN{Value: strconv.FormatUint(gen, 10)},
		}
	}

	_, err = c.client.PutItem(ctx, input)
	var failed *types.ConditionalCheckFailedException
	if errors.As(err, &failed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Generation returns the stored counter. A missing item, either never
// written or reaped by the table TTL, is seeded from the clock so a reader
// holding a pre-reap generation can never match it.
func (c *DynamoDBCache) Generation(ctx context.Context) (uint64, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		item, err := c.load(ctx)
		if err != nil {
			return 0, fmt.Errorf("error reading cache generation: %w", err)
		}
		if item != nil {
			return item.Generation, nil
		}
		seed := uint64(c.now().UnixNano())
		ok, err := c.put(ctx, cacheItem{Key: forestKey, Generation: seed}, conditionItemAbsent, 0)
		if err != nil {
			return 0, fmt.Errorf("error seeding cache generation: %w", err)
		}
		if ok {
			return seed, nil
		}
	}
	return 0, fmt.Errorf("error seeding cache generation: item kept changing after %d attempts", casAttempts)
}

// GetTree retrieves the forest if present and not expired
func (c *DynamoDBCache) GetTree(ctx context.Context) ([]*models.Node, bool) {
	item, err := c.load(ctx)
	if err != nil || item == nil || item.Data == nil {
		return nil, false
	}
	if c.now().Unix() > item.ExpiresAt {
		return nil, false
	}
	return item.Data, true
}

// SetTree stores the forest if gen is still the stored generation
func (c *DynamoDBCache) SetTree(ctx context.Context, gen uint64, tree []*models.Node) (bool, error) {
	now := c.now()
	ok, err := c.put(ctx, cacheItem{
		Key:        forestKey,
		Generation: gen,
		Data:       tree,
		Timestamp:  now.Unix(),
		ExpiresAt:  now.Add(c.ttl).Unix(),
	}, conditionSameGeneration, gen)
	if err != nil {
		return false, fmt.Errorf("error storing tree: %w", err)
	}
	return ok, nil
}

// InvalidateCache replaces the forest with a bare item one generation
// ahead, retrying when another process moves the generation first
func (c *DynamoDBCache) InvalidateCache(ctx context.Context) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		gen, err := c.Generation(ctx)
		if err != nil {
			return err
		}
		ok, err := c.put(ctx, cacheItem{Key: forestKey, Generation: gen + 1}, conditionSameGeneration, gen)
		if err != nil {
			return fmt.Errorf("error invalidating cache: %w", err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("error invalidating cache: generation kept changing after %d attempts", casAttempts)
}

// SetCacheTTL sets the cache time-to-live duration
func (c *DynamoDBCache) SetCacheTTL(ttl time.Duration) {
	c.ttl = ttl
}
