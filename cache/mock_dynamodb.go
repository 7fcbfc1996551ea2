package cache

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MockDynamoDBClient implements DynamoDBAPI in memory for tests
type MockDynamoDBClient struct {
	mu     sync.RWMutex
	tables map[string]map[string]map[string]types.AttributeValue
	Err    error // returned by every call when set
}

// NewMockDynamoDBClient creates a new mock DynamoDB client
func NewMockDynamoDBClient() *MockDynamoDBClient {
	return &MockDynamoDBClient{
		tables: make(map[string]map[string]map[string]types.AttributeValue),
	}
}

func hashKey(key map[string]types.AttributeValue) string {
	if s, ok := key["key"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// CreateTable mocks the CreateTable operation
func (m *MockDynamoDBClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if _, ok := m.tables[*params.TableName]; !ok {
		m.tables[*params.TableName] = make(map[string]map[string]types.AttributeValue)
	}
	return &dynamodb.CreateTableOutput{}, nil
}

// DescribeTable reports ResourceNotFoundException until the table is created
func (m *MockDynamoDBClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if _, ok := m.tables[*params.TableName]; !ok {
		msg := "table not found"
		return nil, &types.ResourceNotFoundException{Message: &msg}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

// HasTable reports whether CreateTable ran for name
func (m *MockDynamoDBClient) HasTable(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[name]
	return ok
}

// GetItem mocks the GetItem operation
func (m *MockDynamoDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	item, ok := m.tables[*params.TableName][hashKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

// PutItem mocks the PutItem operation
func (m *MockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	table, ok := m.tables[*params.TableName]
	if !ok {
		table = make(map[string]map[string]types.AttributeValue)
		m.tables[*params.TableName] = table
	}
	if !conditionHolds(table[hashKey(params.Item)], params) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("the conditional request failed")}
	}
	table[hashKey(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

// DeleteItem mocks the DeleteItem operation
func (m *MockDynamoDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	delete(m.tables[*params.TableName], hashKey(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

// conditionHolds evaluates the condition expressions DynamoDBCache writes
func conditionHolds(existing map[string]types.AttributeValue, params *dynamodb.PutItemInput) bool {
	switch aws.ToString(params.ConditionExpression) {
	case "":
		return true
	case conditionItemAbsent:
		return existing == nil
	case conditionSameGeneration:
		want, _ := params.ExpressionAttributeValues[":gen"].(*types.AttributeValueMemberN)
		have, _ := existing["gen"].(*types.AttributeValueMemberN)
		return want != nil && have != nil && want.Value == have.Value
	}
	return false
}
