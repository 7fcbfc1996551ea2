package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretRefresh bounds how long a fetched secret is trusted before the
// next read goes back to Secrets Manager, so rotated passwords are seen.
const secretRefresh = 15 * time.Minute

// SecretsManagerAPI is the part of the Secrets Manager client the
// provider uses
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsProvider implements Provider over one JSON secret in AWS
// Secrets Manager
type AWSSecretsProvider struct {
	client      SecretsManagerAPI
	secretName  string
	environment Environment
	now         func() time.Time

	mu        sync.Mutex
	cache     map[string]string
	lastFetch time.Time
}

// NewAWSSecretsProvider creates a provider using the default AWS credential chain
func NewAWSSecretsProvider(ctx context.Context, secretName string) (*AWSSecretsProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSSecretsProviderWithClient(secretsmanager.NewFromConfig(cfg), secretName), nil
}

// NewAWSSecretsProviderWithClient creates a provider on an existing client
func NewAWSSecretsProviderWithClient(client SecretsManagerAPI, secretName string) *AWSSecretsProvider {
	return &AWSSecretsProvider{
		client:      client,
		secretName:  secretName,
		environment: environmentOr(""),
		now:         time.Now,
	}
}

// GetEnvironment returns the current environment
func (p *AWSSecretsProvider) GetEnvironment() Environment {
	return p.environment
}

// GetString returns key from the secret, fetching it when the cached copy
// is missing or stale
func (p *AWSSecretsProvider) GetString(ctx context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache == nil || p.now().Sub(p.lastFetch) > secretRefresh {
		secrets, err := p.fetch(ctx)
		if err != nil {
			return "", err
		}
		p.cache = secrets
		p.lastFetch = p.now()
	}

	value, ok := p.cache[key]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: secret key %s", ErrKeyNotFound, key)
	}
	return value, nil
}

func (p *AWSSecretsProvider) fetch(ctx context.Context) (map[string]string, error) {
	secret, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	if secret.SecretString == nil {
		return nil, errors.New("secret has no string value")
	}

	var secrets map[string]string
	if err := json.Unmarshal([]byte(*secret.SecretString), &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secret JSON: %w", err)
	}

	store := secrets["TREE_STORE"]
	if store == "" {
		store = os.Getenv("TREE_STORE")
	}
	if err := validateSecretSchema(secrets, store, p.environment); err != nil {
		return nil, fmt.Errorf("invalid secret schema: %w", err)
	}
	return secrets, nil
}

func (p *AWSSecretsProvider) GetInt(ctx context.Context, key string) (int, error) {
	return intValue(ctx, p, key)
}

func (p *AWSSecretsProvider) GetBool(ctx context.Context, key string) (bool, error) {
	return boolValue(ctx, p, key)
}

// GetSecret retrieves a secret value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.GetString(ctx, key)
}

// validateSecretSchema checks the secret layout. Database keys are only
// required when the postgres store is selected.
func validateSecretSchema(secrets map[string]string, store string, env Environment) error {
	if v, ok := secrets["TREE_STRATEGY"]; ok {
		switch v {
		case StrategyAdjacency, StrategyMaterializedPath, StrategyNestedSet:
		default:
			return &ValidationError{Field: "TREE_STRATEGY", Message: "unknown strategy"}
		}
	}
	if store != StorePostgres {
		return nil
	}

	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE"} {
		if _, ok := secrets[key]; !ok {
			return &ValidationError{Field: key, Message: "required secret key not found"}
		}
	}
	if _, err := strconv.Atoi(secrets["DB_PORT"]); err != nil {
		return &ValidationError{Field: "DB_PORT", Message: "port must be a valid number"}
	}
	if err := checkSSLMode("DB_SSLMODE", secrets["DB_SSLMODE"], env); err != nil {
		return err
	}
	if env == Production && strings.EqualFold(secrets["DB_HOST"], "localhost") {
		return &ValidationError{Field: "DB_HOST", Message: "localhost is not allowed in production"}
	}
	return checkPassword("DB_PASSWORD", secrets["DB_PASSWORD"], env)
}

// AWSConfigProvider reads from the secret first and falls back to the
// process environment for keys the secret does not carry, so a Lambda can
// keep non-sensitive settings in its function configuration.
type AWSConfigProvider struct {
	secrets Provider
	env     Provider
}

// NewAWSConfigProvider creates a provider for the secret named by AWS_SECRET_NAME
func NewAWSConfigProvider(ctx context.Context) (Provider, error) {
	secretName := os.Getenv("AWS_SECRET_NAME")
	if secretName == "" {
		return nil, fmt.Errorf("AWS_SECRET_NAME environment variable not set")
	}

	secrets, err := NewAWSSecretsProvider(ctx, secretName)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS secrets provider: %w", err)
	}
	return newAWSConfigProvider(secrets, NewEnvProvider("")), nil
}

func newAWSConfigProvider(secrets, env Provider) *AWSConfigProvider {
	return &AWSConfigProvider{secrets: secrets, env: env}
}

// GetEnvironment returns the current environment
func (p *AWSConfigProvider) GetEnvironment() Environment {
	return p.secrets.GetEnvironment()
}

// GetString retrieves a string configuration value
func (p *AWSConfigProvider) GetString(ctx context.Context, key string) (string, error) {
	v, err := p.secrets.GetString(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return p.env.GetString(ctx, key)
	}
	return v, err
}

func (p *AWSConfigProvider) GetInt(ctx context.Context, key string) (int, error) {
	return intValue(ctx, p, key)
}

func (p *AWSConfigProvider) GetBool(ctx context.Context, key string) (bool, error) {
	return boolValue(ctx, p, key)
}

// GetSecret never falls back to the environment
func (p *AWSConfigProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.secrets.GetSecret(ctx, key)
}
