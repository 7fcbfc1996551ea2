package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Environment represents the application environment
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// ErrKeyNotFound is returned by every Provider when a key has no value.
// Callers treat it as "use the default"; any other error is a real failure.
var ErrKeyNotFound = errors.New("config key not set")

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Provider defines the interface for configuration management
type Provider interface {
	// GetString retrieves a string configuration value
	GetString(ctx context.Context, key string) (string, error)
	// GetInt retrieves an integer configuration value
	GetInt(ctx context.Context, key string) (int, error)
	// GetBool retrieves a boolean configuration value
	GetBool(ctx context.Context, key string) (bool, error)
	// GetSecret retrieves a secret value
	GetSecret(ctx context.Context, key string) (string, error)
	// GetEnvironment returns the current environment
	GetEnvironment() Environment
}

// EnvProvider implements Provider using environment variables
type EnvProvider struct {
	prefix      string
	environment Environment
}

// NewEnvProvider creates a new environment-based configuration provider
func NewEnvProvider(prefix string) Provider {
	return &EnvProvider{
		prefix:      prefix,
		environment: environmentOr(""),
	}
}

// environmentOr reads APP_ENV, falling back to fallback and then to
// Development.
func environmentOr(fallback string) Environment {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = fallback
	}
	if env == "" {
		env = string(Development)
	}
	return Environment(env)
}

// GetEnvironment returns the current environment
func (p *EnvProvider) GetEnvironment() Environment {
	return p.environment
}

// GetString retrieves a string configuration value from environment variables
func (p *EnvProvider) GetString(ctx context.Context, key string) (string, error) {
	value := os.Getenv(p.prefix + key)
	if value == "" {
		return "", fmt.Errorf("%w: environment variable %s%s", ErrKeyNotFound, p.prefix, key)
	}
	return value, nil
}

func (p *EnvProvider) GetInt(ctx context.Context, key string) (int, error) {
	return intValue(ctx, p, key)
}

func (p *EnvProvider) GetBool(ctx context.Context, key string) (bool, error) {
	return boolValue(ctx, p, key)
}

// GetSecret retrieves a secret value from environment variables
func (p *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.GetString(ctx, key)
}

func intValue(ctx context.Context, p Provider, key string) (int, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

func boolValue(ctx context.Context, p Provider, key string) (bool, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}
