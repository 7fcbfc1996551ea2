package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Strategy names accepted by TREE_STRATEGY
const (
	StrategyAdjacency        = "adjacency"
	StrategyMaterializedPath = "materialized_path"
	StrategyNestedSet        = "nested_set"
)

// Store backends accepted by TREE_STORE
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

const (
	defaultMaxNameLength = 100
	defaultCacheTTL      = 5 * time.Minute
)

// TreeConfig holds the hierarchy service settings
type TreeConfig struct {
	Strategy      string
	Store         string
	SQLitePath    string
	MaxNameLength int
	CacheTTL      time.Duration
	LogLevel      string
	Port          string
}

// Validate checks if the tree configuration is valid
func (c *TreeConfig) Validate() error {
	switch c.Strategy {
	case StrategyAdjacency, StrategyMaterializedPath, StrategyNestedSet:
	default:
		return &ValidationError{Field: "Strategy", Message: fmt.Sprintf("unknown strategy %q", c.Strategy)}
	}

	switch c.Store {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return &ValidationError{Field: "Store", Message: fmt.Sprintf("unknown store %q", c.Store)}
	}

	if c.MaxNameLength <= 0 {
		return &ValidationError{Field: "MaxNameLength", Message: "max name length must be positive"}
	}
	if c.CacheTTL <= 0 {
		return &ValidationError{Field: "CacheTTL", Message: "cache ttl must be positive"}
	}
	return nil
}

// GetTreeConfig retrieves the tree configuration. Every key is optional;
// a provider failure other than a missing key is returned.
func GetTreeConfig(ctx context.Context, provider Provider) (*TreeConfig, error) {
	cfg := &TreeConfig{
		Strategy:      StrategyNestedSet,
		Store:         StoreMemory,
		MaxNameLength: defaultMaxNameLength,
		CacheTTL:      defaultCacheTTL,
		LogLevel:      "info",
		Port:          "8080",
	}

	textKeys := map[string]*string{
		"TREE_STRATEGY": &cfg.Strategy,
		"TREE_STORE":    &cfg.Store,
		"SQLITE_PATH":   &cfg.SQLitePath,
		"LOG_LEVEL":     &cfg.LogLevel,
		"PORT":          &cfg.Port,
	}
	for key, dst := range textKeys {
		v, err := provider.GetString(ctx, key)
		switch {
		case err == nil:
			*dst = v
		case !errors.Is(err, ErrKeyNotFound):
			return nil, fmt.Errorf("failed to get %s: %w", key, err)
		}
	}

	if n, ok, err := optionalInt(ctx, provider, "NAME_MAX_LENGTH"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxNameLength = n
	}
	if n, ok, err := optionalInt(ctx, provider, "CACHE_TTL_SECONDS"); err != nil {
		return nil, err
	} else if ok {
		cfg.CacheTTL = time.Duration(n) * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tree configuration: %w", err)
	}
	return cfg, nil
}

func optionalInt(ctx context.Context, provider Provider, key string) (int, bool, error) {
	n, err := provider.GetInt(ctx, key)
	switch {
	case err == nil:
		return n, true, nil
	case errors.Is(err, ErrKeyNotFound):
		return 0, false, nil
	case errors.Is(err, strconv.ErrSyntax), errors.Is(err, strconv.ErrRange):
		return 0, false, &ValidationError{Field: key, Message: "must be a valid number"}
	default:
		return 0, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
}

// Load picks a configuration provider from the process environment:
// AWS Secrets Manager when AWS_SECRET_NAME is set, a YAML file when
// CONFIG_FILE is set, plain environment variables otherwise.
func Load(ctx context.Context) (Provider, error) {
	if os.Getenv("AWS_SECRET_NAME") != "" {
		return NewAWSConfigProvider(ctx)
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return NewFileProvider(path)
	}
	return NewEnvProvider(""), nil
}
