package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk layout read by FileProvider:
//
//	version: 1
//	environment: staging
//	values:
//	  TREE_STRATEGY: nested_set
//	  DB_HOST: db.internal
type fileConfig struct {
	Version     int               `yaml:"version"`
	Environment string            `yaml:"environment"`
	Values      map[string]string `yaml:"values"`
}

// FileProvider implements Provider from a YAML file. Environment variables
// override file values so deployments can patch single keys.
type FileProvider struct {
	values      map[string]string
	environment Environment
}

// NewFileProvider reads and parses the YAML file at path
func NewFileProvider(path string) (Provider, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return parseFileProvider(b)
}

func parseFileProvider(b []byte) (*FileProvider, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if fc.Version != 1 {
		return nil, errors.New("config: unsupported version")
	}

	values := fc.Values
	if values == nil {
		values = make(map[string]string)
	}
	return &FileProvider{values: values, environment: environmentOr(fc.Environment)}, nil
}

// GetEnvironment returns the current environment
func (p *FileProvider) GetEnvironment() Environment {
	return p.environment
}

// GetString retrieves a string value, preferring the environment
func (p *FileProvider) GetString(ctx context.Context, key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	v, ok := p.values[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return v, nil
}

func (p *FileProvider) GetInt(ctx context.Context, key string) (int, error) {
	return intValue(ctx, p, key)
}

func (p *FileProvider) GetBool(ctx context.Context, key string) (bool, error) {
	return boolValue(ctx, p, key)
}

// GetSecret retrieves a secret value
func (p *FileProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.GetString(ctx, key)
}
