package repository

import (
	"context"
	"fmt"

	"github.com/ammiranda/orgtree/config"
)

// Open builds and initializes the repository selected by cfg.Store.
// Postgres connection settings come from provider.
func Open(ctx context.Context, provider config.Provider, cfg *config.TreeConfig) (Repository, error) {
	var repo Repository
	switch cfg.Store {
	case config.StoreMemory:
		repo = NewMemoryRepository()
	case config.StoreSQLite:
		repo = NewSQLiteRepository(cfg.SQLitePath)
	case config.StorePostgres:
		pg, err := NewPostgresRepository(ctx, provider)
		if err != nil {
			return nil, err
		}
		repo = pg
	default:
		return nil, fmt.Errorf("%w: unknown store %q", ErrInvalidInput, cfg.Store)
	}

	if err := repo.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", cfg.Store, err)
	}
	return repo, nil
}
