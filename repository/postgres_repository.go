package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ammiranda/orgtree/config"
	"github.com/ammiranda/orgtree/migrations"

	"github.com/lib/pq"
)

var postgresDialect = dialect{
	name:      "postgres",
	dollar:    true,
	pathOrder: `path COLLATE "C"`,
	reserveID: func(ctx context.Context, q querier) (int64, error) {
		var id int64
		err := q.QueryRowContext(ctx, "SELECT nextval(pg_get_serial_sequence('nodes', 'id'))").Scan(&id)
		return id, err
	},
	idListArgs: func(ids []int64) (string, []any) {
		return "= ANY(?)", []any{pq.Array(ids)}
	},
}

// lockNodes serializes writers: concurrent renumbering of the same table
// would corrupt the interval permutation. Plain reads are not blocked.
const lockNodes = "LOCK TABLE nodes IN SHARE ROW EXCLUSIVE MODE"

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	*sqlStore
	db     *sql.DB
	config *config.DatabaseConfig
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfgProvider config.Provider) (*PostgresRepository, error) {
	cfg, err := config.GetDatabaseConfig(ctx, cfgProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to get database config: %w", err)
	}

	return &PostgresRepository{
		config: cfg,
	}, nil
}

// Initialize sets up the PostgreSQL database
func (r *PostgresRepository) Initialize(ctx context.Context) error {
	db, err := sql.Open("postgres", r.config.DSN())
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("error pinging database: %w", err)
	}

	if err := migrations.Up(db, migrations.Postgres); err != nil {
		db.Close()
		return fmt.Errorf("error running migrations: %w", err)
	}

	r.db = db
	r.sqlStore = &sqlStore{q: db, d: postgresDialect}
	return nil
}

// Cleanup closes the database connection
func (r *PostgresRepository) Cleanup(ctx context.Context) error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithinTx runs fn inside a transaction that holds the writer lock on nodes
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(Store) error) error {
	return withinTx(ctx, r.db, postgresDialect, lockNodes, fn)
}
