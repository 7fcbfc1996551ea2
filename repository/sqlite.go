package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ammiranda/orgtree/migrations"

	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name: "sqlite3",
	reserveID: func(ctx context.Context, q querier) (int64, error) {
		result, err := q.ExecContext(ctx, "INSERT INTO node_ids DEFAULT VALUES")
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	},
	idListArgs: inList,
}

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	*sqlStore
	db     *sql.DB
	dbPath string
}

// NewSQLiteRepository creates a new SQLite repository instance. An empty
// path selects ~/.orgtree/orgtree.db.
func NewSQLiteRepository(dbPath string) *SQLiteRepository {
	if dbPath == "" {
		dbPath = defaultSQLitePath()
	}
	return &SQLiteRepository{dbPath: dbPath}
}

func defaultSQLitePath() string {
	// Default to data directory in user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	dataDir := filepath.Join(homeDir, ".orgtree")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		// Fallback to current directory if home directory is not accessible
		dataDir = "."
	}
	return filepath.Join(dataDir, "orgtree.db")
}

// Initialize opens the database file and applies migrations
func (r *SQLiteRepository) Initialize(ctx context.Context) error {
	db, err := sql.Open("sqlite3", r.dbPath+"?_foreign_keys=on")
	if err != nil {
		return err
	}

	// A single connection serializes writers, which the nested set
	// renumbering relies on.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("error opening sqlite database: %w", err)
	}

	if err := migrations.Up(db, migrations.SQLite); err != nil {
		db.Close()
		return fmt.Errorf("error running migrations: %w", err)
	}

	r.db = db
	r.sqlStore = &sqlStore{q: db, d: sqliteDialect}
	return nil
}

// Cleanup closes the database connection
func (r *SQLiteRepository) Cleanup(ctx context.Context) error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithinTx runs fn inside a SQLite transaction
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(Store) error) error {
	return withinTx(ctx, r.db, sqliteDialect, "", fn)
}
