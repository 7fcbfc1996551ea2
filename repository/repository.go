package repository

import (
	"context"
	"errors"
	"math"
)

// Node represents a row of the nodes table. Every representation shares the
// same row; a strategy only reads and writes the columns it maintains.
type Node struct {
	ID       int64  // Unique identifier for the node
	Name     string // Display name of the node
	ParentID *int64 // Optional reference to the parent node's ID
	Path     string // Materialized path, e.g. /1/4/9/
	Left     int64  // Nested set left boundary
	Right    int64  // Nested set right boundary
	Depth    int64  // Distance from the root, root = 0
	RootID   *int64 // Top-most ancestor (self for a root)
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	if n.RootID != nil {
		r := *n.RootID
		c.RootID = &r
	}
	return &c
}

// Column names a positional column that range predicates can filter on.
type Column string

const (
	ColumnLeft  Column = "lft"
	ColumnRight Column = "rgt"
)

// Unbounded is used as Range.To when a range has no upper limit.
const Unbounded int64 = math.MaxInt64

// Range selects rows whose Column value lies in [From, To].
type Range struct {
	Column Column
	From   int64
	To     int64
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v int64) bool {
	return v >= r.From && v <= r.To
}

// Adjustment adds constant deltas to the positional columns of every row
// matched by Where. It is the bulk primitive behind nested set gap handling.
type Adjustment struct {
	Where      Range
	LeftDelta  int64
	RightDelta int64
	DepthDelta int64
}

// Store is the entity table as seen from inside one unit of work.
type Store interface {
	// ReserveID allocates a fresh node id without inserting a row.
	ReserveID(ctx context.Context) (int64, error)

	// Insert stores a new row. node.ID must already be reserved.
	Insert(ctx context.Context, node *Node) error

	// Update writes every column of an existing row.
	// Returns ErrNodeNotFound if the row does not exist.
	Update(ctx context.Context, node *Node) error

	// Delete removes a single row.
	// Returns ErrNodeNotFound if the row does not exist.
	Delete(ctx context.Context, id int64) error

	// DeleteMany removes every listed row in one statement and returns the
	// number of rows removed.
	DeleteMany(ctx context.Context, ids []int64) (int64, error)

	// GetNode retrieves a node by its ID.
	// Returns ErrNodeNotFound if no node exists with the given ID.
	GetNode(ctx context.Context, id int64) (*Node, error)

	// GetNodes retrieves the listed nodes, ordered by id. Missing ids are skipped.
	GetNodes(ctx context.Context, ids []int64) ([]*Node, error)

	// GetChildren returns the direct children of a node, ordered by id.
	GetChildren(ctx context.Context, parentID int64) ([]*Node, error)

	// GetAllNodes retrieves all nodes, ordered by id.
	GetAllNodes(ctx context.Context) ([]*Node, error)

	// FindByPathPrefix returns every node whose path starts with prefix,
	// ordered by path.
	FindByPathPrefix(ctx context.Context, prefix string) ([]*Node, error)

	// FindEnclosing returns nodes whose interval strictly contains
	// [left, right], ordered by lft.
	FindEnclosing(ctx context.Context, left, right int64) ([]*Node, error)

	// FindWithin returns nodes whose interval lies strictly inside
	// [left, right], ordered by lft.
	FindWithin(ctx context.Context, left, right int64) ([]*Node, error)

	// MaxRight returns the largest rgt value in the table, 0 when empty.
	MaxRight(ctx context.Context) (int64, error)

	// DeleteRange removes every node whose lft lies in [left, right].
	DeleteRange(ctx context.Context, left, right int64) (int64, error)

	// Shift applies an Adjustment and returns the number of rows touched.
	Shift(ctx context.Context, adj Adjustment) (int64, error)

	// SetRoot sets root_id on every row matched by where.
	SetRoot(ctx context.Context, rootID int64, where Range) (int64, error)
}

// Repository defines the interface for data access operations.
// Reads may be issued directly; mutations go through WithinTx.
type Repository interface {
	Store

	// Initialize performs any necessary setup for the repository.
	// This may include establishing database connections or running
	// migrations. Returns an error if initialization fails.
	Initialize(ctx context.Context) error

	// Cleanup releases the resources held by the repository.
	Cleanup(ctx context.Context) error

	// WithinTx runs fn inside one atomic unit of work. If fn returns an
	// error every write made through the given Store is rolled back.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// Common errors
var (
	// ErrNodeNotFound is returned when a requested node does not exist
	ErrNodeNotFound = errors.New("node not found")
	// ErrInvalidInput is returned when the input parameters are invalid
	ErrInvalidInput = errors.New("invalid input")
)
