package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const nodeColumns = "id, name, parent_id, path, lft, rgt, depth, root_id"

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect captures the handful of statements that differ between engines.
// Queries are written with ? placeholders and rebound when needed.
type dialect struct {
	name       string
	dollar     bool
	pathOrder  string
	reserveID  func(ctx context.Context, q querier) (int64, error)
	idListArgs func(ids []int64) (string, []any)
}

// orderByPath sorts paths byte-wise so "/" stays below the digits and a
// path scan comes back in pre-order whatever the database locale is.
func (d dialect) orderByPath() string {
	if d.pathOrder == "" {
		return "path"
	}
	return d.pathOrder
}

func (d dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inList expands ids into "?, ?, ?" for engines without array parameters
func inList(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		marks[i] = "?"
	}
	return "IN (" + strings.Join(marks, ", ") + ")", args
}

// sqlStore implements Store over a database handle or an open transaction
type sqlStore struct {
	q querier
	d dialect
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := s.q.ExecContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) ([]*Node, error) {
	rows, err := s.q.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := make([]*Node, 0)
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return nodes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*Node, error) {
	var node Node
	var parentID, rootID sql.NullInt64
	if err := row.Scan(&node.ID, &node.Name, &parentID, &node.Path,
		&node.Left, &node.Right, &node.Depth, &rootID); err != nil {
		return nil, err
	}
	if parentID.Valid {
		node.ParentID = &parentID.Int64
	}
	if rootID.Valid {
		node.RootID = &rootID.Int64
	}
	return &node, nil
}

func (s *sqlStore) ReserveID(ctx context.Context) (int64, error) {
	id, err := s.d.reserveID(ctx, s.q)
	if err != nil {
		return 0, fmt.Errorf("error reserving node id: %w", err)
	}
	return id, nil
}

func (s *sqlStore) Insert(ctx context.Context, node *Node) error {
	if node.ID <= 0 {
		return ErrInvalidInput
	}
	_, err := s.exec(ctx,
		"INSERT INTO nodes ("+nodeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		node.ID, node.Name, node.ParentID, node.Path, node.Left, node.Right, node.Depth, node.RootID,
	)
	if err != nil {
		return fmt.Errorf("error creating node: %w", err)
	}
	return nil
}

func (s *sqlStore) Update(ctx context.Context, node *Node) error {
	rows, err := s.exec(ctx,
		"UPDATE nodes SET name = ?, parent_id = ?, path = ?, lft = ?, rgt = ?, depth = ?, root_id = ? WHERE id = ?",
		node.Name, node.ParentID, node.Path, node.Left, node.Right, node.Depth, node.RootID, node.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating node: %w", err)
	}
	if rows == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (s *sqlStore) Delete(ctx context.Context, id int64) error {
	rows, err := s.exec(ctx, "DELETE FROM nodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("error deleting node: %w", err)
	}
	if rows == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (s *sqlStore) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	clause, args := s.d.idListArgs(ids)
	rows, err := s.exec(ctx, "DELETE FROM nodes WHERE id "+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("error deleting nodes: %w", err)
	}
	return rows, nil
}

func (s *sqlStore) GetNode(ctx context.Context, id int64) (*Node, error) {
	row := s.q.QueryRowContext(ctx, s.d.rebind("SELECT "+nodeColumns+" FROM nodes WHERE id = ?"), id)
	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("error getting node: %w", err)
	}
	return node, nil
}

func (s *sqlStore) GetNodes(ctx context.Context, ids []int64) ([]*Node, error) {
	if len(ids) == 0 {
		return []*Node{}, nil
	}
	clause, args := s.d.idListArgs(ids)
	return s.query(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE id "+clause+" ORDER BY id", args...)
}

func (s *sqlStore) GetChildren(ctx context.Context, parentID int64) ([]*Node, error) {
	return s.query(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE parent_id = ? ORDER BY id", parentID)
}

func (s *sqlStore) GetAllNodes(ctx context.Context) ([]*Node, error) {
	nodes, err := s.query(ctx, "SELECT "+nodeColumns+" FROM nodes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("error getting all nodes: %w", err)
	}
	return nodes, nil
}

func (s *sqlStore) FindByPathPrefix(ctx context.Context, prefix string) ([]*Node, error) {
	return s.query(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE path LIKE ? ESCAPE '\' ORDER BY `+s.d.orderByPath(),
		escapeLike(prefix)+"%",
	)
}

func (s *sqlStore) FindEnclosing(ctx context.Context, left, right int64) ([]*Node, error) {
	return s.query(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE lft < ? AND rgt > ? ORDER BY lft",
		left, right,
	)
}

func (s *sqlStore) FindWithin(ctx context.Context, left, right int64) ([]*Node, error) {
	return s.query(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE lft > ? AND rgt < ? ORDER BY lft",
		left, right,
	)
}

func (s *sqlStore) MaxRight(ctx context.Context) (int64, error) {
	var maxRight int64
	err := s.q.QueryRowContext(ctx, "SELECT COALESCE(MAX(rgt), 0) FROM nodes").Scan(&maxRight)
	if err != nil {
		return 0, fmt.Errorf("error reading max right: %w", err)
	}
	return maxRight, nil
}

func (s *sqlStore) DeleteRange(ctx context.Context, left, right int64) (int64, error) {
	rows, err := s.exec(ctx, "DELETE FROM nodes WHERE lft BETWEEN ? AND ?", left, right)
	if err != nil {
		return 0, fmt.Errorf("error deleting range: %w", err)
	}
	return rows, nil
}

func (s *sqlStore) Shift(ctx context.Context, adj Adjustment) (int64, error) {
	column, err := rangeColumn(adj.Where.Column)
	if err != nil {
		return 0, err
	}
	rows, err := s.exec(ctx,
		"UPDATE nodes SET lft = lft + ?, rgt = rgt + ?, depth = depth + ? WHERE "+column+" BETWEEN ? AND ?",
		adj.LeftDelta, adj.RightDelta, adj.DepthDelta, adj.Where.From, adj.Where.To,
	)
	if err != nil {
		return 0, fmt.Errorf("error shifting %s range: %w", column, err)
	}
	return rows, nil
}

func (s *sqlStore) SetRoot(ctx context.Context, rootID int64, where Range) (int64, error) {
	column, err := rangeColumn(where.Column)
	if err != nil {
		return 0, err
	}
	rows, err := s.exec(ctx,
		"UPDATE nodes SET root_id = ? WHERE "+column+" BETWEEN ? AND ?",
		rootID, where.From, where.To,
	)
	if err != nil {
		return 0, fmt.Errorf("error setting root: %w", err)
	}
	return rows, nil
}

// rangeColumn whitelists the columns that may be spliced into SQL
func rangeColumn(c Column) (string, error) {
	switch c {
	case ColumnLeft, ColumnRight:
		return string(c), nil
	default:
		return "", fmt.Errorf("%w: unknown range column %q", ErrInvalidInput, c)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// withinTx runs fn over a transaction-bound sqlStore, committing on success
func withinTx(ctx context.Context, db *sql.DB, d dialect, prepare string, fn func(Store) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if prepare != "" {
		if _, err := tx.ExecContext(ctx, prepare); err != nil {
			return fmt.Errorf("error preparing transaction: %w", err)
		}
	}

	if err := fn(&sqlStore{q: tx, d: d}); err != nil {
		return err
	}
	return tx.Commit()
}
