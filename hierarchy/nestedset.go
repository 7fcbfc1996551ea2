package hierarchy

import (
	"context"
	"fmt"
	"sort"

	"github.com/ammiranda/orgtree/repository"
)

// NestedSet numbers the whole forest with one contiguous sequence of
// boundaries 1..2N. A node's subtree is every node whose interval lies
// inside its own, so reads are single range scans and writes renumber
// the rows to the right of the change with a few bulk statements.
type NestedSet struct {
	base
	guard Guard
}

func NewNestedSet(store repository.Store, opts Options) *NestedSet {
	return &NestedSet{
		base:  base{store: store, opts: opts},
		guard: intervalGuard(),
	}
}

func (s *NestedSet) Kind() Kind { return KindNestedSet }

// Create appends a root after every existing tree, or opens a gap of two at
// the parent's right boundary and inserts the node as its last child.
func (s *NestedSet) Create(ctx context.Context, name string, parentID *int64) (*repository.Node, error) {
	name, err := s.name(name)
	if err != nil {
		return nil, err
	}
	parent, err := s.loadOptionalParent(ctx, parentID)
	if err != nil {
		return nil, err
	}

	node := &repository.Node{Name: name}
	if parent == nil {
		maxRight, err := s.store.MaxRight(ctx)
		if err != nil {
			return nil, fmt.Errorf("error reading max right: %w", err)
		}
		node.Left, node.Right = maxRight+1, maxRight+2
	} else {
		if err := checkInterval(parent); err != nil {
			return nil, err
		}
		if err := s.openGap(ctx, parent.Right, 2); err != nil {
			return nil, err
		}
		node.ParentID = int64Ptr(parent.ID)
		node.Left, node.Right = parent.Right, parent.Right+1
		node.Depth = parent.Depth + 1
		node.RootID = int64Ptr(rootOf(parent))
	}

	id, err := s.store.ReserveID(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reserving node id: %w", err)
	}
	node.ID = id
	if node.RootID == nil {
		node.RootID = int64Ptr(id)
	}
	if err := s.store.Insert(ctx, node); err != nil {
		return nil, fmt.Errorf("error creating node: %w", err)
	}
	return node, nil
}

// Move relocates a subtree in a bounded number of bulk statements:
//
//  1. park the subtree on non-positive numbers so later range
//     predicates cannot confuse it with other rows
//  2. close the gap it left behind
//  3. open a gap of the same width at the destination
//  4. shift the parked rows into the gap, adjusting depth
//  5. stamp the new root id across the subtree
//
// The node ends up as the last child of the new parent, or as the last
// root when moved to the top level.
func (s *NestedSet) Move(ctx context.Context, id int64, newParentID *int64) (*repository.Node, error) {
	node, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkInterval(node); err != nil {
		return nil, err
	}
	parent, err := s.loadOptionalParent(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(ctx, node, parent); err != nil {
		return nil, err
	}
	if parent != nil {
		if err := checkInterval(parent); err != nil {
			return nil, err
		}
	}

	width := node.Right - node.Left + 1
	levelShift := -node.Depth
	if parent != nil {
		levelShift = parent.Depth + 1 - node.Depth
	}

	parked := repository.Range{Column: repository.ColumnLeft, From: node.Left - node.Right, To: -1}
	if err := s.shift(ctx, "park", repository.Adjustment{
		Where:      repository.Range{Column: repository.ColumnLeft, From: node.Left, To: node.Right},
		LeftDelta:  -node.Right,
		RightDelta: -node.Right,
	}); err != nil {
		return nil, err
	}
	if err := s.closeGap(ctx, node.Right, width); err != nil {
		return nil, err
	}

	var target, rootID int64
	if parent != nil {
		// the parent may sit right of the old position; read its shifted bounds
		if parent, err = s.loadParent(ctx, parent.ID); err != nil {
			return nil, err
		}
		target = parent.Right
		if err := s.openGap(ctx, target, width); err != nil {
			return nil, err
		}
		rootID = rootOf(parent)
	} else {
		maxRight, err := s.store.MaxRight(ctx)
		if err != nil {
			return nil, fmt.Errorf("error reading max right: %w", err)
		}
		target = maxRight + 1
		rootID = node.ID
	}

	delta := target - parked.From
	if err := s.shift(ctx, "unpark", repository.Adjustment{
		Where:      parked,
		LeftDelta:  delta,
		RightDelta: delta,
		DepthDelta: levelShift,
	}); err != nil {
		return nil, err
	}
	if _, err := s.store.SetRoot(ctx, rootID, repository.Range{
		Column: repository.ColumnLeft, From: target, To: target + width - 1,
	}); err != nil {
		return nil, fmt.Errorf("error updating root of subtree %d: %w", id, err)
	}

	moved, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	moved.ParentID = nil
	if parent != nil {
		moved.ParentID = int64Ptr(parent.ID)
	}
	if err := s.store.Update(ctx, moved); err != nil {
		return nil, fmt.Errorf("error moving node %d: %w", id, err)
	}
	return moved, nil
}

// Delete removes [L, R] in one statement and closes the gap. Boundaries are
// checked first; a delete that removes an unexpected number of rows is
// reported as corruption and the unit of work rolls back.
func (s *NestedSet) Delete(ctx context.Context, id int64) error {
	node, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if node.ParentID != nil {
		if *node.ParentID == node.ID {
			return &IntegrityError{Kind: ErrSelfReference, NodeID: node.ID}
		}
		parent, err := s.loadParent(ctx, *node.ParentID)
		if err != nil {
			return err
		}
		if !(parent.Left < node.Left && node.Right < parent.Right) {
			return integrityError(ErrCorruptedInterval, node.ID,
				"[%d,%d] is not inside parent %d [%d,%d]", node.Left, node.Right, parent.ID, parent.Left, parent.Right)
		}
	}
	if err := checkInterval(node); err != nil {
		return err
	}

	width := node.Right - node.Left + 1
	deleted, err := s.store.DeleteRange(ctx, node.Left, node.Right)
	if err != nil {
		return fmt.Errorf("error deleting subtree of %d: %w", id, err)
	}
	if deleted != width/2 {
		return integrityError(ErrCorruptedInterval, node.ID,
			"interval [%d,%d] held %d rows, expected %d", node.Left, node.Right, deleted, width/2)
	}
	return s.closeGap(ctx, node.Right, width)
}

func (s *NestedSet) Ancestors(ctx context.Context, id int64) ([]*repository.Node, error) {
	node, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkInterval(node); err != nil {
		return nil, err
	}
	return s.store.FindEnclosing(ctx, node.Left, node.Right)
}

func (s *NestedSet) Descendants(ctx context.Context, id int64) ([]*repository.Node, error) {
	node, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkInterval(node); err != nil {
		return nil, err
	}
	return s.store.FindWithin(ctx, node.Left, node.Right)
}

func (s *NestedSet) Contains(ctx context.Context, ancestorID, nodeID int64) (bool, error) {
	ancestor, err := s.load(ctx, ancestorID)
	if err != nil {
		return false, err
	}
	node, err := s.load(ctx, nodeID)
	if err != nil {
		return false, err
	}
	return ancestor.Left <= node.Left && node.Right <= ancestor.Right, nil
}

// Verify checks that the boundaries form the sequence 1..2N, that intervals
// nest without overlap, and that parent_id, depth and root_id agree with
// the nesting.
func (s *NestedSet) Verify(ctx context.Context) error {
	nodes, err := s.store.GetAllNodes(ctx)
	if err != nil {
		return err
	}
	bounds := make([]int64, 0, 2*len(nodes))
	for _, n := range nodes {
		if err := checkInterval(n); err != nil {
			return err
		}
		bounds = append(bounds, n.Left, n.Right)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })
	for i, b := range bounds {
		if b != int64(i+1) {
			return integrityError(ErrCorruptedInterval, 0, "boundaries are not contiguous at %d", i+1)
		}
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Left < nodes[j].Left })
	var stack []*repository.Node
	for _, n := range nodes {
		for len(stack) > 0 && stack[len(stack)-1].Right < n.Left {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			if n.ParentID != nil || n.Depth != 0 || rootOf(n) != n.ID {
				return integrityError(ErrCorruptedInterval, n.ID, "top-level interval is not a root")
			}
		} else {
			top := stack[len(stack)-1]
			if n.Right > top.Right {
				return integrityError(ErrCorruptedInterval, n.ID, "interval overlaps node %d", top.ID)
			}
			if n.ParentID == nil || *n.ParentID != top.ID {
				return integrityError(ErrCorruptedInterval, n.ID, "enclosing node %d is not its parent", top.ID)
			}
			if n.Depth != int64(len(stack)) || rootOf(n) != stack[0].ID {
				return integrityError(ErrCorruptedInterval, n.ID, "depth or root does not match its position")
			}
		}
		stack = append(stack, n)
	}
	return nil
}

// openGap makes room for width boundaries starting at pos.
func (s *NestedSet) openGap(ctx context.Context, pos, width int64) error {
	if err := s.shift(ctx, "open_left", repository.Adjustment{
		Where:     repository.Range{Column: repository.ColumnLeft, From: pos, To: repository.Unbounded},
		LeftDelta: width,
	}); err != nil {
		return err
	}
	return s.shift(ctx, "open_right", repository.Adjustment{
		Where:      repository.Range{Column: repository.ColumnRight, From: pos, To: repository.Unbounded},
		RightDelta: width,
	})
}

// closeGap pulls every boundary after right back by width.
func (s *NestedSet) closeGap(ctx context.Context, right, width int64) error {
	if err := s.shift(ctx, "close_left", repository.Adjustment{
		Where:     repository.Range{Column: repository.ColumnLeft, From: right + 1, To: repository.Unbounded},
		LeftDelta: -width,
	}); err != nil {
		return err
	}
	return s.shift(ctx, "close_right", repository.Adjustment{
		Where:      repository.Range{Column: repository.ColumnRight, From: right + 1, To: repository.Unbounded},
		RightDelta: -width,
	})
}

func (s *NestedSet) shift(ctx context.Context, step string, adj repository.Adjustment) error {
	rows, err := s.store.Shift(ctx, adj)
	if err != nil {
		return fmt.Errorf("error renumbering (%s): %w", step, err)
	}
	s.shifted(step, rows)
	return nil
}

// checkInterval rejects boundaries no valid nested set can hold.
func checkInterval(n *repository.Node) error {
	if n.Left <= 0 || n.Left >= n.Right || (n.Right-n.Left)%2 == 0 {
		return integrityError(ErrCorruptedInterval, n.ID, "invalid interval [%d,%d]", n.Left, n.Right)
	}
	return nil
}

func rootOf(n *repository.Node) int64 {
	if n.RootID != nil {
		return *n.RootID
	}
	return n.ID
}
