package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/ammiranda/orgtree/repository"
)

// AdjacencyList stores only parent_id. Writes are O(1) and structural reads
// walk the tree one level at a time.
type AdjacencyList struct {
	base
	guard Guard
}

func NewAdjacencyList(store repository.Store, opts Options) *AdjacencyList {
	return &AdjacencyList{
		base:  base{store: store, opts: opts},
		guard: parentWalkGuard(store),
	}
}

func (a *AdjacencyList) Kind() Kind { return KindAdjacency }

func (a *AdjacencyList) Create(ctx context.Context, name string, parentID *int64) (*repository.Node, error) {
	name, err := a.name(name)
	if err != nil {
		return nil, err
	}
	parent, err := a.loadOptionalParent(ctx, parentID)
	if err != nil {
		return nil, err
	}

	id, err := a.store.ReserveID(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reserving node id: %w", err)
	}
	node := &repository.Node{ID: id, Name: name}
	if parent != nil {
		node.ParentID = int64Ptr(parent.ID)
	}
	if err := a.store.Insert(ctx, node); err != nil {
		return nil, fmt.Errorf("error creating node: %w", err)
	}
	return node, nil
}

func (a *AdjacencyList) Move(ctx context.Context, id int64, newParentID *int64) (*repository.Node, error) {
	node, err := a.load(ctx, id)
	if err != nil {
		return nil, err
	}
	parent, err := a.loadOptionalParent(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	if err := a.guard.Check(ctx, node, parent); err != nil {
		return nil, err
	}

	node.ParentID = nil
	if parent != nil {
		node.ParentID = int64Ptr(parent.ID)
	}
	if err := a.store.Update(ctx, node); err != nil {
		return nil, fmt.Errorf("error moving node %d: %w", id, err)
	}
	return node, nil
}

// Delete removes the subtree bottom-up so no row is ever left pointing at a
// deleted parent.
func (a *AdjacencyList) Delete(ctx context.Context, id int64) error {
	node, err := a.load(ctx, id)
	if err != nil {
		return err
	}
	below, err := walkDown(ctx, a.store, node)
	if err != nil {
		return err
	}
	for i := len(below) - 1; i >= 0; i-- {
		if err := a.store.Delete(ctx, below[i].ID); err != nil {
			return fmt.Errorf("error deleting node %d: %w", below[i].ID, err)
		}
	}
	if err := a.store.Delete(ctx, node.ID); err != nil {
		return fmt.Errorf("error deleting node %d: %w", node.ID, err)
	}
	return nil
}

func (a *AdjacencyList) Ancestors(ctx context.Context, id int64) ([]*repository.Node, error) {
	node, err := a.load(ctx, id)
	if err != nil {
		return nil, err
	}
	var chain []*repository.Node
	err = walkUp(ctx, a.store, node, func(ancestor *repository.Node) bool {
		chain = append(chain, ancestor)
		return true
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (a *AdjacencyList) Descendants(ctx context.Context, id int64) ([]*repository.Node, error) {
	node, err := a.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return walkDown(ctx, a.store, node)
}

func (a *AdjacencyList) Contains(ctx context.Context, ancestorID, nodeID int64) (bool, error) {
	ancestor, err := a.load(ctx, ancestorID)
	if err != nil {
		return false, err
	}
	node, err := a.load(ctx, nodeID)
	if err != nil {
		return false, err
	}
	if ancestor.ID == node.ID {
		return true, nil
	}
	found := false
	err = walkUp(ctx, a.store, node, func(n *repository.Node) bool {
		found = n.ID == ancestor.ID
		return !found
	})
	return found, err
}

// Verify checks that every parent exists and that no parent chain loops.
func (a *AdjacencyList) Verify(ctx context.Context) error {
	nodes, err := a.store.GetAllNodes(ctx)
	if err != nil {
		return err
	}
	return verifyParents(nodes)
}

// walkUp calls visit for each ancestor of start, nearest first, until visit
// returns false or a root is reached. A chain that revisits a node is
// reported as a circular reference.
func walkUp(ctx context.Context, store repository.Store, start *repository.Node, visit func(*repository.Node) bool) error {
	seen := map[int64]bool{start.ID: true}
	cur := start
	for cur.ParentID != nil {
		pid := *cur.ParentID
		if seen[pid] {
			return integrityError(ErrCircularReference, start.ID, "parent chain revisits node %d", pid)
		}
		seen[pid] = true

		parent, err := store.GetNode(ctx, pid)
		if err != nil {
			if errors.Is(err, repository.ErrNodeNotFound) {
				return notFound(ErrParentEntityNotFound, pid)
			}
			return err
		}
		if !visit(parent) {
			return nil
		}
		cur = parent
	}
	return nil
}

// walkDown returns every node below start in pre-order using an explicit
// stack, so depth is bounded by memory rather than the call stack.
func walkDown(ctx context.Context, store repository.Store, start *repository.Node) ([]*repository.Node, error) {
	seen := map[int64]bool{start.ID: true}
	var out []*repository.Node
	stack := []*repository.Node{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur != start {
			out = append(out, cur)
		}

		children, err := store.GetChildren(ctx, cur.ID)
		if err != nil {
			return nil, fmt.Errorf("error loading children of %d: %w", cur.ID, err)
		}
		// push in reverse so the lowest id is visited first
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i]
			if seen[child.ID] {
				return nil, integrityError(ErrCircularReference, start.ID, "node %d reached twice", child.ID)
			}
			seen[child.ID] = true
			stack = append(stack, child)
		}
	}
	return out, nil
}

// verifyParents checks parent_id references across a full table scan.
func verifyParents(nodes []*repository.Node) error {
	byID := make(map[int64]*repository.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, n := range nodes {
		if n.ParentID == nil {
			continue
		}
		if *n.ParentID == n.ID {
			return &IntegrityError{Kind: ErrSelfReference, NodeID: n.ID}
		}
		if _, ok := byID[*n.ParentID]; !ok {
			return notFound(ErrParentEntityNotFound, *n.ParentID)
		}
	}
	// a chain longer than the table must loop
	for _, n := range nodes {
		steps := 0
		for cur := n; cur.ParentID != nil; cur = byID[*cur.ParentID] {
			steps++
			if steps > len(nodes) {
				return integrityError(ErrCircularReference, n.ID, "parent chain does not reach a root")
			}
		}
	}
	return nil
}
