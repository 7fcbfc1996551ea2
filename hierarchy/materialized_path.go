package hierarchy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ammiranda/orgtree/repository"
)

const pathSeparator = "/"

// MaterializedPath stores each node's ancestor ids as a string such as
// "/1/4/9/". Ancestors and descendants are answered by string inspection and
// a single prefix scan; a move rewrites the path of every subtree member.
type MaterializedPath struct {
	base
	guard Guard
}

func NewMaterializedPath(store repository.Store, opts Options) *MaterializedPath {
	return &MaterializedPath{
		base:  base{store: store, opts: opts},
		guard: pathGuard(),
	}
}

func (m *MaterializedPath) Kind() Kind { return KindMaterializedPath }

func (m *MaterializedPath) Create(ctx context.Context, name string, parentID *int64) (*repository.Node, error) {
	name, err := m.name(name)
	if err != nil {
		return nil, err
	}
	parent, err := m.loadOptionalParent(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		if _, err := checkPath(parent); err != nil {
			return nil, err
		}
	}

	// the path ends with the node's own id, so the id comes first
	id, err := m.store.ReserveID(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reserving node id: %w", err)
	}
	node := &repository.Node{ID: id, Name: name}
	if parent != nil {
		node.ParentID = int64Ptr(parent.ID)
		node.Path = childPath(parent.Path, id)
		node.Depth = parent.Depth + 1
	} else {
		node.Path = childPath("", id)
	}
	if err := m.store.Insert(ctx, node); err != nil {
		return nil, fmt.Errorf("error creating node: %w", err)
	}
	return node, nil
}

func (m *MaterializedPath) Move(ctx context.Context, id int64, newParentID *int64) (*repository.Node, error) {
	node, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := checkPath(node); err != nil {
		return nil, err
	}
	parent, err := m.loadOptionalParent(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	if err := m.guard.Check(ctx, node, parent); err != nil {
		return nil, err
	}

	oldPath := node.Path
	newPath := childPath("", node.ID)
	newDepth := int64(0)
	if parent != nil {
		if _, err := checkPath(parent); err != nil {
			return nil, err
		}
		newPath = childPath(parent.Path, node.ID)
		newDepth = parent.Depth + 1
	}
	depthShift := newDepth - node.Depth

	members, err := m.store.FindByPathPrefix(ctx, oldPath)
	if err != nil {
		return nil, fmt.Errorf("error loading subtree of %d: %w", id, err)
	}
	var moved *repository.Node
	for _, member := range members {
		member.Path = newPath + strings.TrimPrefix(member.Path, oldPath)
		member.Depth += depthShift
		if member.ID == node.ID {
			member.ParentID = nil
			if parent != nil {
				member.ParentID = int64Ptr(parent.ID)
			}
			moved = member
		}
		if err := m.store.Update(ctx, member); err != nil {
			return nil, fmt.Errorf("error rewriting path of %d: %w", member.ID, err)
		}
	}
	if moved == nil {
		return nil, integrityError(ErrCorruptedPath, id, "prefix scan of %q missed the node", oldPath)
	}
	return moved, nil
}

// Delete validates every path in the subtree before removing it in one
// statement, so a corrupt subtree is reported rather than half deleted.
func (m *MaterializedPath) Delete(ctx context.Context, id int64) error {
	node, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if _, err := checkPath(node); err != nil {
		return err
	}
	members, err := m.store.FindByPathPrefix(ctx, node.Path)
	if err != nil {
		return fmt.Errorf("error loading subtree of %d: %w", id, err)
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		if _, err := checkPath(member); err != nil {
			return err
		}
		ids = append(ids, member.ID)
	}
	if _, err := m.store.DeleteMany(ctx, ids); err != nil {
		return fmt.Errorf("error deleting subtree of %d: %w", id, err)
	}
	return nil
}

func (m *MaterializedPath) Ancestors(ctx context.Context, id int64) ([]*repository.Node, error) {
	node, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	segments, err := checkPath(node)
	if err != nil {
		return nil, err
	}
	ancestorIDs := segments[:len(segments)-1]
	if len(ancestorIDs) == 0 {
		return nil, nil
	}

	found, err := m.store.GetNodes(ctx, ancestorIDs)
	if err != nil {
		return nil, fmt.Errorf("error loading ancestors of %d: %w", id, err)
	}
	byID := make(map[int64]*repository.Node, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}
	chain := make([]*repository.Node, 0, len(ancestorIDs))
	for _, aid := range ancestorIDs {
		ancestor, ok := byID[aid]
		if !ok {
			return nil, integrityError(ErrCorruptedPath, id, "ancestor %d does not exist", aid)
		}
		chain = append(chain, ancestor)
	}
	return chain, nil
}

func (m *MaterializedPath) Descendants(ctx context.Context, id int64) ([]*repository.Node, error) {
	node, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	// an empty path would prefix-match every row
	if _, err := checkPath(node); err != nil {
		return nil, err
	}
	members, err := m.store.FindByPathPrefix(ctx, node.Path)
	if err != nil {
		return nil, fmt.Errorf("error loading descendants of %d: %w", id, err)
	}
	out := make([]*repository.Node, 0, len(members))
	for _, member := range members {
		if member.ID != node.ID {
			out = append(out, member)
		}
	}
	return out, nil
}

func (m *MaterializedPath) Contains(ctx context.Context, ancestorID, nodeID int64) (bool, error) {
	ancestor, err := m.load(ctx, ancestorID)
	if err != nil {
		return false, err
	}
	node, err := m.load(ctx, nodeID)
	if err != nil {
		return false, err
	}
	for _, n := range []*repository.Node{ancestor, node} {
		if _, err := checkPath(n); err != nil {
			return false, err
		}
	}
	return strings.HasPrefix(node.Path, ancestor.Path), nil
}

// Verify checks every path against its parent's path.
func (m *MaterializedPath) Verify(ctx context.Context) error {
	nodes, err := m.store.GetAllNodes(ctx)
	if err != nil {
		return err
	}
	if err := verifyParents(nodes); err != nil {
		return err
	}
	byID := make(map[int64]*repository.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, n := range nodes {
		if _, err := checkPath(n); err != nil {
			return err
		}
		want := childPath("", n.ID)
		if n.ParentID != nil {
			want = childPath(byID[*n.ParentID].Path, n.ID)
		}
		if n.Path != want {
			return integrityError(ErrCorruptedPath, n.ID, "path %q, expected %q", n.Path, want)
		}
	}
	return nil
}

func childPath(parentPath string, id int64) string {
	if parentPath == "" {
		parentPath = pathSeparator
	}
	return parentPath + strconv.FormatInt(id, 10) + pathSeparator
}

// checkPath parses n.Path and verifies it is well formed: numeric segments,
// no repeated id, and the node's own id last.
func checkPath(n *repository.Node) ([]int64, error) {
	p := n.Path
	if len(p) < 3 || !strings.HasPrefix(p, pathSeparator) || !strings.HasSuffix(p, pathSeparator) {
		return nil, integrityError(ErrCorruptedPath, n.ID, "malformed path %q", p)
	}
	parts := strings.Split(p[1:len(p)-1], pathSeparator)
	segments := make([]int64, 0, len(parts))
	seen := make(map[int64]bool, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, integrityError(ErrCorruptedPath, n.ID, "bad segment %q in %q", part, p)
		}
		if seen[id] {
			return nil, integrityError(ErrCircularReference, n.ID, "id %d repeats in %q", id, p)
		}
		seen[id] = true
		segments = append(segments, id)
	}
	if segments[len(segments)-1] != n.ID {
		return nil, integrityError(ErrCorruptedPath, n.ID, "path %q does not end with the node id", p)
	}
	return segments, nil
}
