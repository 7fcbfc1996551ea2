package hierarchy

import (
	"context"
	"strconv"
	"strings"

	"github.com/ammiranda/orgtree/repository"
)

// Guard rejects a re-parenting that would put a node inside its own subtree.
// Each strategy supplies the cheapest ancestry test its representation has.
type Guard struct {
	// within reports whether candidate lies strictly below node.
	within func(ctx context.Context, node, candidate *repository.Node) (bool, error)
}

// Check validates making candidate the parent of node. A nil candidate
// (move to root) always passes. Must run before any positional write.
func (g Guard) Check(ctx context.Context, node, candidate *repository.Node) error {
	if candidate == nil {
		return nil
	}
	if candidate.ID == node.ID {
		return &IntegrityError{Kind: ErrSelfReference, NodeID: node.ID}
	}
	inside, err := g.within(ctx, node, candidate)
	if err != nil {
		return err
	}
	if inside {
		return integrityError(ErrCircularReference, node.ID, "node %d is in its subtree", candidate.ID)
	}
	return nil
}

// parentWalkGuard climbs candidate's parent pointers looking for node.
func parentWalkGuard(store repository.Store) Guard {
	return Guard{within: func(ctx context.Context, node, candidate *repository.Node) (bool, error) {
		found := false
		err := walkUp(ctx, store, candidate, func(ancestor *repository.Node) bool {
			if ancestor.ID == node.ID {
				found = true
				return false
			}
			return true
		})
		return found, err
	}}
}

// pathGuard looks for node's id among candidate's path segments.
func pathGuard() Guard {
	return Guard{within: func(ctx context.Context, node, candidate *repository.Node) (bool, error) {
		return strings.Contains(candidate.Path, "/"+strconv.FormatInt(node.ID, 10)+"/"), nil
	}}
}

// intervalGuard tests interval containment.
func intervalGuard() Guard {
	return Guard{within: func(ctx context.Context, node, candidate *repository.Node) (bool, error) {
		return node.Left < candidate.Left && candidate.Right < node.Right, nil
	}}
}
