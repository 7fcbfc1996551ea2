package hierarchy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ammiranda/orgtree/repository"
)

func TestGuard(t *testing.T) {
	ctx := context.Background()
	root := &repository.Node{ID: 1, Path: "/1/", Left: 1, Right: 6}
	child := &repository.Node{ID: 2, ParentID: int64Ptr(1), Path: "/1/2/", Left: 2, Right: 5}
	grandchild := &repository.Node{ID: 3, ParentID: int64Ptr(2), Path: "/1/2/3/", Left: 3, Right: 4}
	other := &repository.Node{ID: 4, Path: "/4/", Left: 7, Right: 8}

	repo := repository.NewMemoryRepository()
	for _, n := range []*repository.Node{root, child, grandchild, other} {
		assert.NoError(t, repo.Insert(ctx, n))
	}

	guards := map[string]Guard{
		"parent walk": parentWalkGuard(repo),
		"path":        pathGuard(),
		"interval":    intervalGuard(),
	}
	for name, g := range guards {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, g.Check(ctx, child, nil))
			assert.NoError(t, g.Check(ctx, child, other))
			assert.NoError(t, g.Check(ctx, grandchild, root))

			assert.ErrorIs(t, g.Check(ctx, child, child), ErrSelfReference)
			assert.ErrorIs(t, g.Check(ctx, root, grandchild), ErrCircularReference)
			assert.ErrorIs(t, g.Check(ctx, root, child), ErrDataIntegrity)
		})
	}
}
