package hierarchy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammiranda/orgtree/repository"
)

func TestAdjacencyDescendantsPreOrder(t *testing.T) {
	svc := newTestService(t, KindAdjacency, repository.NewMemoryRepository())
	ctx := context.Background()

	a := mustCreate(t, svc, "A", nil)
	b := mustCreate(t, svc, "B", a)
	c := mustCreate(t, svc, "C", a)
	d := mustCreate(t, svc, "D", b)
	e := mustCreate(t, svc, "E", d)

	descendants, err := svc.Descendants(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID, d.ID, e.ID, c.ID}, ids(descendants))

	ancestors, err := svc.Ancestors(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID, d.ID}, ids(ancestors))
}

func TestAdjacencyDeepChain(t *testing.T) {
	svc := newTestService(t, KindAdjacency, repository.NewMemoryRepository())
	ctx := context.Background()

	root := mustCreate(t, svc, "root", nil)
	last := root
	for i := 0; i < 500; i++ {
		last = mustCreate(t, svc, "n", last)
	}

	descendants, err := svc.Descendants(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, descendants, 500)

	ancestors, err := svc.Ancestors(ctx, last.ID)
	require.NoError(t, err)
	assert.Len(t, ancestors, 500)
	assert.Equal(t, root.ID, ancestors[0].ID)

	require.NoError(t, svc.Delete(ctx, root.ID))
	forest, err := svc.Forest(ctx)
	require.NoError(t, err)
	assert.Empty(t, forest)
}

func TestAdjacencyDetectsCorruption(t *testing.T) {
	ctx := context.Background()

	t.Run("stored cycle", func(t *testing.T) {
		repo := repository.NewMemoryRepository()
		svc := newTestService(t, KindAdjacency, repo)
		require.NoError(t, repo.Insert(ctx, &repository.Node{ID: 1, Name: "a", ParentID: int64Ptr(2)}))
		require.NoError(t, repo.Insert(ctx, &repository.Node{ID: 2, Name: "b", ParentID: int64Ptr(1)}))

		_, err := svc.Ancestors(ctx, 1)
		assert.ErrorIs(t, err, ErrCircularReference)

		_, err = svc.Descendants(ctx, 1)
		assert.ErrorIs(t, err, ErrCircularReference)

		assert.ErrorIs(t, svc.Verify(ctx), ErrCircularReference)
	})

	t.Run("dangling parent", func(t *testing.T) {
		repo := repository.NewMemoryRepository()
		svc := newTestService(t, KindAdjacency, repo)
		require.NoError(t, repo.Insert(ctx, &repository.Node{ID: 2, Name: "b", ParentID: int64Ptr(1)}))

		_, err := svc.Ancestors(ctx, 2)
		assert.ErrorIs(t, err, ErrParentEntityNotFound)
		assert.ErrorIs(t, svc.Verify(ctx), ErrParentEntityNotFound)
	})

	t.Run("self parent", func(t *testing.T) {
		repo := repository.NewMemoryRepository()
		svc := newTestService(t, KindAdjacency, repo)
		require.NoError(t, repo.Insert(ctx, &repository.Node{ID: 1, Name: "a", ParentID: int64Ptr(1)}))

		assert.ErrorIs(t, svc.Verify(ctx), ErrSelfReference)
	})
}
