package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// repoFactories builds each Repository implementation that runs without
// external services.
var repoFactories = map[string]func(t *testing.T) Repository{
	"memory": func(t *testing.T) Repository {
		return NewMemoryRepository()
	},
	"sqlite": func(t *testing.T) Repository {
		return NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	},
}

func forEachRepo(t *testing.T, fn func(t *testing.T, repo Repository)) {
	for name, factory := range repoFactories {
		t.Run(name, func(t *testing.T) {
			repo := factory(t)
			require.NoError(t, repo.Initialize(context.Background()))
			t.Cleanup(func() { repo.Cleanup(context.Background()) })
			fn(t, repo)
		})
	}
}

func ptr(v int64) *int64 { return &v }

// seedInterval inserts rows with the given nested set boundaries; rows with
// parent 0 are roots.
func seedInterval(t *testing.T, repo Repository, rows ...[4]int64) {
	t.Helper()
	ctx := context.Background()
	for _, r := range rows {
		id, err := repo.ReserveID(ctx)
		require.NoError(t, err)
		require.Equal(t, r[0], id)
		node := &Node{ID: id, Name: "n", Left: r[2], Right: r[3]}
		if r[1] != 0 {
			node.ParentID = ptr(r[1])
		}
		require.NoError(t, repo.Insert(ctx, node))
	}
}

func ids(nodes []*Node) []int64 {
	out := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		rootID, err := repo.ReserveID(ctx)
		require.NoError(t, err)
		root := &Node{ID: rootID, Name: "root", Path: "/1/", Left: 1, Right: 4, RootID: ptr(rootID)}
		require.NoError(t, repo.Insert(ctx, root))

		childID, err := repo.ReserveID(ctx)
		require.NoError(t, err)
		assert.Greater(t, childID, rootID)
		child := &Node{ID: childID, Name: "child", ParentID: ptr(rootID), Path: "/1/2/", Left: 2, Right: 3, Depth: 1, RootID: ptr(rootID)}
		require.NoError(t, repo.Insert(ctx, child))

		got, err := repo.GetNode(ctx, childID)
		require.NoError(t, err)
		assert.Equal(t, child, got)

		got, err = repo.GetNode(ctx, rootID)
		require.NoError(t, err)
		assert.Nil(t, got.ParentID)

		_, err = repo.GetNode(ctx, 999)
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}

func TestInsertRejectsUnreservedID(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		err := repo.Insert(context.Background(), &Node{Name: "x"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestUpdateAndDelete(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		seedInterval(t, repo, [4]int64{1, 0, 1, 2})

		node, err := repo.GetNode(ctx, 1)
		require.NoError(t, err)
		node.Name = "renamed"
		require.NoError(t, repo.Update(ctx, node))

		got, err := repo.GetNode(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)

		assert.ErrorIs(t, repo.Update(ctx, &Node{ID: 42, Name: "ghost"}), ErrNodeNotFound)

		require.NoError(t, repo.Delete(ctx, 1))
		assert.ErrorIs(t, repo.Delete(ctx, 1), ErrNodeNotFound)
	})
}

func TestChildrenAndBatchReads(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		seedInterval(t, repo,
			[4]int64{1, 0, 1, 8},
			[4]int64{2, 1, 2, 3},
			[4]int64{3, 1, 4, 7},
			[4]int64{4, 3, 5, 6},
		)

		children, err := repo.GetChildren(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3}, ids(children))

		nodes, err := repo.GetNodes(ctx, []int64{4, 1, 77})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 4}, ids(nodes))

		nodes, err = repo.GetNodes(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, nodes)

		all, err := repo.GetAllNodes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4}, ids(all))

		n, err := repo.DeleteMany(ctx, []int64{2, 4, 99})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestIntervalQueries(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		seedInterval(t, repo,
			[4]int64{1, 0, 1, 8},
			[4]int64{2, 1, 2, 3},
			[4]int64{3, 1, 4, 7},
			[4]int64{4, 3, 5, 6},
			[4]int64{5, 0, 9, 10},
		)

		enclosing, err := repo.FindEnclosing(ctx, 5, 6)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, ids(enclosing))

		within, err := repo.FindWithin(ctx, 1, 8)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3, 4}, ids(within))

		maxRight, err := repo.MaxRight(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(10), maxRight)

		removed, err := repo.DeleteRange(ctx, 4, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)
	})
}

func TestMaxRightOfEmptyTable(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		maxRight, err := repo.MaxRight(context.Background())
		require.NoError(t, err)
		assert.Zero(t, maxRight)
	})
}

func TestShiftAndSetRoot(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		seedInterval(t, repo,
			[4]int64{1, 0, 1, 4},
			[4]int64{2, 1, 2, 3},
			[4]int64{3, 0, 5, 6},
		)

		// open a gap of two at position 4
		n, err := repo.Shift(ctx, Adjustment{
			Where:     Range{Column: ColumnLeft, From: 4, To: Unbounded},
			LeftDelta: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.Shift(ctx, Adjustment{
			Where:      Range{Column: ColumnRight, From: 4, To: Unbounded},
			RightDelta: 2,
			DepthDelta: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		first, err := repo.GetNode(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, [3]int64{1, 6, 1}, [3]int64{first.Left, first.Right, first.Depth})

		last, err := repo.GetNode(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, [3]int64{7, 8, 1}, [3]int64{last.Left, last.Right, last.Depth})

		n, err = repo.SetRoot(ctx, 1, Range{Column: ColumnLeft, From: 1, To: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		child, err := repo.GetNode(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, child.RootID)
		assert.Equal(t, int64(1), *child.RootID)
	})
}

func TestPathPrefixIsLiteral(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		for _, path := range []string{"/1/", "/1/2/", "/1/2/3/", "/1/20/", "/1%/", "/1_/"} {
			id, err := repo.ReserveID(ctx)
			require.NoError(t, err)
			require.NoError(t, repo.Insert(ctx, &Node{ID: id, Name: "n", Path: path}))
		}

		found, err := repo.FindByPathPrefix(ctx, "/1/2/")
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3}, ids(found))

		found, err = repo.FindByPathPrefix(ctx, "/1%")
		require.NoError(t, err)
		assert.Equal(t, []int64{5}, ids(found))

		found, err = repo.FindByPathPrefix(ctx, "/1_")
		require.NoError(t, err)
		assert.Equal(t, []int64{6}, ids(found))
	})
}

func TestPathPrefixReturnsPreOrder(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		for _, path := range []string{"/1/", "/1/20/", "/1/2/", "/1/2/5/"} {
			id, err := repo.ReserveID(ctx)
			require.NoError(t, err)
			require.NoError(t, repo.Insert(ctx, &Node{ID: id, Name: "n", Path: path}))
		}

		found, err := repo.FindByPathPrefix(ctx, "/1/")
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 4, 2}, ids(found))
	})
}

func TestShiftRejectsUnknownColumn(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		if _, ok := repo.(*MemoryRepository); ok {
			t.Skip("memory store has no column whitelist")
		}
		_, err := repo.Shift(context.Background(), Adjustment{Where: Range{Column: "name; DROP TABLE nodes"}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestWithinTxCommitsAndRollsBack(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		boom := errors.New("boom")

		err := repo.WithinTx(ctx, func(s Store) error {
			id, err := s.ReserveID(ctx)
			if err != nil {
				return err
			}
			return s.Insert(ctx, &Node{ID: id, Name: "kept"})
		})
		require.NoError(t, err)

		err = repo.WithinTx(ctx, func(s Store) error {
			id, err := s.ReserveID(ctx)
			if err != nil {
				return err
			}
			if err := s.Insert(ctx, &Node{ID: id, Name: "dropped"}); err != nil {
				return err
			}
			node, err := s.GetNode(ctx, 1)
			if err != nil {
				return err
			}
			node.Name = "changed"
			if err := s.Update(ctx, node); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		all, err := repo.GetAllNodes(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "kept", all[0].Name)
	})
}

func TestCleanupResetsMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedInterval(t, repo, [4]int64{1, 0, 1, 2})

	require.NoError(t, repo.Cleanup(ctx))
	all, err := repo.GetAllNodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	id, err := repo.ReserveID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestMemoryStoreDoesNotAliasRows(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	node := &Node{ID: 1, Name: "a", ParentID: nil, RootID: ptr(1)}
	require.NoError(t, repo.Insert(ctx, node))

	node.Name = "mutated"
	*node.RootID = 7

	got, err := repo.GetNode(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, int64(1), *got.RootID)

	got.Name = "again"
	again, err := repo.GetNode(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Name)
}

func TestRebind(t *testing.T) {
	query := "UPDATE nodes SET lft = lft + ? WHERE lft BETWEEN ? AND ?"
	assert.Equal(t, query, sqliteDialect.rebind(query))
	assert.Equal(t,
		"UPDATE nodes SET lft = lft + $1 WHERE lft BETWEEN $2 AND $3",
		postgresDialect.rebind(query))
}

func TestOrderByPathIsByteWise(t *testing.T) {
	assert.Equal(t, "path", sqliteDialect.orderByPath())
	assert.Equal(t, `path COLLATE "C"`, postgresDialect.orderByPath())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `/1\%/\_/a\\b`, escapeLike(`/1%/_/a\b`))
}
