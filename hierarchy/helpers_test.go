package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ammiranda/orgtree/repository"
)

var allKinds = []Kind{KindAdjacency, KindMaterializedPath, KindNestedSet}

// forEachKind runs fn as a subtest against a fresh service per representation
func forEachKind(t *testing.T, fn func(t *testing.T, svc *Service)) {
	for _, kind := range allKinds {
		kind := kind
		t.Run(string(kind), func(t *testing.T) {
			fn(t, newTestService(t, kind, repository.NewMemoryRepository()))
		})
	}
}

func newTestService(t *testing.T, kind Kind, repo repository.Repository) *Service {
	t.Helper()
	require.NoError(t, repo.Initialize(context.Background()))
	t.Cleanup(func() { _ = repo.Cleanup(context.Background()) })

	svc, err := NewService(repo, kind, Options{MaxNameLength: 20}, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func mustCreate(t *testing.T, svc *Service, name string, parent *repository.Node) *repository.Node {
	t.Helper()
	var parentID *int64
	if parent != nil {
		parentID = &parent.ID
	}
	node, err := svc.Create(context.Background(), name, parentID)
	require.NoError(t, err)
	return node
}

func mustGet(t *testing.T, svc *Service, id int64) *repository.Node {
	t.Helper()
	node, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	return node
}

func names(nodes []*repository.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}

func ids(nodes []*repository.Node) []int64 {
	out := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

var errInjected = errors.New("injected failure")

// failingRepo wraps the store handed to each unit of work so a chosen call
// fails, leaving the rollback to the memory repository.
type failingRepo struct {
	*repository.MemoryRepository
	fail func(op string, call int) bool
}

func (r *failingRepo) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return r.MemoryRepository.WithinTx(ctx, func(st repository.Store) error {
		return fn(&failingStore{Store: st, fail: r.fail, calls: map[string]int{}})
	})
}

type failingStore struct {
	repository.Store
	fail  func(op string, call int) bool
	calls map[string]int
}

func (s *failingStore) check(op string) error {
	s.calls[op]++
	if s.fail(op, s.calls[op]) {
		return errInjected
	}
	return nil
}

func (s *failingStore) Update(ctx context.Context, node *repository.Node) error {
	if err := s.check("update"); err != nil {
		return err
	}
	return s.Store.Update(ctx, node)
}

func (s *failingStore) Delete(ctx context.Context, id int64) error {
	if err := s.check("delete"); err != nil {
		return err
	}
	return s.Store.Delete(ctx, id)
}

func (s *failingStore) SetRoot(ctx context.Context, rootID int64, where repository.Range) (int64, error) {
	if err := s.check("set_root"); err != nil {
		return 0, err
	}
	return s.Store.SetRoot(ctx, rootID, where)
}

func (s *failingStore) Shift(ctx context.Context, adj repository.Adjustment) (int64, error) {
	if err := s.check("shift"); err != nil {
		return 0, err
	}
	return s.Store.Shift(ctx, adj)
}
