package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepository implements Repository with in-process maps. A unit of
// work holds the write lock and restores a snapshot if it fails.
type MemoryRepository struct {
	mu    sync.RWMutex
	store *memStore
}

// NewMemoryRepository creates a new in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: newMemStore()}
}

// Initialize performs any necessary setup
func (m *MemoryRepository) Initialize(ctx context.Context) error {
	return nil
}

// Cleanup drops every row and resets the id sequence
func (m *MemoryRepository) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = newMemStore()
	return nil
}

// WithinTx runs fn with exclusive access to the store
func (m *MemoryRepository) WithinTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.store.clone()
	if err := fn(m.store); err != nil {
		m.store = snapshot
		return err
	}
	return nil
}

func (m *MemoryRepository) ReserveID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ReserveID(ctx)
}

func (m *MemoryRepository) Insert(ctx context.Context, node *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Insert(ctx, node)
}

func (m *MemoryRepository) Update(ctx context.Context, node *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Update(ctx, node)
}

func (m *MemoryRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Delete(ctx, id)
}

func (m *MemoryRepository) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.DeleteMany(ctx, ids)
}

func (m *MemoryRepository) GetNode(ctx context.Context, id int64) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.GetNode(ctx, id)
}

func (m *MemoryRepository) GetNodes(ctx context.Context, ids []int64) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.GetNodes(ctx, ids)
}

func (m *MemoryRepository) GetChildren(ctx context.Context, parentID int64) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.GetChildren(ctx, parentID)
}

func (m *MemoryRepository) GetAllNodes(ctx context.Context) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.GetAllNodes(ctx)
}

func (m *MemoryRepository) FindByPathPrefix(ctx context.Context, prefix string) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.FindByPathPrefix(ctx, prefix)
}

func (m *MemoryRepository) FindEnclosing(ctx context.Context, left, right int64) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.FindEnclosing(ctx, left, right)
}

func (m *MemoryRepository) FindWithin(ctx context.Context, left, right int64) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.FindWithin(ctx, left, right)
}

func (m *MemoryRepository) MaxRight(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.MaxRight(ctx)
}

func (m *MemoryRepository) DeleteRange(ctx context.Context, left, right int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.DeleteRange(ctx, left, right)
}

func (m *MemoryRepository) Shift(ctx context.Context, adj Adjustment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Shift(ctx, adj)
}

func (m *MemoryRepository) SetRoot(ctx context.Context, rootID int64, where Range) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.SetRoot(ctx, rootID, where)
}

// memStore is the unlocked table behind MemoryRepository. Rows are copied
// on the way in and out so callers never alias stored state.
type memStore struct {
	nodes  map[int64]*Node
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{nodes: make(map[int64]*Node)}
}

func (s *memStore) clone() *memStore {
	c := &memStore{nodes: make(map[int64]*Node, len(s.nodes)), nextID: s.nextID}
	for id, n := range s.nodes {
		c.nodes[id] = n.Clone()
	}
	return c
}

func (s *memStore) ReserveID(ctx context.Context) (int64, error) {
	s.nextID++
	return s.nextID, nil
}

func (s *memStore) Insert(ctx context.Context, node *Node) error {
	if node.ID <= 0 {
		return ErrInvalidInput
	}
	if _, ok := s.nodes[node.ID]; ok {
		return ErrInvalidInput
	}
	if node.ID > s.nextID {
		s.nextID = node.ID
	}
	s.nodes[node.ID] = node.Clone()
	return nil
}

func (s *memStore) Update(ctx context.Context, node *Node) error {
	if _, ok := s.nodes[node.ID]; !ok {
		return ErrNodeNotFound
	}
	s.nodes[node.ID] = node.Clone()
	return nil
}

func (s *memStore) Delete(ctx context.Context, id int64) error {
	if _, ok := s.nodes[id]; !ok {
		return ErrNodeNotFound
	}
	delete(s.nodes, id)
	return nil
}

func (s *memStore) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := s.nodes[id]; ok {
			delete(s.nodes, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetNode(ctx context.Context, id int64) (*Node, error) {
	node, ok := s.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return node.Clone(), nil
}

func (s *memStore) GetNodes(ctx context.Context, ids []int64) ([]*Node, error) {
	return s.collect(func(n *Node) bool {
		for _, id := range ids {
			if n.ID == id {
				return true
			}
		}
		return false
	}, byID), nil
}

func (s *memStore) GetChildren(ctx context.Context, parentID int64) ([]*Node, error) {
	return s.collect(func(n *Node) bool {
		return n.ParentID != nil && *n.ParentID == parentID
	}, byID), nil
}

func (s *memStore) GetAllNodes(ctx context.Context) ([]*Node, error) {
	return s.collect(func(*Node) bool { return true }, byID), nil
}

func (s *memStore) FindByPathPrefix(ctx context.Context, prefix string) ([]*Node, error) {
	return s.collect(func(n *Node) bool {
		return strings.HasPrefix(n.Path, prefix)
	}, byPath), nil
}

func (s *memStore) FindEnclosing(ctx context.Context, left, right int64) ([]*Node, error) {
	return s.collect(func(n *Node) bool {
		return n.Left < left && n.Right > right
	}, byLeft), nil
}

func (s *memStore) FindWithin(ctx context.Context, left, right int64) ([]*Node, error) {
	return s.collect(func(n *Node) bool {
		return n.Left > left && n.Right < right
	}, byLeft), nil
}

func (s *memStore) MaxRight(ctx context.Context) (int64, error) {
	var maxRight int64
	for _, n := range s.nodes {
		if n.Right > maxRight {
			maxRight = n.Right
		}
	}
	return maxRight, nil
}

func (s *memStore) DeleteRange(ctx context.Context, left, right int64) (int64, error) {
	var n int64
	for id, node := range s.nodes {
		if node.Left >= left && node.Left <= right {
			delete(s.nodes, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) Shift(ctx context.Context, adj Adjustment) (int64, error) {
	var n int64
	for _, node := range s.nodes {
		if !adj.Where.Contains(columnValue(node, adj.Where.Column)) {
			continue
		}
		node.Left += adj.LeftDelta
		node.Right += adj.RightDelta
		node.Depth += adj.DepthDelta
		n++
	}
	return n, nil
}

func (s *memStore) SetRoot(ctx context.Context, rootID int64, where Range) (int64, error) {
	var n int64
	for _, node := range s.nodes {
		if !where.Contains(columnValue(node, where.Column)) {
			continue
		}
		r := rootID
		node.RootID = &r
		n++
	}
	return n, nil
}

func (s *memStore) collect(match func(*Node) bool, less func(a, b *Node) bool) []*Node {
	result := make([]*Node, 0)
	for _, n := range s.nodes {
		if match(n) {
			result = append(result, n.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return less(result[i], result[j])
	})
	return result
}

func columnValue(n *Node, c Column) int64 {
	if c == ColumnRight {
		return n.Right
	}
	return n.Left
}

func byID(a, b *Node) bool   { return a.ID < b.ID }
func byPath(a, b *Node) bool { return a.Path < b.Path }
func byLeft(a, b *Node) bool { return a.Left < b.Left }
