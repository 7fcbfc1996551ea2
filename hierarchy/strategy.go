// Package hierarchy stores and queries trees in a single table using one of
// three representations: adjacency list, materialized path or nested set.
//
// A Strategy is bound to a repository.Store. For mutations that store must
// belong to an open unit of work (repository.Repository.WithinTx); the
// strategies issue several dependent writes and rely on the caller for
// atomicity. Service wires this up.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/ammiranda/orgtree/repository"
)

// Kind names a tree representation
type Kind string

const (
	KindAdjacency        Kind = "adjacency"
	KindMaterializedPath Kind = "materialized_path"
	KindNestedSet        Kind = "nested_set"
)

// ParseKind converts a configuration value into a Kind
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAdjacency, KindMaterializedPath, KindNestedSet:
		return k, nil
	default:
		return "", fmt.Errorf("unknown tree strategy %q", s)
	}
}

// Strategy is the operation set every representation implements.
type Strategy interface {
	// Kind reports which representation this is.
	Kind() Kind

	// Create adds a node as a root, or as the last child of parentID.
	Create(ctx context.Context, name string, parentID *int64) (*repository.Node, error)

	// Rename changes a node's name. Positional fields are left untouched.
	Rename(ctx context.Context, id int64, name string) (*repository.Node, error)

	// Move re-parents a node together with its subtree. A nil parent
	// turns the node into a root.
	Move(ctx context.Context, id int64, newParentID *int64) (*repository.Node, error)

	// Delete removes a node and its entire subtree.
	Delete(ctx context.Context, id int64) error

	// Get returns a single node.
	Get(ctx context.Context, id int64) (*repository.Node, error)

	// Ancestors returns the chain from the root down to the node's parent.
	Ancestors(ctx context.Context, id int64) ([]*repository.Node, error)

	// Descendants returns every node below id in pre-order, id excluded.
	Descendants(ctx context.Context, id int64) ([]*repository.Node, error)

	// Contains reports whether nodeID lies in the subtree rooted at
	// ancestorID. A subtree contains its own root.
	Contains(ctx context.Context, ancestorID, nodeID int64) (bool, error)

	// Verify scans the whole table and reports the first structural
	// violation of this representation's invariants.
	Verify(ctx context.Context) error
}

// Options tunes a Strategy
type Options struct {
	// MaxNameLength bounds node names; DefaultMaxNameLength when zero.
	MaxNameLength int

	// OnShift, when set, is told how many rows each bulk renumbering
	// statement touched.
	OnShift func(step string, rows int64)
}

// New builds the strategy of the given kind over store
func New(kind Kind, store repository.Store, opts Options) (Strategy, error) {
	switch kind {
	case KindAdjacency:
		return NewAdjacencyList(store, opts), nil
	case KindMaterializedPath:
		return NewMaterializedPath(store, opts), nil
	case KindNestedSet:
		return NewNestedSet(store, opts), nil
	default:
		return nil, fmt.Errorf("unknown tree strategy %q", kind)
	}
}

// base carries the store access every strategy shares
type base struct {
	store repository.Store
	opts  Options
}

func (b *base) load(ctx context.Context, id int64) (*repository.Node, error) {
	return b.lookup(ctx, id, ErrEntityNotFound)
}

func (b *base) loadParent(ctx context.Context, id int64) (*repository.Node, error) {
	return b.lookup(ctx, id, ErrParentEntityNotFound)
}

func (b *base) lookup(ctx context.Context, id int64, missing error) (*repository.Node, error) {
	node, err := b.store.GetNode(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNodeNotFound) {
			return nil, notFound(missing, id)
		}
		return nil, err
	}
	return node, nil
}

// loadOptionalParent resolves parentID, returning nil for a root request
func (b *base) loadOptionalParent(ctx context.Context, parentID *int64) (*repository.Node, error) {
	if parentID == nil {
		return nil, nil
	}
	return b.loadParent(ctx, *parentID)
}

func (b *base) name(name string) (string, error) {
	return normalizeName(name, b.opts.MaxNameLength)
}

func (b *base) Get(ctx context.Context, id int64) (*repository.Node, error) {
	return b.load(ctx, id)
}

func (b *base) Rename(ctx context.Context, id int64, name string) (*repository.Node, error) {
	name, err := b.name(name)
	if err != nil {
		return nil, err
	}
	node, err := b.load(ctx, id)
	if err != nil {
		return nil, err
	}
	node.Name = name
	if err := b.store.Update(ctx, node); err != nil {
		return nil, fmt.Errorf("error renaming node %d: %w", id, err)
	}
	return node, nil
}

func (b *base) shifted(step string, rows int64) {
	if b.opts.OnShift != nil {
		b.opts.OnShift(step, rows)
	}
}

func int64Ptr(v int64) *int64 {
	return &v
}
