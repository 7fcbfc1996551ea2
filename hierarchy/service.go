package hierarchy

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ammiranda/orgtree/internal/metrics"
	"github.com/ammiranda/orgtree/repository"
)

// Service runs strategy operations against a repository. Every mutation is
// one unit of work: it either fully applies or leaves the table untouched.
type Service struct {
	repo repository.Repository
	kind Kind
	opts Options
	log  zerolog.Logger
}

// NewService creates a Service for the given representation
func NewService(repo repository.Repository, kind Kind, opts Options, logger zerolog.Logger) (*Service, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if opts.OnShift == nil {
		opts.OnShift = metrics.ObserveShift
	}
	return &Service{
		repo: repo,
		kind: kind,
		opts: opts,
		log:  logger.With().Str("strategy", string(kind)).Logger(),
	}, nil
}

// Kind reports the representation the service maintains
func (s *Service) Kind() Kind { return s.kind }

func (s *Service) on(store repository.Store) Strategy {
	// kind was checked in NewService
	strategy, _ := New(s.kind, store, s.opts)
	return strategy
}

// mutate runs fn inside a unit of work
func (s *Service) mutate(ctx context.Context, op string, fn func(Strategy) error) error {
	start := time.Now()
	err := s.repo.WithinTx(ctx, func(store repository.Store) error {
		return fn(s.on(store))
	})
	s.observe(op, start, err)
	return err
}

// read runs fn directly against the repository
func (s *Service) read(op string, fn func(Strategy) error) error {
	start := time.Now()
	err := fn(s.on(s.repo))
	s.observe(op, start, err)
	return err
}

func (s *Service) observe(op string, start time.Time, err error) {
	elapsed := time.Since(start)
	result := classify(err)
	metrics.ObserveOperation(string(s.kind), op, result, elapsed)

	var evt *zerolog.Event
	switch result {
	case "ok":
		evt = s.log.Debug()
	case "integrity", "error":
		evt = s.log.Error().Err(err)
	default:
		evt = s.log.Info().Err(err)
	}
	evt.Str("op", op).Str("result", result).Dur("elapsed", elapsed).Msg("tree operation")
}

func classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrEntityNotFound), errors.Is(err, ErrParentEntityNotFound):
		return "not_found"
	case errors.Is(err, ErrDataIntegrity):
		return "integrity"
	default:
		return "error"
	}
}

func (s *Service) Create(ctx context.Context, name string, parentID *int64) (*repository.Node, error) {
	var node *repository.Node
	err := s.mutate(ctx, "create", func(st Strategy) (err error) {
		node, err = st.Create(ctx, name, parentID)
		return err
	})
	return node, err
}

func (s *Service) Rename(ctx context.Context, id int64, name string) (*repository.Node, error) {
	var node *repository.Node
	err := s.mutate(ctx, "rename", func(st Strategy) (err error) {
		node, err = st.Rename(ctx, id, name)
		return err
	})
	return node, err
}

func (s *Service) Move(ctx context.Context, id int64, newParentID *int64) (*repository.Node, error) {
	var node *repository.Node
	err := s.mutate(ctx, "move", func(st Strategy) (err error) {
		node, err = st.Move(ctx, id, newParentID)
		return err
	})
	return node, err
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.mutate(ctx, "delete", func(st Strategy) error {
		return st.Delete(ctx, id)
	})
}

func (s *Service) Get(ctx context.Context, id int64) (*repository.Node, error) {
	var node *repository.Node
	err := s.read("get", func(st Strategy) (err error) {
		node, err = st.Get(ctx, id)
		return err
	})
	return node, err
}

func (s *Service) Ancestors(ctx context.Context, id int64) ([]*repository.Node, error) {
	var nodes []*repository.Node
	err := s.read("ancestors", func(st Strategy) (err error) {
		nodes, err = st.Ancestors(ctx, id)
		return err
	})
	return nodes, err
}

func (s *Service) Descendants(ctx context.Context, id int64) ([]*repository.Node, error) {
	var nodes []*repository.Node
	err := s.read("descendants", func(st Strategy) (err error) {
		nodes, err = st.Descendants(ctx, id)
		return err
	})
	return nodes, err
}

// Subtree returns the node followed by its descendants in pre-order.
func (s *Service) Subtree(ctx context.Context, id int64) ([]*repository.Node, error) {
	var nodes []*repository.Node
	err := s.read("subtree", func(st Strategy) error {
		root, err := st.Get(ctx, id)
		if err != nil {
			return err
		}
		below, err := st.Descendants(ctx, id)
		if err != nil {
			return err
		}
		nodes = append([]*repository.Node{root}, below...)
		return nil
	})
	return nodes, err
}

func (s *Service) Contains(ctx context.Context, ancestorID, nodeID int64) (bool, error) {
	var ok bool
	err := s.read("contains", func(st Strategy) (err error) {
		ok, err = st.Contains(ctx, ancestorID, nodeID)
		return err
	})
	return ok, err
}

// Forest returns every node, ordered so that parents precede children and
// siblings keep their stored order.
func (s *Service) Forest(ctx context.Context) ([]*repository.Node, error) {
	start := time.Now()
	nodes, err := s.repo.GetAllNodes(ctx)
	if err == nil {
		switch s.kind {
		case KindAdjacency:
			nodes = parentsFirst(nodes)
		case KindNestedSet:
			sort.Slice(nodes, func(i, j int) bool { return nodes[i].Left < nodes[j].Left })
		case KindMaterializedPath:
			sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
		}
	}
	s.observe("forest", start, err)
	return nodes, err
}

// parentsFirst walks down from the roots. Rows no root reaches, such as a
// parent_id cycle, are appended in their stored order.
func parentsFirst(nodes []*repository.Node) []*repository.Node {
	present := make(map[int64]bool, len(nodes))
	for _, n := range nodes {
		present[n.ID] = true
	}
	children := make(map[int64][]*repository.Node)
	var roots []*repository.Node
	for _, n := range nodes {
		if n.ParentID == nil || !present[*n.ParentID] {
			roots = append(roots, n)
			continue
		}
		children[*n.ParentID] = append(children[*n.ParentID], n)
	}

	out := make([]*repository.Node, 0, len(nodes))
	visited := make(map[int64]bool, len(nodes))
	stack := make([]*repository.Node, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		visited[n.ID] = true
		kids := children[n.ID]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	for _, n := range nodes {
		if !visited[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

// Verify checks the stored representation for structural damage.
func (s *Service) Verify(ctx context.Context) error {
	return s.read("verify", func(st Strategy) error {
		return st.Verify(ctx)
	})
}
