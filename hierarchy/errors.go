package hierarchy

import (
	"errors"
	"fmt"
)

// Sentinel errors for hierarchy operations. Callers match them with errors.Is.
var (
	// ErrValidation is returned for malformed input such as an empty or
	// over-length name.
	ErrValidation = errors.New("validation failed")

	// ErrEntityNotFound is returned when the node an operation targets
	// does not exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrParentEntityNotFound is returned when a referenced parent does not
	// exist, either as a requested parent or as the stored parent of a node.
	ErrParentEntityNotFound = errors.New("parent entity not found")

	// ErrDataIntegrity is returned when an operation would break the tree
	// structure, or when stored positional data is found to be corrupt.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrSelfReference is returned when a node is given itself as parent.
	ErrSelfReference = errors.New("node cannot be its own parent")

	// ErrCircularReference is returned when a node would become a
	// descendant of itself, or a stored ancestor chain loops.
	ErrCircularReference = errors.New("circular reference")

	// ErrCorruptedPath is returned when a materialized path does not match
	// the tree it claims to describe.
	ErrCorruptedPath = errors.New("corrupted path")

	// ErrCorruptedInterval is returned when nested set boundaries break
	// the containment invariants.
	ErrCorruptedInterval = errors.New("corrupted interval")
)

// ValidationError describes which input was rejected
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IntegrityError is a structural violation on a specific node. It matches
// both ErrDataIntegrity and its Kind.
type IntegrityError struct {
	Kind   error // one of ErrSelfReference, ErrCircularReference, ErrCorruptedPath, ErrCorruptedInterval
	NodeID int64
	Detail string
}

func (e *IntegrityError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: node %d: %s", ErrDataIntegrity, e.NodeID, e.Kind)
	}
	return fmt.Sprintf("%s: node %d: %s (%s)", ErrDataIntegrity, e.NodeID, e.Kind, e.Detail)
}

func (e *IntegrityError) Unwrap() []error { return []error{ErrDataIntegrity, e.Kind} }

func integrityError(kind error, nodeID int64, format string, args ...any) error {
	return &IntegrityError{Kind: kind, NodeID: nodeID, Detail: fmt.Sprintf(format, args...)}
}

// notFound wraps a missing node id in the given sentinel
func notFound(sentinel error, id int64) error {
	return fmt.Errorf("%w: id %d", sentinel, id)
}
