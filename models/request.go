package models

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CreateNodeRequest represents the request body for creating a node.
// A missing parentId creates a root.
type CreateNodeRequest struct {
	Name     string `json:"name" validate:"required"`
	ParentID *int64 `json:"parentId,omitempty" validate:"omitempty,gt=0"`
}

// UpdateNodeRequest represents the request body for renaming a node
type UpdateNodeRequest struct {
	Name string `json:"name" validate:"required"`
}

// MoveNodeRequest represents the request body for moving a node.
// A null parentId moves the node to the top level.
type MoveNodeRequest struct {
	ParentID *int64 `json:"parentId" validate:"omitempty,gt=0"`
}

// Validate validates the create node request
func (r *CreateNodeRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the update node request
func (r *UpdateNodeRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the move node request
func (r *MoveNodeRequest) Validate() error {
	return validate.Struct(r)
}
