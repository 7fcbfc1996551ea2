package models

import "github.com/ammiranda/orgtree/repository"

// Node is a tree element as returned by the tree and subtree endpoints
type Node struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name" validate:"required"`
	Children []*Node `json:"children"`
}

// NewNode creates a new node with the given name
func NewNode(id int64, name string) *Node {
	return &Node{
		ID:       id,
		Name:     name,
		Children: make([]*Node, 0),
	}
}

// AddChild adds a child node to the current node
func (n *Node) AddChild(child *Node) {
	n.Children = append(n.Children, child)
}

// NodeResponse is the flat view of a stored node. Positional fields are
// only present for the representation that maintains them.
type NodeResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parentId"`
	Path     string `json:"path,omitempty"`
	Left     int64  `json:"lft,omitempty"`
	Right    int64  `json:"rgt,omitempty"`
	Depth    *int64 `json:"depth,omitempty"`
	RootID   *int64 `json:"rootId,omitempty"`
}

// NewNodeResponse converts a stored node
func NewNodeResponse(n *repository.Node) *NodeResponse {
	resp := &NodeResponse{
		ID:       n.ID,
		Name:     n.Name,
		ParentID: n.ParentID,
		Path:     n.Path,
		Left:     n.Left,
		Right:    n.Right,
		RootID:   n.RootID,
	}
	if n.Path != "" || n.Left != 0 {
		depth := n.Depth
		resp.Depth = &depth
	}
	return resp
}

// NewNodeResponses converts a list of stored nodes, keeping their order
func NewNodeResponses(nodes []*repository.Node) []*NodeResponse {
	out := make([]*NodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NewNodeResponse(n))
	}
	return out
}
