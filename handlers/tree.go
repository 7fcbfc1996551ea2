package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ammiranda/orgtree/cache"
	"github.com/ammiranda/orgtree/hierarchy"
	"github.com/ammiranda/orgtree/models"
	"github.com/ammiranda/orgtree/repository"
)

var (
	ErrTreeNotFound = errors.New("tree not found")
)

// TreeHandler handles tree-related HTTP requests
type TreeHandler struct {
	svc *hierarchy.Service
}

// NewTreeHandler creates a new TreeHandler instance
func NewTreeHandler(svc *hierarchy.Service) *TreeHandler {
	return &TreeHandler{
		svc: svc,
	}
}

// Register mounts the tree routes on r
func (h *TreeHandler) Register(r gin.IRouter) {
	api := r.Group("/api")
	{
		api.GET("/tree", h.GetTree)
		api.GET("/tree/verify", h.Verify)
		api.POST("/nodes", h.CreateNode)
		api.GET("/nodes/:id", h.GetNode)
		api.PUT("/nodes/:id", h.RenameNode)
		api.DELETE("/nodes/:id", h.DeleteNode)
		api.POST("/nodes/:id/move", h.MoveNode)
		api.GET("/nodes/:id/ancestors", h.Ancestors)
		api.GET("/nodes/:id/descendants", h.Descendants)
		api.GET("/nodes/:id/subtree", h.Subtree)
		api.GET("/nodes/:id/contains/:other", h.Contains)
	}
}

// BuildTreeFromNodes assembles nested nodes from a flat list. The input
// order is kept among siblings. A node whose parent is missing from the
// list becomes a top-level entry, which lets a subtree be built from its
// own rows.
func BuildTreeFromNodes(nodes []*repository.Node) ([]*models.Node, error) {
	if len(nodes) == 0 {
		return nil, ErrTreeNotFound
	}

	nodeMap := make(map[int64]*models.Node, len(nodes))
	for _, node := range nodes {
		nodeMap[node.ID] = models.NewNode(node.ID, node.Name)
	}

	var rootNodes []*models.Node
	for _, node := range nodes {
		child := nodeMap[node.ID]
		if node.ParentID != nil {
			if parent, exists := nodeMap[*node.ParentID]; exists {
				parent.AddChild(child)
				continue
			}
		}
		rootNodes = append(rootNodes, child)
	}

	return rootNodes, nil
}

// GetTree returns every tree in the forest
func (h *TreeHandler) GetTree(c *gin.Context) {
	ctx := c.Request.Context()
	if cachedTree, found := cache.GetTree(ctx); found {
		c.JSON(http.StatusOK, cachedTree)
		return
	}

	gen, genErr := cache.Generation(ctx)
	nodes, err := h.svc.Forest(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	rootNodes, err := BuildTreeFromNodes(nodes)
	if err != nil {
		respondError(c, err)
		return
	}

	if genErr != nil {
		logger(c).Warn().Err(genErr).Msg("failed to read cache generation")
	} else if err := cache.SetTree(ctx, gen, rootNodes); err != nil {
		logger(c).Warn().Err(err).Msg("failed to cache tree")
	}
	c.JSON(http.StatusOK, rootNodes)
}

// Subtree returns one node with its descendants nested below it
func (h *TreeHandler) Subtree(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	nodes, err := h.svc.Subtree(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	roots, err := BuildTreeFromNodes(nodes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, roots[0])
}

// Verify runs a full structural check of the stored tree
func (h *TreeHandler) Verify(c *gin.Context) {
	if err := h.svc.Verify(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "strategy": h.svc.Kind()})
}

// pathID parses a positive id path parameter, answering 400 otherwise
func pathID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return id, true
}
