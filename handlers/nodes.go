package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammiranda/orgtree/cache"
	"github.com/ammiranda/orgtree/models"
)

// CreateNode creates a root, or a last child when parentId is given
func (h *TreeHandler) CreateNode(c *gin.Context) {
	var req models.CreateNodeRequest
	if !bind(c, &req, req.Validate) {
		return
	}

	ctx := c.Request.Context()
	node, err := h.svc.Create(ctx, req.Name, req.ParentID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidate(c)
	c.JSON(http.StatusCreated, models.NewNodeResponse(node))
}

// GetNode returns a single node
func (h *TreeHandler) GetNode(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	node, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewNodeResponse(node))
}

// RenameNode changes a node's name
func (h *TreeHandler) RenameNode(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateNodeRequest
	if !bind(c, &req, req.Validate) {
		return
	}

	node, err := h.svc.Rename(c.Request.Context(), id, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidate(c)
	c.JSON(http.StatusOK, models.NewNodeResponse(node))
}

// DeleteNode removes a node and its subtree
func (h *TreeHandler) DeleteNode(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.invalidate(c)
	c.Status(http.StatusNoContent)
}

// MoveNode re-parents a node; a null parentId makes it a root
func (h *TreeHandler) MoveNode(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.MoveNodeRequest
	if !bind(c, &req, req.Validate) {
		return
	}

	node, err := h.svc.Move(c.Request.Context(), id, req.ParentID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidate(c)
	c.JSON(http.StatusOK, models.NewNodeResponse(node))
}

// Ancestors lists the chain from the root down to the node's parent
func (h *TreeHandler) Ancestors(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	nodes, err := h.svc.Ancestors(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewNodeResponses(nodes))
}

// Descendants lists every node below id in pre-order
func (h *TreeHandler) Descendants(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	nodes, err := h.svc.Descendants(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewNodeResponses(nodes))
}

// Contains reports whether :other lies in the subtree of :id
func (h *TreeHandler) Contains(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	other, ok := pathID(c, "other")
	if !ok {
		return
	}
	contains, err := h.svc.Contains(c.Request.Context(), id, other)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contains": contains})
}

func (h *TreeHandler) invalidate(c *gin.Context) {
	if err := cache.InvalidateCache(c.Request.Context()); err != nil {
		logger(c).Warn().Err(err).Msg("failed to invalidate tree cache")
	}
}

// bind decodes the JSON body and runs the request's validation
func bind(c *gin.Context, req any, validate func() error) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if err := validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
