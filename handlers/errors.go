package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammiranda/orgtree/hierarchy"
)

// StatusFor maps a service error to an HTTP status and a client message.
// Internal failures get a generic message; the detail is only logged.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, hierarchy.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, hierarchy.ErrParentEntityNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, hierarchy.ErrEntityNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, ErrTreeNotFound):
		return http.StatusNotFound, "tree not found"
	case errors.Is(err, hierarchy.ErrDataIntegrity):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func respondError(c *gin.Context, err error) {
	status, msg := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger(c).Error().Err(err).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": msg})
}
