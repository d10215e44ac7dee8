package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rowan/parcelbase/internal/registry"
)

// SourceHandler exposes the registered source catalog.
type SourceHandler struct {
	registry *registry.Registry
}

// NewSourceHandler creates a new source handler.
func NewSourceHandler(reg *registry.Registry) *SourceHandler {
	return &SourceHandler{registry: reg}
}

// ListSources handles GET /api/v1/sources.
func (h *SourceHandler) ListSources(c *gin.Context) {
	sources := h.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"count":   len(sources),
	})
}
