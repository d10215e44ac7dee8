package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rowan/parcelbase/internal/repository"
	"gorm.io/gorm"
)

// RunHandler serves ingestion run provenance.
type RunHandler struct {
	runRepo *repository.RunRepository
}

// NewRunHandler creates a new run handler.
func NewRunHandler(runRepo *repository.RunRepository) *RunHandler {
	return &RunHandler{runRepo: runRepo}
}

// GetRun handles GET /api/v1/runs/:id, returning the run and its jobs.
func (h *RunHandler) GetRun(c *gin.Context) {
	id := c.Param("id")

	run, err := h.runRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load run: " + err.Error(),
		})
		return
	}

	jobs, err := h.runRepo.ListJobs(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load run jobs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":  run,
		"jobs": jobs,
	})
}
