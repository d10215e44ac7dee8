package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rowan/parcelbase/internal/adapter"
	"github.com/rowan/parcelbase/internal/domain"
	"github.com/rowan/parcelbase/internal/logger"
	"github.com/rowan/parcelbase/internal/registry"
	"github.com/rowan/parcelbase/internal/service"
)

// IngestHandler handles on-demand ingestion requests.
type IngestHandler struct {
	pipeline *service.Pipeline
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(pipeline *service.Pipeline) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

type ingestRequest struct {
	Source   string `json:"source" binding:"required"`
	Address  string `json:"address"`
	ParcelID string `json:"parcel_id"`
	Force    bool   `json:"force"`
	RunID    string `json:"run_id"`
}

// Ingest handles POST /api/v1/ingest. The response is 200 for every attempt
// that ran to a conclusion; the body's status field carries the tri-state
// outcome. 404 means the source key is not registered.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if req.Address == "" && req.ParcelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Either address or parcel_id is required",
		})
		return
	}

	result, err := h.pipeline.Ingest(c.Request.Context(), req.Source,
		adapter.Input{Address: req.Address, ParcelID: req.ParcelID},
		&service.IngestOptions{
			Force:   req.Force,
			RunID:   req.RunID,
			Trigger: domain.RunTriggerWebhook,
		})
	if err != nil {
		if errors.Is(err, registry.ErrUnknownSource) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Unknown source: " + req.Source,
			})
			return
		}
		logger.FromContext(c.Request.Context()).WithError(err).
			Error("Ingestion request failed before pipeline start")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to run ingestion: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
