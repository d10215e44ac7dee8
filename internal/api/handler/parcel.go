package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rowan/parcelbase/internal/identity"
	"github.com/rowan/parcelbase/internal/repository"
)

// ParcelHandler serves the canonical parcel store.
type ParcelHandler struct {
	parcelRepo *repository.ParcelRepository
}

// NewParcelHandler creates a new parcel handler.
func NewParcelHandler(parcelRepo *repository.ParcelRepository) *ParcelHandler {
	return &ParcelHandler{parcelRepo: parcelRepo}
}

// GetParcel handles GET /api/v1/parcels/:state/:county/:parcel. The parcel
// segment accepts raw source formatting; it is normalized before lookup.
func (h *ParcelHandler) GetParcel(c *gin.Context) {
	state := c.Param("state")
	county := c.Param("county")
	parcelID := identity.NormalizeParcelID(c.Param("parcel"))

	if len(state) != 2 || len(county) != 3 || parcelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Expected /parcels/{2-digit state FIPS}/{3-digit county FIPS}/{parcel id}",
		})
		return
	}

	parcel, err := h.parcelRepo.FindByKey(c.Request.Context(), state, county, parcelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load parcel: " + err.Error(),
		})
		return
	}
	if parcel == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Parcel not found: " + identity.ParcelKey(state, county, parcelID),
		})
		return
	}

	c.JSON(http.StatusOK, parcel)
}
