package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rowan/parcelbase/internal/api/handler"
	"github.com/rowan/parcelbase/internal/api/middleware"
	"github.com/rowan/parcelbase/internal/logger"
	"github.com/rowan/parcelbase/internal/registry"
	"github.com/rowan/parcelbase/internal/repository"
	"github.com/rowan/parcelbase/internal/service"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Pipeline   *service.Pipeline
	Registry   *registry.Registry
	ParcelRepo *repository.ParcelRepository
	RunRepo    *repository.RunRepository
	Logger     *logger.Logger
	CORS       middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	sourceHandler := handler.NewSourceHandler(deps.Registry)
	ingestHandler := handler.NewIngestHandler(deps.Pipeline)
	parcelHandler := handler.NewParcelHandler(deps.ParcelRepo)
	runHandler := handler.NewRunHandler(deps.RunRepo)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Source catalog
		v1.GET("/sources", sourceHandler.ListSources)

		// On-demand ingestion
		v1.POST("/ingest", ingestHandler.Ingest)

		// Canonical parcels
		v1.GET("/parcels/:state/:county/:parcel", parcelHandler.GetParcel)

		// Run provenance
		v1.GET("/runs/:id", runHandler.GetRun)
	}

	return r
}
