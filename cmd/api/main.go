package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rowan/parcelbase/internal/api"
	"github.com/rowan/parcelbase/internal/api/middleware"
	"github.com/rowan/parcelbase/internal/config"
	"github.com/rowan/parcelbase/internal/logger"
	"github.com/rowan/parcelbase/internal/registry"
	"github.com/rowan/parcelbase/internal/repository"
	"github.com/rowan/parcelbase/internal/service"
	"github.com/rowan/parcelbase/internal/sources"
	"github.com/rowan/parcelbase/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	runRepo := repository.NewRunRepository(db)
	jobRepo := repository.NewJobRepository(db)
	sourceRepo := repository.NewSourceRepository(db)
	fetchRepo := repository.NewFetchRepository(db)
	artifactRepo := repository.NewArtifactRepository(db)
	parcelRepo := repository.NewParcelRepository(db)

	// Initialize the optional raw-snapshot archive
	var archive storage.SnapshotArchive
	if cfg.Archive.Enabled {
		s3Archive, err := storage.NewS3Archive(&storage.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			PublicURL: cfg.Archive.PublicURL,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize snapshot archive")
		}
		if err := s3Archive.EnsureBucket(context.Background()); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
		archive = s3Archive
	}

	// Register built-in sources
	reg := registry.New()
	if err := sources.RegisterBuiltin(reg, cfg); err != nil {
		appLogger.WithError(err).Fatal("Failed to register sources")
	}

	// Initialize the ingestion pipeline
	pipeline := service.NewPipeline(service.PipelineDeps{
		Registry:     reg,
		RunRepo:      runRepo,
		JobRepo:      jobRepo,
		SourceRepo:   sourceRepo,
		FetchRepo:    fetchRepo,
		ArtifactRepo: artifactRepo,
		ParcelRepo:   parcelRepo,
		Archive:      archive,
		Config:       cfg.Ingest,
		Logger:       appLogger,
	})

	// Setup router
	router := api.SetupRouter(api.RouterDeps{
		Pipeline:   pipeline,
		Registry:   reg,
		ParcelRepo: parcelRepo,
		RunRepo:    runRepo,
		Logger:     appLogger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
