package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rowan/parcelbase/internal/adapter"
	"github.com/rowan/parcelbase/internal/config"
	"github.com/rowan/parcelbase/internal/domain"
	"github.com/rowan/parcelbase/internal/logger"
	"github.com/rowan/parcelbase/internal/registry"
	"github.com/rowan/parcelbase/internal/repository"
	"github.com/rowan/parcelbase/internal/service"
	"github.com/rowan/parcelbase/internal/sources"
	"github.com/rowan/parcelbase/internal/storage"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "parcelbase-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	sourceKey := flag.String("source", "", "Source key to ingest from (see /api/v1/sources)")
	address := flag.String("address", "", "Single situs address to ingest")
	parcelID := flag.String("parcel", "", "Single parcel id to ingest")
	addressFile := flag.String("file", "", "File with one address per line")
	force := flag.Bool("force", false, "Bypass the fetch dedup window and re-store snapshots")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *sourceKey == "" {
		appLogger.Fatal("A -source key is required")
	}

	targets, err := collectTargets(*address, *parcelID, *addressFile)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read targets")
	}
	if len(targets) == 0 {
		appLogger.Fatal("Nothing to ingest: pass -address, -parcel, or -file")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	appLogger.WithFields(logger.Fields{
		"source":  *sourceKey,
		"targets": len(targets),
		"force":   *force,
	}).Info("Starting ingestion")

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize the optional raw-snapshot archive
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		if err := s3Archive.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
		archive = s3Archive
	}

	// Register built-in sources
	reg := registry.New()
	if err := sources.RegisterBuiltin(reg, cfg); err != nil {
		appLogger.WithError(err).Fatal("Failed to register sources")
	}

	pipeline := service.NewPipeline(service.PipelineDeps{
		Registry:     reg,
		RunRepo:      repository.NewRunRepository(db),
		JobRepo:      repository.NewJobRepository(db),
		SourceRepo:   repository.NewSourceRepository(db),
		FetchRepo:    repository.NewFetchRepository(db),
		ArtifactRepo: repository.NewArtifactRepository(db),
		ParcelRepo:   repository.NewParcelRepository(db),
		Archive:      archive,
		Config:       cfg.Ingest,
		Logger:       appLogger,
	})

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	// Open one run covering the whole batch
	run, err := pipeline.StartRun(ctx, domain.RunTriggerManual, "cli batch")
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to open run")
	}

	var results []*service.IngestResult
	counts := map[service.IngestStatus]int{}
	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		res, err := pipeline.Ingest(ctx, *sourceKey, target, &service.IngestOptions{
			Force: *force,
			RunID: run.ID,
		})
		if err != nil {
			appLogger.WithError(err).WithField("target", target.Describe()).
				Error("Ingestion could not start")
			continue
		}
		results = append(results, res)
		counts[res.Status]++
	}

	if err := pipeline.FinishRun(ctx, run, results); err != nil {
		appLogger.WithError(err).Error("Failed to finalize run")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldRunID: run.ID,
		"targets":         len(targets),
		"success":         counts[service.IngestSuccess],
		"skipped":         counts[service.IngestSkipped],
		"failed":          counts[service.IngestFailed],
	}).Info("Ingestion completed")

	if counts[service.IngestFailed] > 0 {
		os.Exit(1)
	}
}

// collectTargets builds the ingest input list from the CLI flags.
func collectTargets(address, parcelID, file string) ([]adapter.Input, error) {
	var targets []adapter.Input
	if address != "" {
		targets = append(targets, adapter.Input{Address: address})
	}
	if parcelID != "" {
		targets = append(targets, adapter.Input{ParcelID: parcelID})
	}
	if file == "" {
		return targets, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, adapter.Input{Address: line})
	}
	return targets, scanner.Err()
}
