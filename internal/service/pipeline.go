// Package service implements the ingestion pipeline: resolve the target on a
// source, fetch its raw payloads, extract a structured record, normalize it
// onto the canonical parcel schema, and persist full provenance along the way.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rowan/parcelbase/internal/adapter"
	"github.com/rowan/parcelbase/internal/config"
	"github.com/rowan/parcelbase/internal/domain"
	"github.com/rowan/parcelbase/internal/identity"
	"github.com/rowan/parcelbase/internal/logger"
	"github.com/rowan/parcelbase/internal/registry"
	"github.com/rowan/parcelbase/internal/repository"
	"github.com/rowan/parcelbase/internal/storage"
)

// IngestStatus is the tri-state outcome of one ingestion attempt.
type IngestStatus string

const (
	// IngestSuccess means a parcel was normalized and persisted.
	IngestSuccess IngestStatus = "success"
	// IngestSkipped means the attempt ended without data and without fault:
	// the target is absent on the source, or the environment cannot run the
	// source's adapter.
	IngestSkipped IngestStatus = "skipped"
	// IngestFailed means the attempt ended in an error after exhausting
	// retries.
	IngestFailed IngestStatus = "failed"
)

// Provenance describes where and how an ingested parcel was obtained.
type Provenance struct {
	SourceKey     string                `json:"source_key"`
	Method        domain.SourcePlatform `json:"method"`
	SourceURL     string                `json:"source_url"`
	Confidence    float64               `json:"confidence"`
	SessionReused bool                  `json:"session_reused"`
	Deduplicated  bool                  `json:"deduplicated"`
	FetchedAt     time.Time             `json:"fetched_at"`
}

// IngestResult is the outcome of one ingestion attempt.
type IngestResult struct {
	Status     IngestStatus             `json:"status"`
	JobID      string                   `json:"job_id"`
	RunID      string                   `json:"run_id"`
	ParcelKey  string                   `json:"parcel_key,omitempty"`
	Parcel     *domain.NormalizedParcel `json:"parcel,omitempty"`
	Warnings   []string                 `json:"warnings,omitempty"`
	Provenance *Provenance              `json:"provenance,omitempty"`
	Reason     string                   `json:"reason,omitempty"`
}

// IngestOptions tunes one ingestion attempt.
type IngestOptions struct {
	// Force bypasses the fetch dedup window and re-stores the snapshot even
	// when an authoritative copy already exists.
	Force bool
	// RunID attaches the job to an existing run instead of opening a
	// single-job run.
	RunID string
	// Trigger is recorded on runs this call opens. Defaults to manual.
	Trigger domain.RunTrigger
}

// Pipeline orchestrates ingestion jobs across registered sources.
type Pipeline struct {
	registry     *registry.Registry
	runRepo      *repository.RunRepository
	jobRepo      *repository.JobRepository
	sourceRepo   *repository.SourceRepository
	fetchRepo    *repository.FetchRepository
	artifactRepo *repository.ArtifactRepository
	parcelRepo   *repository.ParcelRepository
	archive      storage.SnapshotArchive
	cfg          config.IngestConfig
	retry        RetryPolicy
	logger       *logger.Logger
}

// PipelineDeps bundles the collaborators of a Pipeline.
type PipelineDeps struct {
	Registry     *registry.Registry
	RunRepo      *repository.RunRepository
	JobRepo      *repository.JobRepository
	SourceRepo   *repository.SourceRepository
	FetchRepo    *repository.FetchRepository
	ArtifactRepo *repository.ArtifactRepository
	ParcelRepo   *repository.ParcelRepository
	// Archive is optional; nil disables snapshot archiving.
	Archive storage.SnapshotArchive
	Config  config.IngestConfig
	Logger  *logger.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	retry := RetryPolicy{MaxAttempts: deps.Config.MaxFetchAttempts, BaseDelay: deps.Config.RetryBaseDelay}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &Pipeline{
		registry:     deps.Registry,
		runRepo:      deps.RunRepo,
		jobRepo:      deps.JobRepo,
		sourceRepo:   deps.SourceRepo,
		fetchRepo:    deps.FetchRepo,
		artifactRepo: deps.ArtifactRepo,
		parcelRepo:   deps.ParcelRepo,
		archive:      deps.Archive,
		cfg:          deps.Config,
		retry:        retry,
		logger:       deps.Logger,
	}
}

// log returns a logger from context if available, otherwise the pipeline's.
func (p *Pipeline) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	if p.logger != nil {
		return p.logger
	}
	return logger.GetDefault()
}

// StartRun opens an ingestion run.
func (p *Pipeline) StartRun(ctx context.Context, trigger domain.RunTrigger, purpose string) (*domain.IngestRun, error) {
	if trigger == "" {
		trigger = domain.RunTriggerManual
	}
	run := &domain.IngestRun{
		ID:      uuid.New().String(),
		Trigger: trigger,
		Purpose: purpose,
		Status:  domain.RunStatusRunning,
	}
	if err := p.runRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// FinishRun finalizes a run with per-status job counts. The run fails only
// when at least one job failed; skipped jobs alone leave it succeeded.
func (p *Pipeline) FinishRun(ctx context.Context, run *domain.IngestRun, results []*IngestResult) error {
	stats := domain.JSONMap{
		"jobs":    len(results),
		"success": 0,
		"skipped": 0,
		"failed":  0,
	}
	for _, res := range results {
		switch res.Status {
		case IngestSuccess:
			stats["success"] = stats["success"].(int) + 1
		case IngestSkipped:
			stats["skipped"] = stats["skipped"].(int) + 1
		case IngestFailed:
			stats["failed"] = stats["failed"].(int) + 1
		}
	}
	status := domain.RunStatusSucceeded
	if stats["failed"].(int) > 0 {
		status = domain.RunStatusFailed
	}
	return p.runRepo.Finalize(ctx, run.ID, status, stats)
}

// Ingest runs the full pipeline for one (source, target) pair: resolve,
// fetch, extract, normalize, persist. Every attempt leaves a complete
// provenance trail regardless of outcome.
func (p *Pipeline) Ingest(ctx context.Context, sourceKey string, input adapter.Input, opts *IngestOptions) (*IngestResult, error) {
	if opts == nil {
		opts = &IngestOptions{}
	}
	if input.Empty() {
		return nil, fmt.Errorf("ingest target must carry an address or a parcel id")
	}

	srcCfg, err := p.registry.Get(sourceKey)
	if err != nil {
		return nil, err
	}
	adpt, err := p.registry.Adapter(sourceKey)
	if err != nil {
		return nil, err
	}
	limiter, err := p.registry.Limiter(sourceKey)
	if err != nil {
		return nil, err
	}

	source, err := p.sourceRepo.FindOrCreate(ctx, sourceRow(srcCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source row: %w", err)
	}

	// Open a single-job run unless the caller attached one.
	runID := opts.RunID
	var ownRun *domain.IngestRun
	if runID == "" {
		ownRun, err = p.StartRun(ctx, opts.Trigger, "ingest "+input.Describe())
		if err != nil {
			return nil, err
		}
		runID = ownRun.ID
	}

	job := &domain.IngestJob{
		ID:            uuid.New().String(),
		RunID:         runID,
		SourceID:      source.ID,
		InputAddress:  input.Address,
		InputParcelID: input.ParcelID,
		Status:        domain.JobStatusPending,
	}
	if err := p.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	log := p.log(ctx).WithFields(logger.Fields{
		logger.FieldRunID:  runID,
		logger.FieldJobID:  job.ID,
		logger.FieldSource: sourceKey,
	})
	start := time.Now()

	result := p.run(log.WithContext(ctx), job, srcCfg, source, adpt, limiter, input, opts)
	result.JobID = job.ID
	result.RunID = runID

	log.WithFields(logger.Fields{
		logger.FieldStatus:     string(result.Status),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info("Ingestion attempt finished")

	if ownRun != nil {
		if err := p.FinishRun(ctx, ownRun, []*IngestResult{result}); err != nil {
			log.WithError(err).Warn("Failed to finalize run")
		}
	}
	return result, nil
}

// run executes the pipeline stages for an already-created job and converts
// stage failures into the tri-state result.
func (p *Pipeline) run(
	ctx context.Context,
	job *domain.IngestJob,
	srcCfg registry.Config,
	source *domain.Source,
	adpt adapter.Adapter,
	limiter rateLimiter,
	input adapter.Input,
	opts *IngestOptions,
) (result *IngestResult) {
	log := p.log(ctx)

	// A panicking adapter must not take the process down; the panic value
	// becomes the job's failure reason.
	defer func() {
		if r := recover(); r != nil {
			result = p.conclude(ctx, job, adapter.Fatal(fmt.Errorf("panic: %v", r), "pipeline stage panicked"), "pipeline")
		}
	}()

	// Stage 1: resolve.
	var target *adapter.Target
	err := p.retry.Do(ctx, func(attempt int) error {
		if err := limiter.Wait(ctx); err != nil {
			return adapter.Transient(err, "rate limiter interrupted")
		}
		var rerr error
		target, rerr = adpt.Resolve(ctx, input)
		return rerr
	})
	if err != nil {
		return p.conclude(ctx, job, err, "resolve")
	}

	// Stage 2: fetch.
	if err := p.jobRepo.Advance(ctx, job, domain.JobStatusFetching); err != nil {
		return p.conclude(ctx, job, err, "fetch")
	}
	var fetched *adapter.FetchResult
	err = p.retry.Do(ctx, func(attempt int) error {
		if err := limiter.Wait(ctx); err != nil {
			return adapter.Transient(err, "rate limiter interrupted")
		}
		if attempt > 1 {
			log.WithFields(logger.Fields{logger.FieldAttempt: attempt}).
				Info("Retrying fetch")
		}
		fctx := ctx
		if p.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
			defer cancel()
		}
		var ferr error
		fetched, ferr = adpt.Fetch(fctx, target)
		return ferr
	})
	if err != nil {
		return p.conclude(ctx, job, err, "fetch")
	}
	if len(fetched.Payloads) == 0 {
		return p.conclude(ctx, job, adapter.Fatal(nil, "fetch returned no payloads"), "fetch")
	}
	fetchedAt := time.Now()

	// Stage 3: dedup check on the primary payload, then snapshot persistence.
	primaryHash := identity.HashContent(fetched.Payloads[0].Body)
	prior, err := p.fetchRepo.FindAuthoritative(ctx, source.ID, primaryHash, p.freshnessWindow())
	if err != nil {
		return p.conclude(ctx, job, err, "dedup lookup")
	}
	dedup := prior != nil && !opts.Force

	var primaryFetchID string
	if dedup {
		primaryFetchID = prior.ID
		log.WithFields(logger.Fields{"content_hash": primaryHash}).
			Info("Snapshot already authoritative, skipping duplicate storage")
	} else {
		primaryFetchID, err = p.storeSnapshots(ctx, job, source, fetched.Payloads)
		if err != nil {
			return p.conclude(ctx, job, err, "snapshot persistence")
		}
	}

	// Stage 4: extract. Pure; problems surface as warnings on the artifact.
	extraction := adpt.Extract(fetched.Payloads)
	signature, err := identity.Signature(extraction.Record)
	if err != nil {
		return p.conclude(ctx, job, err, "artifact signature")
	}

	artifact, err := p.persistArtifact(ctx, job, source, adpt, primaryFetchID, dedup, extraction, signature)
	if err != nil {
		return p.conclude(ctx, job, err, "artifact persistence")
	}
	if err := p.jobRepo.Advance(ctx, job, domain.JobStatusParsed); err != nil {
		return p.conclude(ctx, job, err, "parse")
	}

	// Stage 5: normalize and persist the canonical parcel.
	normalized, err := adpt.Normalize(extraction.Record)
	if err != nil {
		return p.conclude(ctx, job, err, "normalize")
	}
	normalized.Parcel.LastJobID = job.ID

	parcel, err := p.parcelRepo.UpsertWithChildren(ctx, normalized.Parcel, normalized.Assessments, normalized.Sales)
	if err != nil {
		return p.conclude(ctx, job, err, "parcel upsert")
	}
	if err := p.jobRepo.Advance(ctx, job, domain.JobStatusNormalized); err != nil {
		return p.conclude(ctx, job, err, "normalize")
	}

	key := identity.ParcelKey(parcel.StateFips, parcel.CountyFips, parcel.ParcelIDNorm)
	log.WithFields(logger.Fields{
		logger.FieldParcelKey: key,
		"confidence":          normalized.Confidence,
		"artifact_id":         artifact.ID,
	}).Info("Parcel normalized")

	return &IngestResult{
		Status:    IngestSuccess,
		ParcelKey: key,
		Parcel:    parcel,
		Warnings:  extraction.Warnings,
		Provenance: &Provenance{
			SourceKey:     srcCfg.Key,
			Method:        srcCfg.Platform,
			SourceURL:     target.URL,
			Confidence:    normalized.Confidence,
			SessionReused: fetched.SessionReused,
			Deduplicated:  dedup,
			FetchedAt:     fetchedAt,
		},
	}
}

// storeSnapshots persists one RawFetch row per payload and archives bodies
// when an archive is configured. Archive failures degrade to warnings; the
// database copy is authoritative. Returns the primary payload's row id.
func (p *Pipeline) storeSnapshots(ctx context.Context, job *domain.IngestJob, source *domain.Source, payloads []adapter.RawPayload) (string, error) {
	log := p.log(ctx)
	primaryID := ""

	for i, payload := range payloads {
		hash := identity.HashContent(payload.Body)
		fetch := &domain.RawFetch{
			ID:          uuid.New().String(),
			RunID:       job.RunID,
			JobID:       job.ID,
			SourceID:    source.ID,
			RequestURL:  payload.URL,
			StatusCode:  payload.StatusCode,
			Body:        payload.Body,
			Kind:        payload.Kind,
			Meta:        payload.Meta,
			ContentHash: hash,
		}

		if p.archive != nil {
			key := storage.SnapshotKey(hash)
			if err := p.archiveBody(ctx, key, payload); err != nil {
				log.WithError(err).WithFields(logger.Fields{"storage_key": key}).
					Warn("Snapshot archive write failed, keeping database copy only")
			} else {
				fetch.StorageKey = key
			}
		}

		if err := p.fetchRepo.Create(ctx, fetch); err != nil {
			return "", fmt.Errorf("failed to store snapshot: %w", err)
		}
		if i == 0 {
			primaryID = fetch.ID
		}
	}
	return primaryID, nil
}

func (p *Pipeline) archiveBody(ctx context.Context, key string, payload adapter.RawPayload) error {
	exists, err := p.archive.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return p.archive.Put(ctx, key,
		bytes.NewReader(payload.Body), int64(len(payload.Body)),
		storage.ContentTypeFor(string(payload.Kind)))
}

// persistArtifact stores the extraction output, reusing a prior artifact
// when the dedup path found one produced by the same parser version.
func (p *Pipeline) persistArtifact(
	ctx context.Context,
	job *domain.IngestJob,
	source *domain.Source,
	adpt adapter.Adapter,
	fetchID string,
	dedup bool,
	extraction *adapter.Extraction,
	signature string,
) (*domain.ParseArtifact, error) {
	if dedup {
		prior, err := p.artifactRepo.FindByFetch(ctx, fetchID, adpt.ParserVersion())
		if err != nil {
			return nil, err
		}
		if prior != nil {
			if prior.ContentSignature != signature {
				p.log(ctx).WithFields(logger.Fields{
					"artifact_id": prior.ID,
					"signature":   signature,
				}).Warn("Stored artifact signature diverges from re-extraction")
			} else {
				return prior, nil
			}
		}
	}

	payload, err := artifactPayload(extraction.Record)
	if err != nil {
		return nil, err
	}
	artifact := &domain.ParseArtifact{
		ID:               uuid.New().String(),
		JobID:            job.ID,
		SourceID:         source.ID,
		FetchID:          fetchID,
		ParserVersion:    adpt.ParserVersion(),
		ContentSignature: signature,
		Payload:          payload,
		Warnings:         extraction.Warnings,
	}
	if err := p.artifactRepo.Create(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to store parse artifact: %w", err)
	}
	return artifact, nil
}

// conclude marks the job failed and maps the failure kind onto the tri-state
// result: absent targets and unrunnable environments are skips, everything
// else is a failure.
func (p *Pipeline) conclude(ctx context.Context, job *domain.IngestJob, cause error, stage string) *IngestResult {
	reason := fmt.Sprintf("%s: %v", stage, cause)
	if err := p.jobRepo.Fail(ctx, job, reason); err != nil {
		p.log(ctx).WithError(err).Error("Failed to record job failure")
	}

	status := IngestFailed
	switch adapter.Classify(cause) {
	case adapter.FailureNotFound, adapter.FailureConfigMissing:
		status = IngestSkipped
		p.log(ctx).WithFields(logger.Fields{"stage": stage}).
			WithError(cause).Info("Ingestion skipped")
	default:
		p.log(ctx).WithFields(logger.Fields{"stage": stage}).
			WithError(cause).Error("Ingestion failed")
	}
	return &IngestResult{Status: status, Reason: reason}
}

func (p *Pipeline) freshnessWindow() time.Duration {
	if p.cfg.FreshnessWindow > 0 {
		return p.cfg.FreshnessWindow
	}
	return 24 * time.Hour
}

// sourceRow maps a registry config onto the persisted source row shape.
func sourceRow(cfg registry.Config) *domain.Source {
	return &domain.Source{
		ID:           uuid.New().String(),
		Key:          cfg.Key,
		DisplayName:  cfg.DisplayName,
		StateFips:    cfg.StateFips,
		CountyFips:   domain.StringArray(cfg.CountyFips),
		SourceType:   cfg.SourceType,
		Platform:     cfg.Platform,
		BaseURL:      cfg.BaseURL,
		Capabilities: domain.StringArray(cfg.Capabilities),
		RateRPS:      cfg.RateLimit.RequestsPerSecond,
		RateBurst:    cfg.RateLimit.Burst,
	}
}

// artifactPayload converts the tagged record into the stored JSON map form.
func artifactPayload(rec *adapter.Record) (domain.JSONMap, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}
	var m domain.JSONMap
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to shape record payload: %w", err)
	}
	return m, nil
}

// rateLimiter is the subset of *rate.Limiter the pipeline uses.
type rateLimiter interface {
	Wait(ctx context.Context) error
}
