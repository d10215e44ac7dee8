package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rowan/parcelbase/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles ingestion job records. Status updates go through the
// domain transition check so no backward transition ever reaches the store.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job in pending status.
func (r *JobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	var job domain.IngestJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Advance moves a job forward to the next status, rejecting regressions.
func (r *JobRepository) Advance(ctx context.Context, job *domain.IngestJob, next domain.JobStatus) error {
	if err := job.Transition(next); err != nil {
		return err
	}
	job.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Model(&domain.IngestJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":     job.Status,
			"updated_at": job.UpdatedAt,
		}).Error
}

// Fail marks a job failed with the captured message. Legal from any
// non-terminal state.
func (r *JobRepository) Fail(ctx context.Context, job *domain.IngestJob, msg string) error {
	if err := job.Transition(domain.JobStatusFailed); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	job.Error = msg
	job.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Model(&domain.IngestJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusFailed,
			"error":      msg,
			"updated_at": job.UpdatedAt,
		}).Error
}
