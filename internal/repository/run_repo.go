package repository

import (
	"context"
	"time"

	"github.com/rowan/parcelbase/internal/domain"
	"gorm.io/gorm"
)

// RunRepository handles ingestion run records.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run in running status.
func (r *RunRepository) Create(ctx context.Context, run *domain.IngestRun) error {
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	return r.db.WithContext(ctx).Create(run).Error
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.IngestRun, error) {
	var run domain.IngestRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// Finalize moves a run to a terminal status and stores its stats. Runs that
// already left running status are not touched again.
func (r *RunRepository) Finalize(ctx context.Context, id string, status domain.RunStatus, stats domain.JSONMap) error {
	return r.db.WithContext(ctx).
		Model(&domain.IngestRun{}).
		Where("id = ? AND status = ?", id, domain.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":     status,
			"stats":      stats,
			"updated_at": time.Now(),
		}).Error
}

// ListJobs retrieves the jobs belonging to a run.
func (r *RunRepository) ListJobs(ctx context.Context, runID string) ([]domain.IngestJob, error) {
	var jobs []domain.IngestJob
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
