package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rowan/parcelbase/internal/domain"
	"gorm.io/gorm"
)

// FetchRepository handles immutable RawFetch snapshots and the dedup lookup
// that makes re-ingestion idempotent.
type FetchRepository struct {
	db *gorm.DB
}

// NewFetchRepository creates a new FetchRepository.
func NewFetchRepository(db *gorm.DB) *FetchRepository {
	return &FetchRepository{db: db}
}

// Create inserts a raw fetch snapshot. Rows are write-once.
func (r *FetchRepository) Create(ctx context.Context, fetch *domain.RawFetch) error {
	return r.db.WithContext(ctx).Create(fetch).Error
}

// ListByJob retrieves the snapshots captured for a job in insertion order.
func (r *FetchRepository) ListByJob(ctx context.Context, jobID string) ([]domain.RawFetch, error) {
	var fetches []domain.RawFetch
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&fetches).Error; err != nil {
		return nil, err
	}
	return fetches, nil
}

// FindAuthoritative returns the most recent fetch for (source, content hash)
// within the freshness window, or nil when none exists. At most one row is
// treated as authoritative for dedup purposes.
func (r *FetchRepository) FindAuthoritative(ctx context.Context, sourceID, contentHash string, window time.Duration) (*domain.RawFetch, error) {
	var fetch domain.RawFetch
	cutoff := time.Now().Add(-window)
	err := r.db.WithContext(ctx).
		Where("source_id = ? AND content_hash = ? AND created_at >= ?", sourceID, contentHash, cutoff).
		Order("created_at DESC").
		First(&fetch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fetch, nil
}
