package repository

import (
	"context"
	"errors"

	"github.com/rowan/parcelbase/internal/domain"
	"gorm.io/gorm"
)

// ArtifactRepository handles versioned parse artifacts.
type ArtifactRepository struct {
	db *gorm.DB
}

// NewArtifactRepository creates a new ArtifactRepository.
func NewArtifactRepository(db *gorm.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Create inserts a parse artifact.
func (r *ArtifactRepository) Create(ctx context.Context, artifact *domain.ParseArtifact) error {
	return r.db.WithContext(ctx).Create(artifact).Error
}

// GetByID retrieves an artifact by its ID.
func (r *ArtifactRepository) GetByID(ctx context.Context, id string) (*domain.ParseArtifact, error) {
	var artifact domain.ParseArtifact
	if err := r.db.WithContext(ctx).First(&artifact, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &artifact, nil
}

// FindByFetch returns the latest artifact derived from a raw fetch for the
// given parser version, or nil when none exists. Used by the dedup
// short-circuit to reuse prior extractions.
func (r *ArtifactRepository) FindByFetch(ctx context.Context, fetchID, parserVersion string) (*domain.ParseArtifact, error) {
	var artifact domain.ParseArtifact
	err := r.db.WithContext(ctx).
		Where("fetch_id = ? AND parser_version = ?", fetchID, parserVersion).
		Order("created_at DESC").
		First(&artifact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

// ListByJob retrieves the artifacts produced for a job.
func (r *ArtifactRepository) ListByJob(ctx context.Context, jobID string) ([]domain.ParseArtifact, error) {
	var artifacts []domain.ParseArtifact
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&artifacts).Error; err != nil {
		return nil, err
	}
	return artifacts, nil
}
