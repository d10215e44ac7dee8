package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rowan/parcelbase/internal/domain"
	"gorm.io/gorm"
)

// SourceRepository handles registered data provider records.
type SourceRepository struct {
	db *gorm.DB
}

// NewSourceRepository creates a new SourceRepository.
func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// FindOrCreate looks a source up by key, creating the row on first use.
// Source rows are effectively immutable after creation.
func (r *SourceRepository) FindOrCreate(ctx context.Context, src *domain.Source) (*domain.Source, error) {
	var existing domain.Source
	err := r.db.WithContext(ctx).First(&existing, "key = ?", src.Key).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(src).Error; err != nil {
		return nil, err
	}
	return src, nil
}

// GetByKey retrieves a source by its stable key.
func (r *SourceRepository) GetByKey(ctx context.Context, key string) (*domain.Source, error) {
	var src domain.Source
	if err := r.db.WithContext(ctx).First(&src, "key = ?", key).Error; err != nil {
		return nil, err
	}
	return &src, nil
}
