package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rowan/parcelbase/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ParcelRepository handles the canonical parcel table and its assessment and
// sale children. The upsert is atomic by key: one transaction covers the
// parcel row and all child appends, so concurrent normalization of the same
// key never produces two rows or a partially written row set.
type ParcelRepository struct {
	db *gorm.DB
}

// NewParcelRepository creates a new ParcelRepository.
func NewParcelRepository(db *gorm.DB) *ParcelRepository {
	return &ParcelRepository{db: db}
}

// UpsertWithChildren creates or updates a parcel by its canonical key and
// appends assessments/sales that are not already present. Identical
// (year) and (date, price) tuples are never duplicated.
func (r *ParcelRepository) UpsertWithChildren(
	ctx context.Context,
	parcel *domain.NormalizedParcel,
	assessments []domain.Assessment,
	sales []domain.Sale,
) (*domain.NormalizedParcel, error) {
	if parcel.ID == "" {
		parcel.ID = uuid.New().String()
	}
	now := time.Now()
	parcel.UpdatedAt = now
	if parcel.CreatedAt.IsZero() {
		parcel.CreatedAt = now
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "state_fips"}, {Name: "county_fips"}, {Name: "parcel_id_norm"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"parcel_id_raw",
				"situs_street", "situs_city", "situs_state", "situs_zip", "situs_full_address",
				"owner_name",
				"year_built", "bedrooms", "bathrooms", "living_area_sq_ft",
				"confidence", "last_job_id", "updated_at",
			}),
		}).Create(parcel).Error; err != nil {
			return err
		}

		// The insert id is discarded on conflict; read the canonical row id back.
		var stored domain.NormalizedParcel
		if err := tx.
			Where("state_fips = ? AND county_fips = ? AND parcel_id_norm = ?",
				parcel.StateFips, parcel.CountyFips, parcel.ParcelIDNorm).
			First(&stored).Error; err != nil {
			return err
		}
		parcel.ID = stored.ID
		parcel.CreatedAt = stored.CreatedAt

		for i := range assessments {
			assessments[i].ParcelID = parcel.ID
			if assessments[i].ID == "" {
				assessments[i].ID = uuid.New().String()
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "parcel_id"}, {Name: "tax_year"}},
				DoNothing: true,
			}).Create(&assessments[i]).Error; err != nil {
				return err
			}
		}

		for i := range sales {
			sales[i].ParcelID = parcel.ID
			if sales[i].ID == "" {
				sales[i].ID = uuid.New().String()
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "parcel_id"}, {Name: "sale_date"}, {Name: "price"}},
				DoNothing: true,
			}).Create(&sales[i]).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.FindByKey(ctx, parcel.StateFips, parcel.CountyFips, parcel.ParcelIDNorm)
}

// FindByKey retrieves a parcel by its canonical key together with its
// assessment and sale children, or nil when absent.
func (r *ParcelRepository) FindByKey(ctx context.Context, stateFips, countyFips, parcelIDNorm string) (*domain.NormalizedParcel, error) {
	var parcel domain.NormalizedParcel
	err := r.db.WithContext(ctx).
		Where("state_fips = ? AND county_fips = ? AND parcel_id_norm = ?", stateFips, countyFips, parcelIDNorm).
		First(&parcel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Where("parcel_id = ?", parcel.ID).
		Order("tax_year ASC").
		Find(&parcel.Assessments).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("parcel_id = ?", parcel.ID).
		Order("sale_date ASC").
		Find(&parcel.Sales).Error; err != nil {
		return nil, err
	}

	return &parcel, nil
}

// CountByKey counts canonical rows for one key; used to assert the
// atomic-by-key invariant in tests.
func (r *ParcelRepository) CountByKey(ctx context.Context, stateFips, countyFips, parcelIDNorm string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.NormalizedParcel{}).
		Where("state_fips = ? AND county_fips = ? AND parcel_id_norm = ?", stateFips, countyFips, parcelIDNorm).
		Count(&count).Error
	return count, err
}
