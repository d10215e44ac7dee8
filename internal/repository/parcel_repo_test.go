package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rowan/parcelbase/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func intp(v int) *int       { return &v }
func int64p(v int64) *int64 { return &v }

func testParcel() *domain.NormalizedParcel {
	return &domain.NormalizedParcel{
		StateFips:        "53",
		CountyFips:       "033",
		ParcelIDNorm:     "06422003a",
		ParcelIDRaw:      "064-22-003A",
		SitusStreet:      "123 MAIN ST",
		SitusCity:        "SEATTLE",
		SitusState:       "WA",
		SitusZip:         "98101",
		SitusFullAddress: "123 MAIN ST SEATTLE WA 98101",
		OwnerName:        "DOE JOHN",
		YearBuilt:        intp(1985),
		Confidence:       0.9,
	}
}

func TestUpsertWithChildrenNoDuplicates(t *testing.T) {
	db := newTestDB(t)
	repo := NewParcelRepository(db)
	ctx := context.Background()

	assessments := []domain.Assessment{
		{TaxYear: 2023, AssessedValue: int64p(450000)},
		{TaxYear: 2024, AssessedValue: int64p(480000)},
	}
	sales := []domain.Sale{
		{SaleDate: "2020-01-15", Price: 400000, Buyer: "DOE JOHN"},
	}

	first, err := repo.UpsertWithChildren(ctx, testParcel(), assessments, sales)
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if len(first.Assessments) != 2 || len(first.Sales) != 1 {
		t.Fatalf("unexpected children: %d assessments, %d sales", len(first.Assessments), len(first.Sales))
	}

	// Second ingestion of the same parcel: same key, same tuples.
	second, err := repo.UpsertWithChildren(ctx, testParcel(),
		[]domain.Assessment{{TaxYear: 2024, AssessedValue: int64p(480000)}},
		[]domain.Sale{{SaleDate: "2020-01-15", Price: 400000}},
	)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a second row for the same key: %s != %s", second.ID, first.ID)
	}
	if len(second.Assessments) != 2 {
		t.Errorf("duplicate assessment year appended: got %d rows", len(second.Assessments))
	}
	if len(second.Sales) != 1 {
		t.Errorf("duplicate sale tuple appended: got %d rows", len(second.Sales))
	}

	count, err := repo.CountByKey(ctx, "53", "033", "06422003a")
	if err != nil {
		t.Fatalf("CountByKey failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one canonical row, got %d", count)
	}
}

func TestUpsertAppendsNewTuples(t *testing.T) {
	db := newTestDB(t)
	repo := NewParcelRepository(db)
	ctx := context.Background()

	if _, err := repo.UpsertWithChildren(ctx, testParcel(), nil, nil); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	updated, err := repo.UpsertWithChildren(ctx, testParcel(),
		[]domain.Assessment{{TaxYear: 2025, AssessedValue: int64p(500000)}},
		[]domain.Sale{{SaleDate: "2025-03-01", Price: 620000}},
	)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if len(updated.Assessments) != 1 || len(updated.Sales) != 1 {
		t.Errorf("new tuples not appended: %d assessments, %d sales",
			len(updated.Assessments), len(updated.Sales))
	}
}

func TestFindByKeyAbsent(t *testing.T) {
	db := newTestDB(t)
	repo := NewParcelRepository(db)

	got, err := repo.FindByKey(context.Background(), "06", "037", "nothere")
	if err != nil {
		t.Fatalf("FindByKey returned error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent key, got %+v", got)
	}
}

func TestSourceFindOrCreateIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewSourceRepository(db)
	ctx := context.Background()

	src := &domain.Source{
		ID:          uuid.New().String(),
		Key:         "king-wa-assessor",
		DisplayName: "King County Assessor",
		StateFips:   "53",
		CountyFips:  domain.StringArray{"033"},
		SourceType:  domain.SourceTypeAssessor,
		Platform:    domain.PlatformAPI,
	}

	first, err := repo.FindOrCreate(ctx, src)
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}

	again, err := repo.FindOrCreate(ctx, &domain.Source{Key: "king-wa-assessor"})
	if err != nil {
		t.Fatalf("second FindOrCreate failed: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("FindOrCreate created a second row: %s != %s", again.ID, first.ID)
	}
}
