package domain

import "time"

// NormalizedParcel is the canonical property record, keyed by
// (state_fips, county_fips, parcel_id_norm). Multiple ingestion attempts
// across time upsert the same key; the row is never partially written.
type NormalizedParcel struct {
	ID           string `gorm:"type:text;primaryKey" json:"id"`
	StateFips    string `gorm:"type:text;not null;uniqueIndex:idx_parcels_key" json:"state_fips"`
	CountyFips   string `gorm:"type:text;not null;uniqueIndex:idx_parcels_key" json:"county_fips"`
	ParcelIDNorm string `gorm:"type:text;not null;uniqueIndex:idx_parcels_key" json:"parcel_id_norm"`
	ParcelIDRaw  string `gorm:"type:text" json:"parcel_id_raw,omitempty"`

	// Normalized situs address.
	SitusStreet      string `gorm:"type:text" json:"situs_street,omitempty"`
	SitusCity        string `gorm:"type:text" json:"situs_city,omitempty"`
	SitusState       string `gorm:"type:text" json:"situs_state,omitempty"`
	SitusZip         string `gorm:"type:text" json:"situs_zip,omitempty"`
	SitusFullAddress string `gorm:"type:text;index" json:"situs_full_address,omitempty"`

	OwnerName string `gorm:"type:text" json:"owner_name,omitempty"`

	// Improvement details, all optional.
	YearBuilt      *int     `json:"year_built,omitempty"`
	Bedrooms       *int     `json:"bedrooms,omitempty"`
	Bathrooms      *float64 `json:"bathrooms,omitempty"`
	LivingAreaSqFt *int     `json:"living_area_sqft,omitempty"`

	Confidence float64   `gorm:"default:0" json:"confidence"`
	LastJobID  string    `gorm:"type:text" json:"last_job_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Assessments []Assessment `gorm:"-" json:"assessments,omitempty"`
	Sales       []Sale       `gorm:"-" json:"sales,omitempty"`
}

// TableName returns the database table name for NormalizedParcel.
func (NormalizedParcel) TableName() string {
	return "normalized_parcels"
}

// Assessment is one yearly tax-assessment record for a parcel. At most one
// row per (parcel, tax year).
type Assessment struct {
	ID               string    `gorm:"type:text;primaryKey" json:"id"`
	ParcelID         string    `gorm:"type:text;not null;uniqueIndex:idx_assessments_year" json:"parcel_id"`
	TaxYear          int       `gorm:"not null;uniqueIndex:idx_assessments_year" json:"tax_year"`
	AssessedValue    *int64    `json:"assessed_value,omitempty"`
	MarketValue      *int64    `json:"market_value,omitempty"`
	LandValue        *int64    `json:"land_value,omitempty"`
	ImprovementValue *int64    `json:"improvement_value,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName returns the database table name for Assessment.
func (Assessment) TableName() string {
	return "assessments"
}

// Sale is one recorded transfer for a parcel. At most one row per
// (parcel, sale date, price).
type Sale struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	ParcelID  string    `gorm:"type:text;not null;uniqueIndex:idx_sales_tuple" json:"parcel_id"`
	SaleDate  string    `gorm:"type:text;not null;uniqueIndex:idx_sales_tuple" json:"sale_date"`
	Price     int64     `gorm:"not null;uniqueIndex:idx_sales_tuple" json:"price"`
	Buyer     string    `gorm:"type:text" json:"buyer,omitempty"`
	Seller    string    `gorm:"type:text" json:"seller,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Sale.
func (Sale) TableName() string {
	return "sales"
}
