// Package adapter defines the capability contract every property-record
// source implements: resolve, fetch, extract, normalize. The pipeline is
// source-agnostic; concrete adapters live in subpackages.
package adapter

import (
	"context"

	"github.com/rowan/parcelbase/internal/domain"
)

// Input identifies one ingestion target: an address or a parcel id.
// Exactly one of the two fields is normally set.
type Input struct {
	Address  string
	ParcelID string
}

// Describe returns a short human-readable form of the input for logs.
func (i Input) Describe() string {
	if i.ParcelID != "" {
		return "parcel:" + i.ParcelID
	}
	return "address:" + i.Address
}

// Empty reports whether neither an address nor a parcel id was supplied.
func (i Input) Empty() bool {
	return i.Address == "" && i.ParcelID == ""
}

// Target is the resolved location of a record on a source.
type Target struct {
	// URL is the canonical record URL on the source.
	URL string
	// SourceRef is the source-local identifier of the record, when known.
	SourceRef string
	// Meta carries adapter-specific hints passed from Resolve to Fetch.
	Meta map[string]string
}

// RawPayload is one captured response produced by Fetch.
type RawPayload struct {
	URL        string
	StatusCode int
	Body       []byte
	Kind       domain.FetchKind
	Meta       map[string]interface{}
}

// FetchResult bundles the payloads of one fetch stage. SessionReused is
// reported for observability: browser adapters keep sessions alive across
// jobs and report whether this fetch created a fresh one.
type FetchResult struct {
	Payloads      []RawPayload
	SessionReused bool
}

// RecordKind tags the closed set of structured-record variants. Dynamic
// per-source payloads are converted into one of these at the adapter
// boundary; nothing downstream handles loosely-typed data.
type RecordKind string

const (
	RecordKindGIS RecordKind = "gis"
	RecordKindMLS RecordKind = "mls"
)

// Record is the tagged structured form produced by Extract. Exactly one of
// the variant pointers is set, matching Kind.
type Record struct {
	Kind RecordKind `json:"kind"`
	GIS  *GISRecord `json:"gis,omitempty"`
	MLS  *MLSRecord `json:"mls,omitempty"`
}

// YearValue is one tax-year valuation as extracted from a source.
type YearValue struct {
	TaxYear          int    `json:"tax_year"`
	AssessedValue    *int64 `json:"assessed_value,omitempty"`
	MarketValue      *int64 `json:"market_value,omitempty"`
	LandValue        *int64 `json:"land_value,omitempty"`
	ImprovementValue *int64 `json:"improvement_value,omitempty"`
}

// SaleEvent is one recorded transfer as extracted from a source.
type SaleEvent struct {
	Date   string `json:"date"`
	Price  int64  `json:"price"`
	Buyer  string `json:"buyer,omitempty"`
	Seller string `json:"seller,omitempty"`
}

// GISRecord is the structured form of a county GIS/assessor portal record.
type GISRecord struct {
	ParcelID       string      `json:"parcel_id"`
	SitusStreet    string      `json:"situs_street,omitempty"`
	SitusCity      string      `json:"situs_city,omitempty"`
	SitusState     string      `json:"situs_state,omitempty"`
	SitusZip       string      `json:"situs_zip,omitempty"`
	Owner          string      `json:"owner,omitempty"`
	YearBuilt      *int        `json:"year_built,omitempty"`
	Bedrooms       *int        `json:"bedrooms,omitempty"`
	Bathrooms      *float64    `json:"bathrooms,omitempty"`
	LivingAreaSqFt *int        `json:"living_area_sqft,omitempty"`
	Assessments    []YearValue `json:"assessments,omitempty"`
	Sales          []SaleEvent `json:"sales,omitempty"`
}

// MLSRecord is the structured form of a scraped MLS listing page.
type MLSRecord struct {
	ListingID      string      `json:"listing_id"`
	ParcelID       string      `json:"parcel_id,omitempty"`
	SitusStreet    string      `json:"situs_street,omitempty"`
	SitusCity      string      `json:"situs_city,omitempty"`
	SitusState     string      `json:"situs_state,omitempty"`
	SitusZip       string      `json:"situs_zip,omitempty"`
	ListPrice      *int64      `json:"list_price,omitempty"`
	YearBuilt      *int        `json:"year_built,omitempty"`
	Bedrooms       *int        `json:"bedrooms,omitempty"`
	Bathrooms      *float64    `json:"bathrooms,omitempty"`
	LivingAreaSqFt *int        `json:"living_area_sqft,omitempty"`
	Sales          []SaleEvent `json:"sales,omitempty"`
}

// Extraction is the outcome of the extract stage. Extract never fails:
// malformed or unrecognized fields become warnings, not errors.
type Extraction struct {
	Record   *Record
	Warnings []string
}

// NormalizedResult is the outcome of the normalize stage: the canonical
// parcel, its child rows, and the computed confidence score.
type NormalizedResult struct {
	Parcel      *domain.NormalizedParcel
	Assessments []domain.Assessment
	Sales       []domain.Sale
	Confidence  float64
}

// Adapter is the four-operation capability contract every source implements.
// Each operation is independently callable and independently failable.
type Adapter interface {
	// Key returns the stable source key this adapter serves.
	Key() string

	// ParserVersion identifies the extract logic version. Artifacts produced
	// by the same version from the same input carry identical signatures.
	ParserVersion() string

	// Resolve locates the canonical record for the input on the source.
	// Deterministic for identical input given stable source state. A
	// legitimately absent target fails with FailureNotFound.
	Resolve(ctx context.Context, input Input) (*Target, error)

	// Fetch retrieves the raw payload(s) for a resolved target. Failures are
	// classified via *adapter.Error; ctx deadlines must be honored.
	Fetch(ctx context.Context, target *Target) (*FetchResult, error)

	// Extract parses raw payloads into the structured record form. Pure, no
	// I/O, never fails; problems surface as warnings.
	Extract(payloads []RawPayload) *Extraction

	// Normalize maps the structured record to the canonical schema and
	// computes the confidence score.
	Normalize(rec *Record) (*NormalizedResult, error)
}
