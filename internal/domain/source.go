package domain

import "time"

// SourceType represents the kind of data a source provides.
type SourceType string

const (
	SourceTypeAssessor SourceType = "assessor"
	SourceTypeMLS      SourceType = "mls"
	SourceTypeGIS      SourceType = "gis"
)

// SourcePlatform represents how a source is accessed.
type SourcePlatform string

const (
	PlatformAPI        SourcePlatform = "api"
	PlatformPlaywright SourcePlatform = "playwright"
	PlatformStaticHTML SourcePlatform = "static-html"
)

// Common capability flags declared by sources.
const (
	CapabilityAddressSearch = "addressSearch"
	CapabilityAVM           = "avm"
	CapabilityRentals       = "rentals"
	CapabilityListings      = "listings"
	CapabilitySalesHistory  = "salesHistory"
)

// Source represents a registered data provider. Rows are created once via
// find-or-create by key and are effectively immutable afterward.
type Source struct {
	ID           string         `gorm:"type:text;primaryKey" json:"id"`
	Key          string         `gorm:"type:text;not null;uniqueIndex:idx_sources_key" json:"key"`
	DisplayName  string         `gorm:"type:text;not null" json:"display_name"`
	StateFips    string         `gorm:"type:text;not null" json:"state_fips"`
	CountyFips   StringArray    `gorm:"type:text" json:"county_fips"`
	SourceType   SourceType     `gorm:"type:text;not null" json:"source_type"`
	Platform     SourcePlatform `gorm:"type:text;not null" json:"platform"`
	BaseURL      string         `gorm:"type:text" json:"base_url"`
	Capabilities StringArray    `gorm:"type:text" json:"capabilities"`
	RateRPS      float64        `gorm:"default:1" json:"rate_rps"`
	RateBurst    int            `gorm:"default:1" json:"rate_burst"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Source.
func (Source) TableName() string {
	return "sources"
}

// HasCapability reports whether the source declares the given capability flag.
func (s *Source) HasCapability(cap string) bool {
	for _, c := range s.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
