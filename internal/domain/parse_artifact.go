package domain

import "time"

// ParseArtifact is the structured-but-not-yet-canonical extraction of a
// job's raw fetches, tagged with the parser version that produced it.
//
// Reproducibility contract: re-running the same parser version against the
// same raw input yields an artifact with an identical content signature. This
// is what allows idempotent re-parsing from stored bytes without re-fetching.
type ParseArtifact struct {
	ID               string      `gorm:"type:text;primaryKey" json:"id"`
	JobID            string      `gorm:"type:text;not null;index" json:"job_id"`
	SourceID         string      `gorm:"type:text;not null;index" json:"source_id"`
	FetchID          string      `gorm:"type:text;index" json:"fetch_id,omitempty"`
	ParserVersion    string      `gorm:"type:text;not null" json:"parser_version"`
	ContentSignature string      `gorm:"type:text;not null;index" json:"content_signature"`
	Payload          JSONMap     `gorm:"type:text" json:"payload"`
	Warnings         StringArray `gorm:"type:text" json:"warnings"`
	CreatedAt        time.Time   `json:"created_at"`
}

// TableName returns the database table name for ParseArtifact.
func (ParseArtifact) TableName() string {
	return "parse_artifacts"
}
