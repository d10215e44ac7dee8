package domain

import "time"

// FetchKind tags the shape of a captured response body.
type FetchKind string

const (
	FetchKindHTML FetchKind = "html"
	FetchKindAPI  FetchKind = "api"
	FetchKindJSON FetchKind = "json"
)

// RawFetch is an immutable snapshot of one network or browser response
// captured for a job. Rows are write-once; normal flow never mutates or
// deletes them. Multiple rows may exist per job, one per request issued.
type RawFetch struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	RunID       string    `gorm:"type:text;not null;index" json:"run_id"`
	JobID       string    `gorm:"type:text;not null;index" json:"job_id"`
	SourceID    string    `gorm:"type:text;not null;index" json:"source_id"`
	RequestURL  string    `gorm:"type:text;not null" json:"request_url"`
	StatusCode  int       `json:"status_code"`
	Body        []byte    `gorm:"type:blob" json:"-"`
	Kind        FetchKind `gorm:"type:text" json:"kind"`
	Meta        JSONMap   `gorm:"type:text" json:"meta"`
	ContentHash string    `gorm:"type:text;not null;index:idx_raw_fetches_hash" json:"content_hash"`
	// StorageKey is set when the body was also archived to object storage.
	StorageKey string    `gorm:"type:text" json:"storage_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for RawFetch.
func (RawFetch) TableName() string {
	return "raw_fetches"
}
