package domain

import "time"

// RunStatus represents the lifecycle status of an ingestion run.
// A run is terminal once its status leaves RunStatusRunning.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunTrigger identifies what started an ingestion run.
type RunTrigger string

const (
	RunTriggerManual    RunTrigger = "manual"
	RunTriggerWebhook   RunTrigger = "webhook"
	RunTriggerScheduled RunTrigger = "scheduled"
)

// IngestRun represents one logical ingestion session. A run may contain
// several jobs, one per (target, source) pair.
type IngestRun struct {
	ID        string     `gorm:"type:text;primaryKey" json:"id"`
	Trigger   RunTrigger `gorm:"type:text;not null" json:"trigger"`
	Purpose   string     `gorm:"type:text" json:"purpose,omitempty"`
	Status    RunStatus  `gorm:"type:text;index;default:running" json:"status"`
	Stats     JSONMap    `gorm:"type:text" json:"stats"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the database table name for IngestRun.
func (IngestRun) TableName() string {
	return "ingest_runs"
}

// Terminal reports whether the run has reached a final status.
func (r *IngestRun) Terminal() bool {
	return r.Status != RunStatusRunning
}
