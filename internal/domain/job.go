package domain

import (
	"fmt"
	"time"
)

// JobStatus represents the status of an ingest job. Transitions move strictly
// forward through pending, fetching, parsed, normalized; failed is terminal
// and reachable from any non-terminal state.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusFetching   JobStatus = "fetching"
	JobStatusParsed     JobStatus = "parsed"
	JobStatusNormalized JobStatus = "normalized"
	JobStatusFailed     JobStatus = "failed"
)

// jobStatusRank orders the forward path of the job state machine.
var jobStatusRank = map[JobStatus]int{
	JobStatusPending:    0,
	JobStatusFetching:   1,
	JobStatusParsed:     2,
	JobStatusNormalized: 3,
}

// IngestJob represents one attempt to ingest one target (an address or a
// parcel id) from one source within a run.
type IngestJob struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	RunID         string    `gorm:"type:text;not null;index" json:"run_id"`
	SourceID      string    `gorm:"type:text;not null;index" json:"source_id"`
	InputAddress  string    `gorm:"type:text" json:"input_address,omitempty"`
	InputParcelID string    `gorm:"type:text" json:"input_parcel_id,omitempty"`
	Status        JobStatus `gorm:"type:text;index;default:pending" json:"status"`
	Error         string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for IngestJob.
func (IngestJob) TableName() string {
	return "ingest_jobs"
}

// CanTransition reports whether moving from the job's current status to next
// is a legal state-machine transition. Failed is reachable from any
// non-terminal state; no backward transition is permitted.
func (j *IngestJob) CanTransition(next JobStatus) bool {
	if j.Status == JobStatusFailed {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	cur, ok := jobStatusRank[j.Status]
	if !ok {
		return false
	}
	nxt, ok := jobStatusRank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

// Transition advances the job status, rejecting regressions.
func (j *IngestJob) Transition(next JobStatus) error {
	if !j.CanTransition(next) {
		return fmt.Errorf("illegal job transition %s -> %s", j.Status, next)
	}
	j.Status = next
	return nil
}
