package domain

import (
	"time"
)

// JobStatus represents the state of a posting job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job aggregates one posting run over a set of listings.
// Invariant: Completed+Failed <= Total, and both counters only grow
// within a run.
type Job struct {
	JobID               string     `db:"job_id"                json:"job_id"`
	Status              JobStatus  `db:"status"                json:"status"`
	Total               int        `db:"total"                 json:"total"`
	Completed           int        `db:"completed"             json:"completed"`
	Failed              int        `db:"failed"                json:"failed"`
	CurrentListingID    *string    `db:"current_listing_id"    json:"current_listing_id,omitempty"`
	CurrentListingTitle *string    `db:"current_listing_title" json:"current_listing_title,omitempty"`
	ErrorMessage        *string    `db:"error_message"         json:"error_message,omitempty"`
	StartedAt           time.Time  `db:"started_at"            json:"started_at"`
	CompletedAt         *time.Time `db:"completed_at"          json:"completed_at,omitempty"`
}

// NewJob creates a running job with zero counters.
func NewJob(jobID string, total int) *Job {
	return &Job{
		JobID:     jobID,
		Status:    JobStatusRunning,
		Total:     total,
		StartedAt: time.Now(),
	}
}

// IsTerminal reports whether the job has finished.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ProgressPercentage returns how far the run has advanced, 0-100.
func (j *Job) ProgressPercentage() float64 {
	if j.Total == 0 {
		return 0
	}
	return float64(j.Completed+j.Failed) / float64(j.Total) * 100
}

// JobSnapshot is the poll/stream payload exposed to clients.
type JobSnapshot struct {
	JobID               string     `json:"job_id"`
	Status              JobStatus  `json:"status"`
	Total               int        `json:"total"`
	Completed           int        `json:"completed"`
	Failed              int        `json:"failed"`
	CurrentListingID    *string    `json:"current_listing_id,omitempty"`
	CurrentListingTitle *string    `json:"current_listing_title,omitempty"`
	ErrorMessage        *string    `json:"error_message,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	ProgressPercentage  float64    `json:"progress_percentage"`
}

// Snapshot converts the job to its client-facing payload.
func (j *Job) Snapshot() JobSnapshot {
	return JobSnapshot{
		JobID:               j.JobID,
		Status:              j.Status,
		Total:               j.Total,
		Completed:           j.Completed,
		Failed:              j.Failed,
		CurrentListingID:    j.CurrentListingID,
		CurrentListingTitle: j.CurrentListingTitle,
		ErrorMessage:        j.ErrorMessage,
		StartedAt:           j.StartedAt,
		CompletedAt:         j.CompletedAt,
		ProgressPercentage:  j.ProgressPercentage(),
	}
}
