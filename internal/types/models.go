package types

import (
	"time"
)

// JobStatus is the lifecycle state of a submitted job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusComplete  JobStatus = "COMPLETE"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// StageStatus is the lifecycle state of one stage execution within a job.
type StageStatus string

const (
	StageStatusPending  StageStatus = "PENDING"
	StageStatusRunning  StageStatus = "RUNNING"
	StageStatusComplete StageStatus = "COMPLETE"
	StageStatusFailed   StageStatus = "FAILED"
)

// DefaultPriority applies when a submission does not set one.
// 1 is the most urgent, 10 the least.
const DefaultPriority = 5

// Job is one audio file's processing run.
type Job struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	ProfileID       string     `gorm:"index" json:"profile_id"`
	Filename        string     `json:"filename"`
	Status          JobStatus  `gorm:"index" json:"status"`
	CurrentStage    string     `json:"current_stage,omitempty"`
	Priority        int        `gorm:"index" json:"priority"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
	CostEstimate    float64    `json:"cost_estimate"`
	CancelRequested bool       `json:"cancel_requested"`
}

// Terminal reports whether the job can no longer change state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusComplete, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// StageResult records one stage's execution for one job. At most one row
// exists per (job, stage) pair.
type StageResult struct {
	ID           uint        `gorm:"primaryKey" json:"-"`
	JobID        string      `gorm:"index:idx_job_stage,unique" json:"job_id"`
	StageID      string      `gorm:"index:idx_job_stage,unique" json:"stage_id"`
	Status       StageStatus `json:"status"`
	ModelUsed    string      `json:"model_used,omitempty"`
	Provider     string      `json:"provider,omitempty"`
	InputTokens  int         `json:"input_tokens"`
	OutputTokens int         `json:"output_tokens"`
	CostEstimate float64     `json:"cost_estimate"`
	OutputRef    string      `json:"output_ref,omitempty"`
	Error        string      `json:"error,omitempty"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}
