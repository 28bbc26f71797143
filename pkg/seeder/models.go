package seeder

import (
	"time"
)

// JobStatus is the lifecycle state of a batch seed job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// SeedJob is the GORM model for one batch seeding execution. Single-cohort
// seeds complete synchronously and never create a SeedJob. A job is mutated
// only by the worker and becomes immutable once terminal; there is no cancel
// and no resume — a failed batch restarts from scratch.
type SeedJob struct {
	ID          string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	ConfigID    string     `gorm:"column:config_id;index;not null"`
	RequestedBy string     `gorm:"column:requested_by"`
	Status      JobStatus  `gorm:"column:status;index;not null;default:queued"`
	Progress    int        `gorm:"column:progress;default:0"`
	Total       int        `gorm:"column:total;default:0"`
	CurrentItem string     `gorm:"column:current_item"`
	Error       string     `gorm:"column:error"`
	RequestedAt time.Time  `gorm:"column:requested_at;not null"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	FinishedAt  *time.Time `gorm:"column:finished_at"`
}

// TableName returns the GORM table name.
func (SeedJob) TableName() string { return "seed_jobs" }

// IsTerminal returns true once the job has finished, successfully or not.
func (j *SeedJob) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
