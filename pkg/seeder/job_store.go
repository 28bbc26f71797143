package seeder

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pitchside/rebuild-server/pkg/apierr"
)

// JobStore provides database operations for seed jobs.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// AutoMigrate creates or updates the seed_jobs table.
func (s *JobStore) AutoMigrate() error {
	return s.db.AutoMigrate(&SeedJob{})
}

// Enqueue creates a new queued job. A config with a job still queued or
// running cannot take a second one; the overlapping request is rejected with
// a ConflictError.
func (s *JobStore) Enqueue(job *SeedJob) (*SeedJob, error) {
	if job.Status == "" {
		job.Status = JobQueued
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now()
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing SeedJob
		err := tx.Where("config_id = ? AND status IN ?", job.ConfigID,
			[]JobStatus{JobQueued, JobRunning}).First(&existing).Error
		if err == nil {
			return apierr.Conflict("a seed job for this config is already %s (job %s)",
				existing.Status, existing.ID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.Infrastructure("check in-flight jobs", err)
		}

		if err := tx.Create(job).Error; err != nil {
			return apierr.Infrastructure("enqueue seed job", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Claim atomically picks the oldest queued job and transitions it to
// running. Returns nil when no jobs are available.
func (s *JobStore) Claim() (*SeedJob, error) {
	var job SeedJob

	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("status = ?", JobQueued).
			Order("requested_at ASC").
			Limit(1).
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return apierr.Infrastructure("find queued job", err)
		}

		now := time.Now()
		res := tx.Model(&SeedJob{}).
			Where("id = ? AND status = ?", job.ID, JobQueued).
			Updates(map[string]any{
				"status":     JobRunning,
				"started_at": now,
			})
		if res.Error != nil {
			return apierr.Infrastructure("claim job", res.Error)
		}
		if res.RowsAffected == 0 {
			// Another worker claimed the job between the read and the
			// guarded update.
			job = SeedJob{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, nil
	}

	if err := s.db.First(&job, "id = ?", job.ID).Error; err != nil {
		return nil, apierr.Infrastructure("reload claimed job", err)
	}
	return &job, nil
}

// SetProgress records progress and the unit currently being seeded.
func (s *JobStore) SetProgress(jobID string, progress int, currentItem string) error {
	err := s.db.Model(&SeedJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"progress":     progress,
		"current_item": currentItem,
	}).Error
	if err != nil {
		return apierr.Infrastructure("set job progress", err)
	}
	return nil
}

// Complete marks a job as completed.
func (s *JobStore) Complete(jobID string) error {
	now := time.Now()
	err := s.db.Model(&SeedJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"status":       JobCompleted,
		"finished_at":  now,
		"current_item": "",
	}).Error
	if err != nil {
		return apierr.Infrastructure("complete job", err)
	}
	return nil
}

// Fail marks a job as failed with the given error message. Cohorts already
// seeded keep their outcomes; partial progress is preserved by design.
func (s *JobStore) Fail(jobID string, errMsg string) error {
	now := time.Now()
	err := s.db.Model(&SeedJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"status":      JobFailed,
		"finished_at": now,
		"error":       errMsg,
	}).Error
	if err != nil {
		return apierr.Infrastructure("fail job", err)
	}
	return nil
}

// Get retrieves a job by id. Returns nil, nil when the job does not exist.
func (s *JobStore) Get(jobID string) (*SeedJob, error) {
	var job SeedJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apierr.Infrastructure("get job", err)
	}
	return &job, nil
}

// JobListFilter defines filters for listing jobs.
type JobListFilter struct {
	ConfigID string
	Status   string
}

// List returns paginated jobs matching the filter, newest first. pageToken
// is an RFC3339Nano timestamp over requested_at.
func (s *JobStore) List(filter JobListFilter, pageSize int, pageToken string) ([]SeedJob, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&SeedJob{})
		if filter.ConfigID != "" {
			q = q.Where("config_id = ?", filter.ConfigID)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, apierr.Infrastructure("count jobs", err)
	}

	query := buildQuery(s.db).Order("requested_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, apierr.Validation("invalid page token: %v", err)
		}
		query = query.Where("requested_at < ?", t)
	}

	var records []SeedJob
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, apierr.Infrastructure("list jobs", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].RequestedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// DeleteOlderThan removes terminal jobs finished before the cutoff.
func (s *JobStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("status IN ? AND finished_at < ?",
		[]JobStatus{JobCompleted, JobFailed}, cutoff).
		Delete(&SeedJob{})
	if result.Error != nil {
		return 0, apierr.Infrastructure("delete old jobs", result.Error)
	}
	return result.RowsAffected, nil
}
