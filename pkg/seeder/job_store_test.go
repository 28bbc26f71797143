package seeder

import (
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pitchside/rebuild-server/pkg/apierr"
)

func setupJobTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&SeedJob{}))
	return db
}

func newTestJob(configID string) *SeedJob {
	return &SeedJob{
		ID:          uuid.New().String(),
		ConfigID:    configID,
		RequestedBy: "test-user",
		Status:      JobQueued,
		Total:       4,
		RequestedAt: time.Now(),
	}
}

func TestEnqueueCreatesQueuedJob(t *testing.T) {
	store := NewJobStore(setupJobTestDB(t))

	created, err := store.Enqueue(newTestJob("cfg1"))
	require.NoError(t, err)
	assert.Equal(t, JobQueued, created.Status)
	assert.Equal(t, 4, created.Total)
	assert.False(t, created.IsTerminal())
}

func TestEnqueueRejectsOverlappingJob(t *testing.T) {
	store := NewJobStore(setupJobTestDB(t))

	first, err := store.Enqueue(newTestJob("cfg1"))
	require.NoError(t, err)

	_, err = store.Enqueue(newTestJob("cfg1"))
	assert.True(t, apierr.IsConflict(err))

	// A different config is unaffected.
	_, err = store.Enqueue(newTestJob("cfg2"))
	require.NoError(t, err)

	// Once the first job is terminal the config can queue again.
	require.NoError(t, store.Complete(first.ID))
	_, err = store.Enqueue(newTestJob("cfg1"))
	require.NoError(t, err)
}

func TestClaimPicksOldestQueued(t *testing.T) {
	store := NewJobStore(setupJobTestDB(t))

	older := newTestJob("cfg1")
	older.RequestedAt = time.Now().Add(-time.Hour)
	_, err := store.Enqueue(older)
	require.NoError(t, err)
	_, err = store.Enqueue(newTestJob("cfg2"))
	require.NoError(t, err)

	claimed, err := store.Claim()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, older.ID, claimed.ID)
	assert.Equal(t, JobRunning, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)
}

func TestClaimYieldsToFasterWorker(t *testing.T) {
	db := setupJobTestDB(t)
	store := NewJobStore(db)

	job, err := store.Enqueue(newTestJob("cfg1"))
	require.NoError(t, err)

	// Another worker takes the job between Claim's read and its guarded
	// update; the update then matches nothing and the claim comes back
	// empty instead of double-running the job.
	var once sync.Once
	require.NoError(t, db.Callback().Query().After("gorm:query").
		Register("take_after_read", func(d *gorm.DB) {
			if d.Statement.Table != "seed_jobs" {
				return
			}
			once.Do(func() {
				_, execErr := d.Statement.ConnPool.ExecContext(d.Statement.Context,
					"UPDATE seed_jobs SET status = ? WHERE id = ?",
					string(JobRunning), job.ID)
				assert.NoError(t, execErr)
			})
		}))
	t.Cleanup(func() { _ = db.Callback().Query().Remove("take_after_read") })

	claimed, err := store.Claim()
	require.NoError(t, err)
	assert.Nil(t, claimed)

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, got.Status, "the job stays with the worker that won it")
}

func TestClaimReturnsNilWhenEmpty(t *testing.T) {
	store := NewJobStore(setupJobTestDB(t))

	claimed, err := store.Claim()
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestJobLifecycleUpdates(t *testing.T) {
	store := NewJobStore(setupJobTestDB(t))

	job, err := store.Enqueue(newTestJob("cfg1"))
	require.NoError(t, err)

	require.NoError(t, store.SetProgress(job.ID, 2, "Chelsea 2023 (league 39)"))
	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Progress)
	assert.Equal(t, "Chelsea 2023 (league 39)", got.CurrentItem)

	require.NoError(t, store.Complete(job.ID))
	got, err = store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, got.Status)
	assert.True(t, got.IsTerminal())
	assert.NotNil(t, got.FinishedAt)
	assert.Empty(t, got.CurrentItem)
}

func TestFailRecordsError(t *testing.T) {
	store := NewJobStore(setupJobTestDB(t))

	job, err := store.Enqueue(newTestJob("cfg1"))
	require.NoError(t, err)
	require.NoError(t, store.Fail(job.ID, "database went away"))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	assert.Equal(t, "database went away", got.Error)
}

func TestGetMissingJobReturnsNil(t *testing.T) {
	store := NewJobStore(setupJobTestDB(t))

	job, err := store.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestListFiltersAndPaginates(t *testing.T) {
	store := NewJobStore(setupJobTestDB(t))

	for i := 0; i < 3; i++ {
		job := newTestJob("cfg1")
		job.RequestedAt = time.Now().Add(time.Duration(-i) * time.Hour)
		_, err := store.Enqueue(job)
		require.NoError(t, err)
		require.NoError(t, store.Complete(job.ID))
	}
	other := newTestJob("cfg2")
	_, err := store.Enqueue(other)
	require.NoError(t, err)

	jobs, _, total, err := store.List(JobListFilter{ConfigID: "cfg1"}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, jobs, 3)
	// Newest first.
	assert.True(t, jobs[0].RequestedAt.After(jobs[2].RequestedAt))

	queued, _, _, err := store.List(JobListFilter{Status: string(JobQueued)}, 10, "")
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, other.ID, queued[0].ID)

	// Pagination walks all cfg1 jobs.
	page1, next, _, err := store.List(JobListFilter{ConfigID: "cfg1"}, 2, "")
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, next)
	page2, _, _, err := store.List(JobListFilter{ConfigID: "cfg1"}, 2, next)
	require.NoError(t, err)
	assert.Len(t, page2, 1)
}

func TestDeleteOlderThanKeepsRecentAndRunning(t *testing.T) {
	store := NewJobStore(setupJobTestDB(t))

	old := newTestJob("cfg1")
	_, err := store.Enqueue(old)
	require.NoError(t, err)
	require.NoError(t, store.Fail(old.ID, "x"))
	// Backdate the finish time past the cutoff.
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.db.Model(&SeedJob{}).Where("id = ?", old.ID).
		Update("finished_at", past).Error)

	recent := newTestJob("cfg2")
	_, err = store.Enqueue(recent)
	require.NoError(t, err)
	require.NoError(t, store.Complete(recent.ID))

	running := newTestJob("cfg3")
	_, err = store.Enqueue(running)
	require.NoError(t, err)

	deleted, err := store.DeleteOlderThan(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := store.Get(old.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := store.Get(recent.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}
