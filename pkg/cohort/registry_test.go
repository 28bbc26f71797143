package cohort

import (
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pitchside/rebuild-server/pkg/apierr"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Cohort{}, &Player{}))
	return db
}

func TestStartSeedCreatesCohort(t *testing.T) {
	reg := NewRegistry(setupTestDB(t))

	c, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSeeding, c.SyncStatus)
	assert.Equal(t, "Chelsea", c.TeamName)
	assert.NotEmpty(t, c.ID)
}

func TestStartSeedReusesTripleRow(t *testing.T) {
	reg := NewRegistry(setupTestDB(t))

	first, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)
	require.NoError(t, reg.SetStatus(first.ID, StatusNoData, ""))

	// Re-seeding the same triple updates the existing row.
	second, err := reg.StartSeed(49, 39, 2023, "Chelsea FC", "Premier League", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Chelsea FC", second.TeamName)
	assert.Equal(t, StatusSeeding, second.SyncStatus)

	all, err := reg.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStartSeedConflictsWhileInFlight(t *testing.T) {
	reg := NewRegistry(setupTestDB(t))

	c, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)

	_, err = reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	assert.True(t, apierr.IsConflict(err), "seeding while seeding must conflict")

	require.NoError(t, reg.SetStatus(c.ID, StatusSyncingJourneys, ""))
	_, err = reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	assert.True(t, apierr.IsConflict(err), "seeding while syncing journeys must conflict")
}

func TestStartSeedRejectionWritesNothing(t *testing.T) {
	reg := NewRegistry(setupTestDB(t))

	c, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)

	_, err = reg.StartSeed(49, 39, 2023, "Chelsea FC", "Premier League", nil)
	require.True(t, apierr.IsConflict(err))

	got, err := reg.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chelsea", got.TeamName, "a rejected attempt must not touch the row")
	assert.Equal(t, StatusSeeding, got.SyncStatus)
}

func TestStartSeedLostRaceIsConflict(t *testing.T) {
	db := setupTestDB(t)
	reg := NewRegistry(db)

	c, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)
	require.NoError(t, reg.SetStatus(c.ID, StatusNoData, ""))

	// Move the row into flight between StartSeed's read and its guarded
	// update, the interleaving a concurrent attempt produces under
	// READ COMMITTED.
	var once sync.Once
	require.NoError(t, db.Callback().Query().After("gorm:query").
		Register("win_after_read", func(d *gorm.DB) {
			if d.Statement.Table != "cohorts" {
				return
			}
			once.Do(func() {
				_, execErr := d.Statement.ConnPool.ExecContext(d.Statement.Context,
					"UPDATE cohorts SET sync_status = ? WHERE id = ?",
					string(StatusSeeding), c.ID)
				assert.NoError(t, execErr)
			})
		}))
	t.Cleanup(func() { _ = db.Callback().Query().Remove("win_after_read") })

	_, err = reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	assert.True(t, apierr.IsConflict(err), "the guarded update must reject the losing attempt")

	got, err := reg.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, got.SyncStatus, "the losing transaction writes nothing")
}

func TestStartSeedDistinctTriples(t *testing.T) {
	reg := NewRegistry(setupTestDB(t))

	_, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)
	_, err = reg.StartSeed(49, 39, 2024, "Chelsea", "Premier League", nil)
	require.NoError(t, err)
	_, err = reg.StartSeed(50, 39, 2023, "Man City", "Premier League", nil)
	require.NoError(t, err)

	all, err := reg.List()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSetStatusRejectsIllegalEdge(t *testing.T) {
	reg := NewRegistry(setupTestDB(t))

	c, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)

	// seeding -> complete skips syncing_journeys and must be rejected.
	err = reg.SetStatus(c.ID, StatusComplete, "")
	assert.True(t, apierr.IsConflict(err))

	// The status must be unchanged after the rejected transition.
	reloaded, err := reg.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSeeding, reloaded.SyncStatus)
}

func TestSetStatusClearsAndSetsLastError(t *testing.T) {
	reg := NewRegistry(setupTestDB(t))

	c, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)
	require.NoError(t, reg.SetStatus(c.ID, StatusFailed, "provider timeout"))

	reloaded, err := reg.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "provider timeout", reloaded.LastError)

	// A fresh seed clears the previous error.
	c2, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)
	assert.Empty(t, c2.LastError)
}

func TestReplacePlayersDiscardsOldRows(t *testing.T) {
	reg := NewRegistry(setupTestDB(t))

	c, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)

	require.NoError(t, reg.ReplacePlayers(c.ID, []Player{
		{PlayerAPIID: 1, Name: "Old One"},
		{PlayerAPIID: 2, Name: "Old Two"},
	}))
	require.NoError(t, reg.ReplacePlayers(c.ID, []Player{
		{PlayerAPIID: 3, Name: "New One"},
	}))

	players, err := reg.Players(c.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, 3, players[0].PlayerAPIID)
}

func TestRefreshStatsIsIdempotent(t *testing.T) {
	reg := NewRegistry(setupTestDB(t))

	c, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)
	require.NoError(t, reg.ReplacePlayers(c.ID, []Player{
		{PlayerAPIID: 1, Name: "A"},
		{PlayerAPIID: 2, Name: "B"},
	}))

	first, err := reg.RefreshStats(c.ID)
	require.NoError(t, err)
	second, err := reg.RefreshStats(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first)
	assert.Equal(t, first, second)

	reloaded, err := reg.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.TotalPlayers)
	assert.Equal(t, StatusSeeding, reloaded.SyncStatus, "refreshStats must not touch sync_status")
}

func TestDeleteCascadesPlayers(t *testing.T) {
	db := setupTestDB(t)
	reg := NewRegistry(db)

	c, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)
	require.NoError(t, reg.ReplacePlayers(c.ID, []Player{{PlayerAPIID: 1, Name: "A"}}))

	require.NoError(t, reg.Delete(c.ID))

	_, err = reg.Get(c.ID)
	assert.True(t, apierr.IsNotFound(err))

	var count int64
	require.NoError(t, db.Model(&Player{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMarkJourneySynced(t *testing.T) {
	reg := NewRegistry(setupTestDB(t))

	c, err := reg.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)
	require.NoError(t, reg.ReplacePlayers(c.ID, []Player{{PlayerAPIID: 1, Name: "A"}}))

	players, err := reg.Players(c.ID)
	require.NoError(t, err)
	require.NoError(t, reg.MarkJourneySynced(players[0].ID, 4))

	players, err = reg.Players(c.ID)
	require.NoError(t, err)
	assert.True(t, players[0].JourneySynced)
	assert.Equal(t, 4, players[0].JourneyEntries)
}
