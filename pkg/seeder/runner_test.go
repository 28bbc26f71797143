package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pitchside/rebuild-server/pkg/apierr"
	"github.com/pitchside/rebuild-server/pkg/cohort"
	"github.com/pitchside/rebuild-server/pkg/provider"
	"github.com/pitchside/rebuild-server/pkg/rebuildconfig"
)

func setupRunnerDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Unique shared-cache DSN per test: the worker goroutine and the test
	// share one in-memory database across pooled connections.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&rebuildconfig.RebuildConfig{}, &rebuildconfig.HistoryEntry{},
		&cohort.Cohort{}, &cohort.Player{},
		&SeedJob{},
	))
	return db
}

// newRunnerFixture builds a runner over an in-memory database with one
// active config covering Chelsea (49) in the Premier League (39) for 2023.
func newRunnerFixture(t *testing.T) (*Runner, *cohort.Registry, *rebuildconfig.Store, *provider.StubClient) {
	t.Helper()
	db := setupRunnerDB(t)
	configs := rebuildconfig.NewStore(db)
	registry := cohort.NewRegistry(db)
	stub := provider.NewStubClient()

	cfg, err := configs.Create(rebuildconfig.CreateRequest{Name: "test rebuild"})
	require.NoError(t, err)
	teams := map[string]string{"49": "Chelsea"}
	leagues := []int{39}
	seasons := []int{2023}
	_, err = configs.Update(cfg.ID, rebuildconfig.UpdateRequest{
		Payload: &rebuildconfig.PayloadPatch{
			TeamIDs:   &teams,
			LeagueIDs: &leagues,
			Seasons:   &seasons,
		},
	})
	require.NoError(t, err)
	_, err = configs.Activate(cfg.ID)
	require.NoError(t, err)

	runner := NewRunner(registry, configs, stub, nil, slog.Default())
	return runner, registry, configs, stub
}

func TestSeedSingleComplete(t *testing.T) {
	runner, registry, _, stub := newRunnerFixture(t)
	stub.SetSquad(49, 39, 2023, []provider.Player{
		{APIID: 101, Name: "Cole Palmer"},
		{APIID: 102, Name: "Levi Colwill"},
	})
	stub.SetTransfers(101, []provider.TransferEntry{{Date: "2023-09-01", Type: "Loan"}})

	c, err := runner.SeedSingle(context.Background(), 49, 39, 2023)
	require.NoError(t, err)
	assert.Equal(t, cohort.StatusComplete, c.SyncStatus)
	assert.Equal(t, "Chelsea", c.TeamName)
	assert.Equal(t, 2, c.TotalPlayers)
	assert.Empty(t, c.LastError)

	players, err := registry.Players(c.ID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	for _, p := range players {
		assert.True(t, p.JourneySynced)
	}
}

func TestSeedSingleNoData(t *testing.T) {
	runner, _, _, _ := newRunnerFixture(t)

	c, err := runner.SeedSingle(context.Background(), 49, 39, 2023)
	require.NoError(t, err)
	assert.Equal(t, cohort.StatusNoData, c.SyncStatus)
	assert.Zero(t, c.TotalPlayers)
}

func TestSeedSingleSquadFailure(t *testing.T) {
	runner, _, _, stub := newRunnerFixture(t)
	stub.SquadErr = apierr.Provider("provider returned status 500")

	c, err := runner.SeedSingle(context.Background(), 49, 39, 2023)
	require.NoError(t, err, "provider failures stay on the cohort")
	assert.Equal(t, cohort.StatusFailed, c.SyncStatus)
	assert.Contains(t, c.LastError, "status 500")
}

func TestSeedSinglePerPlayerFailuresEndPartial(t *testing.T) {
	runner, registry, _, stub := newRunnerFixture(t)
	stub.SetSquad(49, 39, 2023, []provider.Player{
		{APIID: 101, Name: "A"},
		{APIID: 102, Name: "B"},
	})
	stub.TransfersErr = apierr.Provider("transfer lookup failed")

	c, err := runner.SeedSingle(context.Background(), 49, 39, 2023)
	require.NoError(t, err)
	assert.Equal(t, cohort.StatusPartial, c.SyncStatus)
	assert.Contains(t, c.LastError, "2 of 2")
	assert.Equal(t, 2, c.TotalPlayers, "players stay recorded even when journeys fail")

	players, err := registry.Players(c.ID)
	require.NoError(t, err)
	for _, p := range players {
		assert.False(t, p.JourneySynced)
	}
}

func TestSeedSingleNoActiveConfig(t *testing.T) {
	db := setupRunnerDB(t)
	runner := NewRunner(cohort.NewRegistry(db), rebuildconfig.NewStore(db),
		provider.NewStubClient(), nil, slog.Default())

	_, err := runner.SeedSingle(context.Background(), 49, 39, 2023)
	assert.True(t, apierr.IsConflict(err))
}

func TestSeedSingleConflictsWithInFlightCohort(t *testing.T) {
	runner, registry, _, _ := newRunnerFixture(t)

	_, err := registry.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)

	_, err = runner.SeedSingle(context.Background(), 49, 39, 2023)
	assert.True(t, apierr.IsConflict(err))
}

func TestSeedSingleReseedAfterTerminal(t *testing.T) {
	runner, _, _, stub := newRunnerFixture(t)

	c, err := runner.SeedSingle(context.Background(), 49, 39, 2023)
	require.NoError(t, err)
	assert.Equal(t, cohort.StatusNoData, c.SyncStatus)

	stub.SetSquad(49, 39, 2023, []provider.Player{{APIID: 101, Name: "A"}})
	c2, err := runner.SeedSingle(context.Background(), 49, 39, 2023)
	require.NoError(t, err)
	assert.Equal(t, c.ID, c2.ID)
	assert.Equal(t, cohort.StatusComplete, c2.SyncStatus)
	assert.Equal(t, 1, c2.TotalPlayers)
}

func TestSeedSingleUnknownTeamGetsPlaceholderName(t *testing.T) {
	runner, _, _, stub := newRunnerFixture(t)
	stub.SetSquad(77, 39, 2023, []provider.Player{{APIID: 1, Name: "X"}})

	c, err := runner.SeedSingle(context.Background(), 77, 39, 2023)
	require.NoError(t, err)
	assert.Equal(t, "Team 77", c.TeamName)
}

func TestSyncJourneysUpdatesEntriesWithoutStatusChange(t *testing.T) {
	runner, registry, _, stub := newRunnerFixture(t)
	stub.SetSquad(49, 39, 2023, []provider.Player{{APIID: 101, Name: "A"}})

	c, err := runner.SeedSingle(context.Background(), 49, 39, 2023)
	require.NoError(t, err)
	require.Equal(t, cohort.StatusComplete, c.SyncStatus)

	// New journey data arrives later.
	stub.SetTransfers(101, []provider.TransferEntry{
		{Date: "2024-01-01", Type: "Loan"},
		{Date: "2024-06-30", Type: "Free"},
	})

	c2, err := runner.SyncJourneys(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, cohort.StatusComplete, c2.SyncStatus)

	players, err := registry.Players(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, players[0].JourneyEntries)
}

func TestSyncJourneysFailsCohortOnSystemicError(t *testing.T) {
	runner, _, _, stub := newRunnerFixture(t)
	stub.SetSquad(49, 39, 2023, []provider.Player{{APIID: 101, Name: "A"}})

	c, err := runner.SeedSingle(context.Background(), 49, 39, 2023)
	require.NoError(t, err)

	// A cancelled context exhausts the journey budget immediately.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c2, err := runner.SyncJourneys(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cohort.StatusFailed, c2.SyncStatus)
	assert.NotEmpty(t, c2.LastError)
}

func TestSyncJourneysConflictsWhileInFlight(t *testing.T) {
	runner, registry, _, _ := newRunnerFixture(t)

	c, err := registry.StartSeed(49, 39, 2023, "Chelsea", "Premier League", nil)
	require.NoError(t, err)

	_, err = runner.SyncJourneys(context.Background(), c.ID)
	assert.True(t, apierr.IsConflict(err))
}

func TestSyncJourneysUnknownCohort(t *testing.T) {
	runner, _, _, _ := newRunnerFixture(t)

	_, err := runner.SyncJourneys(context.Background(), "missing")
	assert.True(t, apierr.IsNotFound(err))
}
