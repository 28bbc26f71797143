package rebuildconfig

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
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
	require.NoError(t, db.AutoMigrate(&RebuildConfig{}, &HistoryEntry{}))
	return db
}

func TestCreateConfig(t *testing.T) {
	store := NewStore(setupTestDB(t))

	cfg, err := store.Create(CreateRequest{Name: "2024 rebuild", Notes: "first pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.ID)
	assert.Equal(t, "2024 rebuild", cfg.Name)
	assert.False(t, cfg.IsActive)
	assert.Equal(t, DefaultPayload(), cfg.Payload)

	// Creation appends a history entry with no diff.
	entries, _, total, err := store.History(cfg.ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionCreated, entries[0].Action)
	assert.Empty(t, entries[0].Diff)
}

func TestCreateConfigBlankName(t *testing.T) {
	store := NewStore(setupTestDB(t))

	_, err := store.Create(CreateRequest{Name: "   "})
	require.Error(t, err)
	var verr *apierr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCreateConfigDuplicateName(t *testing.T) {
	store := NewStore(setupTestDB(t))

	_, err := store.Create(CreateRequest{Name: "dup"})
	require.NoError(t, err)

	_, err = store.Create(CreateRequest{Name: "dup"})
	require.Error(t, err)
	var verr *apierr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCreateConfigClonesPayloadNotActiveFlag(t *testing.T) {
	store := NewStore(setupTestDB(t))

	src, err := store.Create(CreateRequest{Name: "source"})
	require.NoError(t, err)

	seasons := []int{2022, 2023}
	_, err = store.Update(src.ID, UpdateRequest{Payload: &PayloadPatch{Seasons: &seasons}})
	require.NoError(t, err)
	_, err = store.Activate(src.ID)
	require.NoError(t, err)

	clone, err := store.Create(CreateRequest{Name: "copy", CloneFrom: src.ID})
	require.NoError(t, err)
	assert.Equal(t, seasons, clone.Payload.Seasons)
	assert.False(t, clone.IsActive, "clone must start inactive")

	// Deep copy: mutating the clone's payload must not touch the source.
	clone.Payload.Seasons[0] = 1999
	reloaded, err := store.Get(src.ID)
	require.NoError(t, err)
	assert.Equal(t, 2022, reloaded.Payload.Seasons[0])
}

func TestUpdateConfigAppendsDiff(t *testing.T) {
	store := NewStore(setupTestDB(t))

	cfg, err := store.Create(CreateRequest{Name: "cfg"})
	require.NoError(t, err)

	notes := "tightened quotas"
	perDay := 250
	updated, err := store.Update(cfg.ID, UpdateRequest{
		Notes:   &notes,
		Payload: &PayloadPatch{RateLimitPerDay: &perDay},
	})
	require.NoError(t, err)
	assert.Equal(t, 250, updated.Payload.RateLimitPerDay)

	entries, _, _, err := store.History(cfg.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 2) // created + updated
	assert.Equal(t, ActionUpdated, entries[0].Action)
	assert.Len(t, entries[0].Diff, 2)
	assert.Contains(t, entries[0].Diff, "notes")
	assert.Contains(t, entries[0].Diff, "rate_limit_per_day")
}

func TestUpdateConfigNoChangeNoHistory(t *testing.T) {
	store := NewStore(setupTestDB(t))

	cfg, err := store.Create(CreateRequest{Name: "cfg"})
	require.NoError(t, err)

	sameNotes := cfg.Notes
	_, err = store.Update(cfg.ID, UpdateRequest{Notes: &sameNotes})
	require.NoError(t, err)

	_, _, total, err := store.History(cfg.ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total, "no-op update must not append history")
}

func TestUpdateConfigRejectsInvalidPayload(t *testing.T) {
	store := NewStore(setupTestDB(t))

	cfg, err := store.Create(CreateRequest{Name: "cfg"})
	require.NoError(t, err)

	bad := 9999
	_, err = store.Update(cfg.ID, UpdateRequest{
		Payload: &PayloadPatch{CohortDiscoverTimeoutSeconds: &bad},
	})
	require.Error(t, err)
	var verr *apierr.ValidationError
	assert.ErrorAs(t, err, &verr)

	// The rejected update must not have been persisted.
	reloaded, err := store.Get(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultPayload().CohortDiscoverTimeoutSeconds,
		reloaded.Payload.CohortDiscoverTimeoutSeconds)
}

func TestActivateEnforcesSingleActive(t *testing.T) {
	store := NewStore(setupTestDB(t))

	a, err := store.Create(CreateRequest{Name: "a"})
	require.NoError(t, err)
	b, err := store.Create(CreateRequest{Name: "b"})
	require.NoError(t, err)

	_, err = store.Activate(a.ID)
	require.NoError(t, err)
	_, err = store.Activate(b.ID)
	require.NoError(t, err)

	summaries, err := store.List()
	require.NoError(t, err)
	activeCount := 0
	for _, s := range summaries {
		if s.IsActive {
			activeCount++
			assert.Equal(t, b.ID, s.ID)
		}
	}
	assert.Equal(t, 1, activeCount)

	active, err := store.GetActive()
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)
}

func TestActivateUnknownConfig(t *testing.T) {
	store := NewStore(setupTestDB(t))

	_, err := store.Activate("missing")
	assert.True(t, apierr.IsNotFound(err))
}

func TestActivateAlwaysAppendsHistory(t *testing.T) {
	store := NewStore(setupTestDB(t))

	cfg, err := store.Create(CreateRequest{Name: "cfg"})
	require.NoError(t, err)

	_, err = store.Activate(cfg.ID)
	require.NoError(t, err)
	_, err = store.Activate(cfg.ID)
	require.NoError(t, err)

	_, _, total, err := store.History(cfg.ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total) // created + two activations
}

func TestDeleteActiveConfigConflicts(t *testing.T) {
	store := NewStore(setupTestDB(t))

	a, err := store.Create(CreateRequest{Name: "a"})
	require.NoError(t, err)
	b, err := store.Create(CreateRequest{Name: "b"})
	require.NoError(t, err)

	_, err = store.Activate(a.ID)
	require.NoError(t, err)

	err = store.Delete(a.ID)
	assert.True(t, apierr.IsConflict(err))

	// Swapping the active config unblocks the delete.
	_, err = store.Activate(b.ID)
	require.NoError(t, err)
	require.NoError(t, store.Delete(a.ID))

	_, err = store.Get(a.ID)
	assert.True(t, apierr.IsNotFound(err))
	_, _, total, err := store.History(a.ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 0, total, "history is removed with the config")
}

func TestHistoryPagination(t *testing.T) {
	store := NewStore(setupTestDB(t))

	cfg, err := store.Create(CreateRequest{Name: "cfg"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = store.Activate(cfg.ID)
		require.NoError(t, err)
	}

	seen := 0
	token := ""
	for {
		entries, next, total, err := store.History(cfg.ID, 2, token)
		require.NoError(t, err)
		assert.Equal(t, 6, total)
		seen += len(entries)
		if next == "" {
			break
		}
		token = next
	}
	assert.Equal(t, 6, seen)
}

func TestGetConfigInfrastructureError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM `rebuild_configs`").
		WillReturnError(assert.AnError)

	store := NewStore(db)
	_, err = store.Get("any")
	require.Error(t, err)
	var infra *apierr.InfrastructureError
	assert.ErrorAs(t, err, &infra)
	assert.False(t, apierr.IsNotFound(err))
}
