package cohort

import (
	"time"
)

// SyncStatus is the lifecycle state of one (team, league, season) seeding
// target.
type SyncStatus string

const (
	StatusPending         SyncStatus = "pending"
	StatusSeeding         SyncStatus = "seeding"
	StatusSyncingJourneys SyncStatus = "syncing_journeys"
	StatusComplete        SyncStatus = "complete"
	StatusPartial         SyncStatus = "partial"
	StatusNoData          SyncStatus = "no_data"
	StatusFailed          SyncStatus = "failed"
)

// legalTransitions lists every permitted sync_status edge. Terminal states
// re-enter the machine only through pending, which a fresh seed attempt sets.
// A standalone journey re-sync can fail a previously complete or partial
// cohort, hence the extra edges into failed.
var legalTransitions = map[SyncStatus][]SyncStatus{
	StatusPending:         {StatusSeeding},
	StatusSeeding:         {StatusSyncingJourneys, StatusNoData, StatusFailed},
	StatusSyncingJourneys: {StatusComplete, StatusPartial, StatusFailed},
	StatusComplete:        {StatusPending, StatusFailed},
	StatusPartial:         {StatusPending, StatusFailed},
	StatusNoData:          {StatusPending},
	StatusFailed:          {StatusPending},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to SyncStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InFlight reports whether the status is an active (suspending) state during
// which no second seed attempt may start.
func (s SyncStatus) InFlight() bool {
	return s == StatusSeeding || s == StatusSyncingJourneys
}

// Terminal reports whether the status is a terminal outcome of a seed
// attempt.
func (s SyncStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusPartial, StatusNoData, StatusFailed:
		return true
	}
	return false
}

// Cohort is the GORM model for one seeding target. The
// (team_api_id, league_api_id, season) triple is unique; seeding the same
// triple again updates the existing row.
type Cohort struct {
	ID          string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	TeamAPIID   int        `gorm:"column:team_api_id;uniqueIndex:idx_cohort_triple,priority:1;not null"`
	LeagueAPIID int        `gorm:"column:league_api_id;uniqueIndex:idx_cohort_triple,priority:2;not null"`
	Season      int        `gorm:"column:season;uniqueIndex:idx_cohort_triple,priority:3;not null"`
	TeamName    string     `gorm:"column:team_name"`
	LeagueName  string     `gorm:"column:league_name"`
	TeamLogo    *string    `gorm:"column:team_logo"`
	SyncStatus  SyncStatus `gorm:"column:sync_status;index;not null;default:pending"`
	LastError   string     `gorm:"column:last_error"`
	// TotalPlayers is derived from cohort_players and recomputed by
	// RefreshStats.
	TotalPlayers int       `gorm:"column:total_players;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (Cohort) TableName() string { return "cohorts" }

// Player is the GORM model for one discovered squad member of a cohort.
// Rows are replaced wholesale on each seed attempt and cascade-deleted with
// their cohort.
type Player struct {
	ID             string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	CohortID       string    `gorm:"column:cohort_id;index;not null"`
	PlayerAPIID    int       `gorm:"column:player_api_id;not null"`
	Name           string    `gorm:"column:name"`
	JourneySynced  bool      `gorm:"column:journey_synced;default:false"`
	JourneyEntries int       `gorm:"column:journey_entries;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (Player) TableName() string { return "cohort_players" }
