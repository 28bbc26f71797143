package cohort

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pitchside/rebuild-server/pkg/apierr"
)

// Registry provides database operations for cohorts and their player rows.
// Per-cohort status transitions are validated here so an illegal edge can
// never be persisted regardless of caller.
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a new Registry.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// AutoMigrate creates or updates the cohorts and cohort_players tables.
func (r *Registry) AutoMigrate() error {
	return r.db.AutoMigrate(&Cohort{}, &Player{})
}

// List returns all cohorts ordered by team name, then season.
func (r *Registry) List() ([]Cohort, error) {
	var cohorts []Cohort
	if err := r.db.Order("team_name ASC, season ASC").Find(&cohorts).Error; err != nil {
		return nil, apierr.Infrastructure("list cohorts", err)
	}
	return cohorts, nil
}

// Get retrieves a cohort by id.
func (r *Registry) Get(id string) (*Cohort, error) {
	var c Cohort
	if err := r.db.Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("cohort", id)
		}
		return nil, apierr.Infrastructure("get cohort", err)
	}
	return &c, nil
}

// GetByTriple retrieves a cohort by its unique (team, league, season) triple.
// Returns nil, nil when no cohort exists for the triple.
func (r *Registry) GetByTriple(teamAPIID, leagueAPIID, season int) (*Cohort, error) {
	var c Cohort
	err := r.db.Where("team_api_id = ? AND league_api_id = ? AND season = ?",
		teamAPIID, leagueAPIID, season).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apierr.Infrastructure("get cohort by triple", err)
	}
	return &c, nil
}

// StartSeed upserts the cohort for the triple and transitions it into
// seeding. A cohort already seeding or syncing journeys is rejected with a
// ConflictError so two attempts never race on one triple. Terminal statuses
// legally re-enter through pending.
func (r *Registry) StartSeed(teamAPIID, leagueAPIID, season int, teamName, leagueName string, teamLogo *string) (*Cohort, error) {
	var result *Cohort
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var c Cohort
		err := tx.Where("team_api_id = ? AND league_api_id = ? AND season = ?",
			teamAPIID, leagueAPIID, season).First(&c).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c = Cohort{
				ID:          uuid.New().String(),
				TeamAPIID:   teamAPIID,
				LeagueAPIID: leagueAPIID,
				Season:      season,
				TeamName:    teamName,
				LeagueName:  leagueName,
				TeamLogo:    teamLogo,
				SyncStatus:  StatusPending,
			}
			if err := tx.Create(&c).Error; err != nil {
				return apierr.Infrastructure("create cohort", err)
			}
		case err != nil:
			return apierr.Infrastructure("load cohort", err)
		}

		// The in-flight rejection and the transition to seeding are one
		// guarded statement. A separate check-then-write would let two
		// concurrent attempts on the triple both pass the check under
		// READ COMMITTED on postgres or mysql.
		updates := map[string]any{
			"sync_status": StatusSeeding,
			"last_error":  "",
			"team_name":   teamName,
			"league_name": leagueName,
		}
		if teamLogo != nil {
			updates["team_logo"] = *teamLogo
		}
		res := tx.Model(&Cohort{}).
			Where("id = ? AND sync_status NOT IN ?", c.ID,
				[]SyncStatus{StatusSeeding, StatusSyncingJourneys}).
			Updates(updates)
		if res.Error != nil {
			return apierr.Infrastructure("start seed", res.Error)
		}
		if res.RowsAffected == 0 {
			status := c.SyncStatus
			if !status.InFlight() {
				// A concurrent attempt won the transition after our read.
				status = StatusSeeding
			}
			return apierr.Conflict("cohort %s/%d/%d is already %s",
				c.TeamName, c.LeagueAPIID, c.Season, status)
		}

		c.SyncStatus = StatusSeeding
		c.LastError = ""
		c.TeamName = teamName
		c.LeagueName = leagueName
		if teamLogo != nil {
			c.TeamLogo = teamLogo
		}
		result = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetStatus transitions a cohort to the given status, rejecting edges the
// state machine does not allow. lastError is stored verbatim; pass "" to
// clear it.
func (r *Registry) SetStatus(id string, status SyncStatus, lastError string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var c Cohort
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierr.NotFound("cohort", id)
			}
			return apierr.Infrastructure("load cohort", err)
		}

		if !CanTransition(c.SyncStatus, status) {
			return apierr.Conflict("illegal sync_status transition %s -> %s for cohort %s",
				c.SyncStatus, status, id)
		}

		updates := map[string]any{
			"sync_status": status,
			"last_error":  lastError,
		}
		if err := tx.Model(&Cohort{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return apierr.Infrastructure("set cohort status", err)
		}
		return nil
	})
}

// ReplacePlayers swaps the cohort's player rows for the given set. Used by a
// fresh seed attempt; prior rows from older attempts are discarded.
func (r *Registry) ReplacePlayers(cohortID string, players []Player) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cohort_id = ?", cohortID).Delete(&Player{}).Error; err != nil {
			return apierr.Infrastructure("clear cohort players", err)
		}
		for i := range players {
			if players[i].ID == "" {
				players[i].ID = uuid.New().String()
			}
			players[i].CohortID = cohortID
		}
		if len(players) > 0 {
			if err := tx.Create(&players).Error; err != nil {
				return apierr.Infrastructure("insert cohort players", err)
			}
		}
		return nil
	})
}

// Players returns the player rows of a cohort.
func (r *Registry) Players(cohortID string) ([]Player, error) {
	var players []Player
	if err := r.db.Where("cohort_id = ?", cohortID).Order("name ASC").Find(&players).Error; err != nil {
		return nil, apierr.Infrastructure("list cohort players", err)
	}
	return players, nil
}

// MarkJourneySynced records a successful journey sync for one player row.
func (r *Registry) MarkJourneySynced(playerID string, entries int) error {
	err := r.db.Model(&Player{}).Where("id = ?", playerID).Updates(map[string]any{
		"journey_synced":  true,
		"journey_entries": entries,
	}).Error
	if err != nil {
		return apierr.Infrastructure("mark journey synced", err)
	}
	return nil
}

// RefreshStats recomputes the cohort's derived total_players from its
// player rows. Idempotent: with no underlying change, repeated calls yield
// the same count. Does not touch sync_status.
func (r *Registry) RefreshStats(cohortID string) (int, error) {
	if _, err := r.Get(cohortID); err != nil {
		return 0, err
	}

	var count int64
	if err := r.db.Model(&Player{}).Where("cohort_id = ?", cohortID).Count(&count).Error; err != nil {
		return 0, apierr.Infrastructure("count cohort players", err)
	}
	if err := r.db.Model(&Cohort{}).Where("id = ?", cohortID).
		Update("total_players", count).Error; err != nil {
		return 0, apierr.Infrastructure("update cohort stats", err)
	}
	return int(count), nil
}

// Delete removes a cohort and cascades deletion of its player rows.
func (r *Registry) Delete(cohortID string) error {
	if _, err := r.Get(cohortID); err != nil {
		return err
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cohort_id = ?", cohortID).Delete(&Player{}).Error; err != nil {
			return apierr.Infrastructure("delete cohort players", err)
		}
		if err := tx.Where("id = ?", cohortID).Delete(&Cohort{}).Error; err != nil {
			return apierr.Infrastructure("delete cohort", err)
		}
		return nil
	})
}
