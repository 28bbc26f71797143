package rebuildconfig

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pitchside/rebuild-server/pkg/apierr"
)

// Store provides database operations for rebuild configs and their history.
// The single-active invariant is enforced here, at the store boundary, so no
// caller can observe two active configs or a half-finished activation.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the rebuild_configs and
// rebuild_config_history tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&RebuildConfig{}, &HistoryEntry{})
}

// CreateRequest holds the inputs for Create.
type CreateRequest struct {
	Name      string `json:"name"`
	Notes     string `json:"notes"`
	CloneFrom string `json:"cloneFrom"`
}

// Create inserts a new inactive config. When CloneFrom names an existing
// config its payload is deep-copied; the is_active flag is never cloned.
// Without a clone source the payload starts from defaults.
func (s *Store) Create(req CreateRequest) (*RebuildConfig, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apierr.Validation("config name must not be blank")
	}

	payload := DefaultPayload()
	if req.CloneFrom != "" {
		source, err := s.Get(req.CloneFrom)
		if err != nil {
			return nil, err
		}
		payload = source.Payload.Clone()
	}

	cfg := &RebuildConfig{
		ID:       uuid.New().String(),
		Name:     name,
		Notes:    req.Notes,
		IsActive: false,
		Payload:  payload,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing RebuildConfig
		err := tx.Where("name = ?", name).First(&existing).Error
		if err == nil {
			return apierr.Validation("config name %q is already taken", name)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.Infrastructure("check config name", err)
		}

		if err := tx.Create(cfg).Error; err != nil {
			return apierr.Infrastructure("create config", err)
		}
		return appendHistory(tx, cfg.ID, ActionCreated, nil)
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// PayloadPatch is a partial payload update. Only non-nil fields are applied.
type PayloadPatch struct {
	TeamIDs               *map[string]string `json:"team_ids"`
	LeagueIDs             *[]int             `json:"league_ids"`
	Seasons               *[]int             `json:"seasons"`
	YouthLeagues          *[]YouthLeague     `json:"youth_leagues"`
	UseTransfersForStatus *bool              `json:"use_transfers_for_status"`
	AssumeFullMinutes     *bool              `json:"assume_full_minutes"`

	InactivityThresholdYears     *int `json:"inactivity_threshold_years"`
	CohortDiscoverTimeoutSeconds *int `json:"cohort_discover_timeout_seconds"`
	PlayerSyncTimeoutSeconds     *int `json:"player_sync_timeout_seconds"`
	RateLimitPerMinute           *int `json:"rate_limit_per_minute"`
	RateLimitPerDay              *int `json:"rate_limit_per_day"`
}

func (p *PayloadPatch) apply(dst *Payload) {
	if p.TeamIDs != nil {
		dst.TeamIDs = *p.TeamIDs
	}
	if p.LeagueIDs != nil {
		dst.LeagueIDs = *p.LeagueIDs
	}
	if p.Seasons != nil {
		dst.Seasons = *p.Seasons
	}
	if p.YouthLeagues != nil {
		dst.YouthLeagues = *p.YouthLeagues
	}
	if p.UseTransfersForStatus != nil {
		dst.UseTransfersForStatus = *p.UseTransfersForStatus
	}
	if p.AssumeFullMinutes != nil {
		dst.AssumeFullMinutes = *p.AssumeFullMinutes
	}
	if p.InactivityThresholdYears != nil {
		dst.InactivityThresholdYears = *p.InactivityThresholdYears
	}
	if p.CohortDiscoverTimeoutSeconds != nil {
		dst.CohortDiscoverTimeoutSeconds = *p.CohortDiscoverTimeoutSeconds
	}
	if p.PlayerSyncTimeoutSeconds != nil {
		dst.PlayerSyncTimeoutSeconds = *p.PlayerSyncTimeoutSeconds
	}
	if p.RateLimitPerMinute != nil {
		dst.RateLimitPerMinute = *p.RateLimitPerMinute
	}
	if p.RateLimitPerDay != nil {
		dst.RateLimitPerDay = *p.RateLimitPerDay
	}
}

// UpdateRequest holds the inputs for Update. Nil fields are left untouched.
type UpdateRequest struct {
	Notes   *string       `json:"notes"`
	Payload *PayloadPatch `json:"payload"`
}

// Update merges the request into the config's notes and payload, validates
// the result, and appends a history entry whose diff lists exactly the
// changed fields. An update that changes nothing appends no history.
func (s *Store) Update(id string, req UpdateRequest) (*RebuildConfig, error) {
	cfg, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	before := *cfg
	before.Payload = cfg.Payload.Clone()

	if req.Notes != nil {
		cfg.Notes = *req.Notes
	}
	if req.Payload != nil {
		req.Payload.apply(&cfg.Payload)
	}
	if err := cfg.Payload.Validate(); err != nil {
		return nil, err
	}

	diff := computeDiff(&before, cfg)
	if len(diff) == 0 {
		return cfg, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(cfg).Error; err != nil {
			return apierr.Infrastructure("update config", err)
		}
		return appendHistory(tx, cfg.ID, ActionUpdated, diff)
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Activate sets is_active on the given config and clears it on every other
// config inside one transaction. Concurrent activations serialize here; the
// last committed wins and exactly one config ends active.
func (s *Store) Activate(id string) (*RebuildConfig, error) {
	var cfg RebuildConfig
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&cfg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierr.NotFound("config", id)
			}
			return apierr.Infrastructure("load config", err)
		}

		if err := tx.Model(&RebuildConfig{}).
			Where("is_active = ? AND id <> ?", true, id).
			Update("is_active", false).Error; err != nil {
			return apierr.Infrastructure("deactivate configs", err)
		}
		if err := tx.Model(&RebuildConfig{}).
			Where("id = ?", id).
			Update("is_active", true).Error; err != nil {
			return apierr.Infrastructure("activate config", err)
		}

		cfg.IsActive = true
		return appendHistory(tx, id, ActionActivated, JSONMap{
			"is_active": fieldPair(false, true),
		})
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Delete permanently removes an inactive config together with its history.
// Deleting the active config is a conflict; activate another config first.
func (s *Store) Delete(id string) error {
	cfg, err := s.Get(id)
	if err != nil {
		return err
	}
	if cfg.IsActive {
		return apierr.Conflict("config %q is active and cannot be deleted", cfg.Name)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("config_id = ?", id).Delete(&HistoryEntry{}).Error; err != nil {
			return apierr.Infrastructure("delete config history", err)
		}
		if err := tx.Where("id = ?", id).Delete(&RebuildConfig{}).Error; err != nil {
			return apierr.Infrastructure("delete config", err)
		}
		return nil
	})
}

// Get retrieves a config by id.
func (s *Store) Get(id string) (*RebuildConfig, error) {
	var cfg RebuildConfig
	if err := s.db.Where("id = ?", id).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("config", id)
		}
		return nil, apierr.Infrastructure("get config", err)
	}
	return &cfg, nil
}

// GetActive returns the currently active config, or a NotFoundError when no
// config is active.
func (s *Store) GetActive() (*RebuildConfig, error) {
	var cfg RebuildConfig
	if err := s.db.Where("is_active = ?", true).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("active config", "")
		}
		return nil, apierr.Infrastructure("get active config", err)
	}
	return &cfg, nil
}

// Summary is the payload-free listing shape of a config.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Notes     string    `json:"notes,omitempty"`
	IsActive  bool      `json:"isActive"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// List returns summaries of all configs ordered by name.
func (s *Store) List() ([]Summary, error) {
	var configs []RebuildConfig
	if err := s.db.Select("id", "name", "notes", "is_active", "updated_at").
		Order("name ASC").Find(&configs).Error; err != nil {
		return nil, apierr.Infrastructure("list configs", err)
	}

	summaries := make([]Summary, len(configs))
	for i, c := range configs {
		summaries[i] = Summary{
			ID:        c.ID,
			Name:      c.Name,
			Notes:     c.Notes,
			IsActive:  c.IsActive,
			UpdatedAt: c.UpdatedAt,
		}
	}
	return summaries, nil
}

// History returns paginated history entries for a config, newest first.
// pageToken is an RFC3339Nano timestamp; entries older than it are returned.
func (s *Store) History(configID string, pageSize int, pageToken string) ([]HistoryEntry, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var totalSize int64
	if err := s.db.Model(&HistoryEntry{}).Where("config_id = ?", configID).Count(&totalSize).Error; err != nil {
		return nil, "", 0, apierr.Infrastructure("count history", err)
	}

	query := s.db.Where("config_id = ?", configID).Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, apierr.Validation("invalid page token: %v", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var entries []HistoryEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, "", 0, apierr.Infrastructure("list history", err)
	}

	var nextToken string
	if len(entries) > pageSize {
		nextToken = entries[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		entries = entries[:pageSize]
	}

	return entries, nextToken, int(totalSize), nil
}

// appendHistory writes one immutable history entry inside the caller's
// transaction so the entry commits atomically with the mutation.
func appendHistory(tx *gorm.DB, configID string, action HistoryAction, diff JSONMap) error {
	entry := &HistoryEntry{
		ID:       uuid.New().String(),
		ConfigID: configID,
		Action:   action,
		Diff:     diff,
	}
	if err := tx.Create(entry).Error; err != nil {
		return apierr.Infrastructure("append history", err)
	}
	return nil
}
