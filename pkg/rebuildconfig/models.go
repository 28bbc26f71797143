package rebuildconfig

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/pitchside/rebuild-server/pkg/apierr"
)

// YouthLeague describes one academy competition the seeder may fall back to
// when resolving a player's academy pathway.
type YouthLeague struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	FallbackID int    `json:"fallback_id"`
	Level      int    `json:"level"`
}

// Payload is the rebuild parameter set carried by a config. It is stored as
// a single JSON column so the whole parameter set versions atomically.
type Payload struct {
	// TeamIDs maps external team id (as a string key) to a display name.
	TeamIDs map[string]string `json:"team_ids"`
	// LeagueIDs lists whole leagues to include. Set semantics; duplicates
	// are rejected at validation.
	LeagueIDs []int `json:"league_ids"`
	// Seasons is the ordered list of season start years to seed.
	Seasons []int `json:"seasons"`
	// YouthLeagues is the ordered academy-competition fallback chain.
	YouthLeagues []YouthLeague `json:"youth_leagues"`

	UseTransfersForStatus bool `json:"use_transfers_for_status"`
	AssumeFullMinutes     bool `json:"assume_full_minutes"`

	InactivityThresholdYears     int `json:"inactivity_threshold_years"`
	CohortDiscoverTimeoutSeconds int `json:"cohort_discover_timeout_seconds"`
	PlayerSyncTimeoutSeconds     int `json:"player_sync_timeout_seconds"`

	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	RateLimitPerDay    int `json:"rate_limit_per_day"`
}

// DefaultPayload returns the payload used for configs created without a
// clone source.
func DefaultPayload() Payload {
	return Payload{
		TeamIDs:                      map[string]string{},
		LeagueIDs:                    []int{},
		Seasons:                      []int{},
		YouthLeagues:                 []YouthLeague{},
		UseTransfersForStatus:        true,
		AssumeFullMinutes:            false,
		InactivityThresholdYears:     2,
		CohortDiscoverTimeoutSeconds: 120,
		PlayerSyncTimeoutSeconds:     60,
		RateLimitPerMinute:           10,
		RateLimitPerDay:              100,
	}
}

// Validate checks range constraints and set semantics. Returns a
// ValidationError describing the first violation found.
func (p *Payload) Validate() error {
	if dup := firstDuplicate(p.LeagueIDs); dup != nil {
		return apierr.Validation("league_ids contains duplicate id %d", *dup)
	}
	if dup := firstDuplicate(p.Seasons); dup != nil {
		return apierr.Validation("seasons contains duplicate year %d", *dup)
	}
	if p.InactivityThresholdYears < 1 || p.InactivityThresholdYears > 10 {
		return apierr.Validation("inactivity_threshold_years must be between 1 and 10, got %d", p.InactivityThresholdYears)
	}
	if p.CohortDiscoverTimeoutSeconds < 30 || p.CohortDiscoverTimeoutSeconds > 600 {
		return apierr.Validation("cohort_discover_timeout_seconds must be between 30 and 600, got %d", p.CohortDiscoverTimeoutSeconds)
	}
	if p.PlayerSyncTimeoutSeconds < 30 || p.PlayerSyncTimeoutSeconds > 300 {
		return apierr.Validation("player_sync_timeout_seconds must be between 30 and 300, got %d", p.PlayerSyncTimeoutSeconds)
	}
	if p.RateLimitPerMinute < 1 {
		return apierr.Validation("rate_limit_per_minute must be positive, got %d", p.RateLimitPerMinute)
	}
	if p.RateLimitPerDay < 1 {
		return apierr.Validation("rate_limit_per_day must be positive, got %d", p.RateLimitPerDay)
	}
	for id := range p.TeamIDs {
		if _, err := strconv.Atoi(id); err != nil {
			return apierr.Validation("team_ids key %q is not a numeric team id", id)
		}
	}
	for _, yl := range p.YouthLeagues {
		if strings.TrimSpace(yl.Key) == "" {
			return apierr.Validation("youth_leagues entry %q has a blank key", yl.Name)
		}
	}
	return nil
}

// firstDuplicate returns the first value that appears more than once, or nil.
func firstDuplicate(values []int) *int {
	seen := mapset.NewThreadUnsafeSet[int]()
	for _, v := range values {
		if !seen.Add(v) {
			v := v
			return &v
		}
	}
	return nil
}

// Clone returns a deep copy of the payload.
func (p Payload) Clone() Payload {
	out := p
	out.TeamIDs = make(map[string]string, len(p.TeamIDs))
	for k, v := range p.TeamIDs {
		out.TeamIDs[k] = v
	}
	out.LeagueIDs = append([]int(nil), p.LeagueIDs...)
	out.Seasons = append([]int(nil), p.Seasons...)
	out.YouthLeagues = append([]YouthLeague(nil), p.YouthLeagues...)
	return out
}

// Scan implements the sql.Scanner interface for Payload.
func (p *Payload) Scan(value any) error {
	if value == nil {
		*p = Payload{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for Payload: %T", value)
	}
	return json.Unmarshal(bytes, p)
}

// Value implements the driver.Valuer interface for Payload.
func (p Payload) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONMap is a custom GORM type for map[string]any stored as JSON text.
type JSONMap map[string]any

// Scan implements the sql.Scanner interface for JSONMap.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONMap.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// RebuildConfig is the GORM model for a named, versioned rebuild
// configuration. At most one row has is_active = true at any time.
type RebuildConfig struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Name      string    `gorm:"column:name;uniqueIndex:idx_rebuild_config_name;not null"`
	Notes     string    `gorm:"column:notes"`
	IsActive  bool      `gorm:"column:is_active;index;not null;default:false"`
	Payload   Payload   `gorm:"column:payload;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (RebuildConfig) TableName() string { return "rebuild_configs" }

// HistoryAction labels what kind of mutation produced a history entry.
type HistoryAction string

// Deleting a config cascades its history, so no "deleted" action can ever
// be observed; the set stops at activation.
const (
	ActionCreated   HistoryAction = "created"
	ActionUpdated   HistoryAction = "updated"
	ActionActivated HistoryAction = "activated"
)

// HistoryEntry is an immutable, append-only record of one config mutation.
// Diff maps each changed field name to {"old": ..., "new": ...}; unchanged
// fields are omitted.
type HistoryEntry struct {
	ID        string        `gorm:"primaryKey;column:id;type:varchar(36)"`
	ConfigID  string        `gorm:"column:config_id;index:idx_history_config_time,priority:1;not null"`
	Action    HistoryAction `gorm:"column:action;not null"`
	Diff      JSONMap       `gorm:"column:diff;type:text"`
	CreatedAt time.Time     `gorm:"column:created_at;index:idx_history_config_time,priority:2;autoCreateTime"`
}

// TableName returns the GORM table name.
func (HistoryEntry) TableName() string { return "rebuild_config_history" }
