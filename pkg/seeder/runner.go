package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pitchside/rebuild-server/pkg/apierr"
	"github.com/pitchside/rebuild-server/pkg/cohort"
	"github.com/pitchside/rebuild-server/pkg/provider"
	"github.com/pitchside/rebuild-server/pkg/rebuildconfig"
)

// Runner seeds cohorts from the football data provider: squad discovery
// followed by per-player journey discovery. Provider failures are recorded on
// the affected cohort and never escape the unit; infrastructure failures are
// returned to the caller.
type Runner struct {
	registry *cohort.Registry
	configs  *rebuildconfig.Store
	client   provider.Client
	limiter  *provider.RateLimiter
	logger   *slog.Logger
}

// NewRunner creates a Runner. limiter may be nil (stub mode).
func NewRunner(registry *cohort.Registry, configs *rebuildconfig.Store, client provider.Client, limiter *provider.RateLimiter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry: registry,
		configs:  configs,
		client:   client,
		limiter:  limiter,
		logger:   logger,
	}
}

// SeedSingle runs one synchronous seed for a single (team, league, season)
// triple under the active config. Returns the cohort in its final state;
// provider failures land in sync_status = failed rather than in the error
// return.
func (r *Runner) SeedSingle(ctx context.Context, teamID, leagueID, season int) (*cohort.Cohort, error) {
	cfg, err := r.configs.GetActive()
	if err != nil {
		if apierr.IsNotFound(err) {
			return nil, apierr.Conflict("no active rebuild config; activate one before seeding")
		}
		return nil, err
	}
	return r.SeedWithConfig(ctx, cfg, teamID, leagueID, season)
}

// SeedWithConfig runs one seed unit under an explicit config. The batch
// worker resolves the config once per job and calls this per unit.
func (r *Runner) SeedWithConfig(ctx context.Context, cfg *rebuildconfig.RebuildConfig, teamID, leagueID, season int) (*cohort.Cohort, error) {
	payload := cfg.Payload
	r.applyLimits(payload)

	teamName := payload.TeamIDs[strconv.Itoa(teamID)]
	if teamName == "" {
		teamName = fmt.Sprintf("Team %d", teamID)
	}
	leagueName := resolveLeagueName(payload, leagueID)

	c, err := r.registry.StartSeed(teamID, leagueID, season, teamName, leagueName, nil)
	if err != nil {
		return nil, err
	}
	return r.seed(ctx, payload, c)
}

// SyncJourneys re-runs journey discovery for an existing cohort's current
// player set. sync_status is unchanged on success; a systemic failure moves
// the cohort to failed.
func (r *Runner) SyncJourneys(ctx context.Context, cohortID string) (*cohort.Cohort, error) {
	c, err := r.registry.Get(cohortID)
	if err != nil {
		return nil, err
	}
	if c.SyncStatus.InFlight() {
		return nil, apierr.Conflict("cohort %s is %s; wait for the seed to finish", cohortID, c.SyncStatus)
	}

	payload := rebuildconfig.DefaultPayload()
	if cfg, err := r.configs.GetActive(); err == nil {
		payload = cfg.Payload
	} else if !apierr.IsNotFound(err) {
		return nil, err
	}
	r.applyLimits(payload)

	players, err := r.registry.Players(c.ID)
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return c, nil
	}

	failures, err := r.syncJourneyRows(ctx, payload, players)
	if err != nil {
		if sysErr := r.containSystemic(c, err); sysErr != nil {
			return nil, sysErr
		}
		return r.registry.Get(c.ID)
	}
	if failures > 0 {
		r.logger.Warn("journey re-sync finished with failures",
			"cohort_id", c.ID, "failures", failures, "players", len(players))
	}
	return r.registry.Get(c.ID)
}

// seed runs squad discovery and journey discovery for a cohort already in
// seeding. Returns an error only for infrastructure failures.
func (r *Runner) seed(ctx context.Context, payload rebuildconfig.Payload, c *cohort.Cohort) (*cohort.Cohort, error) {
	discoverBudget := time.Duration(payload.CohortDiscoverTimeoutSeconds) * time.Second
	discCtx, cancel := context.WithTimeout(ctx, discoverBudget)
	squad, err := r.client.Squad(discCtx, c.TeamAPIID, c.LeagueAPIID, c.Season)
	cancel()
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("squad discovery timed out after %ds", payload.CohortDiscoverTimeoutSeconds)
		}
		r.logger.Warn("squad discovery failed",
			"cohort_id", c.ID, "team", c.TeamName, "season", c.Season, "error", msg)
		if serr := r.registry.SetStatus(c.ID, cohort.StatusFailed, msg); serr != nil {
			return nil, serr
		}
		return r.registry.Get(c.ID)
	}

	if len(squad) == 0 {
		if serr := r.registry.SetStatus(c.ID, cohort.StatusNoData, ""); serr != nil {
			return nil, serr
		}
		return r.registry.Get(c.ID)
	}

	rows := make([]cohort.Player, 0, len(squad))
	for _, p := range squad {
		rows = append(rows, cohort.Player{PlayerAPIID: p.APIID, Name: p.Name})
	}
	if err := r.registry.ReplacePlayers(c.ID, rows); err != nil {
		return nil, err
	}
	if err := r.registry.SetStatus(c.ID, cohort.StatusSyncingJourneys, ""); err != nil {
		return nil, err
	}

	players, err := r.registry.Players(c.ID)
	if err != nil {
		return nil, err
	}

	failures, err := r.syncJourneyRows(ctx, payload, players)
	if err != nil {
		if sysErr := r.containSystemic(c, err); sysErr != nil {
			return nil, sysErr
		}
		return r.finish(c.ID)
	}

	final := cohort.StatusComplete
	lastError := ""
	if failures > 0 {
		final = cohort.StatusPartial
		lastError = fmt.Sprintf("%d of %d player journeys failed", failures, len(players))
	}
	if err := r.registry.SetStatus(c.ID, final, lastError); err != nil {
		return nil, err
	}
	return r.finish(c.ID)
}

// syncJourneyRows fetches the transfer journey for each player row under a
// shared time budget. Per-player provider errors are counted and tolerated;
// an exhausted budget or an infrastructure error is returned to the caller.
func (r *Runner) syncJourneyRows(ctx context.Context, payload rebuildconfig.Payload, players []cohort.Player) (int, error) {
	budget := time.Duration(payload.PlayerSyncTimeoutSeconds) * time.Second
	jctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	failures := 0
	for _, p := range players {
		entries, err := r.client.Transfers(jctx, p.PlayerAPIID)
		if err != nil {
			if jctx.Err() != nil {
				return failures, &apierr.ProviderError{
					Msg:     fmt.Sprintf("journey sync timed out after %ds", payload.PlayerSyncTimeoutSeconds),
					Timeout: true,
				}
			}
			failures++
			r.logger.Warn("player journey failed",
				"player_api_id", p.PlayerAPIID, "player", p.Name, "error", err)
			continue
		}
		if err := r.registry.MarkJourneySynced(p.ID, len(entries)); err != nil {
			return failures, err
		}
	}
	return failures, nil
}

// containSystemic records a systemic provider failure on the cohort and
// returns nil; infrastructure errors pass through unchanged. Cohorts already
// failed keep their original error.
func (r *Runner) containSystemic(c *cohort.Cohort, err error) error {
	if !apierr.IsProvider(err) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if c.SyncStatus == cohort.StatusFailed {
		return nil
	}
	cur, gerr := r.registry.Get(c.ID)
	if gerr != nil {
		return gerr
	}
	if cur.SyncStatus == cohort.StatusFailed {
		return nil
	}
	return r.registry.SetStatus(c.ID, cohort.StatusFailed, err.Error())
}

// finish recomputes derived stats and reloads the cohort.
func (r *Runner) finish(cohortID string) (*cohort.Cohort, error) {
	if _, err := r.registry.RefreshStats(cohortID); err != nil {
		return nil, err
	}
	return r.registry.Get(cohortID)
}

func (r *Runner) applyLimits(p rebuildconfig.Payload) {
	if r.limiter != nil {
		r.limiter.SetLimits(p.RateLimitPerMinute, p.RateLimitPerDay)
	}
}

// resolveLeagueName looks the league up in the config's youth-league chain
// before falling back to a numeric placeholder.
func resolveLeagueName(p rebuildconfig.Payload, leagueID int) string {
	for _, yl := range p.YouthLeagues {
		if yl.FallbackID == leagueID {
			return yl.Name
		}
	}
	return fmt.Sprintf("League %d", leagueID)
}
