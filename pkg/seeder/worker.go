package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pitchside/rebuild-server/pkg/apierr"
	"github.com/pitchside/rebuild-server/pkg/rebuildconfig"
)

// Unit is one (team, league, season) seeding target expanded from a config.
type Unit struct {
	TeamID   int
	LeagueID int
	Season   int
	TeamName string
}

// Label is the human-readable form stored in the job's current_item.
func (u Unit) Label() string {
	return fmt.Sprintf("%s %d (league %d)", u.TeamName, u.Season, u.LeagueID)
}

// BuildUnits expands a payload into the ordered cross product of its teams,
// leagues, and seasons. Teams sort by numeric id, leagues ascending, seasons
// in payload order, so a batch replays in a stable sequence.
func BuildUnits(p rebuildconfig.Payload) []Unit {
	teamIDs := make([]int, 0, len(p.TeamIDs))
	for id := range p.TeamIDs {
		n, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		teamIDs = append(teamIDs, n)
	}
	sort.Ints(teamIDs)

	leagueIDs := append([]int(nil), p.LeagueIDs...)
	sort.Ints(leagueIDs)

	units := make([]Unit, 0, len(teamIDs)*len(leagueIDs)*len(p.Seasons))
	for _, team := range teamIDs {
		name := p.TeamIDs[strconv.Itoa(team)]
		if name == "" {
			name = fmt.Sprintf("Team %d", team)
		}
		for _, league := range leagueIDs {
			for _, season := range p.Seasons {
				units = append(units, Unit{
					TeamID:   team,
					LeagueID: league,
					Season:   season,
					TeamName: name,
				})
			}
		}
	}
	return units
}

// EnqueueBatch validates a batch request and creates a queued SeedJob sized
// to the config's unit cross product. An empty configID resolves to the
// active config.
func EnqueueBatch(jobs *JobStore, configs *rebuildconfig.Store, configID, requestedBy string) (*SeedJob, error) {
	var (
		cfg *rebuildconfig.RebuildConfig
		err error
	)
	if configID == "" {
		cfg, err = configs.GetActive()
		if apierr.IsNotFound(err) {
			return nil, apierr.Conflict("no active rebuild config; activate one or name a config explicitly")
		}
	} else {
		cfg, err = configs.Get(configID)
	}
	if err != nil {
		return nil, err
	}

	units := BuildUnits(cfg.Payload)
	if len(units) == 0 {
		return nil, apierr.Validation("config %q expands to zero seed units; add teams, leagues, and seasons", cfg.Name)
	}

	return jobs.Enqueue(&SeedJob{
		ID:          uuid.New().String(),
		ConfigID:    cfg.ID,
		RequestedBy: requestedBy,
		Status:      JobQueued,
		Total:       len(units),
		RequestedAt: time.Now(),
	})
}

// WorkerConfig tunes the batch worker.
type WorkerConfig struct {
	// PollInterval is how often the worker checks for queued jobs.
	PollInterval time.Duration
	// Retention is how long terminal jobs are kept before cleanup.
	Retention time.Duration
	// RetentionInterval is how often cleanup runs.
	RetentionInterval time.Duration
}

// DefaultWorkerConfig returns the worker defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:      2 * time.Second,
		Retention:         7 * 24 * time.Hour,
		RetentionInterval: time.Hour,
	}
}

// Worker executes queued seed jobs one at a time. Units within a job run
// sequentially so the provider's rate budget is never shared across
// concurrent cohorts. Exactly one worker goroutine runs per process.
type Worker struct {
	jobs    *JobStore
	configs *rebuildconfig.Store
	runner  *Runner
	cfg     WorkerConfig
	logger  *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(jobs *JobStore, configs *rebuildconfig.Store, runner *Runner, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWorkerConfig().PollInterval
	}
	if cfg.RetentionInterval <= 0 {
		cfg.RetentionInterval = DefaultWorkerConfig().RetentionInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{jobs: jobs, configs: configs, runner: runner, cfg: cfg, logger: logger}
}

// Run claims and executes jobs until ctx is cancelled. Blocks; callers start
// it on its own goroutine.
func (w *Worker) Run(ctx context.Context) {
	claimTicker := time.NewTicker(w.cfg.PollInterval)
	defer claimTicker.Stop()
	cleanupTicker := time.NewTicker(w.cfg.RetentionInterval)
	defer cleanupTicker.Stop()

	w.logger.Info("seed worker started",
		"poll_interval", w.cfg.PollInterval, "retention", w.cfg.Retention)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("seed worker stopping")
			return
		case <-cleanupTicker.C:
			w.cleanup()
		case <-claimTicker.C:
			job, err := w.jobs.Claim()
			if err != nil {
				w.logger.Error("claim failed", "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.processJob(ctx, job)
		}
	}
}

// processJob runs every unit of one claimed job. Provider failures stay
// contained to their cohort; an infrastructure failure or shutdown fails the
// job, keeping the outcomes of units already seeded.
func (w *Worker) processJob(ctx context.Context, job *SeedJob) {
	log := w.logger.With("job_id", job.ID, "config_id", job.ConfigID)
	log.Info("seed job started", "total", job.Total)

	cfg, err := w.configs.Get(job.ConfigID)
	if err != nil {
		log.Error("config lookup failed", "error", err)
		w.failJob(job.ID, err.Error())
		return
	}

	units := BuildUnits(cfg.Payload)
	for i, unit := range units {
		if ctx.Err() != nil {
			w.failJob(job.ID, "server shut down before the batch finished")
			return
		}

		if err := w.jobs.SetProgress(job.ID, i, unit.Label()); err != nil {
			log.Error("progress update failed", "error", err)
			w.failJob(job.ID, err.Error())
			return
		}

		c, err := w.runner.SeedWithConfig(ctx, cfg, unit.TeamID, unit.LeagueID, unit.Season)
		switch {
		case apierr.IsConflict(err):
			// Someone seeded this triple out of band; skip it.
			log.Warn("unit skipped", "unit", unit.Label(), "error", err)
		case err != nil:
			log.Error("unit aborted the batch", "unit", unit.Label(), "error", err)
			w.failJob(job.ID, fmt.Sprintf("%s: %v", unit.Label(), err))
			return
		default:
			log.Info("unit seeded", "unit", unit.Label(),
				"sync_status", c.SyncStatus, "total_players", c.TotalPlayers)
		}
	}

	if err := w.jobs.SetProgress(job.ID, len(units), ""); err != nil {
		log.Error("final progress update failed", "error", err)
	}
	if err := w.jobs.Complete(job.ID); err != nil {
		log.Error("job completion update failed", "error", err)
		return
	}
	log.Info("seed job completed", "units", len(units))
}

func (w *Worker) failJob(jobID, msg string) {
	if err := w.jobs.Fail(jobID, msg); err != nil {
		w.logger.Error("job failure update failed", "job_id", jobID, "error", err)
	}
}

func (w *Worker) cleanup() {
	if w.cfg.Retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-w.cfg.Retention)
	deleted, err := w.jobs.DeleteOlderThan(cutoff)
	if err != nil {
		w.logger.Error("job cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		w.logger.Info("old seed jobs removed", "count", deleted)
	}
}
