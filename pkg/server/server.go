// Package server assembles the rebuild control plane: the config store,
// cohort registry, seed job runner, and provider status endpoint, mounted
// under a single chi router with one background worker per process.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/pitchside/rebuild-server/pkg/apierr"
	"github.com/pitchside/rebuild-server/pkg/cohort"
	"github.com/pitchside/rebuild-server/pkg/provider"
	"github.com/pitchside/rebuild-server/pkg/rebuildconfig"
	"github.com/pitchside/rebuild-server/pkg/seeder"
)

// APIBasePath is where the rebuild API mounts.
const APIBasePath = "/api/rebuild/v1"

// Server owns the stores, the provider stack, and the background worker.
type Server struct {
	db     *gorm.DB
	logger *slog.Logger

	configs  *rebuildconfig.Store
	registry *cohort.Registry
	jobs     *seeder.JobStore
	runner   *seeder.Runner
	worker   *seeder.Worker

	client  provider.Client
	limiter *provider.RateLimiter
	usage   *provider.UsageTracker
	cache   *provider.ResponseCache

	providerCfg provider.Config
	workerCfg   seeder.WorkerConfig
	schedule    string
	cron        *cron.Cron

	mu       sync.Mutex
	migrated bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures the server.
type Option func(*Server)

// WithProviderConfig sets the connection settings for the football data
// provider. Without a key or proxy the server falls back to the stub client.
func WithProviderConfig(cfg provider.Config) Option {
	return func(s *Server) { s.providerCfg = cfg }
}

// WithProviderClient injects a ready-made provider client, bypassing the
// config-based selection. Used by tests.
func WithProviderClient(c provider.Client) Option {
	return func(s *Server) { s.client = c }
}

// WithWorkerConfig tunes the batch worker.
func WithWorkerConfig(cfg seeder.WorkerConfig) Option {
	return func(s *Server) { s.workerCfg = cfg }
}

// WithSchedule sets a cron expression that periodically enqueues a batch
// seed for the active config. Empty disables scheduling.
func WithSchedule(spec string) Option {
	return func(s *Server) { s.schedule = spec }
}

// New creates a Server on the given database.
func New(db *gorm.DB, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		db:        db,
		logger:    logger,
		workerCfg: seeder.DefaultWorkerConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.configs = rebuildconfig.NewStore(db)
	s.registry = cohort.NewRegistry(db)
	s.jobs = seeder.NewJobStore(db)

	s.usage = provider.NewUsageTracker()
	s.cache = provider.NewResponseCache(256, 5*time.Minute)
	s.limiter = provider.NewRateLimiter(0, 0)
	if s.client == nil {
		if s.providerCfg.APIKey != "" || s.providerCfg.ProxyURL != "" {
			s.client = provider.NewHTTPClient(s.providerCfg, s.limiter, s.usage, s.cache, logger)
		} else {
			logger.Info("no provider credential configured, using stub client")
			s.client = provider.NewStubClient()
		}
	}

	s.runner = seeder.NewRunner(s.registry, s.configs, s.client, s.limiter, logger)
	s.worker = seeder.NewWorker(s.jobs, s.configs, s.runner, s.workerCfg, logger)
	return s
}

// Init migrates the schema. Must run before MountRoutes or Start.
func (s *Server) Init(ctx context.Context) error {
	if err := s.configs.AutoMigrate(); err != nil {
		return apierr.Infrastructure("migrate rebuild configs", err)
	}
	if err := s.registry.AutoMigrate(); err != nil {
		return apierr.Infrastructure("migrate cohorts", err)
	}
	if err := s.jobs.AutoMigrate(); err != nil {
		return apierr.Infrastructure("migrate seed jobs", err)
	}
	s.mu.Lock()
	s.migrated = true
	s.mu.Unlock()
	return nil
}

// MountRoutes creates the HTTP router with all rebuild API routes mounted.
func (s *Server) MountRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route(APIBasePath, func(api chi.Router) {
		api.Mount("/configs", rebuildconfig.Router(s.configs))

		// Cohort reads and the seed operations share the /cohorts prefix,
		// so they are mounted here rather than in one package router.
		api.Get("/cohorts", cohort.ListCohortsHandler(s.registry))
		api.Post("/cohorts:seed", seeder.SeedSingleHandler(s.runner))
		api.Get("/cohorts/{cohortId}", cohort.GetCohortHandler(s.registry))
		api.Delete("/cohorts/{cohortId}", cohort.DeleteCohortHandler(s.registry))
		api.Post("/cohorts/{cohortId}:refreshStats", cohort.RefreshStatsHandler(s.registry))
		api.Post("/cohorts/{cohortId}:syncJourneys", seeder.SyncJourneysHandler(s.runner))

		api.Mount("/seed-jobs", seeder.JobRouter(s.jobs, s.configs))

		api.Get("/provider/status", s.providerStatusHandler)
	})

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)

	return r
}

// Start launches the batch worker and, when configured, the seed schedule.
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker.Run(runCtx)
	}()

	if s.schedule != "" {
		s.cron = cron.New()
		_, err := s.cron.AddFunc(s.schedule, func() {
			job, err := seeder.EnqueueBatch(s.jobs, s.configs, "", "schedule")
			switch {
			case apierr.IsConflict(err):
				s.logger.Info("scheduled seed skipped", "reason", err.Error())
			case err != nil:
				s.logger.Error("scheduled seed enqueue failed", "error", err)
			default:
				s.logger.Info("scheduled seed enqueued", "job_id", job.ID, "total", job.Total)
			}
		})
		if err != nil {
			cancel()
			return apierr.Validation("invalid seed schedule %q: %v", s.schedule, err)
		}
		s.cron.Start()
		s.logger.Info("seed schedule active", "spec", s.schedule)
	}
	return nil
}

// Stop halts the schedule and waits for the worker to exit.
func (s *Server) Stop(ctx context.Context) error {
	if s.cron != nil {
		cronCtx := s.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Configs exposes the config store for CLI and test wiring.
func (s *Server) Configs() *rebuildconfig.Store { return s.configs }

// Registry exposes the cohort registry.
func (s *Server) Registry() *cohort.Registry { return s.registry }

// Jobs exposes the seed job store.
func (s *Server) Jobs() *seeder.JobStore { return s.jobs }

// Runner exposes the seed runner.
func (s *Server) Runner() *seeder.Runner { return s.runner }

func (s *Server) providerStatusHandler(w http.ResponseWriter, r *http.Request) {
	perMinute, perDay := 0, 0
	cfg, err := s.configs.GetActive()
	switch {
	case err == nil:
		perMinute = cfg.Payload.RateLimitPerMinute
		perDay = cfg.Payload.RateLimitPerDay
	case !apierr.IsNotFound(err):
		writeError(w, apierr.StatusCode(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, provider.Snapshot(s.client, s.usage, s.cache, perMinute, perDay))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	migrated := s.migrated
	s.mu.Unlock()
	if !migrated {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "migrating"})
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
