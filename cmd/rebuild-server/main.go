// Package main provides the rebuild control plane server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pitchside/rebuild-server/pkg/provider"
	"github.com/pitchside/rebuild-server/pkg/server"
)

func main() {
	var (
		listenAddr   string
		databaseType string
		databaseDSN  string
		schedule     string
	)

	flag.StringVar(&listenAddr, "listen", ":8080", "Address to listen on")
	flag.StringVar(&databaseType, "db-type", "sqlite", "Database type (sqlite, postgres, or mysql)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "Database connection string")
	flag.StringVar(&schedule, "schedule", "", "Cron expression for scheduled batch seeds (empty disables)")
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	// Local development reads provider credentials from .env when present.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if schedule == "" {
		schedule = os.Getenv("REBUILD_SEED_SCHEDULE")
	}

	logger.Info("starting rebuild server",
		"listen", listenAddr,
		"db_type", databaseType,
		"schedule", schedule,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	gormDB, err := setupDatabase(databaseType, databaseDSN)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	providerCfg := provider.Config{
		BaseURL:  envOrDefault("FOOTBALL_API_BASE_URL", "https://v3.football.api-sports.io"),
		ProxyURL: os.Getenv("FOOTBALL_API_PROXY_URL"),
		APIKey:   os.Getenv("FOOTBALL_API_KEY"),
	}

	srv := server.New(gormDB, logger,
		server.WithProviderConfig(providerCfg),
		server.WithSchedule(schedule),
	)
	if err := srv.Init(ctx); err != nil {
		glog.Fatalf("Failed to migrate schema: %v", err)
	}

	router := srv.MountRoutes()

	if err := srv.Start(ctx); err != nil {
		glog.Fatalf("Failed to start server: %v", err)
	}

	logger.Info("rebuild server ready", "listen", listenAddr)

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("worker shutdown error", "error", err)
	}

	logger.Info("rebuild server stopped")
}

func setupDatabase(dbType, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_DSN")
	}
	if dbType == "" {
		dbType = envOrDefault("DATABASE_TYPE", "sqlite")
	}

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	switch dbType {
	case "sqlite":
		if dsn == "" {
			dsn = "rebuild.db"
		}
		return gorm.Open(sqlite.Open(dsn), gormCfg)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("database DSN is required for postgres (use -db-dsn or DATABASE_DSN)")
		}
		return gorm.Open(postgres.Open(dsn), gormCfg)
	case "mysql":
		if dsn == "" {
			return nil, fmt.Errorf("database DSN is required for mysql (use -db-dsn or DATABASE_DSN)")
		}
		return gorm.Open(mysql.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database type %q (expected sqlite, postgres, or mysql)", dbType)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
