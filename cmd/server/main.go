package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ajharbinger/perfeval/internal/api"
	"github.com/ajharbinger/perfeval/internal/cache"
	"github.com/ajharbinger/perfeval/internal/database"
	"github.com/ajharbinger/perfeval/internal/logger"
	"github.com/ajharbinger/perfeval/internal/middleware"
	"github.com/ajharbinger/perfeval/internal/repository"
	"github.com/ajharbinger/perfeval/internal/seed"
	"github.com/ajharbinger/perfeval/internal/services"
	"github.com/ajharbinger/perfeval/pkg/config"
)

const (
	shutdownTimeout   = 15 * time.Second
	draftSweepEvery   = 10 * time.Minute
	readHeaderTimeout = 10 * time.Second
)

func main() {
	// Initialize configuration
	cfg := config.New()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.HealthCheck{}

	// Storage: Postgres when configured, otherwise the in-memory store
	var repos *repository.Repositories
	if cfg.HasDatabase() {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("Failed to connect to database", err)
		}
		defer db.Close()

		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatal("Failed to run migrations", err)
		}
		repos = repository.NewRepositories(db.DB)
		checks["database"] = func(context.Context) error { return db.HealthCheck() }
		log.Info("Using Postgres storage")
	} else {
		repos = repository.NewMemoryRepositories()
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	if cfg.HasRedis() {
		rdb := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			log.Warn("Redis unavailable, model cache disabled", "addr", cfg.RedisAddr, "error", err.Error())
		} else {
			repos.Model = cache.NewCachedModels(repos.Model, rdb, cfg.ModelCacheTTL, log)
			checks["redis"] = rdb.Ping
			log.Info("Model cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.ModelCacheTTL.String())
		}
	}

	if cfg.SeedOnStart {
		data, err := seed.Default()
		if err != nil {
			log.Fatal("Failed to load seed data", err)
		}
		applied, err := seed.Apply(ctx, repos, data)
		if err != nil {
			log.Fatal("Failed to seed library", err)
		}
		if applied {
			log.Info("Seeded indicator library", "indicators", len(data.Indicators), "models", len(data.Models))
		}
	}

	svc := services.NewServices(repos, services.OptionsFromConfig(cfg, log))
	if err := svc.Channel.StartScheduler(ctx); err != nil {
		log.Fatal("Failed to start channel scheduler", err)
	}
	go sweepDrafts(ctx, svc.Model, log)

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(cfg))
	r.Use(middleware.InputValidationMiddleware(cfg.MaxRequestSize))
	if cfg.EnableRateLimit {
		r.Use(middleware.RateLimitingMiddleware())
	}
	r.Use(gin.Recovery())

	api.SetupRoutes(r, svc, api.RouteOptions{HealthChecks: checks, Metrics: true})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", err)
	}
	select {
	case <-svc.Channel.StopScheduler().Done():
	case <-shutdownCtx.Done():
		log.Warn("Channel syncs still running at shutdown")
	}
}

func sweepDrafts(ctx context.Context, models services.ModelService, log logger.Logger) {
	ticker := time.NewTicker(draftSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := models.SweepDrafts(); n > 0 {
				log.Info("Expired wizard drafts removed", "count", n)
			}
		}
	}
}
