package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/scorecard-api/api/swagger"
	"github.com/noah-isme/scorecard-api/internal/analytics"
	"github.com/noah-isme/scorecard-api/internal/dto"
	"github.com/noah-isme/scorecard-api/internal/handler"
	internalmiddleware "github.com/noah-isme/scorecard-api/internal/middleware"
	"github.com/noah-isme/scorecard-api/internal/models"
	"github.com/noah-isme/scorecard-api/internal/repository"
	"github.com/noah-isme/scorecard-api/internal/service"
	"github.com/noah-isme/scorecard-api/pkg/cache"
	"github.com/noah-isme/scorecard-api/pkg/config"
	"github.com/noah-isme/scorecard-api/pkg/database"
	"github.com/noah-isme/scorecard-api/pkg/jobs"
	"github.com/noah-isme/scorecard-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/scorecard-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/scorecard-api/pkg/middleware/requestid"
)

// @title Scorecard API
// @version 0.1.0
// @description Classroom performance analytics: dashboards, rankings, trends and SWOT reports.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var cacheRepo *repository.CacheRepository
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, snapshot cache disabled", zap.Error(err))
	} else {
		cacheRepo = repository.NewCacheRepository(redisClient, "scorecard", logr)
		defer cacheRepo.Close() //nolint:errcheck
	}

	metricsSvc := service.NewMetricsService()
	var cacheBackend service.CacheRepository
	if cacheRepo != nil {
		cacheBackend = cacheRepo
	}
	cacheSvc := service.NewCacheService(cacheBackend, metricsSvc, cfg.Performance.SnapshotCacheTTL, logr, cacheRepo != nil)

	deny, err := swotDenylists(cfg.Swot)
	if err != nil {
		logr.Sugar().Fatalw("invalid swot denylist", "error", err)
	}

	var performanceSvc *service.PerformanceService
	var warmer service.SnapshotWarmer
	if cfg.Performance.WarmWorkers > 0 && cacheSvc.Enabled() {
		warmQueue := jobs.NewQueue("snapshot-warm", func(ctx context.Context, job jobs.Job) error {
			return performanceSvc.Warm(ctx, job.Key)
		}, jobs.QueueConfig{Workers: cfg.Performance.WarmWorkers, MaxRetries: 2, Logger: logr})
		warmQueue.Start(context.Background())
		defer warmQueue.Stop()
		warmer = warmQueue
	}

	performanceSvc, err = service.NewPerformanceService(service.PerformanceServiceParams{
		Repo:    repository.NewPerformanceRepository(db),
		Cache:   cacheSvc,
		Metrics: metricsSvc,
		Warmer:  warmer,
		Logger:  logr,
		Config: service.PerformanceServiceConfig{
			MaxScore:        cfg.Performance.MaxScore,
			SubjectMaxScore: cfg.Performance.SubjectMaxScore,
			ZeroAsAbsent:    cfg.Performance.ZeroAsAbsent,
			SnapshotTTL:     cfg.Performance.SnapshotCacheTTL,
			FetchTimeout:    cfg.Performance.FetchTimeout,
			Deny:            deny,
		},
	})
	if err != nil {
		logr.Sugar().Fatalw("invalid performance configuration", "error", err)
	}

	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient))
	performanceHandler := handler.NewPerformanceHandler(performanceSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if cfg.Performance.Enabled {
		performance := r.Group(cfg.APIPrefix + "/performance")
		performance.Use(internalmiddleware.WithResponseMeta())
		performance.GET("/dashboard", performanceHandler.Dashboard)
		performance.GET("/rankings", performanceHandler.Rankings)
		performance.GET("/rankings/export", performanceHandler.ExportRankings)
		performance.GET("/students/:student_id/trend", performanceHandler.StudentTrend)
		performance.GET("/swot", performanceHandler.Swot)
		performance.POST("/refresh", performanceHandler.Refresh)
		performance.GET("/system", performanceHandler.System)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "performance", cfg.Performance.Enabled)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func swotDenylists(cfg config.SwotConfig) (map[dto.Audience][]models.SwotExclusion, error) {
	raw := map[dto.Audience][]string{
		dto.AudienceInstitution: cfg.DenyInstitution,
		dto.AudienceEducator:    cfg.DenyEducator,
		dto.AudienceStudent:     cfg.DenyStudent,
	}
	out := make(map[dto.Audience][]models.SwotExclusion, len(raw))
	for audience, entries := range raw {
		parsed, err := analytics.ParseSwotExclusions(entries)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", audience, err)
		}
		out[audience] = parsed
	}
	return out, nil
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}
