package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/youthhub-api/api/swagger"
	"github.com/noah-isme/youthhub-api/internal/handler"
	internalmiddleware "github.com/noah-isme/youthhub-api/internal/middleware"
	"github.com/noah-isme/youthhub-api/internal/models"
	"github.com/noah-isme/youthhub-api/internal/repository"
	"github.com/noah-isme/youthhub-api/internal/service"
	"github.com/noah-isme/youthhub-api/pkg/cache"
	"github.com/noah-isme/youthhub-api/pkg/config"
	"github.com/noah-isme/youthhub-api/pkg/database"
	"github.com/noah-isme/youthhub-api/pkg/jobs"
	"github.com/noah-isme/youthhub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/youthhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/youthhub-api/pkg/middleware/requestid"
)

// @title YouthHub Targeting API
// @version 1.0.0
// @description Audience targeting, feed and fanout engine
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(database.URL(cfg.Database)); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Targeting.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, attribute cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := models.SystemClock{}
	validate := validator.New()

	contentRepo := repository.NewContentRepository(db)
	attributeRepo := repository.NewAttributeRepository(db)
	audienceRepo := repository.NewAudienceRepository(db)
	engagementRepo := repository.NewEngagementRepository(db)
	ledgerRepo := repository.NewFanoutLedgerRepository(db)
	groupRepo := repository.NewGroupRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Targeting.CacheTTL, logr, cfg.Targeting.CacheEnabled)

	attributeSvc := service.NewAttributeService(attributeRepo, cacheSvc, cfg.Targeting.CacheTTL, cfg.Targeting.Location(), logr)
	feedSvc := service.NewFeedService(attributeSvc, contentRepo, engagementRepo, metricsSvc, clock, logr, service.FeedConfig{
		DefaultLimit:   cfg.Feed.DefaultLimit,
		MaxLimit:       cfg.Feed.MaxLimit,
		CandidateBatch: cfg.Feed.CandidateBatch,
	})
	fanoutSvc := service.NewFanoutService(contentRepo, audienceRepo, attributeSvc, ledgerRepo, metricsSvc, clock, logr, cfg.Fanout.PageSize)

	var sink service.NotificationSink = repository.NewNotificationRepository(db)
	if cfg.Fanout.Sink == config.FanoutSinkLedger {
		sink = repository.NewLedgerSink(ledgerRepo)
	}
	publishSvc := service.NewPublishService(contentRepo, fanoutSvc, sink, metricsSvc, logr, service.PublishConfig{
		BatchSize:      cfg.Fanout.PageSize,
		DispatchRate:   cfg.Fanout.DispatchRate,
		EnqueueTimeout: cfg.Fanout.EnqueueTimeout,
	})

	fanoutQueue := jobs.NewQueue("fanout", publishSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Fanout.Workers,
		MaxRetries: cfg.Fanout.Retries,
		RetryDelay: cfg.Fanout.RetryDelay,
		Logger:     logr,
	})
	fanoutQueue.Start(ctx)
	defer fanoutQueue.Stop()
	publishSvc.AttachQueue(fanoutQueue)

	contentSvc := service.NewContentService(contentRepo, groupRepo, publishSvc, validate, clock, logr)
	explainSvc := service.NewExplainService(attributeSvc, contentSvc, clock)
	exportSvc := service.NewExportService(contentSvc, ledgerRepo, logr, nil, nil)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)

	if cfg.Lifecycle.Enabled {
		service.NewLifecycleWorker(contentRepo, contentSvc, clock, logr, cfg.Lifecycle.Interval).Start(ctx)
	}

	feedHandler := handler.NewFeedHandler(feedSvc)
	explainHandler := handler.NewExplainHandler(explainSvc, validate)
	contentHandler := handler.NewContentHandler(contentSvc)
	fanoutHandler := handler.NewFanoutHandler(exportSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", readiness(db, redisClient))
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(tokenSvc))
	api.GET("/feed", feedHandler.Mine)

	admin := api.Group("")
	admin.Use(internalmiddleware.RequireAdmin())
	admin.POST("/items", contentHandler.Create)
	admin.GET("/items/:id", contentHandler.Get)
	admin.PUT("/items/:id", contentHandler.Update)
	admin.POST("/items/:id/status", contentHandler.Transition)
	admin.GET("/admin/users/:id/feed", feedHandler.ForUser)
	admin.GET("/admin/explain", explainHandler.Explain)
	admin.GET("/admin/items/:id/fanout/export", fanoutHandler.Export)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func readiness(db *sqlx.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		checks := gin.H{"postgres": "ok"}
		status := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			checks["redis"] = "ok"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				checks["redis"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		label := "ready"
		if status != http.StatusOK {
			label = "degraded"
		}
		c.JSON(status, gin.H{"status": label, "checks": checks})
	}
}
