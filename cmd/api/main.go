package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campuschain/feedback-api/api/swagger"
	"github.com/campuschain/feedback-api/internal/chain"
	"github.com/campuschain/feedback-api/internal/handler"
	"github.com/campuschain/feedback-api/internal/middleware"
	"github.com/campuschain/feedback-api/internal/models"
	"github.com/campuschain/feedback-api/internal/repository"
	"github.com/campuschain/feedback-api/internal/service"
	"github.com/campuschain/feedback-api/pkg/cache"
	"github.com/campuschain/feedback-api/pkg/config"
	"github.com/campuschain/feedback-api/pkg/database"
	"github.com/campuschain/feedback-api/pkg/jobs"
	"github.com/campuschain/feedback-api/pkg/logger"
	corsmiddleware "github.com/campuschain/feedback-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuschain/feedback-api/pkg/middleware/requestid"
)

const (
	jobPurgeStaging  = "purge_staging"
	jobPurgeSessions = "purge_sessions"
)

// @title Campus Feedback API
// @version 0.1.0
// @description Course feedback service backed by an on-chain feedback ledger
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	metricsService := service.NewMetricsService()

	chainClient, err := chain.Dial(ctx, cfg.Chain, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to ledger", "error", err)
	}
	chainClient.WithMetrics(metricsService)
	resolver := chain.NewAdminResolver(chainClient, cfg.Chain.AdminAddress, logr)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr).WithMetrics(metricsService)

	validate := validator.New()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:             cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "campus-feedback-api",
	})
	registrationService := service.NewRegistrationService(chainClient, resolver, courseRepo, userRepo, cacheRepo, validate, logr)
	feedbackService := service.NewFeedbackService(chainClient, resolver, feedbackRepo, userRepo, cacheRepo, cfg.Chain.SponsorFeedback, cfg.Staging.TTL, validate, logr)
	queryService := service.NewChainQueryService(chainClient, courseRepo, cacheRepo, userRepo, cfg.Chain.CacheTTL, logr)
	exportService := service.NewExportService(queryService, cfg.Exports.Enabled, logr)

	maintenance := jobs.NewQueue("maintenance", func(ctx context.Context, job jobs.Job) error {
		switch job.Type {
		case jobPurgeStaging:
			purged, err := feedbackService.PurgeExpiredStaging(ctx)
			if err != nil {
				return err
			}
			if purged > 0 {
				logr.Sugar().Infow("purged expired staged feedback", "count", purged)
			}
		case jobPurgeSessions:
			deleted, err := userRepo.DeleteExpiredRefreshTokens(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			if deleted > 0 {
				logr.Sugar().Infow("deleted expired refresh tokens", "count", deleted)
			}
		}
		return nil
	}, jobs.QueueConfig{Workers: 1, Logger: logr})
	maintenance.Start(ctx)
	defer maintenance.Stop()

	go runMaintenanceTicker(ctx, maintenance, cfg.Staging.PurgeInterval)

	authHandler := handler.NewAuthHandler(authService, registrationService)
	courseHandler := handler.NewCourseHandler(queryService, registrationService)
	feedbackHandler := handler.NewFeedbackHandler(feedbackService, queryService)
	adminHandler := handler.NewAdminHandler(registrationService, queryService, exportService, resolver)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	auth.POST("/wallet", middleware.JWT(authService), authHandler.LinkWallet)

	courses := api.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/:id", courseHandler.Get)
	courses.POST("", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), courseHandler.Create)

	feedback := api.Group("/feedback", middleware.JWT(authService))
	feedback.POST("", feedbackHandler.Submit)
	feedback.GET("/mine", feedbackHandler.MySubmissions)
	feedback.GET("/submitted", feedbackHandler.Submitted)
	feedback.GET("/:id/status", feedbackHandler.Status)
	feedback.GET("/averages/:teacherId/:courseId", feedbackHandler.Averages)

	admin := api.Group("/admin", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/teachers", adminHandler.RegisterTeacher)
	admin.POST("/students", adminHandler.RegisterStudent)
	admin.GET("/feedback", adminHandler.AllFeedback)
	admin.GET("/feedback/export", adminHandler.Export)
	admin.GET("/dashboard", adminHandler.Dashboard)
	admin.GET("/contract", adminHandler.ContractAdmin)
	admin.POST("/contract/rotate", adminHandler.EnsureAdmin)
	admin.GET("/metrics", metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}

func runMaintenanceTicker(ctx context.Context, queue *jobs.Queue, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			_ = queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobPurgeStaging, Enqueued: now})
			_ = queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobPurgeSessions, Enqueued: now})
		}
	}
}
