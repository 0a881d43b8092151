package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/opstrail/changetrack/api/swagger"
	"github.com/opstrail/changetrack/internal/handler"
	"github.com/opstrail/changetrack/internal/middleware"
	"github.com/opstrail/changetrack/internal/models"
	"github.com/opstrail/changetrack/internal/repository"
	"github.com/opstrail/changetrack/internal/service"
	"github.com/opstrail/changetrack/internal/tracker"
	"github.com/opstrail/changetrack/pkg/cache"
	"github.com/opstrail/changetrack/pkg/config"
	"github.com/opstrail/changetrack/pkg/database"
	"github.com/opstrail/changetrack/pkg/jobs"
	"github.com/opstrail/changetrack/pkg/logger"
	corsmiddleware "github.com/opstrail/changetrack/pkg/middleware/cors"
	reqidmiddleware "github.com/opstrail/changetrack/pkg/middleware/requestid"
)

// @title ChangeTrack API
// @version 1.0.0
// @description Change-tracking persistence layer with a queryable audit trail
// @BasePath /api/v1
// @schemes http

const (
	jobAuditWrite     = "audit_write"
	jobRetentionSweep = "retention_sweep"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, audit query cache disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()

	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	itemRepo := repository.NewItemRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	auditSvc := service.NewAuditService(auditRepo, cacheRepo, logr, service.AuditServiceConfig{
		CacheTTL:      cfg.Audit.CacheTTL,
		ExportEnabled: cfg.Audit.ExportEnabled,
		ExportDir:     cfg.Audit.ExportDir,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
		switch job.Type {
		case jobAuditWrite:
			record, ok := job.Payload.(models.AuditLog)
			if !ok {
				return fmt.Errorf("unexpected payload type %T", job.Payload)
			}
			if err := auditRepo.Insert(ctx, &record); err != nil {
				metricsSvc.RecordAuditWriteFailure()
				return err
			}
			return nil
		case jobRetentionSweep:
			removed, err := auditSvc.Purge(ctx, cfg.Audit.RetentionMaxAge)
			if err != nil {
				return err
			}
			metricsSvc.RecordPurgedRecords(removed)
			return nil
		default:
			return fmt.Errorf("unknown job type %q", job.Type)
		}
	}, jobs.QueueConfig{
		Workers:    cfg.Tracker.QueueWorkers,
		BufferSize: cfg.Tracker.QueueBuffer,
		MaxRetries: cfg.Tracker.QueueRetries,
		RetryDelay: cfg.Tracker.QueueRetryDelay,
		Logger:     logr,
	})
	queue.Start(rootCtx)
	defer queue.Stop()

	sessions := tracker.NewFactory(db, auditRepo, logr)
	sessions.OnAuditRecord(metricsSvc.RecordAuditRecord)
	sessions.OnAuditRecord(func(models.AuditLog) {
		auditSvc.InvalidateCache(rootCtx)
	})
	if cfg.Tracker.AsyncAudit {
		sessions.UseAsyncAudit(func(record models.AuditLog) error {
			return queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobAuditWrite, Payload: record})
		})
	}

	authSvc := service.NewAuthService(userRepo, auditRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	itemSvc := service.NewItemService(itemRepo, sessions, logr)
	userSvc := service.NewUserService(userRepo, sessions, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	itemHandler := handler.NewItemHandler(itemSvc)
	userHandler := handler.NewUserHandler(userSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
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
	{
		api.POST("/auth/login", authHandler.Login)
		api.GET("/auth/me", middleware.JWT(authSvc), authHandler.Me)

		items := api.Group("/items", middleware.JWT(authSvc))
		{
			items.GET("", itemHandler.List)
			items.GET("/:id", itemHandler.Get)
			writer := middleware.RequireRoles(models.RoleAdmin, models.RoleOperator)
			items.POST("", writer, itemHandler.Create)
			items.PUT("/:id", writer, itemHandler.Update)
			items.DELETE("/:id", writer, itemHandler.Delete)
		}

		users := api.Group("/users", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
		{
			users.GET("", userHandler.List)
			users.POST("", userHandler.Create)
			users.GET("/:id", userHandler.Get)
			users.PUT("/:id", userHandler.Update)
			users.POST("/:id/deactivate", userHandler.Deactivate)
		}

		audits := api.Group("/audit-logs", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleAuditor))
		{
			audits.GET("", auditHandler.List)
			audits.GET("/export", auditHandler.Export)
			audits.GET("/:entity/:id", auditHandler.ListForEntity)
		}
	}

	if cfg.Audit.RetentionEnabled {
		go func() {
			ticker := time.NewTicker(cfg.Audit.RetentionInterval)
			defer ticker.Stop()
			for {
				select {
				case <-rootCtx.Done():
					return
				case <-ticker.C:
					if err := queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobRetentionSweep}); err != nil {
						logr.Warn("failed to enqueue retention sweep", zap.Error(err))
					}
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "async_audit", cfg.Tracker.AsyncAudit)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
