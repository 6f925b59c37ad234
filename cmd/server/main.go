// Package main runs the marshal management HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kmt-marshals/backend/config"
	"github.com/kmt-marshals/backend/internal/attendance"
	"github.com/kmt-marshals/backend/internal/auth"
	"github.com/kmt-marshals/backend/internal/capacity"
	"github.com/kmt-marshals/backend/internal/eventmarshals"
	"github.com/kmt-marshals/backend/internal/events"
	"github.com/kmt-marshals/backend/internal/middleware"
	"github.com/kmt-marshals/backend/internal/models"
	"github.com/kmt-marshals/backend/internal/notifications"
	"github.com/kmt-marshals/backend/internal/reconcile"
	"github.com/kmt-marshals/backend/internal/reports"
	"github.com/kmt-marshals/backend/pkg/database"
	"github.com/kmt-marshals/backend/pkg/queue"
	"github.com/kmt-marshals/backend/pkg/redis"
	"github.com/kmt-marshals/backend/pkg/response"
	"github.com/kmt-marshals/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			PhotosBucket:         cfg.AWS.PhotosBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth and profiles
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, s3Client, logger)

	// Capacity (shared by events, attendance and event marshals)
	capStore := capacity.NewPgStore(pool)
	calculator := capacity.NewCalculator(capStore, logger)
	guard := capacity.NewGuard(calculator)

	// Notifications
	notifRepo := notifications.NewRepository(pool)
	dispatcher := notifications.NewDispatcher(notifRepo, jobQueue, logger)
	notifHandler := notifications.NewHandler(notifRepo, jobQueue, logger)

	// Events
	eventRepo := events.NewRepository(pool)
	eventHandler := events.NewHandler(eventRepo, calculator, logger)

	// Attendance ledger (self-registration)
	attendanceRepo := attendance.NewRepository(pool)
	attendanceHandler := attendance.NewHandler(attendanceRepo, eventRepo, authRepo, guard, dispatcher, logger)

	// Event marshals ledger (invitations, direct adds)
	marshalRepo := eventmarshals.NewRepository(pool)
	marshalHandler := eventmarshals.NewHandler(marshalRepo, eventRepo, authRepo, dispatcher, logger)

	// Dual-ledger reconciliation
	reconcileStore := reconcile.NewPgStore(pool)
	reconciler := reconcile.NewReconciler(reconcileStore, logger)
	reconcileHandler := reconcile.NewHandler(reconciler, jobQueue, logger)

	// Reporting
	reportRepo := reports.NewRepository(pool)
	reportHandler := reports.NewHandler(reportRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/login", authHandler.Login)
	}

	admin := string(models.RoleAdmin)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Profiles
		api.GET("/users", middleware.RequireRole(admin), authHandler.List)
		api.GET("/users/me", authHandler.Me)
		api.PATCH("/users/me", authHandler.UpdateMe)
		api.POST("/users/me/photo", authHandler.UploadPhoto)
		api.GET("/users/me/notifications", notifHandler.ListMine)
		api.GET("/users/me/attendance", attendanceHandler.ListMine)
		api.GET("/users/me/invitations", marshalHandler.MyInvitations)

		// Events
		api.GET("/events", eventHandler.List)
		api.POST("/events", middleware.RequireRole(admin), eventHandler.Create)
		api.GET("/events/:id", eventHandler.GetByID)
		api.GET("/events/:id/marshal-count", eventHandler.MarshalCount)
		api.PATCH("/events/:id", middleware.RequireRole(admin), eventHandler.Update)
		api.DELETE("/events/:id", middleware.RequireRole(admin), eventHandler.Archive)

		// Attendance ledger
		api.POST("/events/:id/register", attendanceHandler.Register)
		api.POST("/events/:id/cancel", attendanceHandler.Cancel)
		api.POST("/events/:id/checkin", attendanceHandler.CheckIn)
		api.GET("/events/:id/attendance", middleware.RequireRole(admin), attendanceHandler.ListByEvent)
		api.POST("/events/:id/attendance/:attendanceId/approve", middleware.RequireRole(admin), attendanceHandler.Approve)
		api.POST("/events/:id/attendance/:attendanceId/reject", middleware.RequireRole(admin), attendanceHandler.Reject)

		// Event marshals ledger
		api.GET("/events/:id/marshals", middleware.RequireRole(admin), marshalHandler.ListByEvent)
		api.POST("/events/:id/marshals", middleware.RequireRole(admin), marshalHandler.DirectAdd)
		api.POST("/events/:id/invite", middleware.RequireRole(admin), marshalHandler.Invite)
		api.POST("/events/:id/invitation/respond", marshalHandler.Respond)
		api.DELETE("/events/:id/marshals/:marshalId", middleware.RequireRole(admin), marshalHandler.Remove)

		// Reporting
		api.GET("/events/:id/roster", middleware.RequireRole(admin), reportHandler.Roster)
		api.GET("/reports/events", middleware.RequireRole(admin), reportHandler.Events)

		// Reconciliation and notification admin
		api.POST("/admin/reconcile", middleware.RequireRole(admin), reconcileHandler.Run)
		api.GET("/admin/reconcile/preview", middleware.RequireRole(admin), reconcileHandler.Preview)
		api.POST("/admin/notifications/:id/resend", middleware.RequireRole(admin), notifHandler.Resend)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
