// Package main runs the background job worker (notification delivery, ledger reconciliation).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kmt-marshals/backend/config"
	"github.com/kmt-marshals/backend/internal/auth"
	"github.com/kmt-marshals/backend/internal/notifications"
	"github.com/kmt-marshals/backend/internal/reconcile"
	"github.com/kmt-marshals/backend/internal/worker"
	"github.com/kmt-marshals/backend/pkg/database"
	"github.com/kmt-marshals/backend/pkg/queue"
	"github.com/kmt-marshals/backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	notifRepo := notifications.NewRepository(pool)
	userRepo := auth.NewRepository(pool)
	reconciler := reconcile.NewReconciler(reconcile.NewPgStore(pool), logger)
	emailSender := notifications.NewEmailSender(cfg.Email, logger)
	pushSender := notifications.NewPushSender(cfg.Push, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(notifRepo, userRepo, reconciler, emailSender, pushSender, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
