package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/cmbworks/cmbworks/internal/app"
	"github.com/cmbworks/cmbworks/internal/billing"
	"github.com/cmbworks/cmbworks/internal/measurement/templates"
	"github.com/cmbworks/cmbworks/internal/observability"
	"github.com/cmbworks/cmbworks/internal/platform/cache"
	"github.com/cmbworks/cmbworks/internal/platform/db"
	"github.com/cmbworks/cmbworks/internal/project"
	"github.com/cmbworks/cmbworks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	projectService := project.NewService(
		project.NewRepository(pool),
		project.NewCache(redisClient, cfg.CacheTTL),
		billing.NewEngine(logger, metrics),
		templates.Default(),
		logger,
		project.Options{DefaultPercentage: cfg.DefaultPercentage},
	)

	exportJob := jobs.NewBillExportJob(projectService, cfg.ExportDir, logger, metrics.Jobs())
	pruneJob := jobs.NewExportsPruneJob(cfg.ExportDir, logger, metrics.Jobs())

	pruneTask, err := jobs.NewExportsPruneTask(jobs.ExportsPrunePayload{RetentionDays: cfg.ExportRetentionDays})
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBillExport, Handler: exportJob.Handle},
			{Type: jobs.TaskExportsPrune, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExportPruneCron, Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
