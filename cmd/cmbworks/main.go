package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cmbworks/cmbworks/cmd/cmbworks/cli"
	"github.com/cmbworks/cmbworks/internal/app"
	"github.com/cmbworks/cmbworks/internal/billing"
	"github.com/cmbworks/cmbworks/internal/measurement/templates"
	"github.com/cmbworks/cmbworks/internal/observability"
	"github.com/cmbworks/cmbworks/internal/platform/cache"
	"github.com/cmbworks/cmbworks/internal/platform/db"
	"github.com/cmbworks/cmbworks/internal/platform/migrate"
	"github.com/cmbworks/cmbworks/internal/project"
	projecthttp "github.com/cmbworks/cmbworks/internal/project/http"
	"github.com/cmbworks/cmbworks/jobs"
)

const usage = `usage:
  cmbworks                      start the HTTP server
  cmbworks bill --project FILE [--bill N | --all] [--json]
  cmbworks migrate              apply database migrations
  cmbworks jobs trigger|stats|scheduled ...`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		code := runCommand(ctx, os.Args[1], os.Args[2:])
		stop()
		os.Exit(code)
	}
	serve(ctx, stop)
}

func runCommand(ctx context.Context, name string, args []string) int {
	switch name {
	case "bill":
		opts, err := cli.ParseBillArgs(args, os.Stdout, os.Stderr)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "bill: %v\n", err)
			return 2
		}
		return cli.BillCommand(ctx, opts)
	case "migrate":
		cfg, err := app.LoadConfig()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			return 1
		}
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
			return 1
		}
		defer pool.Close()
		if err := migrate.Up(ctx, pool); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			return 1
		}
		return 0
	case "jobs":
		cfg, err := app.LoadConfig()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			return 1
		}
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		defer func() { _ = jobsCLI.Close() }()
		return jobsCLI.JobsCommand(ctx, args, os.Stdout, os.Stderr)
	}
	_, _ = fmt.Fprintln(os.Stderr, usage)
	return 2
}

func serve(ctx context.Context, stop context.CancelFunc) {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.PGMigrate {
		if err := migrate.Up(ctx, dbpool); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

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
	engine := billing.NewEngine(logger, metrics)

	billCache := project.NewCache(redisClient, cfg.CacheTTL)
	billCache.ListenForInvalidation(ctx)

	projectService := project.NewService(
		project.NewRepository(dbpool),
		billCache,
		engine,
		templates.Default(),
		logger,
		project.Options{DefaultPercentage: cfg.DefaultPercentage},
	)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		ProjectHandler: projecthttp.NewHandler(logger, projectService, jobClient, cfg.ExportLimitPerMinute),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
