package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskify/backend/internal/cache"
	"taskify/backend/internal/config"
	"taskify/backend/internal/database"
	"taskify/backend/internal/logger"
	"taskify/backend/internal/repositories"
	"taskify/backend/internal/server"
	"taskify/backend/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Setup(cfg.Server)
	slog.Info("configuration loaded",
		"environment", cfg.Server.Environment,
		"database_driver", cfg.Database.Driver,
		"log_level", cfg.Server.LogLevel,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Migrate(); err != nil {
		return err
	}

	store := cache.NewRedisStore(cache.NewRedisClient(cache.CacheConfigFrom(cfg)), nil)
	defer store.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := store.Health(pingCtx); err != nil {
		slog.Warn("redis unavailable, login throttle and reminders are degraded", "addr", cfg.GetRedisAddr(), "error", err)
	}
	cancel()

	// Without a worker nothing would consume reminders, so none are queued.
	var jobs *worker.JobQueue
	if cfg.Worker.Enabled {
		jobs = worker.NewJobQueue(store, cfg.Worker.MaxAttempts, nil)
		w := worker.NewWorker(jobs, cfg.Worker)
		w.RegisterHandler(worker.JobTypeTaskReminder, worker.ReminderHandler(repositories.NewTaskRepository(pool.DB)))
		w.Start()
		defer w.Stop()
	}

	srv := server.New(cfg, server.Deps{DB: pool, Redis: store, Jobs: jobs})
	return srv.Run(ctx)
}
