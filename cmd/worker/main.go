package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"netimob_lead_router/internal/email"
	"netimob_lead_router/internal/events"
	"netimob_lead_router/internal/notification"
	"netimob_lead_router/internal/routing/repository"
	"netimob_lead_router/internal/routing/service"
	"netimob_lead_router/internal/scheduler"
	"netimob_lead_router/platform/config"
	"netimob_lead_router/platform/db"
	"netimob_lead_router/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting routing worker", "env", cfg.Env, "interval", cfg.SweepInterval.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	repo := repository.New(pool)

	sender := email.NewSender(cfg, log)
	notificationModule := notification.NewModule(sender, notification.NewRepository(pool), repo, repo, cfg, cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	svc := service.New(repo, repo, repo, repo, repo, eventBus, log, cfg.GetSweepBatchSize())

	sweeper := scheduler.NewSweeper(cfg, svc, log)

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Run(runCtx)
		return nil
	})

	if cfg.GetRedisURL() != "" {
		worker, err := scheduler.NewWorker(cfg, svc, log)
		if err != nil {
			log.Error("failed to initialize task worker", "error", err)
			panic("failed to initialize task worker: " + err.Error())
		}
		g.Go(func() error {
			worker.Run(runCtx)
			return nil
		})
	} else {
		log.Warn("REDIS_URL not configured; manual async triggers disabled")
	}

	if err := g.Wait(); err != nil {
		log.Error("worker stopped", "error", err)
	}
	log.Info("routing worker shut down")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
