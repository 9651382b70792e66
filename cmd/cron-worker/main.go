package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordanmaier/copperline-backend/internal/cart"
	"github.com/jordanmaier/copperline-backend/internal/cron"
	stripewebhook "github.com/jordanmaier/copperline-backend/internal/webhooks/stripe"
	"github.com/jordanmaier/copperline-backend/pkg/config"
	"github.com/jordanmaier/copperline-backend/pkg/db"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
	"github.com/jordanmaier/copperline-backend/pkg/metrics"
	"github.com/jordanmaier/copperline-backend/pkg/migrate"
	"github.com/jordanmaier/copperline-backend/pkg/outbox"
	"github.com/jordanmaier/copperline-backend/pkg/redis"
)

const (
	serviceName   = "cron-worker"
	lockKeyFormat = "cl:cron-worker:lock:%s"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := run(logg); err != nil {
		logg.Error(context.Background(), "cron worker exited", err)
		os.Exit(1)
	}
}

// run owns the full lifecycle so every failure path unwinds the defers
// before the process exits.
func run(logg *logger.Logger) error {
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		return fmt.Errorf("run dev migrations: %w", err)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := cron.NewRegistry()
	jobs, err := buildJobs(cfg, dbClient, logg)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := registry.Add(job); err != nil {
			return fmt.Errorf("register cron job: %w", err)
		}
	}

	lease, err := cron.NewRedisLease(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		return fmt.Errorf("create cron lease: %w", err)
	}
	runner, err := cron.NewRunner(cron.RunnerParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lease,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("create cron runner: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
	})
	logg.Info(ctx, "starting cron worker")

	go serveMetrics(ctx, logg, listenPort(cfg))

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

// buildJobs wires every retention job against the shared database handle.
func buildJobs(cfg *config.Config, dbClient *db.Client, logg *logger.Logger) ([]cron.Job, error) {
	webhookRetention, err := cron.NewWebhookRetentionJob(cron.WebhookRetentionJobParams{
		Logger: logg,
		Events: stripewebhook.NewEventRepository(dbClient.DB()),
		MaxAge: cfg.Retention.WebhookEventMaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("create webhook retention job: %w", err)
	}

	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:          logg,
		Outbox:          outbox.NewRepository(dbClient.DB()),
		DLQ:             outbox.NewDLQRepository(dbClient.DB()),
		PublishedMaxAge: cfg.Retention.OutboxPublishedMaxAge,
		DLQMaxAge:       cfg.Retention.OutboxDLQMaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("create outbox retention job: %w", err)
	}

	guestCartCleanup, err := cron.NewGuestCartCleanupJob(cron.GuestCartCleanupJobParams{
		Logger: logg,
		Carts:  cart.NewRepository(dbClient.DB()),
		MaxAge: cfg.Retention.GuestCartMaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("create guest cart cleanup job: %w", err)
	}

	return []cron.Job{webhookRetention, outboxRetention, guestCartCleanup}, nil
}

// serveMetrics exposes /metrics for the scraper. The listener shares the
// worker's lifetime; there is nothing to drain on shutdown.
func serveMetrics(ctx context.Context, logg *logger.Logger, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics listener stopped unexpectedly", err)
	}
}

func listenPort(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return cfg.App.Port
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
