package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/rentloop-backend/internal/collection"
	"github.com/angelmondragon/rentloop-backend/internal/cron"
	"github.com/angelmondragon/rentloop-backend/internal/orders"
	"github.com/angelmondragon/rentloop-backend/internal/payments"
	"github.com/angelmondragon/rentloop-backend/pkg/config"
	"github.com/angelmondragon/rentloop-backend/pkg/db"
	"github.com/angelmondragon/rentloop-backend/pkg/instance"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
	"github.com/angelmondragon/rentloop-backend/pkg/metrics"
	"github.com/angelmondragon/rentloop-backend/pkg/migrate"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox"
	"github.com/angelmondragon/rentloop-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Fields:      map[string]any{"env": cfg.App.Env, "instance": instance.GetID()},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(logg, "redis", redisClient.Close)

	key, err := cfg.Collection.Key()
	if err != nil {
		return fmt.Errorf("collection token key: %w", err)
	}
	codec, err := collection.NewCodec(key)
	if err != nil {
		return fmt.Errorf("collection token codec: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	outboxRepo := outbox.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:           orders.NewRepository(dbClient.DB()),
		Payments:       payments.NewRepository(dbClient.DB()),
		Tx:             dbClient,
		Outbox:         outbox.NewService(outboxRepo, logg),
		Codec:          codec,
		Logger:         logg,
		Metrics:        metrics.NewOrderMetrics(reg),
		Rate:           cfg.Orders.Rate(),
		ApprovalWindow: cfg.Orders.ApprovalWindow,
		PaymentWindow:  cfg.Orders.PaymentWindow,
		TokenTTL:       cfg.Collection.TokenTTL,
		ExpiryBatch:    cfg.Orders.ExpiryBatch,
	})
	if err != nil {
		return fmt.Errorf("create orders service: %w", err)
	}

	expiryJob, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{Logger: logg, Orders: ordersService})
	if err != nil {
		return fmt.Errorf("create order expiry job: %w", err)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("create outbox retention job: %w", err)
	}
	jobs, err := cron.NewRegistry(expiryJob, retentionJob)
	if err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.App.Env, cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("create cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.LockTTL,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, reg, logg); err != nil {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()

	ctx = logg.WithField(ctx, "serviceKind", cfg.Service.Kind)
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
