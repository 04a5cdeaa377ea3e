package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/rentloop-backend/pkg/config"
	"github.com/angelmondragon/rentloop-backend/pkg/db"
	"github.com/angelmondragon/rentloop-backend/pkg/instance"
	"github.com/angelmondragon/rentloop-backend/pkg/kafka"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
	"github.com/angelmondragon/rentloop-backend/pkg/metrics"
	"github.com/angelmondragon/rentloop-backend/pkg/migrate"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox/registry"
	"github.com/angelmondragon/rentloop-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

type closingSink interface {
	sink
	Close() error
}

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
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
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

	transport := strings.ToLower(cfg.Outbox.Transport)
	out, topic, err := openSink(ctx, cfg, transport, logg)
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", transport, err)
	}
	defer closeQuietly(logg, transport, out.Close)

	eventRegistry, err := registry.NewEventRegistry(topic)
	if err != nil {
		return fmt.Errorf("build event registry: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service, err := NewService(ServiceParams{
		Outbox:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		Sink:       out,
		SinkName:   transport,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   eventRegistry,
		Metrics:    metrics.NewOutboxMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("create outbox publisher: %w", err)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, reg, logg); err != nil {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()

	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"transport":   transport,
		"topic":       topic,
	})
	logg.Info(ctx, "starting outbox publisher")
	return service.Run(ctx)
}

func openSink(ctx context.Context, cfg *config.Config, transport string, logg *logger.Logger) (closingSink, string, error) {
	switch transport {
	case config.OutboxTransportKafka:
		producer, err := kafka.NewProducer(cfg.Kafka, logg)
		if err != nil {
			return nil, "", err
		}
		return producer, cfg.Kafka.OrdersTopic, nil
	case config.OutboxTransportPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.PubSub.OrdersTopic, nil
	}
	return nil, "", fmt.Errorf("unsupported outbox transport %q", transport)
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
