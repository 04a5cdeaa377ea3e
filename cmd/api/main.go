package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/rentloop-backend/api/routes"
	"github.com/angelmondragon/rentloop-backend/internal/collection"
	"github.com/angelmondragon/rentloop-backend/internal/orders"
	"github.com/angelmondragon/rentloop-backend/internal/payments"
	"github.com/angelmondragon/rentloop-backend/internal/wallet"
	"github.com/angelmondragon/rentloop-backend/internal/webhooks/payfast"
	"github.com/angelmondragon/rentloop-backend/pkg/config"
	"github.com/angelmondragon/rentloop-backend/pkg/db"
	"github.com/angelmondragon/rentloop-backend/pkg/instance"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
	"github.com/angelmondragon/rentloop-backend/pkg/metrics"
	"github.com/angelmondragon/rentloop-backend/pkg/migrate"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox"
	"github.com/angelmondragon/rentloop-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Fields:      map[string]any{"env": cfg.App.Env, "instance": instance.GetID()},
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(reg)

	key, err := cfg.Collection.Key()
	if err != nil {
		logg.Error(context.Background(), "invalid collection token key", err)
		os.Exit(1)
	}
	codec, err := collection.NewCodec(key)
	if err != nil {
		logg.Error(context.Background(), "failed to create collection token codec", err)
		os.Exit(1)
	}

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	orderRepo := orders.NewRepository(dbClient.DB())
	paymentRepo := payments.NewRepository(dbClient.DB())

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:           orderRepo,
		Payments:       paymentRepo,
		Tx:             dbClient,
		Outbox:         emitter,
		Codec:          codec,
		Logger:         logg,
		Metrics:        orderMetrics,
		Rate:           cfg.Orders.Rate(),
		ApprovalWindow: cfg.Orders.ApprovalWindow,
		PaymentWindow:  cfg.Orders.PaymentWindow,
		TokenTTL:       cfg.Collection.TokenTTL,
		ExpiryBatch:    cfg.Orders.ExpiryBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	walletService, err := wallet.NewService(paymentRepo, dbClient, emitter, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	payfastService, err := payfast.NewService(payfast.ServiceParams{
		Orders:          orderRepo,
		Lifecycle:       ordersService,
		Config:          cfg.PayFast,
		VerifySignature: cfg.App.IsProd(),
		Logger:          logg,
		Metrics:         orderMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payfast service", err)
		os.Exit(1)
	}
	payfastGuard, err := payfast.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "payfast-itn")
	if err != nil {
		logg.Error(context.Background(), "failed to create payfast idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "addr", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, reg, ordersService, walletService, payfastService, payfastGuard),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
