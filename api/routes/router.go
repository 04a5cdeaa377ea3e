package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/rentloop-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/rentloop-backend/api/controllers/orders"
	walletcontrollers "github.com/angelmondragon/rentloop-backend/api/controllers/wallet"
	webhookcontrollers "github.com/angelmondragon/rentloop-backend/api/controllers/webhooks"
	"github.com/angelmondragon/rentloop-backend/api/middleware"
	"github.com/angelmondragon/rentloop-backend/internal/orders"
	"github.com/angelmondragon/rentloop-backend/internal/wallet"
	"github.com/angelmondragon/rentloop-backend/internal/webhooks/payfast"
	"github.com/angelmondragon/rentloop-backend/pkg/config"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
	"github.com/angelmondragon/rentloop-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/rentloop-backend/pkg/redis"
)

// RedisStore is the Redis surface the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	Ping(ctx context.Context) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient RedisStore,
	reg *prometheus.Registry,
	ordersSvc orders.Service,
	walletSvc wallet.Service,
	payfastService *payfast.Service,
	payfastGuard *payfast.IdempotencyGuard,
) http.Handler {
	var httpMetrics *metrics.HTTPMetrics
	if reg != nil {
		httpMetrics = metrics.NewHTTPMetrics(reg)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	completePolicy := middleware.NewRateLimitPolicy(
		"collection-complete",
		cfg.Collection.CompleteWindow,
		0,
		cfg.Collection.CompleteLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisClient,
		}))
	})
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payfast", webhookcontrollers.PayFastWebhook(payfastService, payfastGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(ordersSvc, logg))
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
			r.Get("/{orderId}/history", ordercontrollers.History(ordersSvc, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
			r.Post("/{orderId}/collection-token", ordercontrollers.CollectionToken(ordersSvc, logg))
		})

		r.Route("/vendor", func(r chi.Router) {
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.VendorList(ordersSvc, logg))
				r.Get("/pending", ordercontrollers.VendorPending(ordersSvc, logg))
				r.With(middleware.RateLimit(completePolicy, redisClient, logg)).
					Post("/complete", ordercontrollers.Complete(ordersSvc, logg))
				r.Post("/{orderId}/approve", ordercontrollers.Approve(ordersSvc, logg))
				r.Post("/{orderId}/decline", ordercontrollers.Decline(ordersSvc, logg))
				r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
				r.Post("/{orderId}/cash-payment", ordercontrollers.CashPayment(ordersSvc, logg))
			})
			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", walletcontrollers.Summary(walletSvc, logg))
				r.Get("/transactions", walletcontrollers.Transactions(walletSvc, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Post("/merchants/{merchantId}/payouts", walletcontrollers.AdminPayout(walletSvc, logg))
	})

	return r
}
