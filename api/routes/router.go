package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-settlement/api/controllers"
	analyticscontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/analytics"
	disputecontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/disputes"
	ordercontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/orders"
	payoutcontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/payouts"
	walletcontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/wallets"
	webhookcontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/webhooks"
	"github.com/angelmondragon/marketplace-settlement/api/middleware"
	"github.com/angelmondragon/marketplace-settlement/internal/analytics"
	"github.com/angelmondragon/marketplace-settlement/internal/disputes"
	"github.com/angelmondragon/marketplace-settlement/internal/ledger"
	"github.com/angelmondragon/marketplace-settlement/internal/notifications"
	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/internal/payouts"
	squarewebhook "github.com/angelmondragon/marketplace-settlement/internal/webhooks/square"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/metrics"
	pkgredis "github.com/angelmondragon/marketplace-settlement/pkg/redis"
)

// Store is the redis surface used by request idempotency and rate limiting.
type Store interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(parts ...string) string
}

type squareGuard interface {
	Once(ctx context.Context, eventID string, fn func(context.Context) error) (bool, error)
}

// Deps carries everything the HTTP surface needs. Nil readiness pingers and a
// nil Store disable the corresponding checks and middleware.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB       controllers.Pinger
	Redis    controllers.Pinger
	BigQuery controllers.Pinger
	Store    Store

	Gatherer prometheus.Gatherer
	Metrics  *metrics.HTTPMetrics

	Orders        orders.Service
	Payouts       payouts.Service
	Disputes      disputes.Service
	Ledger        ledger.Service
	Notifications notifications.Service
	Analytics     analytics.Service

	SquareWebhook  webhookcontrollers.SquareWebhookService
	SquareVerifier squarewebhook.Verifier
	SquareGuard    squareGuard
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(d.Metrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	payoutPolicy := middleware.NewRateLimitPolicy(
		"payout-request",
		cfg.RateLimit.PayoutWindow,
		cfg.RateLimit.PayoutIPLimit,
		cfg.RateLimit.PayoutCallerLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": d.DB,
			"redis":    d.Redis,
			"bigquery": d.BigQuery,
		}))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(d.SquareWebhook, d.SquareVerifier, d.SquareGuard, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(d.Store, logg))

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/orders", func(r chi.Router) {
				r.With(middleware.RequireRole(logg, enums.ActorRoleCustomer, enums.ActorRoleAdmin)).Post("/", ordercontrollers.Create(d.Orders, logg))
				r.Get("/", ordercontrollers.List(d.Orders, logg))
				r.Route("/{orderId}", func(r chi.Router) {
					r.Get("/", ordercontrollers.Detail(d.Orders, logg))
					r.Post("/processing", ordercontrollers.MarkProcessing(d.Orders, logg))
					r.Post("/ship", ordercontrollers.MarkShipped(d.Orders, logg))
					r.Post("/deliver", ordercontrollers.MarkDelivered(d.Orders, logg))
					r.Post("/confirm-delivery", ordercontrollers.ConfirmDelivery(d.Orders, logg))
					r.Post("/cancel", ordercontrollers.Cancel(d.Orders, logg))
					r.Post("/return", ordercontrollers.RequestReturn(d.Orders, logg))
					r.Post("/return/complete", ordercontrollers.CompleteReturn(d.Orders, logg))
				})
			})

			r.Route("/payouts", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorRoleVendor))
				r.With(middleware.RateLimit(payoutPolicy, d.Store, logg)).Post("/", payoutcontrollers.Request(d.Payouts, logg))
				r.Get("/", payoutcontrollers.List(d.Payouts, logg))
				r.Get("/{payoutId}", payoutcontrollers.Detail(d.Payouts, logg))
			})

			r.Route("/disputes", func(r chi.Router) {
				r.Post("/", disputecontrollers.Open(d.Disputes, logg))
				r.Get("/", disputecontrollers.List(d.Disputes, logg))
				r.Get("/{disputeId}", disputecontrollers.Detail(d.Disputes, logg))
				r.Post("/{disputeId}/comments", disputecontrollers.AddComment(d.Disputes, logg))
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorRoleVendor))
				r.Get("/", walletcontrollers.Wallet(d.Ledger, walletcontrollers.OwnVendor, logg))
				r.Get("/transactions", walletcontrollers.Transactions(d.Ledger, walletcontrollers.OwnVendor, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(d.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(d.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(d.Notifications, logg))
			})

			r.With(middleware.RequireRole(logg, enums.ActorRoleVendor)).
				Get("/analytics/ledger", analyticscontrollers.VendorLedger(d.Analytics, logg))
		})

		r.Route("/api/admin/v1", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))

			r.Route("/orders/{orderId}", func(r chi.Router) {
				r.Post("/override", ordercontrollers.Override(d.Orders, logg))
				r.Post("/confirm-payment", ordercontrollers.ConfirmPayment(d.Orders, logg))
			})

			r.Route("/payouts", func(r chi.Router) {
				r.Get("/", payoutcontrollers.List(d.Payouts, logg))
				r.Get("/{payoutId}", payoutcontrollers.Detail(d.Payouts, logg))
				r.Post("/{payoutId}/approve", payoutcontrollers.Approve(d.Payouts, logg))
				r.Post("/{payoutId}/complete", payoutcontrollers.Complete(d.Payouts, logg))
				r.Post("/{payoutId}/fail", payoutcontrollers.Fail(d.Payouts, logg))
			})

			r.Route("/disputes", func(r chi.Router) {
				r.Get("/", disputecontrollers.List(d.Disputes, logg))
				r.Get("/{disputeId}", disputecontrollers.Detail(d.Disputes, logg))
				r.Post("/{disputeId}/comments", disputecontrollers.AddComment(d.Disputes, logg))
				r.Post("/{disputeId}/review", disputecontrollers.StartReview(d.Disputes, logg))
				r.Post("/{disputeId}/resolve", disputecontrollers.Resolve(d.Disputes, logg))
			})

			r.Route("/vendors/{vendorId}/wallet", func(r chi.Router) {
				r.Post("/", walletcontrollers.Provision(d.Ledger, logg))
				r.Get("/", walletcontrollers.Wallet(d.Ledger, walletcontrollers.PathVendor, logg))
				r.Get("/transactions", walletcontrollers.Transactions(d.Ledger, walletcontrollers.PathVendor, logg))
				r.Post("/reconcile", walletcontrollers.Reconcile(d.Ledger, logg))
				r.Post("/adjustments", walletcontrollers.Adjust(d.Ledger, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(d.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(d.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(d.Notifications, logg))
			})

			r.Get("/analytics/ledger", analyticscontrollers.MarketplaceLedger(d.Analytics, logg))
		})
	})

	return r
}
