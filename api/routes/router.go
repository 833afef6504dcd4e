package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paygrid/paygrid-backend/api/controllers"
	"github.com/paygrid/paygrid-backend/api/middleware"
	"github.com/paygrid/paygrid-backend/internal/accounts"
	"github.com/paygrid/paygrid-backend/internal/audit"
	"github.com/paygrid/paygrid-backend/internal/billing"
	"github.com/paygrid/paygrid-backend/internal/fees"
	"github.com/paygrid/paygrid-backend/internal/permissions"
	"github.com/paygrid/paygrid-backend/internal/plans"
	"github.com/paygrid/paygrid-backend/internal/settlement"
	"github.com/paygrid/paygrid-backend/internal/subscriptions"
	"github.com/paygrid/paygrid-backend/internal/tokens"
	"github.com/paygrid/paygrid-backend/pkg/config"
	"github.com/paygrid/paygrid-backend/pkg/enums"
	"github.com/paygrid/paygrid-backend/pkg/logger"
	"github.com/paygrid/paygrid-backend/pkg/redis"
)

// Pinger is the readiness-check surface of a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the router wires handlers to.
type Services struct {
	Accounts      *accounts.Service
	Audit         *audit.Service
	Billing       *billing.Service
	Fees          *fees.Service
	Permissions   *permissions.Service
	Plans         *plans.Service
	Settlement    *settlement.Service
	Subscriptions *subscriptions.Service
	Tokens        *tokens.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbPinger Pinger,
	redisClient *redis.Client,
	metricsHandler http.Handler,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbPinger, redisClient, logg))
	})

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/plans", func(r chi.Router) {
			r.Post("/", controllers.PlanCreate(svcs.Plans, logg))
			r.Get("/", controllers.PlanList(svcs.Plans, logg))
			r.Get("/{planID}", controllers.PlanGet(svcs.Plans, logg))
			r.Put("/{planID}/receivers", controllers.PlanReceiversUpdate(svcs.Plans, logg))
			r.Post("/{planID}/permissions", controllers.PlanPermissionGrant(svcs.Plans, logg))
			r.Delete("/{planID}/permissions", controllers.PlanPermissionRevoke(svcs.Plans, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.Subscribe(svcs.Subscriptions, logg))
			r.Get("/lookup", controllers.SubscriptionLookup(svcs.Subscriptions, logg))
			r.Get("/{subscriptionID}", controllers.SubscriptionGet(svcs.Subscriptions, logg))
			r.Post("/{subscriptionID}/cancel", controllers.SubscriptionCancel(svcs.Subscriptions, logg))
			r.Post("/{subscriptionID}/request-cancellation", controllers.SubscriptionRequestCancellation(svcs.Subscriptions, logg))
			r.Put("/{subscriptionID}/allowance", controllers.SubscriptionAllowanceUpdate(svcs.Subscriptions, logg))
		})

		r.Route("/billing", func(r chi.Router) {
			r.Post("/bill", controllers.Bill(svcs.Billing, logg))
			r.Post("/terminate", controllers.Terminate(svcs.Billing, logg))
		})

		r.Route("/transfers", func(r chi.Router) {
			r.Post("/", controllers.Transfer(svcs.Settlement, logg))
			r.Post("/batch", controllers.BatchTransfer(svcs.Settlement, logg))
			r.Post("/native", controllers.NativeTransfer(svcs.Settlement, logg))
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/balances/{tokenID}", controllers.BalanceGet(svcs.Accounts, logg))
			r.Get("/authorizations/{tokenID}", controllers.AuthorizationGet(svcs.Accounts, logg))
			r.Put("/authorizations", controllers.AuthorizationUpdate(svcs.Accounts, logg))
		})

		r.Get("/tokens", controllers.TokenList(svcs.Tokens, logg))
		r.Get("/events", controllers.EventList(svcs.Audit, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.RoleOwner), logg))
			r.Route("/tokens", func(r chi.Router) {
				r.Post("/", controllers.TokenAdd(svcs.Tokens, logg))
				r.Post("/{tokenID}/pause", controllers.TokenPause(svcs.Tokens, logg))
				r.Post("/{tokenID}/resume", controllers.TokenResume(svcs.Tokens, logg))
				r.Post("/{tokenID}/redirect", controllers.TokenRedirect(svcs.Tokens, logg))
			})
			r.Put("/fees", controllers.FeeUpdate(svcs.Fees, logg))
			r.Put("/fee-collector", controllers.FeeCollectorUpdate(svcs.Settlement, logg))
			r.Post("/roles", controllers.RoleGrant(svcs.Permissions, logg))
			r.Delete("/roles", controllers.RoleRevoke(svcs.Permissions, logg))
			r.Post("/credits", controllers.Credit(svcs.Accounts, logg))
		})
	})

	return r
}
