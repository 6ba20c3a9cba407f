package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/utilitysplit/api/controllers"
	cyclecontrollers "github.com/angelmondragon/utilitysplit/api/controllers/cycles"
	membercontrollers "github.com/angelmondragon/utilitysplit/api/controllers/members"
	paymentcontrollers "github.com/angelmondragon/utilitysplit/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/utilitysplit/api/controllers/webhooks"
	"github.com/angelmondragon/utilitysplit/api/middleware"
	"github.com/angelmondragon/utilitysplit/pkg/config"
	"github.com/angelmondragon/utilitysplit/pkg/enums"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
)

// BillingService is what the admin and member routes need from the billing
// use cases.
type BillingService interface {
	cyclecontrollers.Service
	membercontrollers.AdminService
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RouterParams wires the HTTP surface.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Limiter  rateLimiter
	Billing  BillingService
	Registry membercontrollers.Registry
	Links    paymentcontrollers.LinkService
	Webhooks webhookcontrollers.PaystackWebhookService
	Metrics  http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(p.Webhooks, logg))
	})

	payLinkPolicy := middleware.RateLimitPolicy{
		Name:   "paylink",
		Limit:  cfg.RateLimit.PayLinkLimit,
		Window: cfg.RateLimit.PayLinkWindow,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Post("/members/register", membercontrollers.RegisterMember(p.Registry, logg))
		r.Get("/cycles/active", cyclecontrollers.ActiveCycle(p.Billing, logg))
		r.Get("/cycles/history", cyclecontrollers.CycleHistory(p.Billing, logg))
		r.With(middleware.MemberRateLimit(payLinkPolicy, p.Limiter, logg)).
			Post("/payments/link", paymentcontrollers.RequestPaymentLink(p.Links, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.MemberRoleAdmin, logg))

		r.Post("/cycles", cyclecontrollers.AdminCreateCycle(p.Billing, logg))
		r.Post("/cycles/{cycleId}/payments", cyclecontrollers.AdminRecordPayment(p.Billing, logg))
		r.Get("/members", membercontrollers.AdminListMembers(p.Billing, logg))
		r.Post("/members/{memberId}/activate", membercontrollers.AdminSetMemberActive(p.Billing, true, logg))
		r.Post("/members/{memberId}/deactivate", membercontrollers.AdminSetMemberActive(p.Billing, false, logg))
	})

	return r
}
