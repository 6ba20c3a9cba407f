// Package app assembles the billing services from configuration so every
// binary wires them the same way.
package app

import (
	"context"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/utilitysplit/internal/billing"
	"github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/gateway"
	"github.com/angelmondragon/utilitysplit/internal/members"
	"github.com/angelmondragon/utilitysplit/internal/notify"
	"github.com/angelmondragon/utilitysplit/internal/paylinks"
	"github.com/angelmondragon/utilitysplit/internal/reconcile"
	paystackwebhook "github.com/angelmondragon/utilitysplit/internal/webhooks/paystack"
	"github.com/angelmondragon/utilitysplit/pkg/config"
	"github.com/angelmondragon/utilitysplit/pkg/db"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/angelmondragon/utilitysplit/pkg/metrics"
	"github.com/angelmondragon/utilitysplit/pkg/paystack"
	"github.com/angelmondragon/utilitysplit/pkg/redis"
)

// Deps are the long-lived resources a binary opens before building services.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Notifier   notify.Notifier
	Registerer prometheus.Registerer
}

// Core holds the services every binary needs.
type Core struct {
	Members    members.Service
	Cycles     *cycles.Engine
	Reconciler *reconcile.Service
	Billing    *billing.Service
}

// Payments holds the gateway-facing services.
type Payments struct {
	Links    *paylinks.Service
	Webhooks *paystackwebhook.Service
}

// BuildCore wires the registry, the cycle engine, the reconciler and the
// billing use cases.
func BuildCore(d Deps) (*Core, error) {
	cfg := d.Config
	registry, err := members.NewService(members.ServiceParams{
		Repo:    members.NewRepository(d.DB.DB()),
		AdminID: cfg.Billing.AdminID,
		Logger:  d.Logger,
	})
	if err != nil {
		return nil, err
	}

	engine, err := cycles.NewEngine(cycles.EngineParams{
		DB:                d.DB,
		Repo:              cycles.NewRepository(d.DB.DB()),
		Logger:            d.Logger,
		GracePeriod:       cfg.Billing.GracePeriod(),
		LateFeeMultiplier: cfg.Billing.LateFeeMultiplier,
	})
	if err != nil {
		return nil, err
	}

	var reconcileMetrics *metrics.ReconcileMetrics
	if d.Registerer != nil {
		reconcileMetrics = metrics.NewReconcileMetrics(d.Registerer)
	}
	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Cycles:         engine,
		Admins:         registry,
		Notifier:       d.Notifier,
		Metrics:        reconcileMetrics,
		Logger:         d.Logger,
		CurrencySymbol: cfg.Billing.CurrencySymbol,
	})
	if err != nil {
		return nil, err
	}

	billingSvc, err := billing.NewService(billing.ServiceParams{
		Members:        registry,
		Cycles:         engine,
		Reconciler:     reconciler,
		Notifier:       d.Notifier,
		Logger:         d.Logger,
		CurrencySymbol: cfg.Billing.CurrencySymbol,
	})
	if err != nil {
		return nil, err
	}

	return &Core{Members: registry, Cycles: engine, Reconciler: reconciler, Billing: billingSvc}, nil
}

// BuildPayments wires the Paystack gateway, the payment-link flow and the
// webhook intake. store backs the webhook idempotency guard.
func BuildPayments(d Deps, core *Core, store redis.IdempotencyStore) (*Payments, error) {
	cfg := d.Config
	client, err := paystack.NewClient(cfg.Paystack, &http.Client{Timeout: cfg.Paystack.Timeout})
	if err != nil {
		return nil, err
	}
	gw, err := gateway.NewPaystack(gateway.PaystackParams{
		Client:      client,
		EmailDomain: cfg.Paystack.PayerEmailDomain,
		CallbackURL: cfg.Paystack.CallbackURL,
		Currency:    cfg.Billing.CurrencyCode,
	})
	if err != nil {
		return nil, err
	}

	links, err := paylinks.NewService(paylinks.ServiceParams{
		Cycles:         core.Cycles,
		Members:        core.Members,
		Gateway:        gw,
		Notifier:       d.Notifier,
		Logger:         d.Logger,
		CurrencySymbol: cfg.Billing.CurrencySymbol,
	})
	if err != nil {
		return nil, err
	}

	guard, err := paystackwebhook.NewIdempotencyGuard(store, cfg.Webhooks.IdempotencyTTL)
	if err != nil {
		return nil, err
	}
	webhooks, err := paystackwebhook.NewService(paystackwebhook.ServiceParams{
		Gateway:    gw,
		Reconciler: core.Reconciler,
		Guard:      guard,
		Logger:     d.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Payments{Links: links, Webhooks: webhooks}, nil
}

// NewBotAPI connects to Telegram. It returns nil without error when no bot
// token is configured.
func NewBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	if cfg.BotToken == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// NewNotifier delivers through the bot when one is connected and falls back
// to the log otherwise.
func NewNotifier(ctx context.Context, bot *tgbotapi.BotAPI, cfg config.TelegramConfig, logg *logger.Logger) (notify.Notifier, error) {
	if bot == nil || cfg.GroupChatID == 0 {
		logg.Warn(ctx, "telegram not configured; notifications go to the log")
		return notify.NewLogNotifier(logg), nil
	}
	tg, err := notify.NewTelegramNotifier(bot, cfg.GroupChatID)
	if err != nil {
		return nil, err
	}
	return tg, nil
}

// CloseAll closes every closer and combines their errors.
func CloseAll(closers ...io.Closer) error {
	var err error
	for _, c := range closers {
		if c == nil {
			continue
		}
		err = multierr.Append(err, c.Close())
	}
	return err
}
