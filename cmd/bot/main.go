package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/utilitysplit/internal/app"
	"github.com/angelmondragon/utilitysplit/internal/bot"
	"github.com/angelmondragon/utilitysplit/pkg/config"
	"github.com/angelmondragon/utilitysplit/pkg/db"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/angelmondragon/utilitysplit/pkg/migrate"
	"github.com/angelmondragon/utilitysplit/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "bot"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "bot"

	logg = logger.New(logger.Options{
		ServiceName: "bot",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.Telegram.BotToken == "" {
		logg.Error(context.Background(), "bot token missing", errors.New(config.EnvBotToken+" is required"))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "bot stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "bot shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return multierr.Append(err, dbClient.Close())
	}
	defer func() {
		if closeErr := app.CloseAll(redisClient, dbClient); closeErr != nil {
			logg.Error(context.Background(), "error closing resources", closeErr)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	api, err := app.NewBotAPI(cfg.Telegram)
	if err != nil {
		return err
	}
	notifier, err := app.NewNotifier(ctx, api, cfg.Telegram, logg)
	if err != nil {
		return err
	}

	deps := app.Deps{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Notifier:   notifier,
		Registerer: prometheus.DefaultRegisterer,
	}
	core, err := app.BuildCore(deps)
	if err != nil {
		return err
	}
	payments, err := app.BuildPayments(deps, core, redisClient)
	if err != nil {
		return err
	}

	router, err := bot.NewRouter(bot.RouterParams{
		Members:        core.Members,
		Billing:        core.Billing,
		Links:          payments.Links,
		Logger:         logg,
		CurrencySymbol: cfg.Billing.CurrencySymbol,
	})
	if err != nil {
		return err
	}
	b, err := bot.New(api, router, logg, cfg.Telegram.PollTimeoutSeconds)
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"bot_user": api.Self.UserName,
	})
	logg.Info(ctx, "starting telegram bot")
	return b.Run(ctx)
}
