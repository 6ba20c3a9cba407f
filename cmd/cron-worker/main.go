package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/utilitysplit/internal/app"
	"github.com/angelmondragon/utilitysplit/internal/cron"
	"github.com/angelmondragon/utilitysplit/pkg/config"
	"github.com/angelmondragon/utilitysplit/pkg/db"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/angelmondragon/utilitysplit/pkg/metrics"
	"github.com/angelmondragon/utilitysplit/pkg/migrate"
	"github.com/angelmondragon/utilitysplit/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		_ = dbClient.Close()
		os.Exit(1)
	}
	defer func() {
		if err := app.CloseAll(redisClient, dbClient); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := buildService(ctx, cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		return
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		return
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildService(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	bot, err := app.NewBotAPI(cfg.Telegram)
	if err != nil {
		return nil, err
	}
	notifier, err := app.NewNotifier(ctx, bot, cfg.Telegram, logg)
	if err != nil {
		return nil, err
	}
	core, err := app.BuildCore(app.Deps{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Notifier:   notifier,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return nil, err
	}

	lateFee, err := cron.NewLateFeeJob(cron.LateFeeJobParams{
		Logger:         logg,
		Cycles:         core.Cycles,
		Notifier:       notifier,
		Multiplier:     cfg.Billing.LateFeeMultiplier,
		CurrencySymbol: cfg.Billing.CurrencySymbol,
	})
	if err != nil {
		return nil, err
	}
	reminder, err := cron.NewReminderJob(cron.ReminderJobParams{
		Logger:         logg,
		Cycles:         core.Cycles,
		Notifier:       notifier,
		CurrencySymbol: cfg.Billing.CurrencySymbol,
	})
	if err != nil {
		return nil, err
	}
	// the late fee runs first so the reminder quotes the raised split
	registry, err := cron.NewRegistry(lateFee, reminder)
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}

// lockName scopes the lease per environment so staging and prod workers
// sharing one Redis do not block each other.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
