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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/utilitysplit/api/routes"
	"github.com/angelmondragon/utilitysplit/internal/app"
	"github.com/angelmondragon/utilitysplit/pkg/config"
	"github.com/angelmondragon/utilitysplit/pkg/db"
	"github.com/angelmondragon/utilitysplit/pkg/instance"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/angelmondragon/utilitysplit/pkg/migrate"
	"github.com/angelmondragon/utilitysplit/pkg/redis"
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
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		_ = dbClient.Close()
		os.Exit(1)
	}
	defer func() {
		if err := app.CloseAll(redisClient, dbClient); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		return
	}

	bot, err := app.NewBotAPI(cfg.Telegram)
	if err != nil {
		logg.Error(ctx, "failed to connect telegram bot", err)
		return
	}
	notifier, err := app.NewNotifier(ctx, bot, cfg.Telegram, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notifier", err)
		return
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
		logg.Error(ctx, "failed to build billing services", err)
		return
	}
	payments, err := app.BuildPayments(deps, core, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to build payment services", err)
		return
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Limiter:  redisClient,
			Billing:  core.Billing,
			Registry: core.Members,
			Links:    payments.Links,
			Webhooks: payments.Webhooks,
			Metrics:  promhttp.Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server stopped")
	}
}
