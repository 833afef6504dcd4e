package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/paygrid/paygrid-backend/internal/app"
	"github.com/paygrid/paygrid-backend/internal/worker"
	"github.com/paygrid/paygrid-backend/pkg/config"
	"github.com/paygrid/paygrid-backend/pkg/db"
	"github.com/paygrid/paygrid-backend/pkg/logger"
	"github.com/paygrid/paygrid-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "billing-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "billing-worker"

	logg = logger.New(logger.Options{
		ServiceName: "billing-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
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

	// No cache or metrics endpoint here; the sweep only needs the engine.
	services, err := app.Build(app.Params{
		DB:     dbClient,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	sweeper, err := worker.NewSweeper(worker.SweeperParams{
		Subs:          services.SubscriptionsRepo,
		Billing:       services.Billing,
		Logger:        logg,
		WorkerAccount: cfg.Billing.WorkerAccount,
		Interval:      cfg.Billing.SweepInterval,
		BatchSize:     cfg.Billing.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing sweeper", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":            cfg.App.Env,
		"serviceKind":    "billing-worker",
		"worker_account": cfg.Billing.WorkerAccount,
		"sweep_interval": cfg.Billing.SweepInterval.String(),
	})
	logg.Info(ctx, "starting billing sweeper")

	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "billing sweeper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "billing sweeper shutting down gracefully")
}
