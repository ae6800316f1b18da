package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marcvilanova/raceday-backend/api/routes"
	"github.com/marcvilanova/raceday-backend/internal/dispatch"
	"github.com/marcvilanova/raceday-backend/internal/intake"
	"github.com/marcvilanova/raceday-backend/internal/payments"
	"github.com/marcvilanova/raceday-backend/pkg/config"
	"github.com/marcvilanova/raceday-backend/pkg/db"
	"github.com/marcvilanova/raceday-backend/pkg/env"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
	"github.com/marcvilanova/raceday-backend/pkg/metrics"
	"github.com/marcvilanova/raceday-backend/pkg/migrate"
	"github.com/marcvilanova/raceday-backend/pkg/pubsub"
	"github.com/marcvilanova/raceday-backend/pkg/redis"
	"github.com/marcvilanova/raceday-backend/pkg/sheets"
)

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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	sheetsClient, err := sheets.NewClient(context.Background(), cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap sheets", err)
		os.Exit(1)
	}

	dispatchRepo := dispatch.NewRepository(dbClient.DB())
	queue, err := dispatch.NewQueue(dispatch.QueueParams{
		Logger: logg,
		Repo:   dispatchRepo,
		Config: cfg.Dispatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch queue", err)
		os.Exit(1)
	}

	sweeper, err := dispatch.NewSweeper(dispatch.SweeperParams{
		Logger:  logg,
		Repo:    dispatchRepo,
		Sender:  dispatch.NewPubSubSender(pubsubClient.NotificationPublisher()),
		Metrics: metrics.NewDispatchMetrics(prometheus.DefaultRegisterer),
		Config:  cfg.Dispatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch sweeper", err)
		os.Exit(1)
	}

	intakeRepo := intake.NewRepository(dbClient.DB())
	engine, err := intake.NewEngine(intake.EngineParams{
		Logger:   logg,
		DB:       dbClient,
		Repo:     intakeRepo,
		Reader:   sheetsClient,
		Enqueuer: queue,
		TxRefs:   intake.NewTxRefGenerator(cfg.Intake.TxRefMaxAttempts),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create intake engine", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Logger:   logg,
		DB:       dbClient,
		Repo:     payments.NewRepository(dbClient.DB()),
		Enqueuer: queue,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg,
			dbClient, redisClient, pubsubClient, sheetsClient,
			engine, intakeRepo, queue, sweeper, paymentsService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
