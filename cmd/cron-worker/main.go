package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marcvilanova/raceday-backend/internal/cron"
	"github.com/marcvilanova/raceday-backend/internal/dispatch"
	"github.com/marcvilanova/raceday-backend/internal/intake"
	"github.com/marcvilanova/raceday-backend/pkg/config"
	"github.com/marcvilanova/raceday-backend/pkg/db"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
	"github.com/marcvilanova/raceday-backend/pkg/metrics"
	"github.com/marcvilanova/raceday-backend/pkg/migrate"
	"github.com/marcvilanova/raceday-backend/pkg/pubsub"
	"github.com/marcvilanova/raceday-backend/pkg/redis"
	"github.com/marcvilanova/raceday-backend/pkg/sheets"
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
	requireResource(logg, "dispatch queue", err)

	sweeper, err := dispatch.NewSweeper(dispatch.SweeperParams{
		Logger:  logg,
		Repo:    dispatchRepo,
		Sender:  dispatch.NewPubSubSender(pubsubClient.NotificationPublisher()),
		Metrics: metrics.NewDispatchMetrics(prometheus.DefaultRegisterer),
		Config:  cfg.Dispatch,
	})
	requireResource(logg, "dispatch sweeper", err)

	intakeRepo := intake.NewRepository(dbClient.DB())
	engine, err := intake.NewEngine(intake.EngineParams{
		Logger:   logg,
		DB:       dbClient,
		Repo:     intakeRepo,
		Reader:   sheetsClient,
		Enqueuer: queue,
		TxRefs:   intake.NewTxRefGenerator(cfg.Intake.TxRefMaxAttempts),
	})
	requireResource(logg, "intake engine", err)

	intakeJob, err := cron.NewIntakeJob(cron.IntakeJobParams{
		Logger:        logg,
		Syncer:        engine,
		Sources:       intakeRepo,
		Schedule:      cfg.Cron.IntakeSchedule,
		SourceTimeout: cfg.Intake.SourceTimeout,
	})
	requireResource(logg, "intake job", err)

	pendingSweepJob, err := cron.NewPendingSweepJob(cron.PendingSweepJobParams{
		Logger:   logg,
		Sweeper:  sweeper,
		Schedule: cfg.Cron.SweepSchedule,
	})
	requireResource(logg, "pending sweep job", err)

	promotionJob, err := cron.NewPromotionJob(cron.PromotionJobParams{
		Logger:   logg,
		Sweeper:  sweeper,
		Schedule: cfg.Cron.PromotionSchedule,
	})
	requireResource(logg, "promotion job", err)

	failedRetryJob, err := cron.NewFailedRetryJob(cron.FailedRetryJobParams{
		Logger:   logg,
		Sweeper:  sweeper,
		Schedule: cfg.Cron.FailedRetrySchedule,
	})
	requireResource(logg, "failed retry job", err)

	purgeJob, err := cron.NewPurgeJob(cron.PurgeJobParams{
		Logger:   logg,
		Sweeper:  sweeper,
		Schedule: cfg.Cron.PurgeSchedule,
	})
	requireResource(logg, "purge job", err)

	reconcileJob, err := cron.NewReconcileJob(cron.ReconcileJobParams{
		Logger:   logg,
		Repo:     dispatchRepo,
		Enqueuer: queue,
		Schedule: cfg.Cron.ReconcileSchedule,
	})
	requireResource(logg, "reconcile job", err)

	registry := cron.NewRegistry(
		intakeJob,
		pendingSweepJob,
		promotionJob,
		failedRetryJob,
		purgeJob,
		reconcileJob,
	)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locks:    cron.NewRedisLockFactory(redisClient, redisClient, cfg.Cron.LockTTL),
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
	})
	requireResource(logg, "cron service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+resource, err)
	os.Exit(1)
}
