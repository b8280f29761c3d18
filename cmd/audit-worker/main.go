package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taxnovahq/taxnova-backend/internal/audit"
	"github.com/taxnovahq/taxnova-backend/internal/integrity"
	"github.com/taxnovahq/taxnova-backend/internal/ledger"
	"github.com/taxnovahq/taxnova-backend/internal/procurement"
	"github.com/taxnovahq/taxnova-backend/internal/transactions"
	"github.com/taxnovahq/taxnova-backend/pkg/config"
	"github.com/taxnovahq/taxnova-backend/pkg/db"
	"github.com/taxnovahq/taxnova-backend/pkg/instance"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
	"github.com/taxnovahq/taxnova-backend/pkg/metrics"
	"github.com/taxnovahq/taxnova-backend/pkg/migrate"
	"github.com/taxnovahq/taxnova-backend/pkg/outbox"
	"github.com/taxnovahq/taxnova-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "audit-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "audit-worker"

	logg = logger.New(logger.Options{
		ServiceName: "audit-worker",
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

	policy, err := audit.PolicyFromConfig(cfg.Audit)
	if err != nil {
		logg.Error(context.Background(), "invalid audit policy", err)
		os.Exit(1)
	}

	ledgerRepo := ledger.NewRepository(dbClient.DB())
	verifier, err := integrity.NewVerifier(ledgerRepo, cfg.Ledger.VerifyBatchSize)
	if err != nil {
		logg.Error(context.Background(), "failed to create chain verifier", err)
		os.Exit(1)
	}

	txnRepo := transactions.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	auditService, err := audit.NewService(
		audit.NewRepository(dbClient.DB()),
		dbClient,
		verifier,
		txnRepo,
		procurement.NewRepository(dbClient.DB()),
		policy,
		logg,
		audit.WithEvents(outboxService),
		audit.WithMetrics(metrics.NewAuditMetrics(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Locker:   redisClient,
		Entities: txnRepo,
		Audits:   auditService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create audit worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting audit worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "audit worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "audit worker shutting down gracefully")
}
