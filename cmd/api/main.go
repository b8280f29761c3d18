package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taxnovahq/taxnova-backend/api/routes"
	"github.com/taxnovahq/taxnova-backend/internal/analysis"
	"github.com/taxnovahq/taxnova-backend/internal/audit"
	"github.com/taxnovahq/taxnova-backend/internal/evidence"
	"github.com/taxnovahq/taxnova-backend/internal/integrity"
	"github.com/taxnovahq/taxnova-backend/internal/ledger"
	"github.com/taxnovahq/taxnova-backend/internal/procurement"
	"github.com/taxnovahq/taxnova-backend/internal/reporting"
	"github.com/taxnovahq/taxnova-backend/internal/threewaymatch"
	"github.com/taxnovahq/taxnova-backend/internal/transactions"
	"github.com/taxnovahq/taxnova-backend/pkg/bigquery"
	"github.com/taxnovahq/taxnova-backend/pkg/config"
	"github.com/taxnovahq/taxnova-backend/pkg/db"
	"github.com/taxnovahq/taxnova-backend/pkg/instance"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
	"github.com/taxnovahq/taxnova-backend/pkg/metrics"
	"github.com/taxnovahq/taxnova-backend/pkg/migrate"
	"github.com/taxnovahq/taxnova-backend/pkg/outbox"
	"github.com/taxnovahq/taxnova-backend/pkg/redis"
	"github.com/taxnovahq/taxnova-backend/pkg/storage/gcs"
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

	deps := routes.Dependencies{
		"postgres": dbClient,
		"redis":    redisClient,
	}

	auditMetrics := metrics.NewAuditMetrics(prometheus.DefaultRegisterer)

	policy, err := audit.PolicyFromConfig(cfg.Audit)
	if err != nil {
		logg.Error(context.Background(), "invalid audit policy", err)
		os.Exit(1)
	}

	ledgerRepo := ledger.NewRepository(dbClient.DB())
	ledgerService, err := ledger.NewService(ledgerRepo,
		ledger.WithMetrics(auditMetrics),
		ledger.WithAppendRetry(cfg.Ledger.AppendMaxAttempts, cfg.Ledger.AppendBaseBackoff),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	verifier, err := integrity.NewVerifier(ledgerRepo, cfg.Ledger.VerifyBatchSize)
	if err != nil {
		logg.Error(context.Background(), "failed to create chain verifier", err)
		os.Exit(1)
	}

	txnRepo := transactions.NewRepository(dbClient.DB())
	analysisService, err := analysis.NewService(txnRepo, policy.Benford, policy.ZScore)
	if err != nil {
		logg.Error(context.Background(), "failed to create analysis service", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	procRepo := procurement.NewRepository(dbClient.DB())
	matchService, err := threewaymatch.NewService(
		threewaymatch.NewRepository(dbClient.DB()),
		procRepo,
		threewaymatch.WithTolerances(policy.Tolerances),
		threewaymatch.WithEvents(dbClient, outboxService),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create match service", err)
		os.Exit(1)
	}
	auditOpts := []audit.Option{
		audit.WithEvents(outboxService),
		audit.WithMetrics(auditMetrics),
	}

	if cfg.Evidence.BucketName != "" {
		gcsClient, err := gcs.NewClient(context.Background(), cfg.Evidence, cfg.GCP, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap evidence storage", err)
			os.Exit(1)
		}
		archiver, err := evidence.NewArchiver(gcsClient)
		if err != nil {
			logg.Error(context.Background(), "failed to create evidence archiver", err)
			os.Exit(1)
		}
		auditOpts = append(auditOpts, audit.WithArchiver(archiver))
		deps["gcs"] = gcsClient
	}

	if cfg.GCP.ProjectID != "" {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()
		exporter, err := reporting.NewExporter(bqClient, cfg.BigQuery)
		if err != nil {
			logg.Error(context.Background(), "failed to create findings exporter", err)
			os.Exit(1)
		}
		auditOpts = append(auditOpts, audit.WithExporter(exporter))
		deps["bigquery"] = bqClient
	}

	auditService, err := audit.NewService(
		audit.NewRepository(dbClient.DB()),
		dbClient,
		verifier,
		txnRepo,
		procRepo,
		policy,
		logg,
		auditOpts...,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, deps, ledgerService, verifier, analysisService, matchService, auditService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
