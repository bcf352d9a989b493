package main

import (
	"context"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/seatsync/seatsync/pkg/accounts"
	"github.com/seatsync/seatsync/pkg/api"
	"github.com/seatsync/seatsync/pkg/audit"
	"github.com/seatsync/seatsync/pkg/auth"
	"github.com/seatsync/seatsync/pkg/billing"
	"github.com/seatsync/seatsync/pkg/config"
	"github.com/seatsync/seatsync/pkg/entitlements"
	"github.com/seatsync/seatsync/pkg/jobs"
	"github.com/seatsync/seatsync/pkg/members"
	"github.com/seatsync/seatsync/pkg/middleware"
	"github.com/seatsync/seatsync/pkg/notify"
	"github.com/seatsync/seatsync/pkg/observability"
	"github.com/seatsync/seatsync/pkg/storage/postgres"
	"github.com/seatsync/seatsync/pkg/tasks"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := postgres.Connect(postgres.ConnectionConfig{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		Timeout:      cfg.Database.ConnTimeout,
	})
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}

	if err := postgres.RunMigrations(context.Background(), db); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	auditor, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Error("failed to create audit logger")
		os.Exit(1)
	}

	var ledger billing.Ledger
	if cfg.Ledger.APIKey != "" {
		ledger = billing.NewStripeLedger(cfg.Ledger.APIKey)
	} else {
		logger.Warn("no stripe key configured; using in-memory ledger")
		ledger = billing.NewMemoryLedger()
	}
	prices := billing.PriceConfig{
		MonthlyPriceID: cfg.Ledger.MonthlySeatPriceID,
		AnnualPriceID:  cfg.Ledger.AnnualSeatPriceID,
	}

	accountStore := accounts.NewPostgresStore(db)
	memberStore := members.NewPostgresStore(db)
	taskStore := tasks.NewPostgresStore(db)
	authProvider := auth.NewPostgresProvider(db)

	synchronizer := billing.NewSynchronizer(ledger, prices, auditor, logger, metrics, cfg.Ledger.CallTimeout)
	periods := billing.NewPeriodResolver(accountStore, ledger, logger)

	var notifier notify.Sender
	if cfg.Email.SendGridAPIKey != "" {
		notifier = notify.NewSendGridSender(cfg.Email.SendGridAPIKey, cfg.Email.FromName, cfg.Email.FromEmail, cfg.Email.BaseURL)
	} else {
		notifier = notify.NewLogSender(logger)
	}

	memberService := members.NewService(members.ServiceConfig{
		Store:        memberStore,
		Accounts:     accountStore,
		Entitlements: entitlements.NewPlanService(accountStore),
		Identity:     authProvider,
		Tasks:        taskStore,
		Synchronizer: synchronizer,
		Periods:      periods,
		Notifier:     notifier,
		Auditor:      auditor,
		Logger:       logger,
		Metrics:      metrics,
		InviteTTL:    cfg.Invites.TTL,
	})

	var rateLimit *middleware.RateLimitMiddleware
	if redisClient != nil {
		rateLimit = middleware.NewRateLimitMiddleware(redisClient)
	}

	server := api.NewServer(cfg.Server, api.ServerDeps{
		Members:   memberService,
		Auth:      middleware.NewAuthMiddleware(authProvider, false),
		RateLimit: rateLimit,
		Health:    observability.NewHealthChecker(db, redisClient),
		Metrics:   metrics,
		Logger:    logger,
	})

	scheduler := jobs.NewScheduler(memberService, accountStore, logger)
	if err := scheduler.Start(); err != nil {
		logger.WithError(err).Error("failed to start background schedule")
		os.Exit(1)
	}

	shutdown := observability.NewShutdownManager(logger, nil, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		scheduler.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("http server exited")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		os.Exit(1)
	}
}
