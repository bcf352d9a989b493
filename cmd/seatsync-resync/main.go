// Command seatsync-resync reconciles every subscribed account's seat
// quantity against the ledger once, then exits. Operators run it to
// repair drift without waiting for the nightly schedule.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/seatsync/seatsync/pkg/accounts"
	"github.com/seatsync/seatsync/pkg/audit"
	"github.com/seatsync/seatsync/pkg/auth"
	"github.com/seatsync/seatsync/pkg/billing"
	"github.com/seatsync/seatsync/pkg/config"
	"github.com/seatsync/seatsync/pkg/entitlements"
	"github.com/seatsync/seatsync/pkg/jobs"
	"github.com/seatsync/seatsync/pkg/members"
	"github.com/seatsync/seatsync/pkg/notify"
	"github.com/seatsync/seatsync/pkg/observability"
	"github.com/seatsync/seatsync/pkg/storage/postgres"
	"github.com/seatsync/seatsync/pkg/tasks"
)

func main() {
	accountID := flag.Int64("account", 0, "Resync only this account id (default: all subscribed accounts)")
	timeout := flag.Duration("timeout", time.Hour, "Overall run timeout")
	flag.Parse()

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
	defer db.Close()

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
	synchronizer := billing.NewSynchronizer(ledger, prices, auditor, logger, nil, cfg.Ledger.CallTimeout)
	periods := billing.NewPeriodResolver(accountStore, ledger, logger)

	memberService := members.NewService(members.ServiceConfig{
		Store:        members.NewPostgresStore(db),
		Accounts:     accountStore,
		Entitlements: entitlements.NewPlanService(accountStore),
		Identity:     auth.NewPostgresProvider(db),
		Tasks:        tasks.NewPostgresStore(db),
		Synchronizer: synchronizer,
		Periods:      periods,
		Notifier:     notify.NewLogSender(logger),
		Auditor:      auditor,
		Logger:       logger,
		InviteTTL:    cfg.Invites.TTL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *accountID != 0 {
		if err := memberService.ResyncAccount(ctx, *accountID); err != nil {
			logger.WithError(err).WithField("account_id", *accountID).Error("resync failed")
			os.Exit(1)
		}
		logger.WithField("account_id", *accountID).Info("resync complete")
		return
	}

	jobs.NewScheduler(memberService, accountStore, logger).ResyncAll(ctx)
}
