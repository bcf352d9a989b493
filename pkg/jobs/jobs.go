// Package jobs runs the background maintenance schedule: expired
// invite cleanup and the nightly seat resync that heals any drift
// left behind by best-effort ledger syncs.
package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/seatsync/seatsync/pkg/accounts"
	"github.com/seatsync/seatsync/pkg/members"
	"github.com/seatsync/seatsync/pkg/observability"
)

const resyncConcurrency = 4

// Scheduler owns the cron entries
type Scheduler struct {
	cron     *cron.Cron
	members  *members.Service
	accounts accounts.Store
	logger   *observability.Logger
}

// NewScheduler creates the maintenance scheduler
func NewScheduler(memberService *members.Service, accountStore accounts.Store, logger *observability.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		members:  memberService,
		accounts: accountStore,
		logger:   logger,
	}
}

// Start registers the schedule and begins running it
func (s *Scheduler) Start() error {
	// Hourly: drop lapsed invites and stop billing for them
	if _, err := s.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		s.cleanupInvites(ctx)
	}); err != nil {
		return err
	}

	// Nightly: reconcile every subscribed account
	if _, err := s.cron.AddFunc("30 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		s.resyncAll(ctx)
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("background schedule started")
	return nil
}

// Stop halts the schedule and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) cleanupInvites(ctx context.Context) {
	touched, err := s.members.CleanupExpiredInvites(ctx)
	if err != nil {
		s.logger.WithError(err).Error("expired invite cleanup failed")
		return
	}
	if touched > 0 {
		s.logger.WithField("accounts", touched).Info("expired invites cleaned up")
	}
}

func (s *Scheduler) resyncAll(ctx context.Context) {
	ids, err := s.accounts.ListSubscribed(ctx)
	if err != nil {
		s.logger.WithError(err).Error("nightly resync could not list accounts")
		return
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(resyncConcurrency)
	var failed atomic.Int64
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := s.members.ResyncAccount(groupCtx, id); err != nil {
				failed.Add(1)
				s.logger.WithError(err).WithField("account_id", id).Warn("nightly resync failed for account")
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.WithFields(map[string]interface{}{
		"accounts": len(ids),
		"failed":   failed.Load(),
	}).Info("nightly seat resync finished")
}

// ResyncAll reconciles every subscribed account once, outside the
// schedule. Used by the seatsync-resync command.
func (s *Scheduler) ResyncAll(ctx context.Context) {
	s.resyncAll(ctx)
}
