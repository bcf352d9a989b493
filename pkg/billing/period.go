package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/seatsync/seatsync/pkg/accounts"
	"github.com/seatsync/seatsync/pkg/observability"
)

const (
	periodCacheSize = 4096
	periodCacheTTL  = 5 * time.Minute
)

// PeriodResolver determines when an account's currently paid billing
// term ends. Resolution order: the value cached on the account row,
// then an in-process cache, then the ledger itself. An account with
// no subscription resolves to unknown, which is not an error.
type PeriodResolver struct {
	accounts accounts.Store
	ledger   Ledger
	logger   *observability.Logger
	cache    *expirable.LRU[int64, time.Time]
}

// NewPeriodResolver creates a period resolver
func NewPeriodResolver(store accounts.Store, ledger Ledger, logger *observability.Logger) *PeriodResolver {
	return &PeriodResolver{
		accounts: store,
		ledger:   ledger,
		logger:   logger,
		cache:    expirable.NewLRU[int64, time.Time](periodCacheSize, nil, periodCacheTTL),
	}
}

// Resolve returns the end of the account's current paid term. ok is
// false when the account has no active subscription.
func (r *PeriodResolver) Resolve(ctx context.Context, account *accounts.Account) (periodEnd time.Time, ok bool, err error) {
	if !account.HasSubscription() {
		return time.Time{}, false, nil
	}

	now := time.Now()

	if account.CurrentPeriodEnd != nil && account.CurrentPeriodEnd.After(now) {
		return *account.CurrentPeriodEnd, true, nil
	}

	if cached, hit := r.cache.Get(account.ID); hit && cached.After(now) {
		return cached, true, nil
	}

	sub, err := r.ledger.GetSubscription(ctx, *account.LedgerSubscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to resolve billing period: %w", err)
	}

	periodEnd = latestPeriodEnd(sub)
	if periodEnd.IsZero() || !periodEnd.After(now) {
		return time.Time{}, false, nil
	}

	r.cache.Add(account.ID, periodEnd)

	// Refresh the row cache too; losing this write only costs a
	// future ledger round trip
	if updateErr := r.accounts.UpdatePeriodEnd(ctx, account.ID, periodEnd); updateErr != nil {
		r.logger.WithError(updateErr).WithField("account_id", account.ID).
			Warn("failed to cache billing period end")
	}

	return periodEnd, true, nil
}

// Invalidate drops the cached period end for an account
func (r *PeriodResolver) Invalidate(accountID int64) {
	r.cache.Remove(accountID)
}

func latestPeriodEnd(sub *Subscription) time.Time {
	var latest time.Time
	for _, item := range sub.Items {
		if item.CurrentPeriodEnd.After(latest) {
			latest = item.CurrentPeriodEnd
		}
	}
	return latest
}
