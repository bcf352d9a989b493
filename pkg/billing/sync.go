package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seatsync/seatsync/pkg/accounts"
	"github.com/seatsync/seatsync/pkg/audit"
	"github.com/seatsync/seatsync/pkg/observability"
)

// Synchronizer reconciles the external subscription's seat line item
// with a target quantity. Every call sets an absolute quantity, so a
// repeated or re-ordered call with the same target is a no-op on the
// ledger side.
type Synchronizer struct {
	ledger  Ledger
	prices  PriceConfig
	auditor audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics
	timeout time.Duration
}

// NewSynchronizer creates a seat-quantity synchronizer
func NewSynchronizer(ledger Ledger, prices PriceConfig, auditor audit.Logger, logger *observability.Logger, metrics *observability.Metrics, timeout time.Duration) *Synchronizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Synchronizer{
		ledger:  ledger,
		prices:  prices,
		auditor: auditor,
		logger:  logger,
		metrics: metrics,
		timeout: timeout,
	}
}

// Sync makes the account's subscription carry exactly quantity seats
// at the price matching the account's billing interval. Accounts with
// no subscription are skipped. trigger names the membership action
// that caused the sync and is recorded in the audit trail.
func (s *Synchronizer) Sync(ctx context.Context, account *accounts.Account, quantity int64, trigger string) error {
	if !account.HasSubscription() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	previous, swapped, err := s.apply(ctx, account, quantity)
	duration := time.Since(start)

	if s.metrics != nil {
		s.metrics.ObserveSeatSync(trigger, err, duration)
	}

	status := audit.EventStatusSuccess
	message := fmt.Sprintf("seat quantity set to %d", quantity)
	if swapped {
		message = fmt.Sprintf("seat tier swapped to %s interval at quantity %d",
			account.BillingInterval, quantity)
	}
	if err != nil {
		status = audit.EventStatusFailure
		message = err.Error()
	}
	event := audit.NewSeatSyncEvent(status, account.ID, int(previous), int(quantity),
		string(account.BillingInterval), trigger, message)
	if swapped {
		event.EventType = audit.EventTypeTierSwap
	}
	// The audit record must land even when the ledger call timed out
	auditCtx := context.WithoutCancel(ctx)
	if auditErr := s.auditor.Log(auditCtx, event); auditErr != nil {
		s.logger.WithError(auditErr).WithField("account_id", account.ID).
			Warn("failed to write seat sync audit record")
	}

	if err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"account_id": account.ID,
		"quantity":   quantity,
		"trigger":    trigger,
	}).Info("seat quantity synchronized")
	return nil
}

// apply performs the ledger mutations. It returns the quantity the
// seat item held before the call and whether a price-tier swap ran.
func (s *Synchronizer) apply(ctx context.Context, account *accounts.Account, quantity int64) (previous int64, swapped bool, err error) {
	sub, err := s.ledger.GetSubscription(ctx, *account.LedgerSubscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			// The link is stale; nothing to reconcile against.
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to fetch subscription: %w", err)
	}

	targetPrice := s.prices.PriceFor(account.BillingInterval)
	item := s.prices.FindSeatItem(sub)

	if item != nil {
		previous = item.Quantity
	}

	switch {
	case quantity == 0 && item != nil:
		// A subscription never carries a zero-quantity seat item
		if err := s.ledger.DeleteLineItem(ctx, item.ID); err != nil {
			return previous, false, fmt.Errorf("failed to delete seat line item: %w", err)
		}

	case quantity == 0:
		// Nothing billed, nothing to bill

	case item != nil && item.PriceID != targetPrice:
		// Billing interval changed since the item was created. The
		// ledger cannot atomically swap price and quantity on one
		// item, so delete and recreate at the new price.
		if err := s.ledger.DeleteLineItem(ctx, item.ID); err != nil {
			return previous, true, fmt.Errorf("failed to delete seat line item for tier swap: %w", err)
		}
		if err := s.ledger.CreateLineItem(ctx, sub.ID, targetPrice, quantity); err != nil {
			return previous, true, fmt.Errorf("failed to recreate seat line item at new tier: %w", err)
		}
		return previous, true, nil

	case item != nil:
		if item.Quantity == quantity {
			return previous, false, nil
		}
		if err := s.ledger.UpdateLineItemQuantity(ctx, item.ID, quantity); err != nil {
			return previous, false, fmt.Errorf("failed to update seat quantity: %w", err)
		}

	default:
		if err := s.ledger.CreateLineItem(ctx, sub.ID, targetPrice, quantity); err != nil {
			return previous, false, fmt.Errorf("failed to create seat line item: %w", err)
		}
	}

	return previous, false, nil
}

// IsPaymentDeclined reports whether a sync failure was the ledger
// rejecting the charge, as opposed to being unreachable.
func IsPaymentDeclined(err error) bool {
	return errors.Is(err, ErrPaymentDeclined)
}
