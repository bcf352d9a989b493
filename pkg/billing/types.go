package billing

import (
	"context"
	"errors"
	"time"

	"github.com/seatsync/seatsync/pkg/accounts"
)

// ErrSubscriptionNotFound is returned when the ledger has no record
// of the requested subscription.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// ErrPaymentDeclined is returned when the ledger rejects a charge.
var ErrPaymentDeclined = errors.New("payment declined")

// ErrLedgerUnavailable is returned when the ledger cannot be reached
// or times out.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// LineItem is one priced line on an external subscription
type LineItem struct {
	ID       string `json:"id"`
	PriceID  string `json:"price_id"`
	Quantity int64  `json:"quantity"`
	// CurrentPeriodEnd is when the currently paid term for this item
	// ends
	CurrentPeriodEnd time.Time `json:"current_period_end"`
}

// Subscription is the external recurring-billing record
type Subscription struct {
	ID     string     `json:"id"`
	Status string     `json:"status"`
	Items  []LineItem `json:"items"`
}

// Ledger is the external subscription system. Implementations must
// apply proration on every mutation.
type Ledger interface {
	// GetSubscription fetches a subscription with its line items
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// CreateLineItem adds a line item to a subscription
	CreateLineItem(ctx context.Context, subscriptionID, priceID string, quantity int64) error

	// UpdateLineItemQuantity sets an existing line item's quantity
	UpdateLineItemQuantity(ctx context.Context, itemID string, quantity int64) error

	// DeleteLineItem removes a line item from its subscription
	DeleteLineItem(ctx context.Context, itemID string) error
}

// PriceConfig holds the seat price identifiers per billing interval
type PriceConfig struct {
	MonthlyPriceID string
	AnnualPriceID  string
}

// PriceFor returns the seat price id matching a billing interval
func (c PriceConfig) PriceFor(interval accounts.BillingInterval) string {
	if interval == accounts.IntervalAnnual {
		return c.AnnualPriceID
	}
	return c.MonthlyPriceID
}

// IsSeatPrice reports whether a price id is one of the seat prices
func (c PriceConfig) IsSeatPrice(priceID string) bool {
	if priceID == "" {
		return false
	}
	return priceID == c.MonthlyPriceID || priceID == c.AnnualPriceID
}

// FindSeatItem locates the seat line item on a subscription, if any
func (c PriceConfig) FindSeatItem(sub *Subscription) *LineItem {
	for i := range sub.Items {
		if c.IsSeatPrice(sub.Items[i].PriceID) {
			return &sub.Items[i]
		}
	}
	return nil
}
