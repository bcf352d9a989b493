package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/subscriptionitem"
)

// prorationCreate asks Stripe to issue prorated credits/charges on
// every line item mutation.
var prorationCreate = stripe.String("create_prorations")

// StripeLedger implements Ledger against the Stripe API
type StripeLedger struct{}

// NewStripeLedger configures the Stripe client and returns a ledger
func NewStripeLedger(apiKey string) *StripeLedger {
	stripe.Key = apiKey
	return &StripeLedger{}
}

// GetSubscription fetches a subscription with its line items
func (l *StripeLedger) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}

	result := &Subscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			li := LineItem{
				ID:               item.ID,
				Quantity:         item.Quantity,
				CurrentPeriodEnd: time.Unix(item.CurrentPeriodEnd, 0),
			}
			if item.Price != nil {
				li.PriceID = item.Price.ID
			}
			result.Items = append(result.Items, li)
		}
	}
	return result, nil
}

// CreateLineItem adds a line item to a subscription
func (l *StripeLedger) CreateLineItem(ctx context.Context, subscriptionID, priceID string, quantity int64) error {
	params := &stripe.SubscriptionItemParams{
		Subscription:      stripe.String(subscriptionID),
		Price:             stripe.String(priceID),
		Quantity:          stripe.Int64(quantity),
		ProrationBehavior: prorationCreate,
	}
	params.Context = ctx

	if _, err := subscriptionitem.New(params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

// UpdateLineItemQuantity sets an existing line item's quantity
func (l *StripeLedger) UpdateLineItemQuantity(ctx context.Context, itemID string, quantity int64) error {
	params := &stripe.SubscriptionItemParams{
		Quantity:          stripe.Int64(quantity),
		ProrationBehavior: prorationCreate,
	}
	params.Context = ctx

	if _, err := subscriptionitem.Update(itemID, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

// DeleteLineItem removes a line item from its subscription
func (l *StripeLedger) DeleteLineItem(ctx context.Context, itemID string) error {
	params := &stripe.SubscriptionItemParams{
		ProrationBehavior: prorationCreate,
	}
	params.Context = ctx

	if _, err := subscriptionitem.Del(itemID, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

// mapStripeError folds Stripe's error surface into the ledger error
// taxonomy: charge rejections become ErrPaymentDeclined, missing
// resources become ErrSubscriptionNotFound, and everything else
// (network failure, timeouts, 5xx) becomes ErrLedgerUnavailable.
func mapStripeError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Type == stripe.ErrorTypeCard:
			return fmt.Errorf("%w: %s", ErrPaymentDeclined, stripeErr.Msg)
		case stripeErr.Code == stripe.ErrorCodeCardDeclined:
			return fmt.Errorf("%w: %s", ErrPaymentDeclined, stripeErr.Msg)
		case stripeErr.Code == stripe.ErrorCodeResourceMissing:
			return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, stripeErr.Msg)
		case stripeErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %s", ErrLedgerUnavailable, stripeErr.Msg)
		}
		return err
	}

	return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
}
