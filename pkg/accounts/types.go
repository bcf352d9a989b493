package accounts

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("account not found")

// Plan identifies an account's subscription plan
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanTeam       Plan = "team"
	PlanEnterprise Plan = "enterprise"
)

// BillingInterval is the cadence of an account's subscription
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "month"
	IntervalAnnual  BillingInterval = "year"
)

// Account represents a tenant. The owner is a user whose seat is
// never billed; everyone else joins through a membership.
type Account struct {
	ID                   int64           `json:"id"`
	Name                 string          `json:"name"`
	OwnerUserID          int64           `json:"owner_user_id"`
	Plan                 Plan            `json:"plan"`
	BillingInterval      BillingInterval `json:"billing_interval"`
	LedgerCustomerID     *string         `json:"ledger_customer_id,omitempty"`
	LedgerSubscriptionID *string         `json:"ledger_subscription_id,omitempty"`
	// CurrentPeriodEnd is a cached copy of the subscription period end
	// reported by the billing ledger. It may be stale or nil.
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HasSubscription reports whether the account is linked to an
// external subscription.
func (a *Account) HasSubscription() bool {
	return a.LedgerSubscriptionID != nil && *a.LedgerSubscriptionID != ""
}

// Store provides access to accounts
type Store interface {
	// Get fetches an account by id
	Get(ctx context.Context, id int64) (*Account, error)

	// UpdatePeriodEnd refreshes the cached subscription period end
	UpdatePeriodEnd(ctx context.Context, id int64, periodEnd time.Time) error

	// ListSubscribed returns ids of all accounts linked to an
	// external subscription, for bulk resync
	ListSubscribed(ctx context.Context) ([]int64, error)
}
