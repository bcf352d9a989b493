package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store backed by PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed account store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get fetches an account by id
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_user_id, plan, billing_interval,
		       ledger_customer_id, ledger_subscription_id, current_period_end,
		       created_at, updated_at
		FROM accounts WHERE id = $1`,
		id,
	).Scan(
		&a.ID, &a.Name, &a.OwnerUserID, &a.Plan, &a.BillingInterval,
		&a.LedgerCustomerID, &a.LedgerSubscriptionID, &a.CurrentPeriodEnd,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// UpdatePeriodEnd refreshes the cached subscription period end
func (s *PostgresStore) UpdatePeriodEnd(ctx context.Context, id int64, periodEnd time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET current_period_end = $1, updated_at = NOW()
		WHERE id = $2`,
		periodEnd, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update period end: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSubscribed returns ids of all accounts linked to an external
// subscription
func (s *PostgresStore) ListSubscribed(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM accounts
		WHERE ledger_subscription_id IS NOT NULL AND ledger_subscription_id != ''
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribed accounts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return ids, nil
}
