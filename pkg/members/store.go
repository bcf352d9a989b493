package members

import (
	"context"
	"database/sql"
	"fmt"
)

// advisoryLockNamespace prefixes the hashed advisory lock key so this
// service's locks cannot collide with other users of the same
// database. Hashing folds the full bigint id range into one lock key;
// a two-argument lock would truncate ids past 2^31.
const advisoryLockNamespace = "seatsync:account:"

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store provides transactional access to membership rows
type Store interface {
	// WithAccountLock runs fn inside a transaction holding the
	// per-account advisory lock. Concurrent mutations on the same
	// account serialize here; unrelated accounts never contend.
	WithAccountLock(ctx context.Context, accountID int64, fn func(tx *sql.Tx) error) error

	// WithTx runs fn inside a plain transaction, for flows that do
	// not know the account id up front (invite acceptance)
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error

	Insert(ctx context.Context, q Querier, m *Membership) error
	Update(ctx context.Context, q Querier, m *Membership) error

	GetByID(ctx context.Context, q Querier, accountID, id int64) (*Membership, error)
	GetByUserID(ctx context.Context, q Querier, accountID, userID int64) (*Membership, error)
	// GetByEmail finds the single non-reassigned row for an email
	GetByEmail(ctx context.Context, q Querier, accountID int64, email string) (*Membership, error)
	// GetByTokenForUpdate locks and returns the pending row holding
	// an invite token
	GetByTokenForUpdate(ctx context.Context, tx *sql.Tx, token string) (*Membership, error)

	ListByAccount(ctx context.Context, q Querier, accountID int64) ([]*Membership, error)
	// CountTeam counts non-owner, non-reassigned rows, the number
	// checked against the plan's invite limit
	CountTeam(ctx context.Context, q Querier, accountID int64) (int64, error)

	// DeleteExpiredInvites removes pending rows whose invite token
	// lapsed and returns the distinct account ids touched, so the
	// caller can resync their seat quantities
	DeleteExpiredInvites(ctx context.Context) ([]int64, error)
}

// PostgresStore implements Store backed by PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed membership store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB exposes the underlying handle for callers that need ad hoc reads
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// WithAccountLock runs fn inside a transaction holding the
// per-account advisory lock
func (s *PostgresStore) WithAccountLock(ctx context.Context, accountID int64, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// Released automatically at commit or rollback
	if _, err := tx.ExecContext(ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended($1 || $2::text, 0))",
		advisoryLockNamespace, accountID,
	); err != nil {
		return fmt.Errorf("failed to acquire account lock: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithTx runs fn inside a plain transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const membershipColumns = `
	id, account_id, user_id, email, role, status, is_owner,
	invited_at, accepted_at, disabled_at, seat_billing_ends_at,
	invite_token, invite_expires_at, created_at, updated_at`

func scanMembership(row interface{ Scan(...interface{}) error }) (*Membership, error) {
	var m Membership
	err := row.Scan(
		&m.ID, &m.AccountID, &m.UserID, &m.Email, &m.Role, &m.Status, &m.IsOwner,
		&m.InvitedAt, &m.AcceptedAt, &m.DisabledAt, &m.SeatBillingEndsAt,
		&m.InviteToken, &m.InviteExpiresAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Insert stores a new membership row
func (s *PostgresStore) Insert(ctx context.Context, q Querier, m *Membership) error {
	if q == nil {
		q = s.db
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO memberships (
			account_id, user_id, email, role, status, is_owner,
			invited_at, accepted_at, disabled_at, seat_billing_ends_at,
			invite_token, invite_expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		m.AccountID, m.UserID, m.Email, m.Role, m.Status, m.IsOwner,
		m.InvitedAt, m.AcceptedAt, m.DisabledAt, m.SeatBillingEndsAt,
		m.InviteToken, m.InviteExpiresAt,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// Update writes a membership row's mutable fields
func (s *PostgresStore) Update(ctx context.Context, q Querier, m *Membership) error {
	if q == nil {
		q = s.db
	}
	result, err := q.ExecContext(ctx, `
		UPDATE memberships SET
			user_id = $1, role = $2, status = $3,
			accepted_at = $4, disabled_at = $5, seat_billing_ends_at = $6,
			invite_token = $7, invite_expires_at = $8,
			updated_at = NOW()
		WHERE id = $9`,
		m.UserID, m.Role, m.Status,
		m.AcceptedAt, m.DisabledAt, m.SeatBillingEndsAt,
		m.InviteToken, m.InviteExpiresAt,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID fetches a membership row by id within an account
func (s *PostgresStore) GetByID(ctx context.Context, q Querier, accountID, id int64) (*Membership, error) {
	if q == nil {
		q = s.db
	}
	m, err := scanMembership(q.QueryRowContext(ctx,
		"SELECT"+membershipColumns+" FROM memberships WHERE account_id = $1 AND id = $2",
		accountID, id))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetByUserID fetches the non-reassigned row bound to a user
func (s *PostgresStore) GetByUserID(ctx context.Context, q Querier, accountID, userID int64) (*Membership, error) {
	if q == nil {
		q = s.db
	}
	m, err := scanMembership(q.QueryRowContext(ctx,
		"SELECT"+membershipColumns+` FROM memberships
		WHERE account_id = $1 AND user_id = $2 AND status != 'reassigned'`,
		accountID, userID))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetByEmail finds the single non-reassigned row for an email
func (s *PostgresStore) GetByEmail(ctx context.Context, q Querier, accountID int64, email string) (*Membership, error) {
	if q == nil {
		q = s.db
	}
	m, err := scanMembership(q.QueryRowContext(ctx,
		"SELECT"+membershipColumns+` FROM memberships
		WHERE account_id = $1 AND LOWER(email) = LOWER($2) AND status != 'reassigned'`,
		accountID, email))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetByTokenForUpdate locks and returns the pending row holding an
// invite token
func (s *PostgresStore) GetByTokenForUpdate(ctx context.Context, tx *sql.Tx, token string) (*Membership, error) {
	m, err := scanMembership(tx.QueryRowContext(ctx,
		"SELECT"+membershipColumns+` FROM memberships
		WHERE invite_token = $1 AND status = 'pending'
		FOR UPDATE`,
		token))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListByAccount returns all membership rows for an account, owner
// first
func (s *PostgresStore) ListByAccount(ctx context.Context, q Querier, accountID int64) ([]*Membership, error) {
	if q == nil {
		q = s.db
	}
	rows, err := q.QueryContext(ctx,
		"SELECT"+membershipColumns+` FROM memberships
		WHERE account_id = $1
		ORDER BY is_owner DESC, created_at ASC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var result []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return result, nil
}

// CountTeam counts non-owner, non-reassigned rows
func (s *PostgresStore) CountTeam(ctx context.Context, q Querier, accountID int64) (int64, error) {
	if q == nil {
		q = s.db
	}
	var count int64
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memberships
		WHERE account_id = $1 AND NOT is_owner AND status != 'reassigned'`,
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count team members: %w", err)
	}
	return count, nil
}

// DeleteExpiredInvites removes pending rows whose invite token lapsed
// and returns the distinct account ids touched
func (s *PostgresStore) DeleteExpiredInvites(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM memberships
		WHERE status = 'pending' AND invite_expires_at IS NOT NULL AND invite_expires_at < NOW()
		RETURNING account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired invites: %w", err)
	}
	defer rows.Close()

	seen := make(map[int64]bool)
	var accountIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			accountIDs = append(accountIDs, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deleted invites: %w", err)
	}
	return accountIDs, nil
}
