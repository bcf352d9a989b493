// Package tasks stores assignable work items. Membership removal
// reassigns a departing member's unfinished tasks to another member
// inside the same database transaction as the membership change.
package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// Task is an assignable work item scoped to an account
type Task struct {
	ID             int64      `json:"id"`
	AccountID      int64      `json:"account_id"`
	AssigneeUserID *int64     `json:"assignee_user_id,omitempty"`
	Status         TaskStatus `json:"status"`
	Title          string     `json:"title"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Querier is satisfied by *sql.DB and *sql.Tx so reassignment can run
// inside a caller-owned transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store provides access to tasks
type Store interface {
	// CountAssigned counts unfinished (open or in-progress) tasks
	// assigned to a user within an account
	CountAssigned(ctx context.Context, accountID, userID int64) (int64, error)

	// ReassignOpen moves all unfinished tasks from one user to
	// another within an account and returns how many moved. A nil
	// toUserID clears the assignee. q may be a transaction.
	ReassignOpen(ctx context.Context, q Querier, accountID, fromUserID int64, toUserID *int64) (int64, error)
}

// PostgresStore implements Store backed by PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed task store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CountAssigned counts unfinished tasks assigned to a user within an
// account
func (s *PostgresStore) CountAssigned(ctx context.Context, accountID, userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks
		WHERE account_id = $1 AND assignee_user_id = $2 AND status IN ('open', 'in_progress')`,
		accountID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assigned tasks: %w", err)
	}
	return count, nil
}

// ReassignOpen moves all unfinished tasks from one user to another
// within an account, so nothing stays assigned to a member who is
// being disabled. A nil toUserID leaves the tasks unassigned.
func (s *PostgresStore) ReassignOpen(ctx context.Context, q Querier, accountID, fromUserID int64, toUserID *int64) (int64, error) {
	if q == nil {
		q = s.db
	}
	result, err := q.ExecContext(ctx, `
		UPDATE tasks SET assignee_user_id = $1, updated_at = NOW()
		WHERE account_id = $2 AND assignee_user_id = $3 AND status IN ('open', 'in_progress')`,
		toUserID, accountID, fromUserID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign tasks: %w", err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check reassigned rows: %w", err)
	}
	return moved, nil
}
