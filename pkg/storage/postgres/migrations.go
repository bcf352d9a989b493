package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					full_name VARCHAR(255) NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS accounts (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					owner_user_id BIGINT NOT NULL REFERENCES users(id),
					plan VARCHAR(50) NOT NULL DEFAULT 'free',
					billing_interval VARCHAR(10) NOT NULL DEFAULT 'month',
					ledger_customer_id VARCHAR(255),
					ledger_subscription_id VARCHAR(255),
					current_period_end TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     3,
			Description: "Create memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS memberships (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id),
					user_id BIGINT REFERENCES users(id),
					email VARCHAR(255) NOT NULL,
					role VARCHAR(20) NOT NULL,
					status VARCHAR(20) NOT NULL,
					is_owner BOOLEAN NOT NULL DEFAULT FALSE,
					invited_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					accepted_at TIMESTAMPTZ,
					disabled_at TIMESTAMPTZ,
					seat_billing_ends_at TIMESTAMPTZ,
					invite_token VARCHAR(128),
					invite_expires_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS ux_memberships_account_email
					ON memberships(account_id, email) WHERE status != 'reassigned';
				CREATE UNIQUE INDEX IF NOT EXISTS ux_memberships_account_owner
					ON memberships(account_id) WHERE is_owner;
				CREATE INDEX IF NOT EXISTS idx_memberships_account_id ON memberships(account_id);
				CREATE INDEX IF NOT EXISTS idx_memberships_user_id ON memberships(user_id);
				CREATE UNIQUE INDEX IF NOT EXISTS ux_memberships_invite_token
					ON memberships(invite_token) WHERE invite_token IS NOT NULL;
			`,
		},
		{
			Version:     4,
			Description: "Create tasks table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tasks (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id),
					assignee_user_id BIGINT REFERENCES users(id),
					status VARCHAR(20) NOT NULL DEFAULT 'open',
					title VARCHAR(512) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(account_id, assignee_user_id);
			`,
		},
		{
			Version:     5,
			Description: "Create audit_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id UUID PRIMARY KEY,
					occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					account_id BIGINT,
					actor_user_id BIGINT,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					previous_quantity INT,
					new_quantity INT,
					billing_interval VARCHAR(10),
					trigger_action VARCHAR(50),
					message TEXT NOT NULL DEFAULT '',
					details JSONB
				);

				CREATE INDEX IF NOT EXISTS idx_audit_log_account ON audit_log(account_id, occurred_at DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_log_event_type ON audit_log(event_type);
			`,
		},
		{
			Version:     6,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id),
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(20) NOT NULL,
					name VARCHAR(255) NOT NULL DEFAULT '',
					expires_at TIMESTAMPTZ,
					last_used_at TIMESTAMPTZ,
					revoked_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
