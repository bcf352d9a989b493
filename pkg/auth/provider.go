package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidToken is returned when a bearer token is unknown, expired,
// or revoked.
var ErrInvalidToken = errors.New("invalid or expired token")

// ErrUserNotFound is returned when a user lookup finds no match.
var ErrUserNotFound = errors.New("user not found")

// Provider authenticates bearer tokens and resolves users
type Provider interface {
	// Authenticate validates a bearer token and returns the caller
	Authenticate(ctx context.Context, token string) (*AuthContext, error)

	// LookupUserByEmail finds a user by email address
	LookupUserByEmail(ctx context.Context, email string) (*User, error)

	// EnsureUser returns the user with the given email, creating one
	// if none exists
	EnsureUser(ctx context.Context, email, fullName string) (*User, error)

	// CreateToken issues a new API token for a user and returns the
	// plaintext token exactly once
	CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*APIToken, string, error)
}

// PostgresProvider implements Provider backed by PostgreSQL
type PostgresProvider struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewPostgresProvider creates a new PostgreSQL-backed provider
func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{
		db:        db,
		generator: NewTokenGenerator(),
	}
}

// Authenticate validates a bearer token and returns the caller
func (p *PostgresProvider) Authenticate(ctx context.Context, token string) (*AuthContext, error) {
	if err := p.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrInvalidToken
	}

	tokenHash := p.generator.HashToken(token)

	var apiToken APIToken
	var user User
	err := p.db.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, t.token_prefix, t.name, t.expires_at, t.last_used_at, t.revoked_at, t.created_at,
		       u.id, u.email, u.full_name, u.is_active, u.created_at, u.updated_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1`,
		tokenHash,
	).Scan(
		&apiToken.ID, &apiToken.UserID, &apiToken.TokenPrefix, &apiToken.Name,
		&apiToken.ExpiresAt, &apiToken.LastUsedAt, &apiToken.RevokedAt, &apiToken.CreatedAt,
		&user.ID, &user.Email, &user.FullName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if !apiToken.Valid(time.Now()) || !user.IsActive {
		return nil, ErrInvalidToken
	}

	// Best effort; authentication does not depend on this write
	_, _ = p.db.ExecContext(ctx,
		"UPDATE api_tokens SET last_used_at = NOW() WHERE id = $1", apiToken.ID)

	return &AuthContext{User: &user, Token: &apiToken}, nil
}

// LookupUserByEmail finds a user by email address
func (p *PostgresProvider) LookupUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := p.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, is_active, created_at, updated_at
		FROM users WHERE LOWER(email) = LOWER($1)`,
		email,
	).Scan(&user.ID, &user.Email, &user.FullName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}
	return &user, nil
}

// EnsureUser returns the user with the given email, creating one if
// none exists
func (p *PostgresProvider) EnsureUser(ctx context.Context, email, fullName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	var user User
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO users (email, full_name)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		RETURNING id, email, full_name, is_active, created_at, updated_at`,
		email, fullName,
	).Scan(&user.ID, &user.Email, &user.FullName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return &user, nil
}

// CreateToken issues a new API token for a user
func (p *PostgresProvider) CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := p.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		ExpiresAt:   expiresAt,
	}

	err = p.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		userID, tokenHash, tokenPrefix, name, expiresAt,
	).Scan(&apiToken.ID, &apiToken.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}
