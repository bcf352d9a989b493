package members

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func membershipRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "account_id", "user_id", "email", "role", "status", "is_owner",
		"invited_at", "accepted_at", "disabled_at", "seat_billing_ends_at",
		"invite_token", "invite_expires_at", "created_at", "updated_at",
	})
}

func TestWithAccountLock(t *testing.T) {
	ctx := context.Background()

	t.Run("acquires the lock and commits", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := NewPostgresStore(db)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtextextended`).
			WithArgs(advisoryLockNamespace, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		var ran bool
		err := store.WithAccountLock(ctx, 7, func(tx *sql.Tx) error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("account ids past int32 pass through unchanged", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := NewPostgresStore(db)

		wide := int64(math.MaxInt32) + 1
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtextextended`).
			WithArgs(advisoryLockNamespace, wide).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := store.WithAccountLock(ctx, wide, func(tx *sql.Tx) error {
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := NewPostgresStore(db)

		mock.ExpectBegin()
		mock.ExpectExec("SELECT pg_advisory_xact_lock").
			WithArgs(advisoryLockNamespace, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := store.WithAccountLock(ctx, 7, func(tx *sql.Tx) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock acquisition failure aborts", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := NewPostgresStore(db)

		mock.ExpectBegin()
		mock.ExpectExec("SELECT pg_advisory_xact_lock").
			WithArgs(advisoryLockNamespace, int64(7)).
			WillReturnError(errors.New("lock timeout"))
		mock.ExpectRollback()

		err := store.WithAccountLock(ctx, 7, func(tx *sql.Tx) error {
			t.Fatal("fn must not run without the lock")
			return nil
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to acquire account lock")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInsertMembership(t *testing.T) {
	ctx := context.Background()

	t.Run("populates generated columns", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := NewPostgresStore(db)

		now := time.Now()
		mock.ExpectQuery("INSERT INTO memberships").
			WithArgs(int64(1), nil, "x@y.com", string(RoleMember), string(StatusPending), false,
				sqlmock.AnyArg(), nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(int64(42), now, now))

		token := "deadbeef"
		expires := now.Add(7 * 24 * time.Hour)
		m := &Membership{
			AccountID:       1,
			Email:           "x@y.com",
			Role:            RoleMember,
			Status:          StatusPending,
			InvitedAt:       now,
			InviteToken:     &token,
			InviteExpiresAt: &expires,
		}
		require.NoError(t, store.Insert(ctx, nil, m))
		assert.Equal(t, int64(42), m.ID)
		assert.False(t, m.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure is wrapped", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := NewPostgresStore(db)

		mock.ExpectQuery("INSERT INTO memberships").
			WillReturnError(errors.New("unique violation"))

		err := store.Insert(ctx, nil, &Membership{AccountID: 1, Email: "x@y.com", Role: RoleMember, Status: StatusPending})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert membership")
	})
}

func TestUpdateMembership(t *testing.T) {
	ctx := context.Background()

	t.Run("missing row surfaces ErrNoRows", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := NewPostgresStore(db)

		mock.ExpectExec("UPDATE memberships SET").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.Update(ctx, nil, &Membership{ID: 99, Role: RoleMember, Status: StatusActive})
		assert.Equal(t, sql.ErrNoRows, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("matches case-insensitively", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := NewPostgresStore(db)

		now := time.Now()
		mock.ExpectQuery("SELECT(.|\n)*FROM memberships").
			WithArgs(int64(1), "X@Y.com").
			WillReturnRows(membershipRows().
				AddRow(int64(5), int64(1), nil, "x@y.com", "member", "pending", false,
					now, nil, nil, nil, "tok", now.Add(time.Hour), now, now))

		m, err := store.GetByEmail(ctx, nil, 1, "X@Y.com")
		require.NoError(t, err)
		assert.Equal(t, int64(5), m.ID)
		assert.Equal(t, StatusPending, m.Status)
		require.NotNil(t, m.InviteToken)
		assert.Equal(t, "tok", *m.InviteToken)
	})

	t.Run("no row passes through ErrNoRows", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := NewPostgresStore(db)

		mock.ExpectQuery("SELECT(.|\n)*FROM memberships").
			WithArgs(int64(1), "missing@y.com").
			WillReturnRows(membershipRows())

		_, err := store.GetByEmail(ctx, nil, 1, "missing@y.com")
		assert.Equal(t, sql.ErrNoRows, err)
	})
}

func TestCountTeam(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM memberships`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))

	count, err := store.CountTeam(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredInvites(t *testing.T) {
	t.Run("deduplicates touched accounts", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := NewPostgresStore(db)

		mock.ExpectQuery("DELETE FROM memberships").
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}).
				AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(1)))

		ids, err := store.DeleteExpiredInvites(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing expired touches nothing", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := NewPostgresStore(db)

		mock.ExpectQuery("DELETE FROM memberships").
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}))

		ids, err := store.DeleteExpiredInvites(context.Background())
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
