package audit

import (
	"context"
	"database/sql"
	"errors"
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

func TestNewDBLogger(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, _ := setupMockDB(t)
		defer db.Close()

		logger, err := NewDBLogger(db)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("nil database", func(t *testing.T) {
		logger, err := NewDBLogger(nil)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "database connection is required")
	})
}

func TestDBLogger_Log(t *testing.T) {
	t.Run("seat sync event with quantity transition", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger, err := NewDBLogger(db)
		require.NoError(t, err)

		event := NewSeatSyncEvent(EventStatusSuccess, 42, 2, 3, "month", "invite", "seat quantity set to 3")

		mock.ExpectExec("INSERT INTO audit_log").
			WithArgs(
				event.ID, sqlmock.AnyArg(), int64(42), nil,
				string(EventTypeSeatSync), string(EventStatusSuccess),
				int64(2), int64(3), "month", "invite",
				event.Message, sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, logger.Log(context.Background(), event))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("membership event without quantities", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger, err := NewDBLogger(db)
		require.NoError(t, err)

		actor := int64(7)
		event := NewMembershipEvent(EventTypeMemberDeactivate, EventStatusSuccess, 42, &actor, "deactivate succeeded")

		mock.ExpectExec("INSERT INTO audit_log").
			WithArgs(
				event.ID, sqlmock.AnyArg(), int64(42), actor,
				string(EventTypeMemberDeactivate), string(EventStatusSuccess),
				nil, nil, nil, nil,
				event.Message, sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, logger.Log(context.Background(), event))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure is wrapped", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger, err := NewDBLogger(db)
		require.NoError(t, err)

		mock.ExpectExec("INSERT INTO audit_log").
			WillReturnError(errors.New("connection reset"))

		err = logger.Log(context.Background(), NewEvent(EventTypeMemberInvite, EventStatusSuccess))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit event")
	})
}

func TestDBLogger_Search(t *testing.T) {
	searchColumns := []string{
		"id", "occurred_at", "account_id", "actor_user_id",
		"event_type", "status",
		"previous_quantity", "new_quantity", "billing_interval", "trigger_action",
		"message", "details",
	}

	t.Run("filters by account and event type", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger, err := NewDBLogger(db)
		require.NoError(t, err)

		now := time.Now().UTC()
		mock.ExpectQuery("SELECT(.|\n)*FROM audit_log").
			WithArgs(int64(42), sqlmock.AnyArg(), 100).
			WillReturnRows(sqlmock.NewRows(searchColumns).
				AddRow("ev-1", now, int64(42), nil,
					"billing.seat_sync", "success",
					int64(2), int64(3), "month", "invite",
					"seat quantity set to 3", nil))

		accountID := int64(42)
		events, err := logger.Search(context.Background(), SearchFilter{
			AccountID:  &accountID,
			EventTypes: []EventType{EventTypeSeatSync},
		})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeSeatSync, events[0].EventType)
		require.NotNil(t, events[0].PreviousQuantity)
		assert.Equal(t, 2, *events[0].PreviousQuantity)
		assert.Equal(t, "invite", events[0].TriggerAction)
	})

	t.Run("empty result", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger, err := NewDBLogger(db)
		require.NoError(t, err)

		mock.ExpectQuery("SELECT(.|\n)*FROM audit_log").
			WillReturnRows(sqlmock.NewRows(searchColumns))

		events, err := logger.Search(context.Background(), SearchFilter{})
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("details round-trip", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger, err := NewDBLogger(db)
		require.NoError(t, err)

		now := time.Now().UTC()
		mock.ExpectQuery("SELECT(.|\n)*FROM audit_log").
			WillReturnRows(sqlmock.NewRows(searchColumns).
				AddRow("ev-2", now, int64(1), nil,
					"member.invite", "success",
					nil, nil, nil, nil,
					"invite succeeded", []byte(`{"email":"x@y.com"}`)))

		events, err := logger.Search(context.Background(), SearchFilter{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "x@y.com", events[0].Details["email"])
	})
}
