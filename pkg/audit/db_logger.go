package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log records a single event
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var detailsJSON []byte
	var err error

	if event.Details != nil {
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, occurred_at, account_id, actor_user_id,
			event_type, status,
			previous_quantity, new_quantity, billing_interval, trigger_action,
			message, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID, event.OccurredAt, event.AccountID, event.ActorUserID,
		event.EventType, event.Status,
		event.PreviousQuantity, event.NewQuantity,
		nullableString(event.BillingInterval), nullableString(event.TriggerAction),
		event.Message, detailsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search queries recorded events
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT id, occurred_at, account_id, actor_user_id,
		       event_type, status,
		       previous_quantity, new_quantity, billing_interval, trigger_action,
		       message, details
		FROM audit_log
		WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.AccountID != nil {
		query += fmt.Sprintf(" AND account_id = $%d", argNum)
		args = append(args, *filter.AccountID)
		argNum++
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argNum)
		args = append(args, pq.Array(types))
		argNum++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(*filter.Status))
		argNum++
	}
	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argNum)
		args = append(args, *filter.StartTime)
		argNum++
	}
	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND occurred_at <= $%d", argNum)
		args = append(args, *filter.EndTime)
		argNum++
	}

	query += " ORDER BY occurred_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, limit)
	argNum++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var interval, trigger sql.NullString
		var detailsJSON []byte
		err := rows.Scan(
			&event.ID, &event.OccurredAt, &event.AccountID, &event.ActorUserID,
			&event.EventType, &event.Status,
			&event.PreviousQuantity, &event.NewQuantity, &interval, &trigger,
			&event.Message, &detailsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.BillingInterval = interval.String
		event.TriggerAction = trigger.String
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
