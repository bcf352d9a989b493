package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger records audit events
type Logger interface {
	// Log records a single event
	Log(ctx context.Context, event *Event) error

	// Search queries recorded events
	Search(ctx context.Context, filter SearchFilter) ([]*Event, error)
}

// NewEvent constructs an event with id and timestamp filled in
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		ID:         uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		EventType:  eventType,
		Status:     status,
	}
}

// NewMembershipEvent constructs an event for a membership transition
func NewMembershipEvent(eventType EventType, status EventStatus, accountID int64, actorUserID *int64, message string) *Event {
	event := NewEvent(eventType, status)
	event.AccountID = &accountID
	event.ActorUserID = actorUserID
	event.Message = message
	return event
}

// NewSeatSyncEvent constructs an event recording a ledger sync
// attempt with its quantity transition.
func NewSeatSyncEvent(status EventStatus, accountID int64, previousQuantity, newQuantity int, interval, trigger, message string) *Event {
	event := NewEvent(EventTypeSeatSync, status)
	event.AccountID = &accountID
	event.PreviousQuantity = &previousQuantity
	event.NewQuantity = &newQuantity
	event.BillingInterval = interval
	event.TriggerAction = trigger
	event.Message = message
	return event
}

// NopLogger discards all events. Used in tests and when auditing is
// disabled.
type NopLogger struct{}

// Log discards the event
func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }

// Search returns no events
func (NopLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	return nil, nil
}
