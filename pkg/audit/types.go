package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Membership lifecycle events
	EventTypeMemberInvite       EventType = "member.invite"
	EventTypeMemberInviteAccept EventType = "member.invite_accept"
	EventTypeMemberDeactivate   EventType = "member.deactivate"
	EventTypeMemberReactivate   EventType = "member.reactivate"
	EventTypeMemberReassign     EventType = "member.reassign"
	EventTypeMemberRoleChange   EventType = "member.role_change"

	// Billing ledger events
	EventTypeSeatSync       EventType = "billing.seat_sync"
	EventTypeSeatSyncResync EventType = "billing.seat_resync"
	EventTypeTierSwap       EventType = "billing.tier_swap"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry. Seat-sync events carry
// the before/after billed quantity so the ledger history can be
// reconstructed from the log alone.
type Event struct {
	ID         string      `json:"id"`
	OccurredAt time.Time   `json:"occurred_at"`
	EventType  EventType   `json:"event_type"`
	Status     EventStatus `json:"status"`

	AccountID   *int64 `json:"account_id,omitempty"`
	ActorUserID *int64 `json:"actor_user_id,omitempty"`

	// Seat quantity transition, set on billing events
	PreviousQuantity *int   `json:"previous_quantity,omitempty"`
	NewQuantity      *int   `json:"new_quantity,omitempty"`
	BillingInterval  string `json:"billing_interval,omitempty"`
	TriggerAction    string `json:"trigger_action,omitempty"`

	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToJSON converts the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter represents filters for querying audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	AccountID  *int64
	EventTypes []EventType
	Status     *EventStatus

	Limit  int
	Offset int
}
