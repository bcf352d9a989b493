package members

import "time"

// Role is a member's role within an account
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// ValidRole reports whether r is an assignable role. Owner is not
// assignable; it belongs to exactly one row per account.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Status is a membership's lifecycle state
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	// StatusReassigned is terminal. Rows never leave it and are never
	// hard-deleted; they are the audit tombstone left behind by a
	// seat transfer.
	StatusReassigned Status = "reassigned"
)

// Membership is one person's seat on an account. UserID is null while
// an invite is outstanding; Email is authoritative until then.
type Membership struct {
	ID        int64   `json:"id"`
	AccountID int64   `json:"account_id"`
	UserID    *int64  `json:"user_id,omitempty"`
	Email     string  `json:"email"`
	Role      Role    `json:"role"`
	Status    Status  `json:"status"`
	IsOwner   bool    `json:"is_owner"`

	InvitedAt  time.Time  `json:"invited_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	DisabledAt *time.Time `json:"disabled_at,omitempty"`

	// SeatBillingEndsAt is set on the active→disabled transition to
	// the end of the currently paid term. While it is in the future
	// the disabled seat still counts as billable.
	SeatBillingEndsAt *time.Time `json:"seat_billing_ends_at,omitempty"`

	InviteToken     *string    `json:"-"`
	InviteExpiresAt *time.Time `json:"invite_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanManage reports whether a membership row carries management
// rights over other members.
func (m *Membership) CanManage() bool {
	if m.Status != StatusActive {
		return false
	}
	return m.IsOwner || m.Role == RoleOwner || m.Role == RoleAdmin
}
