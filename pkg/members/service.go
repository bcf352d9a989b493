package members

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seatsync/seatsync/pkg/accounts"
	"github.com/seatsync/seatsync/pkg/async"
	"github.com/seatsync/seatsync/pkg/audit"
	"github.com/seatsync/seatsync/pkg/auth"
	"github.com/seatsync/seatsync/pkg/billing"
	"github.com/seatsync/seatsync/pkg/entitlements"
	"github.com/seatsync/seatsync/pkg/notify"
	"github.com/seatsync/seatsync/pkg/observability"
	"github.com/seatsync/seatsync/pkg/tasks"
)

const inviteEmailTimeout = 15 * time.Second

// MemberResult is the response to a single-member mutation. Billable
// seats are recomputed from committed rows, never cached.
type MemberResult struct {
	Membership    *Membership `json:"membership"`
	BillableSeats int64       `json:"billable_seats"`
}

// ListResult is the response to a member listing
type ListResult struct {
	Members       []*Membership `json:"members"`
	BillableSeats int64         `json:"billable_seats"`
}

// Service is the membership state machine. Every mutation runs under
// the per-account advisory lock so concurrent actions on one account
// serialize; the ledger always receives an absolute seat quantity
// recomputed inside that critical section.
type Service struct {
	store        Store
	accounts     accounts.Store
	entitlements entitlements.Service
	identity     auth.Provider
	tasks        tasks.Store
	sync         *billing.Synchronizer
	periods      *billing.PeriodResolver
	notifier     notify.Sender
	auditor      audit.Logger
	logger       *observability.Logger
	metrics      *observability.Metrics
	inviteTTL    time.Duration
}

// ServiceConfig wires the service's collaborators
type ServiceConfig struct {
	Store        Store
	Accounts     accounts.Store
	Entitlements entitlements.Service
	Identity     auth.Provider
	Tasks        tasks.Store
	Synchronizer *billing.Synchronizer
	Periods      *billing.PeriodResolver
	Notifier     notify.Sender
	Auditor      audit.Logger
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	InviteTTL    time.Duration
}

// NewService creates the membership service
func NewService(cfg ServiceConfig) *Service {
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = 7 * 24 * time.Hour
	}
	return &Service{
		store:        cfg.Store,
		accounts:     cfg.Accounts,
		entitlements: cfg.Entitlements,
		identity:     cfg.Identity,
		tasks:        cfg.Tasks,
		sync:         cfg.Synchronizer,
		periods:      cfg.Periods,
		notifier:     cfg.Notifier,
		auditor:      cfg.Auditor,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		inviteTTL:    cfg.InviteTTL,
	}
}

// authorize loads the account and verifies the actor may manage its
// members. The actor must hold an active owner or admin membership.
func (s *Service) authorize(ctx context.Context, q Querier, accountID, actorUserID int64) (*accounts.Account, *Membership, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, nil, NewError(CodeNotFound, "account %d not found", accountID)
		}
		return nil, nil, WrapError(CodeExternalService, err, "failed to load account")
	}

	actor, err := s.store.GetByUserID(ctx, q, accountID, actorUserID)
	if err == sql.ErrNoRows {
		return nil, nil, NewError(CodeForbidden, "caller is not a member of this account")
	}
	if err != nil {
		return nil, nil, WrapError(CodeExternalService, err, "failed to load caller membership")
	}
	if !actor.CanManage() {
		return nil, nil, NewError(CodeForbidden, "caller must be an active owner or admin")
	}
	return account, actor, nil
}

// recount recomputes the billable seat count from current rows inside
// the caller's transaction.
func (s *Service) recount(ctx context.Context, tx *sql.Tx, accountID int64) (int64, error) {
	rows, err := s.store.ListByAccount(ctx, tx, accountID)
	if err != nil {
		return 0, WrapError(CodeExternalService, err, "failed to recount seats")
	}
	return BillableSeats(rows, time.Now()), nil
}

// syncBestEffort reconciles the ledger inside the critical section
// without failing the membership change. Drift left behind by a
// failed attempt is healed by the idempotent resync.
func (s *Service) syncBestEffort(ctx context.Context, account *accounts.Account, quantity int64, trigger string) {
	if err := s.sync.Sync(ctx, account, quantity, trigger); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"account_id": account.ID,
			"quantity":   quantity,
			"trigger":    trigger,
		}).Warn("ledger sync failed; membership change kept, resync will heal")
		return
	}
	if s.metrics != nil {
		s.metrics.SetBillableSeats(account.ID, quantity)
	}
}

// Invite creates a membership for an email address. A known identity
// joins as active immediately; anyone else gets a pending row and an
// invitation email. The new seat is charged before the invite is
// granted: if the ledger rejects or cannot apply the charge, the row
// is rolled back and no invite exists.
func (s *Service) Invite(ctx context.Context, actorUserID, accountID int64, email string, role Role) (*MemberResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, NewError(CodeConflict, "email is required")
	}
	if role == "" {
		role = RoleMember
	}
	if !ValidRole(role) {
		return nil, NewError(CodeConflict, "role %q is not assignable", role)
	}

	var (
		result MemberResult
		invite *notify.Invite
	)

	err := s.store.WithAccountLock(ctx, accountID, func(tx *sql.Tx) error {
		account, actor, err := s.authorize(ctx, tx, accountID, actorUserID)
		if err != nil {
			return err
		}

		ent, err := s.entitlements.Get(ctx, accountID)
		if err != nil {
			return WrapError(CodeExternalService, err, "failed to load entitlements")
		}
		if !ent.CanHaveTeamUsers {
			return NewError(CodeFeatureNotAvailable, "this plan does not include team members")
		}

		if _, err := s.store.GetByEmail(ctx, tx, accountID, email); err == nil {
			return NewError(CodeConflict, "%s is already a member of this account", email)
		} else if err != sql.ErrNoRows {
			return WrapError(CodeExternalService, err, "failed to check existing membership")
		}

		teamSize, err := s.store.CountTeam(ctx, tx, accountID)
		if err != nil {
			return WrapError(CodeExternalService, err, "failed to count team")
		}
		if ent.MaxInvitedUsers > 0 && teamSize >= int64(ent.MaxInvitedUsers) {
			return NewError(CodeTeamLimitReached, "plan allows at most %d invited users", ent.MaxInvitedUsers)
		}

		now := time.Now()
		m := &Membership{
			AccountID: accountID,
			Email:     email,
			Role:      role,
			InvitedAt: now,
		}

		user, err := s.identity.LookupUserByEmail(ctx, email)
		switch {
		case err == nil:
			// Known identity joins immediately
			m.Status = StatusActive
			m.UserID = &user.ID
			m.AcceptedAt = &now
		case errors.Is(err, auth.ErrUserNotFound):
			token, tokenErr := newInviteToken()
			if tokenErr != nil {
				return WrapError(CodeExternalService, tokenErr, "failed to generate invite token")
			}
			expires := now.Add(s.inviteTTL)
			m.Status = StatusPending
			m.InviteToken = &token
			m.InviteExpiresAt = &expires

			inviterName := actor.Email
			if actor.IsOwner {
				inviterName = account.Name + " owner"
			}
			invite = &notify.Invite{
				Email:       email,
				Role:        string(role),
				InviterName: inviterName,
				AccountName: account.Name,
				Token:       token,
			}
		default:
			return WrapError(CodeExternalService, err, "failed to look up identity")
		}

		if err := s.store.Insert(ctx, tx, m); err != nil {
			return WrapError(CodeExternalService, err, "failed to create membership")
		}

		count, err := s.recount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		// Charge before granting. A failure here aborts the
		// transaction, so the row above never becomes visible.
		if err := s.sync.Sync(ctx, account, count, "invite"); err != nil {
			if billing.IsPaymentDeclined(err) {
				return WrapError(CodePaymentRequired, err, "seat charge was declined")
			}
			return WrapError(CodeExternalService, err, "could not charge for the new seat")
		}

		if s.metrics != nil {
			s.metrics.SetBillableSeats(accountID, count)
		}
		result = MemberResult{Membership: m, BillableSeats: count}
		return nil
	})

	s.observeAction(ctx, "invite", accountID, &actorUserID, err)
	if err != nil {
		return nil, err
	}

	if invite != nil {
		sent := *invite
		async.SafeGo(ctx, s.logger, inviteEmailTimeout, "invite email", func(ctx context.Context) error {
			return s.notifier.SendInvite(ctx, sent)
		})
	}

	return &result, nil
}

// AcceptInvite redeems an invite token, binding the pending row to
// the accepting identity. The seat was already charged at invite
// time, so no ledger sync happens here.
func (s *Service) AcceptInvite(ctx context.Context, token, fullName string) (*Membership, error) {
	if token == "" {
		return nil, NewError(CodeNotFound, "invitation not found")
	}

	var accepted *Membership
	var accountID int64
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		m, err := s.store.GetByTokenForUpdate(ctx, tx, token)
		if err == sql.ErrNoRows {
			return NewError(CodeNotFound, "invitation not found")
		}
		if err != nil {
			return WrapError(CodeExternalService, err, "failed to load invitation")
		}
		accountID = m.AccountID
		if m.InviteExpiresAt != nil && m.InviteExpiresAt.Before(time.Now()) {
			return NewError(CodeNotFound, "invitation has expired")
		}

		user, err := s.identity.EnsureUser(ctx, m.Email, fullName)
		if err != nil {
			return WrapError(CodeExternalService, err, "failed to resolve identity")
		}

		now := time.Now()
		m.Status = StatusActive
		m.UserID = &user.ID
		m.AcceptedAt = &now
		m.InviteToken = nil
		m.InviteExpiresAt = nil

		if err := s.store.Update(ctx, tx, m); err != nil {
			return WrapError(CodeExternalService, err, "failed to accept invitation")
		}
		accepted = m
		return nil
	})

	var acceptedUserID *int64
	if accepted != nil {
		acceptedUserID = accepted.UserID
	}
	s.observeAction(ctx, "accept", accountID, acceptedUserID, err)
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// Deactivate disables an active member. Their open tasks move to
// reassignTo (or become unassigned) in the same transaction, and the
// seat stays billable until the end of the already-paid term. The
// ledger sync is best effort: its failure never reverts the change.
func (s *Service) Deactivate(ctx context.Context, actorUserID, accountID, targetUserID int64, reassignTo *int64) (*MemberResult, error) {
	var result MemberResult

	err := s.store.WithAccountLock(ctx, accountID, func(tx *sql.Tx) error {
		account, _, err := s.authorize(ctx, tx, accountID, actorUserID)
		if err != nil {
			return err
		}

		target, err := s.store.GetByUserID(ctx, tx, accountID, targetUserID)
		if err == sql.ErrNoRows {
			return NewError(CodeNotFound, "member not found")
		}
		if err != nil {
			return WrapError(CodeExternalService, err, "failed to load member")
		}
		if target.IsOwner {
			return NewError(CodeForbidden, "the account owner cannot be deactivated")
		}
		if target.Status != StatusActive {
			return NewError(CodeConflict, "member is not active")
		}

		if reassignTo != nil {
			replacement, err := s.store.GetByUserID(ctx, tx, accountID, *reassignTo)
			if err == sql.ErrNoRows {
				return NewError(CodeNotFound, "replacement assignee is not a member")
			}
			if err != nil {
				return WrapError(CodeExternalService, err, "failed to load replacement assignee")
			}
			if replacement.Status != StatusActive {
				return NewError(CodeConflict, "replacement assignee is not active")
			}
		}

		// Task handoff commits atomically with the status flip, so
		// no task ever points at a disabled member
		if _, err := s.tasks.ReassignOpen(ctx, tx, accountID, targetUserID, reassignTo); err != nil {
			return WrapError(CodeExternalService, err, "failed to reassign open tasks")
		}

		now := time.Now()
		target.Status = StatusDisabled
		target.DisabledAt = &now

		// Grace period runs to the end of the paid term. With no
		// subscription there is nothing paid, so the seat drops out
		// of the count immediately.
		periodEnd, ok, err := s.periods.Resolve(ctx, account)
		if err != nil {
			s.logger.WithError(err).WithField("account_id", accountID).
				Warn("failed to resolve billing period; skipping grace period")
			ok = false
		}
		if ok {
			target.SeatBillingEndsAt = &periodEnd
		} else {
			target.SeatBillingEndsAt = nil
		}

		if err := s.store.Update(ctx, tx, target); err != nil {
			return WrapError(CodeExternalService, err, "failed to disable member")
		}

		count, err := s.recount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		s.syncBestEffort(ctx, account, count, "deactivate")

		result = MemberResult{Membership: target, BillableSeats: count}
		return nil
	})

	s.observeAction(ctx, "deactivate", accountID, &actorUserID, err)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Reactivate re-enables a disabled member and clears their grace
// period bookkeeping. Ledger sync is best effort.
func (s *Service) Reactivate(ctx context.Context, actorUserID, accountID, targetUserID int64) (*MemberResult, error) {
	var result MemberResult

	err := s.store.WithAccountLock(ctx, accountID, func(tx *sql.Tx) error {
		account, _, err := s.authorize(ctx, tx, accountID, actorUserID)
		if err != nil {
			return err
		}

		target, err := s.store.GetByUserID(ctx, tx, accountID, targetUserID)
		if err == sql.ErrNoRows {
			return NewError(CodeNotFound, "member not found")
		}
		if err != nil {
			return WrapError(CodeExternalService, err, "failed to load member")
		}
		if target.Status != StatusDisabled {
			return NewError(CodeConflict, "member is not disabled")
		}

		target.Status = StatusActive
		target.DisabledAt = nil
		target.SeatBillingEndsAt = nil

		if err := s.store.Update(ctx, tx, target); err != nil {
			return WrapError(CodeExternalService, err, "failed to reactivate member")
		}

		count, err := s.recount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		s.syncBestEffort(ctx, account, count, "reactivate")

		result = MemberResult{Membership: target, BillableSeats: count}
		return nil
	})

	s.observeAction(ctx, "reactivate", accountID, &actorUserID, err)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Reassign transfers a seat to a new email. The old row becomes a
// terminal reassigned tombstone and a new row is created, pending or
// active depending on whether the email matches a known identity.
// One row leaves the count and one enters, so the billable total is
// unchanged; the sync still runs to heal any pre-existing drift.
func (s *Service) Reassign(ctx context.Context, actorUserID, accountID, memberID int64, newEmail string) (*MemberResult, error) {
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	if newEmail == "" {
		return nil, NewError(CodeConflict, "new email is required")
	}

	var (
		result MemberResult
		invite *notify.Invite
	)

	err := s.store.WithAccountLock(ctx, accountID, func(tx *sql.Tx) error {
		account, actor, err := s.authorize(ctx, tx, accountID, actorUserID)
		if err != nil {
			return err
		}

		target, err := s.store.GetByID(ctx, tx, accountID, memberID)
		if err == sql.ErrNoRows {
			return NewError(CodeNotFound, "member not found")
		}
		if err != nil {
			return WrapError(CodeExternalService, err, "failed to load member")
		}
		if target.IsOwner {
			return NewError(CodeForbidden, "the account owner's seat cannot be reassigned")
		}
		if target.Status == StatusReassigned {
			return NewError(CodeConflict, "seat was already reassigned")
		}

		if _, err := s.store.GetByEmail(ctx, tx, accountID, newEmail); err == nil {
			return NewError(CodeConflict, "%s is already a member of this account", newEmail)
		} else if err != sql.ErrNoRows {
			return WrapError(CodeExternalService, err, "failed to check existing membership")
		}

		// The departing member's work must not dangle
		if target.UserID != nil {
			if _, err := s.tasks.ReassignOpen(ctx, tx, accountID, *target.UserID, nil); err != nil {
				return WrapError(CodeExternalService, err, "failed to unassign open tasks")
			}
		}

		target.Status = StatusReassigned
		target.InviteToken = nil
		target.InviteExpiresAt = nil
		if err := s.store.Update(ctx, tx, target); err != nil {
			return WrapError(CodeExternalService, err, "failed to retire old seat")
		}

		now := time.Now()
		replacement := &Membership{
			AccountID: accountID,
			Email:     newEmail,
			Role:      target.Role,
			InvitedAt: now,
		}

		user, err := s.identity.LookupUserByEmail(ctx, newEmail)
		switch {
		case err == nil:
			replacement.Status = StatusActive
			replacement.UserID = &user.ID
			replacement.AcceptedAt = &now
		case errors.Is(err, auth.ErrUserNotFound):
			token, tokenErr := newInviteToken()
			if tokenErr != nil {
				return WrapError(CodeExternalService, tokenErr, "failed to generate invite token")
			}
			expires := now.Add(s.inviteTTL)
			replacement.Status = StatusPending
			replacement.InviteToken = &token
			replacement.InviteExpiresAt = &expires
			invite = &notify.Invite{
				Email:       newEmail,
				Role:        string(target.Role),
				InviterName: actor.Email,
				AccountName: account.Name,
				Token:       token,
			}
		default:
			return WrapError(CodeExternalService, err, "failed to look up identity")
		}

		if err := s.store.Insert(ctx, tx, replacement); err != nil {
			return WrapError(CodeExternalService, err, "failed to create replacement seat")
		}

		count, err := s.recount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		s.syncBestEffort(ctx, account, count, "reassign")

		result = MemberResult{Membership: replacement, BillableSeats: count}
		return nil
	})

	s.observeAction(ctx, "reassign", accountID, &actorUserID, err)
	if err != nil {
		return nil, err
	}

	if invite != nil {
		sent := *invite
		async.SafeGo(ctx, s.logger, inviteEmailTimeout, "reassign invite email", func(ctx context.Context) error {
			return s.notifier.SendInvite(ctx, sent)
		})
	}

	return &result, nil
}

// ChangeRole updates a member's role. Requires the role-management
// entitlement; the owner row is untouchable.
func (s *Service) ChangeRole(ctx context.Context, actorUserID, accountID, targetUserID int64, role Role) (*MemberResult, error) {
	if !ValidRole(role) {
		return nil, NewError(CodeConflict, "role %q is not assignable", role)
	}

	var result MemberResult

	err := s.store.WithAccountLock(ctx, accountID, func(tx *sql.Tx) error {
		_, _, err := s.authorize(ctx, tx, accountID, actorUserID)
		if err != nil {
			return err
		}

		ent, err := s.entitlements.Get(ctx, accountID)
		if err != nil {
			return WrapError(CodeExternalService, err, "failed to load entitlements")
		}
		if !ent.CanManageRoles {
			return NewError(CodeFeatureNotAvailable, "this plan does not include role management")
		}

		target, err := s.store.GetByUserID(ctx, tx, accountID, targetUserID)
		if err == sql.ErrNoRows {
			return NewError(CodeNotFound, "member not found")
		}
		if err != nil {
			return WrapError(CodeExternalService, err, "failed to load member")
		}
		if target.IsOwner {
			return NewError(CodeForbidden, "the account owner's role cannot be changed")
		}
		if target.Status != StatusActive && target.Status != StatusDisabled {
			return NewError(CodeConflict, "member's role cannot change in status %s", target.Status)
		}

		target.Role = role
		if err := s.store.Update(ctx, tx, target); err != nil {
			return WrapError(CodeExternalService, err, "failed to change role")
		}

		count, err := s.recount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		result = MemberResult{Membership: target, BillableSeats: count}
		return nil
	})

	s.observeAction(ctx, "change_role", accountID, &actorUserID, err)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// List returns all membership rows for an account plus the live
// billable seat count.
func (s *Service) List(ctx context.Context, actorUserID, accountID int64) (*ListResult, error) {
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, NewError(CodeNotFound, "account %d not found", accountID)
		}
		return nil, WrapError(CodeExternalService, err, "failed to load account")
	}

	caller, err := s.store.GetByUserID(ctx, nil, accountID, actorUserID)
	if err == sql.ErrNoRows {
		return nil, NewError(CodeForbidden, "caller is not a member of this account")
	}
	if err != nil {
		return nil, WrapError(CodeExternalService, err, "failed to load caller membership")
	}
	if caller.Status != StatusActive {
		return nil, NewError(CodeForbidden, "caller's membership is not active")
	}

	rows, err := s.store.ListByAccount(ctx, nil, accountID)
	if err != nil {
		return nil, WrapError(CodeExternalService, err, "failed to list members")
	}
	return &ListResult{
		Members:       rows,
		BillableSeats: BillableSeats(rows, time.Now()),
	}, nil
}

// CountAssignedTasks returns how many open tasks a member holds,
// typically shown before a deactivation so the caller can pick a
// replacement assignee.
func (s *Service) CountAssignedTasks(ctx context.Context, actorUserID, accountID, targetUserID int64) (int64, error) {
	if _, _, err := s.authorize(ctx, nil, accountID, actorUserID); err != nil {
		return 0, err
	}
	count, err := s.tasks.CountAssigned(ctx, accountID, targetUserID)
	if err != nil {
		return 0, WrapError(CodeExternalService, err, "failed to count assigned tasks")
	}
	return count, nil
}

// ForceResync recomputes the billable seat count and re-applies it to
// the ledger. Idempotent; the operator remedy for drift left behind
// by best-effort syncs.
func (s *Service) ForceResync(ctx context.Context, actorUserID, accountID int64) (int64, error) {
	var count int64

	err := s.store.WithAccountLock(ctx, accountID, func(tx *sql.Tx) error {
		account, _, err := s.authorize(ctx, tx, accountID, actorUserID)
		if err != nil {
			return err
		}

		count, err = s.recount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		if err := s.sync.Sync(ctx, account, count, "resync"); err != nil {
			return WrapError(CodeExternalService, err, "resync failed")
		}
		if s.metrics != nil {
			s.metrics.SetBillableSeats(accountID, count)
		}
		return nil
	})

	s.observeAction(ctx, "resync", accountID, &actorUserID, err)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ResyncAccount re-applies the seat count for one account without an
// acting user. Used by background jobs.
func (s *Service) ResyncAccount(ctx context.Context, accountID int64) error {
	return s.store.WithAccountLock(ctx, accountID, func(tx *sql.Tx) error {
		account, err := s.accounts.Get(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to load account: %w", err)
		}

		count, err := s.recount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		if err := s.sync.Sync(ctx, account, count, "scheduled_resync"); err != nil {
			return fmt.Errorf("scheduled resync failed: %w", err)
		}
		if s.metrics != nil {
			s.metrics.SetBillableSeats(accountID, count)
		}
		return nil
	})
}

// CleanupExpiredInvites removes lapsed pending invites and resyncs
// the accounts they were counted against.
func (s *Service) CleanupExpiredInvites(ctx context.Context) (int, error) {
	accountIDs, err := s.store.DeleteExpiredInvites(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range accountIDs {
		if err := s.ResyncAccount(ctx, id); err != nil {
			s.logger.WithError(err).WithField("account_id", id).
				Warn("failed to resync after invite cleanup")
		}
	}
	return len(accountIDs), nil
}

// observeAction records the audit trail and metrics for a membership
// action.
func (s *Service) observeAction(ctx context.Context, action string, accountID int64, actorUserID *int64, err error) {
	if s.metrics != nil {
		s.metrics.ObserveMembershipAction(action, err)
	}

	eventType := map[string]audit.EventType{
		"invite":      audit.EventTypeMemberInvite,
		"accept":      audit.EventTypeMemberInviteAccept,
		"deactivate":  audit.EventTypeMemberDeactivate,
		"reactivate":  audit.EventTypeMemberReactivate,
		"reassign":    audit.EventTypeMemberReassign,
		"change_role": audit.EventTypeMemberRoleChange,
		"resync":      audit.EventTypeSeatSyncResync,
	}[action]
	if eventType == "" {
		return
	}

	status := audit.EventStatusSuccess
	message := action + " succeeded"
	if err != nil {
		status = audit.EventStatusFailure
		message = err.Error()
		var structured *Error
		if errors.As(err, &structured) &&
			(structured.Code == CodeForbidden || structured.Code == CodeFeatureNotAvailable) {
			status = audit.EventStatusDenied
		}
	}

	event := audit.NewMembershipEvent(eventType, status, accountID, actorUserID, message)
	if logErr := s.auditor.Log(context.WithoutCancel(ctx), event); logErr != nil {
		s.logger.WithError(logErr).Warn("failed to write membership audit record")
	}
}

// newInviteToken returns a 128-bit random token in hex
func newInviteToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invite token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
