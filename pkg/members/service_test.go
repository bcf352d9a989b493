package members

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatsync/seatsync/pkg/accounts"
	"github.com/seatsync/seatsync/pkg/audit"
	"github.com/seatsync/seatsync/pkg/auth"
	"github.com/seatsync/seatsync/pkg/billing"
	"github.com/seatsync/seatsync/pkg/entitlements"
	"github.com/seatsync/seatsync/pkg/notify"
	"github.com/seatsync/seatsync/pkg/observability"
	"github.com/seatsync/seatsync/pkg/tasks"
)

// fakeStore is an in-memory Store. WithAccountLock serializes callers
// and rolls its mutations back when fn fails, mirroring the
// transactional store.
type fakeStore struct {
	lockMu sync.Mutex
	rows   []*Membership
	nextID int64
}

func (f *fakeStore) snapshot() []*Membership {
	out := make([]*Membership, len(f.rows))
	for i, m := range f.rows {
		clone := *m
		out[i] = &clone
	}
	return out
}

func (f *fakeStore) WithAccountLock(ctx context.Context, accountID int64, fn func(tx *sql.Tx) error) error {
	f.lockMu.Lock()
	defer f.lockMu.Unlock()
	before := f.snapshot()
	if err := fn(nil); err != nil {
		f.rows = before
		return err
	}
	return nil
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	f.lockMu.Lock()
	defer f.lockMu.Unlock()
	before := f.snapshot()
	if err := fn(nil); err != nil {
		f.rows = before
		return err
	}
	return nil
}

func (f *fakeStore) Insert(ctx context.Context, q Querier, m *Membership) error {
	f.nextID++
	m.ID = f.nextID
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	clone := *m
	f.rows = append(f.rows, &clone)
	return nil
}

func (f *fakeStore) Update(ctx context.Context, q Querier, m *Membership) error {
	for i, row := range f.rows {
		if row.ID == m.ID {
			clone := *m
			f.rows[i] = &clone
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) GetByID(ctx context.Context, q Querier, accountID, id int64) (*Membership, error) {
	for _, row := range f.rows {
		if row.AccountID == accountID && row.ID == id {
			clone := *row
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) GetByUserID(ctx context.Context, q Querier, accountID, userID int64) (*Membership, error) {
	for _, row := range f.rows {
		if row.AccountID == accountID && row.UserID != nil && *row.UserID == userID && row.Status != StatusReassigned {
			clone := *row
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) GetByEmail(ctx context.Context, q Querier, accountID int64, email string) (*Membership, error) {
	for _, row := range f.rows {
		if row.AccountID == accountID && strings.EqualFold(row.Email, email) && row.Status != StatusReassigned {
			clone := *row
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) GetByTokenForUpdate(ctx context.Context, tx *sql.Tx, token string) (*Membership, error) {
	for _, row := range f.rows {
		if row.InviteToken != nil && *row.InviteToken == token && row.Status == StatusPending {
			clone := *row
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) ListByAccount(ctx context.Context, q Querier, accountID int64) ([]*Membership, error) {
	var out []*Membership
	for _, row := range f.rows {
		if row.AccountID == accountID {
			clone := *row
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeStore) CountTeam(ctx context.Context, q Querier, accountID int64) (int64, error) {
	var n int64
	for _, row := range f.rows {
		if row.AccountID == accountID && !row.IsOwner && row.Status != StatusReassigned {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteExpiredInvites(ctx context.Context) ([]int64, error) {
	now := time.Now()
	seen := make(map[int64]bool)
	var touched []int64
	var kept []*Membership
	for _, row := range f.rows {
		if row.Status == StatusPending && row.InviteExpiresAt != nil && row.InviteExpiresAt.Before(now) {
			if !seen[row.AccountID] {
				seen[row.AccountID] = true
				touched = append(touched, row.AccountID)
			}
			continue
		}
		kept = append(kept, row)
	}
	f.rows = kept
	return touched, nil
}

// fakeAccounts serves one account
type fakeAccounts struct {
	account *accounts.Account
}

func (f *fakeAccounts) Get(ctx context.Context, id int64) (*accounts.Account, error) {
	if f.account == nil || f.account.ID != id {
		return nil, accounts.ErrNotFound
	}
	clone := *f.account
	return &clone, nil
}

func (f *fakeAccounts) UpdatePeriodEnd(ctx context.Context, id int64, periodEnd time.Time) error {
	return nil
}

func (f *fakeAccounts) ListSubscribed(ctx context.Context) ([]int64, error) {
	if f.account != nil && f.account.HasSubscription() {
		return []int64{f.account.ID}, nil
	}
	return nil, nil
}

// fakeEntitlements returns a fixed entitlement set
type fakeEntitlements struct {
	ent *entitlements.Entitlements
}

func (f *fakeEntitlements) Get(ctx context.Context, accountID int64) (*entitlements.Entitlements, error) {
	return f.ent, nil
}

// fakeIdentity resolves users by email
type fakeIdentity struct {
	mu     sync.Mutex
	users  map[string]*auth.User
	nextID int64
}

func newFakeIdentity(users ...*auth.User) *fakeIdentity {
	f := &fakeIdentity{users: make(map[string]*auth.User), nextID: 100}
	for _, u := range users {
		f.users[strings.ToLower(u.Email)] = u
	}
	return f
}

func (f *fakeIdentity) Authenticate(ctx context.Context, token string) (*auth.AuthContext, error) {
	return nil, auth.ErrInvalidToken
}

func (f *fakeIdentity) LookupUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, auth.ErrUserNotFound
}

func (f *fakeIdentity) EnsureUser(ctx context.Context, email, fullName string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(email)
	if u, ok := f.users[key]; ok {
		return u, nil
	}
	f.nextID++
	u := &auth.User{ID: f.nextID, Email: key, FullName: fullName, IsActive: true}
	f.users[key] = u
	return u, nil
}

func (f *fakeIdentity) CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*auth.APIToken, string, error) {
	return nil, "", nil
}

// fakeTasks records reassignments
type fakeTasks struct {
	mu       sync.Mutex
	open     map[int64]int64 // userID -> open task count
	handoffs []taskHandoff
}

type taskHandoff struct {
	from int64
	to   *int64
}

func (f *fakeTasks) CountAssigned(ctx context.Context, accountID, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[userID], nil
}

func (f *fakeTasks) ReassignOpen(ctx context.Context, q tasks.Querier, accountID, fromUserID int64, toUserID *int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handoffs = append(f.handoffs, taskHandoff{from: fromUserID, to: toUserID})
	moved := f.open[fromUserID]
	if f.open == nil {
		f.open = make(map[int64]int64)
	}
	f.open[fromUserID] = 0
	if toUserID != nil {
		f.open[*toUserID] += moved
	}
	return moved, nil
}

// fakeNotifier records sent invites
type fakeNotifier struct {
	mu      sync.Mutex
	invites []notify.Invite
}

func (f *fakeNotifier) SendInvite(ctx context.Context, invite notify.Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites = append(f.invites, invite)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invites)
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *recordingAuditor) Log(ctx context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAuditor) Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.Event, error) {
	return nil, nil
}

func (r *recordingAuditor) last() *audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

var testPrices = billing.PriceConfig{
	MonthlyPriceID: "price_monthly",
	AnnualPriceID:  "price_annual",
}

type fixture struct {
	service  *Service
	store    *fakeStore
	account  *accounts.Account
	accounts *fakeAccounts
	ledger   *billing.MemoryLedger
	identity *fakeIdentity
	tasks    *fakeTasks
	notifier *fakeNotifier
	ents     *fakeEntitlements
	auditor  *recordingAuditor
}

const (
	ownerUserID  int64 = 1
	memberUserID int64 = 2
	thirdUserID  int64 = 3
)

// newFixture seeds account 1 with an owner and two active members,
// mirrored by a subscription with seat quantity 2.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	periodEnd := time.Now().Add(15 * 24 * time.Hour)
	subID := "sub_1"
	account := &accounts.Account{
		ID:                   1,
		Name:                 "acme",
		OwnerUserID:          ownerUserID,
		Plan:                 accounts.PlanTeam,
		BillingInterval:      accounts.IntervalMonthly,
		LedgerSubscriptionID: &subID,
		CurrentPeriodEnd:     &periodEnd,
	}

	ledger := billing.NewMemoryLedger()
	ledger.AddSubscription(&billing.Subscription{ID: subID, Status: "active", Items: []billing.LineItem{
		{ID: "si_seat", PriceID: "price_monthly", Quantity: 2, CurrentPeriodEnd: periodEnd},
	}})

	owner := ownerUserID
	second := memberUserID
	third := thirdUserID
	now := time.Now()
	store := &fakeStore{nextID: 10, rows: []*Membership{
		{ID: 1, AccountID: 1, UserID: &owner, Email: "owner@acme.test", Role: RoleOwner, Status: StatusActive, IsOwner: true, InvitedAt: now, AcceptedAt: &now},
		{ID: 2, AccountID: 1, UserID: &second, Email: "two@acme.test", Role: RoleAdmin, Status: StatusActive, InvitedAt: now, AcceptedAt: &now},
		{ID: 3, AccountID: 1, UserID: &third, Email: "three@acme.test", Role: RoleMember, Status: StatusActive, InvitedAt: now, AcceptedAt: &now},
	}}

	accountStore := &fakeAccounts{account: account}
	identity := newFakeIdentity(
		&auth.User{ID: ownerUserID, Email: "owner@acme.test", IsActive: true},
		&auth.User{ID: memberUserID, Email: "two@acme.test", IsActive: true},
		&auth.User{ID: thirdUserID, Email: "three@acme.test", IsActive: true},
	)
	taskStore := &fakeTasks{open: make(map[int64]int64)}
	notifier := &fakeNotifier{}
	ents := &fakeEntitlements{ent: &entitlements.Entitlements{
		CanHaveTeamUsers: true,
		CanManageRoles:   true,
		MaxInvitedUsers:  25,
	}}

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	synchronizer := billing.NewSynchronizer(ledger, testPrices, audit.NopLogger{}, logger, nil, time.Second)
	auditor := &recordingAuditor{}

	service := NewService(ServiceConfig{
		Store:        store,
		Accounts:     accountStore,
		Entitlements: ents,
		Identity:     identity,
		Tasks:        taskStore,
		Synchronizer: synchronizer,
		Periods:      billing.NewPeriodResolver(accountStore, ledger, logger),
		Notifier:     notifier,
		Auditor:      auditor,
		Logger:       logger,
		InviteTTL:    7 * 24 * time.Hour,
	})

	return &fixture{
		service:  service,
		store:    store,
		account:  account,
		accounts: accountStore,
		ledger:   ledger,
		identity: identity,
		tasks:    taskStore,
		notifier: notifier,
		ents:     ents,
		auditor:  auditor,
	}
}

func requireCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, CodeOf(err))
}

func TestInvite(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email becomes pending and charges a seat", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.service.Invite(ctx, ownerUserID, 1, "x@y.com", RoleMember)
		require.NoError(t, err)

		assert.Equal(t, StatusPending, result.Membership.Status)
		assert.Nil(t, result.Membership.UserID)
		assert.NotNil(t, result.Membership.InviteToken)
		assert.Equal(t, int64(3), result.BillableSeats)
		assert.Equal(t, int64(3), f.ledger.SeatQuantity("sub_1", testPrices))

		require.Eventually(t, func() bool { return f.notifier.count() == 1 },
			time.Second, 10*time.Millisecond, "invite email should be dispatched")
	})

	t.Run("known identity joins active immediately", func(t *testing.T) {
		f := newFixture(t)
		f.identity.users["new@acme.test"] = &auth.User{ID: 42, Email: "new@acme.test", IsActive: true}

		result, err := f.service.Invite(ctx, ownerUserID, 1, "new@acme.test", RoleViewer)
		require.NoError(t, err)

		assert.Equal(t, StatusActive, result.Membership.Status)
		require.NotNil(t, result.Membership.UserID)
		assert.Equal(t, int64(42), *result.Membership.UserID)
		assert.NotNil(t, result.Membership.AcceptedAt)
		assert.Nil(t, result.Membership.InviteToken)
		assert.Equal(t, int64(3), result.BillableSeats)
		assert.Zero(t, f.notifier.count(), "no email for an instant join")
	})

	t.Run("declined charge rolls the invite back", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.FailUpdate = billing.ErrPaymentDeclined

		_, err := f.service.Invite(ctx, ownerUserID, 1, "x@y.com", RoleMember)
		requireCode(t, err, CodePaymentRequired)

		_, lookupErr := f.store.GetByEmail(ctx, nil, 1, "x@y.com")
		assert.Equal(t, sql.ErrNoRows, lookupErr, "rolled-back invite must not exist")
		assert.Equal(t, int64(2), f.ledger.SeatQuantity("sub_1", testPrices))

		rows, _ := f.store.ListByAccount(ctx, nil, 1)
		assert.Equal(t, int64(2), BillableSeats(rows, time.Now()))
	})

	t.Run("unreachable ledger also rolls the invite back", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.FailUpdate = billing.ErrLedgerUnavailable

		_, err := f.service.Invite(ctx, ownerUserID, 1, "x@y.com", RoleMember)
		requireCode(t, err, CodeExternalService)

		_, lookupErr := f.store.GetByEmail(ctx, nil, 1, "x@y.com")
		assert.Equal(t, sql.ErrNoRows, lookupErr)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Invite(ctx, ownerUserID, 1, "Three@acme.test", RoleMember)
		requireCode(t, err, CodeConflict)
	})

	t.Run("plan cap returns team limit reached", func(t *testing.T) {
		f := newFixture(t)
		f.ents.ent.MaxInvitedUsers = 2 // already at 2 non-owner members

		_, err := f.service.Invite(ctx, ownerUserID, 1, "x@y.com", RoleMember)
		requireCode(t, err, CodeTeamLimitReached)
	})

	t.Run("plan without team users is forbidden", func(t *testing.T) {
		f := newFixture(t)
		f.ents.ent.CanHaveTeamUsers = false

		_, err := f.service.Invite(ctx, ownerUserID, 1, "x@y.com", RoleMember)
		requireCode(t, err, CodeFeatureNotAvailable)
	})

	t.Run("plain member may not invite", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Invite(ctx, thirdUserID, 1, "x@y.com", RoleMember)
		requireCode(t, err, CodeForbidden)
	})

	t.Run("unknown account not found", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Invite(ctx, ownerUserID, 99, "x@y.com", RoleMember)
		requireCode(t, err, CodeNotFound)
	})

	t.Run("concurrent invites both land", func(t *testing.T) {
		f := newFixture(t)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, email := range []string{"a@y.com", "b@y.com"} {
			wg.Add(1)
			go func(i int, email string) {
				defer wg.Done()
				_, errs[i] = f.service.Invite(ctx, ownerUserID, 1, email, RoleMember)
			}(i, email)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Equal(t, int64(4), f.ledger.SeatQuantity("sub_1", testPrices),
			"both seats must be charged, never previous+1")
	})
}

func TestAcceptInvite(t *testing.T) {
	ctx := context.Background()

	t.Run("binds identity without touching the ledger", func(t *testing.T) {
		f := newFixture(t)

		invited, err := f.service.Invite(ctx, ownerUserID, 1, "x@y.com", RoleMember)
		require.NoError(t, err)
		token := *invited.Membership.InviteToken
		createCalls := f.ledger.Calls["create"]
		updateCalls := f.ledger.Calls["update"]

		accepted, err := f.service.AcceptInvite(ctx, token, "Xavier Y")
		require.NoError(t, err)

		assert.Equal(t, StatusActive, accepted.Status)
		require.NotNil(t, accepted.UserID)
		assert.NotNil(t, accepted.AcceptedAt)
		assert.Nil(t, accepted.InviteToken)

		// Seat was charged at invite time; acceptance is free
		assert.Equal(t, createCalls, f.ledger.Calls["create"])
		assert.Equal(t, updateCalls, f.ledger.Calls["update"])
		assert.Equal(t, int64(3), f.ledger.SeatQuantity("sub_1", testPrices))
	})

	t.Run("expired token not found", func(t *testing.T) {
		f := newFixture(t)

		invited, err := f.service.Invite(ctx, ownerUserID, 1, "x@y.com", RoleMember)
		require.NoError(t, err)

		row, err := f.store.GetByEmail(ctx, nil, 1, "x@y.com")
		require.NoError(t, err)
		expired := time.Now().Add(-time.Hour)
		row.InviteExpiresAt = &expired
		require.NoError(t, f.store.Update(ctx, nil, row))

		_, err = f.service.AcceptInvite(ctx, *invited.Membership.InviteToken, "")
		requireCode(t, err, CodeNotFound)
	})

	t.Run("unknown token not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.AcceptInvite(ctx, "bogus", "")
		requireCode(t, err, CodeNotFound)
	})

	t.Run("failed accept reaches the audit trail", func(t *testing.T) {
		f := newFixture(t)

		invited, err := f.service.Invite(ctx, ownerUserID, 1, "x@y.com", RoleMember)
		require.NoError(t, err)

		row, err := f.store.GetByEmail(ctx, nil, 1, "x@y.com")
		require.NoError(t, err)
		expired := time.Now().Add(-time.Hour)
		row.InviteExpiresAt = &expired
		require.NoError(t, f.store.Update(ctx, nil, row))

		_, err = f.service.AcceptInvite(ctx, *invited.Membership.InviteToken, "")
		requireCode(t, err, CodeNotFound)

		event := f.auditor.last()
		require.NotNil(t, event)
		assert.Equal(t, audit.EventTypeMemberInviteAccept, event.EventType)
		assert.Equal(t, audit.EventStatusFailure, event.Status)
		require.NotNil(t, event.AccountID)
		assert.Equal(t, int64(1), *event.AccountID)
	})
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps seat billable through the paid term", func(t *testing.T) {
		f := newFixture(t)
		f.tasks.open[thirdUserID] = 4
		replacement := memberUserID

		result, err := f.service.Deactivate(ctx, ownerUserID, 1, thirdUserID, &replacement)
		require.NoError(t, err)

		assert.Equal(t, StatusDisabled, result.Membership.Status)
		require.NotNil(t, result.Membership.SeatBillingEndsAt)
		assert.True(t, result.Membership.SeatBillingEndsAt.Equal(*f.account.CurrentPeriodEnd))
		assert.Equal(t, int64(2), result.BillableSeats, "grace period keeps the seat billable")
		assert.Equal(t, int64(2), f.ledger.SeatQuantity("sub_1", testPrices))

		require.Len(t, f.tasks.handoffs, 1)
		assert.Equal(t, thirdUserID, f.tasks.handoffs[0].from)
		require.NotNil(t, f.tasks.handoffs[0].to)
		assert.Equal(t, replacement, *f.tasks.handoffs[0].to)
		assert.Equal(t, int64(4), f.tasks.open[replacement])
	})

	t.Run("no subscription means no grace period", func(t *testing.T) {
		f := newFixture(t)
		f.account.LedgerSubscriptionID = nil
		f.account.CurrentPeriodEnd = nil
		f.accounts.account = f.account

		result, err := f.service.Deactivate(ctx, ownerUserID, 1, thirdUserID, nil)
		require.NoError(t, err)

		assert.Nil(t, result.Membership.SeatBillingEndsAt)
		assert.Equal(t, int64(1), result.BillableSeats, "seat drops out immediately")

		// Tasks were cleared to unassigned
		require.Len(t, f.tasks.handoffs, 1)
		assert.Nil(t, f.tasks.handoffs[0].to)
	})

	t.Run("ledger failure does not revert the change", func(t *testing.T) {
		f := newFixture(t)
		// Stale row cache plus an unreachable ledger: no grace period
		// can be resolved, the seat leaves the count, and the shrink
		// cannot be applied
		past := time.Now().Add(-time.Hour)
		f.account.CurrentPeriodEnd = &past
		f.accounts.account = f.account
		f.ledger.FailGet = billing.ErrLedgerUnavailable

		result, err := f.service.Deactivate(ctx, ownerUserID, 1, thirdUserID, nil)
		require.NoError(t, err, "deactivation succeeds despite the sync failure")

		assert.Equal(t, StatusDisabled, result.Membership.Status)
		assert.Equal(t, int64(1), result.BillableSeats)
		// Drift remains until resync
		assert.Equal(t, int64(2), f.ledger.SeatQuantity("sub_1", testPrices))

		// Resync heals it
		f.ledger.FailGet = nil
		count, err := f.service.ForceResync(ctx, ownerUserID, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.Equal(t, int64(1), f.ledger.SeatQuantity("sub_1", testPrices))
	})

	t.Run("owner cannot be deactivated", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Deactivate(ctx, memberUserID, 1, ownerUserID, nil)
		requireCode(t, err, CodeForbidden)
	})

	t.Run("missing member not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Deactivate(ctx, ownerUserID, 1, 77, nil)
		requireCode(t, err, CodeNotFound)
	})

	t.Run("already disabled conflicts", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Deactivate(ctx, ownerUserID, 1, thirdUserID, nil)
		require.NoError(t, err)
		_, err = f.service.Deactivate(ctx, ownerUserID, 1, thirdUserID, nil)
		requireCode(t, err, CodeConflict)
	})
}

func TestReactivate(t *testing.T) {
	ctx := context.Background()

	t.Run("clears grace period bookkeeping", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Deactivate(ctx, ownerUserID, 1, thirdUserID, nil)
		require.NoError(t, err)

		result, err := f.service.Reactivate(ctx, ownerUserID, 1, thirdUserID)
		require.NoError(t, err)

		assert.Equal(t, StatusActive, result.Membership.Status)
		assert.Nil(t, result.Membership.DisabledAt)
		assert.Nil(t, result.Membership.SeatBillingEndsAt)
		assert.Equal(t, int64(2), result.BillableSeats)
		assert.Equal(t, int64(2), f.ledger.SeatQuantity("sub_1", testPrices))
	})

	t.Run("active member conflicts", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Reactivate(ctx, ownerUserID, 1, thirdUserID)
		requireCode(t, err, CodeConflict)
	})
}

func TestReassign(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves the billable count", func(t *testing.T) {
		f := newFixture(t)
		f.tasks.open[thirdUserID] = 2

		before, _ := f.store.ListByAccount(ctx, nil, 1)
		countBefore := BillableSeats(before, time.Now())

		result, err := f.service.Reassign(ctx, ownerUserID, 1, 3, "fresh@y.com")
		require.NoError(t, err)

		assert.Equal(t, StatusPending, result.Membership.Status)
		assert.Equal(t, "fresh@y.com", result.Membership.Email)
		assert.Equal(t, RoleMember, result.Membership.Role, "role carries over")
		assert.Equal(t, countBefore, result.BillableSeats)
		assert.Equal(t, int64(2), f.ledger.SeatQuantity("sub_1", testPrices))

		// Old row is a terminal tombstone, still present
		old, err := f.store.GetByID(ctx, nil, 1, 3)
		require.NoError(t, err)
		assert.Equal(t, StatusReassigned, old.Status)

		// Departing member's tasks were unassigned
		require.Len(t, f.tasks.handoffs, 1)
		assert.Nil(t, f.tasks.handoffs[0].to)

		require.Eventually(t, func() bool { return f.notifier.count() == 1 },
			time.Second, 10*time.Millisecond)
	})

	t.Run("known identity joins active", func(t *testing.T) {
		f := newFixture(t)
		f.identity.users["known@y.com"] = &auth.User{ID: 55, Email: "known@y.com", IsActive: true}

		result, err := f.service.Reassign(ctx, ownerUserID, 1, 3, "known@y.com")
		require.NoError(t, err)
		assert.Equal(t, StatusActive, result.Membership.Status)
		require.NotNil(t, result.Membership.UserID)
		assert.Equal(t, int64(55), *result.Membership.UserID)
	})

	t.Run("existing member email conflicts", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Reassign(ctx, ownerUserID, 1, 3, "two@acme.test")
		requireCode(t, err, CodeConflict)
	})

	t.Run("owner seat cannot be reassigned", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Reassign(ctx, memberUserID, 1, 1, "x@y.com")
		requireCode(t, err, CodeForbidden)
	})

	t.Run("tombstone cannot be reassigned again", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Reassign(ctx, ownerUserID, 1, 3, "fresh@y.com")
		require.NoError(t, err)
		_, err = f.service.Reassign(ctx, ownerUserID, 1, 3, "again@y.com")
		requireCode(t, err, CodeConflict)
	})
}

func TestChangeRole(t *testing.T) {
	ctx := context.Background()

	t.Run("updates the role", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.service.ChangeRole(ctx, ownerUserID, 1, thirdUserID, RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, result.Membership.Role)
		assert.Equal(t, StatusActive, result.Membership.Status)
	})

	t.Run("requires the role management entitlement", func(t *testing.T) {
		f := newFixture(t)
		f.ents.ent.CanManageRoles = false

		_, err := f.service.ChangeRole(ctx, ownerUserID, 1, thirdUserID, RoleAdmin)
		requireCode(t, err, CodeFeatureNotAvailable)
	})

	t.Run("owner role is untouchable", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.ChangeRole(ctx, memberUserID, 1, ownerUserID, RoleViewer)
		requireCode(t, err, CodeForbidden)
	})

	t.Run("owner role name not assignable", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.ChangeRole(ctx, ownerUserID, 1, thirdUserID, RoleOwner)
		requireCode(t, err, CodeConflict)
	})
}

func TestForceResync(t *testing.T) {
	ctx := context.Background()

	t.Run("repairs drift and is idempotent", func(t *testing.T) {
		f := newFixture(t)

		// Simulate drift: ledger says 5, membership says 2
		require.NoError(t, f.ledger.UpdateLineItemQuantity(ctx, "si_seat", 5))
		f.ledger.Calls = map[string]int{}

		count, err := f.service.ForceResync(ctx, ownerUserID, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
		assert.Equal(t, int64(2), f.ledger.SeatQuantity("sub_1", testPrices))

		mutations := f.ledger.Calls["update"] + f.ledger.Calls["create"] + f.ledger.Calls["delete"]
		assert.Equal(t, 1, mutations)

		// Second run changes nothing
		_, err = f.service.ForceResync(ctx, ownerUserID, 1)
		require.NoError(t, err)
		assert.Equal(t, mutations, f.ledger.Calls["update"]+f.ledger.Calls["create"]+f.ledger.Calls["delete"])
	})

	t.Run("requires management rights", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.ForceResync(ctx, thirdUserID, 1)
		requireCode(t, err, CodeForbidden)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()

	t.Run("returns members with live count", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.service.List(ctx, thirdUserID, 1)
		require.NoError(t, err)
		assert.Len(t, result.Members, 3)
		assert.Equal(t, int64(2), result.BillableSeats)
	})

	t.Run("non-member forbidden", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.List(ctx, 99, 1)
		requireCode(t, err, CodeForbidden)
	})
}

func TestCleanupExpiredInvites(t *testing.T) {
	ctx := context.Background()

	t.Run("removes lapsed invites and resyncs", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Invite(ctx, ownerUserID, 1, "x@y.com", RoleMember)
		require.NoError(t, err)
		require.Equal(t, int64(3), f.ledger.SeatQuantity("sub_1", testPrices))

		row, err := f.store.GetByEmail(ctx, nil, 1, "x@y.com")
		require.NoError(t, err)
		expired := time.Now().Add(-time.Minute)
		row.InviteExpiresAt = &expired
		require.NoError(t, f.store.Update(ctx, nil, row))

		touched, err := f.service.CleanupExpiredInvites(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, touched)
		assert.Equal(t, int64(2), f.ledger.SeatQuantity("sub_1", testPrices),
			"cleanup stops billing the lapsed invite")
	})
}
