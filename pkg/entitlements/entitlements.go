// Package entitlements resolves the feature limits an account's plan
// grants: whether team members are allowed at all, whether roles can
// be managed, and how many users may be invited.
package entitlements

import (
	"context"
	"fmt"

	"github.com/seatsync/seatsync/pkg/accounts"
)

// Entitlements are the plan-derived limits for a single account
type Entitlements struct {
	CanHaveTeamUsers bool `json:"can_have_team_users"`
	CanManageRoles   bool `json:"can_manage_roles"`
	// MaxInvitedUsers caps the number of non-owner memberships that
	// count against the plan. Zero means unlimited.
	MaxInvitedUsers int `json:"max_invited_users"`
}

// Service resolves entitlements for an account
type Service interface {
	Get(ctx context.Context, accountID int64) (*Entitlements, error)
}

// PlanService derives entitlements from the account's plan. Limits are
// static per plan tier.
type PlanService struct {
	accounts accounts.Store
}

// NewPlanService creates a plan-based entitlement service
func NewPlanService(store accounts.Store) *PlanService {
	return &PlanService{accounts: store}
}

// Get resolves entitlements for an account
func (s *PlanService) Get(ctx context.Context, accountID int64) (*Entitlements, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account for entitlements: %w", err)
	}
	return ForPlan(account.Plan), nil
}

// ForPlan returns the static entitlements for a plan tier
func ForPlan(plan accounts.Plan) *Entitlements {
	switch plan {
	case accounts.PlanStarter:
		return &Entitlements{
			CanHaveTeamUsers: true,
			CanManageRoles:   false,
			MaxInvitedUsers:  3,
		}
	case accounts.PlanTeam:
		return &Entitlements{
			CanHaveTeamUsers: true,
			CanManageRoles:   true,
			MaxInvitedUsers:  25,
		}
	case accounts.PlanEnterprise:
		return &Entitlements{
			CanHaveTeamUsers: true,
			CanManageRoles:   true,
			MaxInvitedUsers:  0, // unlimited
		}
	default:
		// Free plan: the owner works alone
		return &Entitlements{}
	}
}
