package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/seatsync/seatsync/pkg/httputil"
	"github.com/seatsync/seatsync/pkg/members"
	"github.com/seatsync/seatsync/pkg/middleware"
)

// MemberHandlers handles membership HTTP requests
type MemberHandlers struct {
	service *members.Service
}

// NewMemberHandlers creates a new MemberHandlers
func NewMemberHandlers(service *members.Service) *MemberHandlers {
	return &MemberHandlers{service: service}
}

// RegisterRoutes registers authenticated membership routes
func (h *MemberHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/accounts/{account_id}/members", h.Invite).Methods("POST")
	router.HandleFunc("/accounts/{account_id}/members", h.List).Methods("GET")
	router.HandleFunc("/accounts/{account_id}/members/{user_id}", h.Deactivate).Methods("DELETE")
	router.HandleFunc("/accounts/{account_id}/members/{user_id}/reactivate", h.Reactivate).Methods("POST")
	router.HandleFunc("/accounts/{account_id}/members/{member_id}/reassign", h.Reassign).Methods("POST")
	router.HandleFunc("/accounts/{account_id}/members/{user_id}/role", h.ChangeRole).Methods("PUT")
	router.HandleFunc("/accounts/{account_id}/members/{user_id}/tasks/count", h.CountAssignedTasks).Methods("GET")
	router.HandleFunc("/accounts/{account_id}/billing/resync", h.ForceResync).Methods("POST")
}

// RegisterPublicRoutes registers routes reachable without a bearer
// token. Invite acceptance authenticates by token possession.
func (h *MemberHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/invitations/{token}/accept", h.AcceptInvite).Methods("POST")
}

// actorID extracts the authenticated user's id, writing 401 when the
// request somehow lacks one.
func actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteErrorCode(w, http.StatusUnauthorized, string(members.CodeUnauthorized), "authentication required")
		return 0, false
	}
	return authCtx.User.ID, true
}

// Invite creates a membership for an email address
func (h *MemberHandlers) Invite(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "account_id")
	if !ok {
		return
	}

	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	result, err := h.service.Invite(r.Context(), actor, accountID, req.Email, members.Role(req.Role))
	if err != nil {
		writeMemberError(w, err)
		return
	}
	httputil.WriteCreated(w, result)
}

// List returns an account's members and live billable seat count
func (h *MemberHandlers) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "account_id")
	if !ok {
		return
	}

	result, err := h.service.List(r.Context(), actor, accountID)
	if err != nil {
		writeMemberError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// AcceptInvite redeems an invite token
func (h *MemberHandlers) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	var req struct {
		FullName string `json:"full_name"`
	}
	// Body is optional; an empty one just omits the display name
	_ = httputil.ParseJSON(r, &req)

	membership, err := h.service.AcceptInvite(r.Context(), token, req.FullName)
	if err != nil {
		writeMemberError(w, err)
		return
	}
	httputil.WriteSuccess(w, membership)
}

// Deactivate disables a member, optionally handing their open tasks
// to ?reassign_to=<user_id>
func (h *MemberHandlers) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "account_id")
	if !ok {
		return
	}
	targetUserID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var reassignTo *int64
	if raw := r.URL.Query().Get("reassign_to"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteBadRequest(w, "reassign_to must be a user id")
			return
		}
		reassignTo = &id
	}

	result, err := h.service.Deactivate(r.Context(), actor, accountID, targetUserID, reassignTo)
	if err != nil {
		writeMemberError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// Reactivate re-enables a disabled member
func (h *MemberHandlers) Reactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "account_id")
	if !ok {
		return
	}
	targetUserID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	result, err := h.service.Reactivate(r.Context(), actor, accountID, targetUserID)
	if err != nil {
		writeMemberError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// Reassign transfers a seat to a new email
func (h *MemberHandlers) Reassign(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "account_id")
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "member_id")
	if !ok {
		return
	}

	var req struct {
		NewEmail string `json:"new_email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.NewEmail, "new_email") {
		return
	}

	result, err := h.service.Reassign(r.Context(), actor, accountID, memberID, req.NewEmail)
	if err != nil {
		writeMemberError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// ChangeRole updates a member's role
func (h *MemberHandlers) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "account_id")
	if !ok {
		return
	}
	targetUserID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Role, "role") {
		return
	}

	result, err := h.service.ChangeRole(r.Context(), actor, accountID, targetUserID, members.Role(req.Role))
	if err != nil {
		writeMemberError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// CountAssignedTasks reports how many open tasks a member holds
func (h *MemberHandlers) CountAssignedTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "account_id")
	if !ok {
		return
	}
	targetUserID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	count, err := h.service.CountAssignedTasks(r.Context(), actor, accountID, targetUserID)
	if err != nil {
		writeMemberError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"open_tasks": count})
}

// ForceResync recomputes and re-applies the billable seat quantity
func (h *MemberHandlers) ForceResync(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "account_id")
	if !ok {
		return
	}

	count, err := h.service.ForceResync(r.Context(), actor, accountID)
	if err != nil {
		writeMemberError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"billable_seats": count})
}
