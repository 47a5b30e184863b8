package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/auth"
)

// handleInviteCodes issues and lists invite codes. Issuing requires admin;
// listing shows the caller's organization only.
func (a *API) handleInviteCodes(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	if err := a.guard.Authorize(p, auth.RoleAdmin); err != nil {
		handleAuthError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var in struct {
			Role string `json:"role"`
		}
		if !decodeJSON(w, r, &in) {
			return
		}
		role := auth.Role(strings.ToLower(strings.TrimSpace(in.Role)))
		if role == "" {
			role = auth.RoleUser
		}
		code, err := a.svc.Invites().Issue(r.Context(), p.OrganizationID, role, p.UserID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.svc.Recorder().Record(r.Context(), auth.AuditEvent{
			Action:         "invite.issued",
			Resource:       "invite_code:" + code.ID,
			UserID:         p.UserID,
			OrganizationID: p.OrganizationID,
			Details:        map[string]any{"role": string(role)},
		})
		writeJSON(w, http.StatusCreated, code)
	case http.MethodGet:
		codes, err := a.svc.Store().InviteCodes().ListByOrg(r.Context(), p.OrganizationID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if codes == nil {
			codes = []*auth.InviteCode{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"invite_codes": codes})
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

// handleMembers lists the organization's members.
func (a *API) handleMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	members, err := a.svc.Store().Users().ListByOrg(r.Context(), p.OrganizationID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if members == nil {
		members = []*auth.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// handleMember routes /team/members/{id}/role and /team/members/{id}.
func (a *API) handleMember(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/team/members/")
	if rest == "" || rest == r.URL.Path {
		http.NotFound(w, r)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/role"); ok {
		a.handleMemberRole(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		http.NotFound(w, r)
		return
	}
	a.handleMemberRemove(w, r, rest)
}

// handleMemberRole changes a member's role. Promoting to owner is an
// ownership transfer: the current owner is demoted to admin in the same
// transaction.
func (a *API) handleMemberRole(w http.ResponseWriter, r *http.Request, targetID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	if err := a.guard.Authorize(p, auth.RoleAdmin); err != nil {
		handleAuthError(w, r, err)
		return
	}
	var in struct {
		Role string `json:"role"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	next := auth.Role(strings.ToLower(strings.TrimSpace(in.Role)))

	target, err := a.svc.Store().Users().Find(r.Context(), targetID)
	if errors.Is(err, auth.ErrNotFound) {
		handleAuthError(w, r, auth.ErrNotFound)
		return
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if err := a.guard.CanChangeRole(p, target, next); err != nil {
		handleAuthError(w, r, err)
		return
	}

	if next == auth.RoleOwner {
		err = a.svc.Store().Users().TransferOwnership(r.Context(), p.OrganizationID, target.ID)
	} else {
		err = a.svc.Store().Users().UpdateRole(r.Context(), target.ID, next)
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.svc.Recorder().Record(r.Context(), auth.AuditEvent{
		Action:         "member.role_changed",
		Resource:       "user:" + target.ID,
		UserID:         p.UserID,
		OrganizationID: p.OrganizationID,
		Details:        map[string]any{"from": string(target.Role), "to": string(next)},
	})
	target.Role = next
	writeJSON(w, http.StatusOK, target)
}

// handleMemberRemove deactivates a member. Accounts are never deleted so
// audit history keeps a valid subject.
func (a *API) handleMemberRemove(w http.ResponseWriter, r *http.Request, targetID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	if err := a.guard.Authorize(p, auth.RoleAdmin); err != nil {
		handleAuthError(w, r, err)
		return
	}
	target, err := a.svc.Store().Users().Find(r.Context(), targetID)
	if errors.Is(err, auth.ErrNotFound) {
		handleAuthError(w, r, auth.ErrNotFound)
		return
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if err := a.guard.CanRemoveMember(p, target); err != nil {
		handleAuthError(w, r, err)
		return
	}
	if err := a.svc.Store().Users().Deactivate(r.Context(), target.ID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.svc.Recorder().Record(r.Context(), auth.AuditEvent{
		Action:         "member.removed",
		Resource:       "user:" + target.ID,
		UserID:         p.UserID,
		OrganizationID: p.OrganizationID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// handleAuditLogs serves the organization's recent audit entries.
func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	if err := a.guard.Authorize(p, auth.RoleAdmin); err != nil {
		handleAuthError(w, r, err)
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	entries, err := a.svc.Store().Audit().ListByOrg(r.Context(), p.OrganizationID, limit)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*auth.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": entries})
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
		if n > 500 {
			return 500
		}
	}
	return n
}
