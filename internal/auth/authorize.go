package auth

import (
	"strings"
)

// Guard answers the two authorization questions the HTTP layer asks: who is
// calling (from a bearer token) and whether that caller may act. Role checks
// are hierarchical: owner > admin > user.
type Guard struct {
	tokens *TokenService
}

// NewGuard constructs a Guard over the given token service.
func NewGuard(tokens *TokenService) *Guard {
	return &Guard{tokens: tokens}
}

// Authenticate resolves an Authorization header to a principal. Any missing,
// malformed, expired, or otherwise invalid credential collapses to
// ErrUnauthenticated so the response does not reveal which check failed.
func (g *Guard) Authenticate(header string) (Principal, error) {
	token, ok := bearerToken(header)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	p, err := g.tokens.ValidateAccessToken(token)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	return p, nil
}

// Authorize checks that the principal's role meets the required minimum.
func (g *Guard) Authorize(p Principal, required Role) error {
	if !p.Role.Valid() {
		return ErrUnauthenticated
	}
	if !p.Role.AtLeast(required) {
		return ErrForbidden
	}
	return nil
}

type roleChange struct {
	actor  Role
	target Role
	next   Role
}

// allowedRoleChanges enumerates every permitted (actor, current, new) role
// transition. Anything absent is forbidden, which keeps the owner role
// untouchable except through ownership transfer.
var allowedRoleChanges = map[roleChange]bool{
	{RoleOwner, RoleAdmin, RoleOwner}: true,
	{RoleOwner, RoleAdmin, RoleUser}:  true,
	{RoleOwner, RoleUser, RoleAdmin}:  true,
	{RoleOwner, RoleUser, RoleOwner}:  true,
	{RoleAdmin, RoleUser, RoleAdmin}:  true,
	{RoleAdmin, RoleAdmin, RoleUser}:  true,
}

// CanChangeRole validates a member role change. Cross-organization targets
// read as not found rather than forbidden so membership is not leaked.
// Assigning the role the member already holds succeeds as a no-op.
func (g *Guard) CanChangeRole(actor Principal, target *User, next Role) error {
	if target == nil || target.OrganizationID != actor.OrganizationID {
		return ErrNotFound
	}
	if target.ID == actor.UserID {
		return ErrForbidden
	}
	if target.Role == RoleOwner {
		return ErrForbidden
	}
	if !next.Valid() {
		return ErrInvalidInput
	}
	if !actor.Role.AtLeast(RoleAdmin) {
		return ErrForbidden
	}
	if next == target.Role {
		return nil
	}
	if !allowedRoleChanges[roleChange{actor.Role, target.Role, next}] {
		return ErrForbidden
	}
	return nil
}

// CanRemoveMember validates a member removal. The owner cannot be removed,
// nobody removes themselves, and admins cannot remove other admins.
func (g *Guard) CanRemoveMember(actor Principal, target *User) error {
	if target == nil || target.OrganizationID != actor.OrganizationID {
		return ErrNotFound
	}
	if target.ID == actor.UserID {
		return ErrForbidden
	}
	if target.Role == RoleOwner {
		return ErrForbidden
	}
	if actor.Role == RoleAdmin && target.Role == RoleAdmin {
		return ErrForbidden
	}
	if !actor.Role.AtLeast(RoleAdmin) {
		return ErrForbidden
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
