package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// memStore is an in-memory Store used by the package tests. It mirrors the
// database semantics that matter: email uniqueness on insert, transactional
// org+user creation, and invite redemption as a single guarded state change.
type memStore struct {
	mu       sync.Mutex
	orgs     map[string]*Organization
	users    map[string]*User
	invites  map[string]*InviteCode // keyed by code
	tokens   map[string]*RefreshToken
	auditLog []*AuditEntry
}

func newMemStore() *memStore {
	return &memStore{
		orgs:    make(map[string]*Organization),
		users:   make(map[string]*User),
		invites: make(map[string]*InviteCode),
		tokens:  make(map[string]*RefreshToken),
	}
}

func (m *memStore) Organizations() OrganizationStore { return (*memOrgStore)(m) }
func (m *memStore) Users() UserStore                 { return (*memUserStore)(m) }
func (m *memStore) InviteCodes() InviteCodeStore     { return (*memInviteStore)(m) }
func (m *memStore) RefreshTokens() RefreshTokenStore { return (*memTokenStore)(m) }
func (m *memStore) Audit() AuditStore                { return (*memAuditStore)(m) }

type memOrgStore memStore

func (m *memOrgStore) Create(_ context.Context, org *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orgs {
		if existing.Name == org.Name {
			return ErrAlreadyExists
		}
	}
	cp := *org
	m.orgs[org.ID] = &cp
	return nil
}

func (m *memOrgStore) Find(_ context.Context, id string) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

type memUserStore memStore

func (m *memUserStore) insertLocked(u *User) error {
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(u)
}

func (m *memUserStore) CreateWithOrganization(_ context.Context, org *Organization, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orgs {
		if existing.Name == org.Name {
			return ErrAlreadyExists
		}
	}
	if err := m.insertLocked(u); err != nil {
		return err
	}
	cp := *org
	m.orgs[org.ID] = &cp
	return nil
}

func (m *memUserStore) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUserStore) ListByOrg(_ context.Context, orgID string) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.users {
		if u.OrganizationID == orgID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memUserStore) RecordLogin(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	t := at
	u.LastLoginAt = &t
	return nil
}

func (m *memUserStore) UpdateRole(_ context.Context, userID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	return nil
}

func (m *memUserStore) TransferOwnership(_ context.Context, orgID, newOwnerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.users[newOwnerID]
	if !ok || target.OrganizationID != orgID {
		return ErrNotFound
	}
	for _, u := range m.users {
		if u.OrganizationID == orgID && u.Role == RoleOwner {
			u.Role = RoleAdmin
		}
	}
	target.Role = RoleOwner
	return nil
}

func (m *memUserStore) Deactivate(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = false
	return nil
}

type memInviteStore memStore

func (m *memInviteStore) Create(_ context.Context, code *InviteCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.invites[code.Code]; exists {
		return ErrAlreadyExists
	}
	cp := *code
	m.invites[code.Code] = &cp
	return nil
}

func (m *memInviteStore) ListByOrg(_ context.Context, orgID string) ([]*InviteCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*InviteCode
	for _, c := range m.invites {
		if c.OrganizationID == orgID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memInviteStore) Redeem(_ context.Context, code, usedBy string, now time.Time) (InviteGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.invites[code]
	if !ok {
		return InviteGrant{}, &InviteDeniedError{Cause: "unknown"}
	}
	if c.IsUsed {
		return InviteGrant{}, &InviteDeniedError{Cause: "used"}
	}
	if !now.Before(c.ExpiresAt) {
		return InviteGrant{}, &InviteDeniedError{Cause: "expired"}
	}
	c.IsUsed = true
	by := usedBy
	at := now
	c.UsedBy = &by
	c.UsedAt = &at
	return InviteGrant{OrganizationID: c.OrganizationID, Role: c.Role}, nil
}

type memTokenStore memStore

func (m *memTokenStore) Create(_ context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.tokens[tok.ID] = &cp
	return nil
}

func (m *memTokenStore) Find(_ context.Context, id string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *memTokenStore) Revoke(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[id]
	if !ok {
		return nil
	}
	if tok.RevokedAt == nil {
		t := at
		tok.RevokedAt = &t
	}
	return nil
}

type memAuditStore memStore

func (m *memAuditStore) Append(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.auditLog = append(m.auditLog, &cp)
	return nil
}

func (m *memAuditStore) ListByOrg(_ context.Context, orgID string, limit int) ([]*AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AuditEntry
	for _, e := range m.auditLog {
		if e.OrganizationID == orgID {
			cp := *e
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
