package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/audit"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/auth"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/config"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/stream"
)

// fakeStore is an in-memory auth.Store for handler tests, mirroring the
// semantics the handlers rely on: email uniqueness, atomic invite
// redemption, idempotent revocation.
type fakeStore struct {
	mu       sync.Mutex
	orgs     map[string]*auth.Organization
	users    map[string]*auth.User
	invites  map[string]*auth.InviteCode
	tokens   map[string]*auth.RefreshToken
	auditLog []*auth.AuditEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orgs:    make(map[string]*auth.Organization),
		users:   make(map[string]*auth.User),
		invites: make(map[string]*auth.InviteCode),
		tokens:  make(map[string]*auth.RefreshToken),
	}
}

func (f *fakeStore) Organizations() auth.OrganizationStore { return (*fakeOrgStore)(f) }
func (f *fakeStore) Users() auth.UserStore                 { return (*fakeUserStore)(f) }
func (f *fakeStore) InviteCodes() auth.InviteCodeStore     { return (*fakeInviteStore)(f) }
func (f *fakeStore) RefreshTokens() auth.RefreshTokenStore { return (*fakeTokenStore)(f) }
func (f *fakeStore) Audit() auth.AuditStore                { return (*fakeAuditStore)(f) }

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeOrgStore fakeStore

func (f *fakeOrgStore) Create(_ context.Context, org *auth.Organization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *org
	f.orgs[org.ID] = &cp
	return nil
}

func (f *fakeOrgStore) Find(_ context.Context, id string) (*auth.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

type fakeUserStore fakeStore

func (f *fakeUserStore) insertLocked(u *auth.User) error {
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrDuplicateEmail
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserStore) Create(_ context.Context, u *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(u)
}

func (f *fakeUserStore) CreateWithOrganization(_ context.Context, org *auth.Organization, u *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.insertLocked(u); err != nil {
		return err
	}
	cp := *org
	f.orgs[org.ID] = &cp
	return nil
}

func (f *fakeUserStore) Find(_ context.Context, id string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUserStore) ListByOrg(_ context.Context, orgID string) ([]*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auth.User
	for _, u := range f.users {
		if u.OrganizationID == orgID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeUserStore) RecordLogin(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		t := at
		u.LastLoginAt = &t
	}
	return nil
}

func (f *fakeUserStore) UpdateRole(_ context.Context, userID string, role auth.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.Role = role
	return nil
}

func (f *fakeUserStore) TransferOwnership(_ context.Context, orgID, newOwnerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.users[newOwnerID]
	if !ok || target.OrganizationID != orgID {
		return auth.ErrNotFound
	}
	for _, u := range f.users {
		if u.OrganizationID == orgID && u.Role == auth.RoleOwner {
			u.Role = auth.RoleAdmin
		}
	}
	target.Role = auth.RoleOwner
	return nil
}

func (f *fakeUserStore) Deactivate(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.IsActive = false
	return nil
}

type fakeInviteStore fakeStore

func (f *fakeInviteStore) Create(_ context.Context, code *auth.InviteCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.invites[code.Code]; exists {
		return auth.ErrAlreadyExists
	}
	cp := *code
	f.invites[code.Code] = &cp
	return nil
}

func (f *fakeInviteStore) ListByOrg(_ context.Context, orgID string) ([]*auth.InviteCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auth.InviteCode
	for _, c := range f.invites {
		if c.OrganizationID == orgID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeInviteStore) Redeem(_ context.Context, code, usedBy string, now time.Time) (auth.InviteGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.invites[code]
	if !ok {
		return auth.InviteGrant{}, &auth.InviteDeniedError{Cause: "unknown"}
	}
	if c.IsUsed {
		return auth.InviteGrant{}, &auth.InviteDeniedError{Cause: "used"}
	}
	if !now.Before(c.ExpiresAt) {
		return auth.InviteGrant{}, &auth.InviteDeniedError{Cause: "expired"}
	}
	c.IsUsed = true
	by := usedBy
	at := now
	c.UsedBy = &by
	c.UsedAt = &at
	return auth.InviteGrant{OrganizationID: c.OrganizationID, Role: c.Role}, nil
}

type fakeTokenStore fakeStore

func (f *fakeTokenStore) Create(_ context.Context, tok *auth.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *tok
	f.tokens[tok.ID] = &cp
	return nil
}

func (f *fakeTokenStore) Find(_ context.Context, id string) (*auth.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (f *fakeTokenStore) Revoke(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tok, ok := f.tokens[id]; ok && tok.RevokedAt == nil {
		t := at
		tok.RevokedAt = &t
	}
	return nil
}

type fakeAuditStore fakeStore

func (f *fakeAuditStore) Append(_ context.Context, entry *auth.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.auditLog = append(f.auditLog, &cp)
	return nil
}

func (f *fakeAuditStore) ListByOrg(_ context.Context, orgID string, limit int) ([]*auth.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auth.AuditEntry
	for _, e := range f.auditLog {
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

// newTestAPI wires a complete API over the fake store.
func newTestAPI(t *testing.T) (*API, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	cfg := config.Config{
		Addr:               ":0",
		SigningSecret:      "test-secret",
		Issuer:             "zomi-portal",
		AccessTokenTTL:     30 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		InviteCodeTTL:      2 * time.Hour,
		Password:           config.DefaultPasswordRules(),
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}
	hub := stream.NewHub(8)
	recorder := audit.NewRecorder(store.Audit(), hub)
	passwords := auth.NewPasswordPolicy(cfg.Password)
	invites := auth.NewInviteCodeIssuer(store.InviteCodes(), cfg.InviteCodeTTL)
	tokens, err := auth.NewTokenService(cfg.SigningSecret, store.RefreshTokens(),
		auth.WithIssuer(cfg.Issuer),
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
	)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	svc, err := auth.NewService(store, passwords, invites, tokens, recorder, auth.NewLockoutTracker())
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	return New(svc, auth.NewGuard(tokens), hub, store, cfg, "test"), store
}
