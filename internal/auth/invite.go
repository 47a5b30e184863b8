package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/ids"
)

// codeAlphabet excludes visually ambiguous glyphs (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeLength      = 8
	maxCodeAttempts = 10
)

// InviteCodeIssuer generates collision-free invite codes and redeems them.
// Redemption is delegated to the store's single conditional update, which is
// what makes double-redemption impossible under concurrency.
type InviteCodeIssuer struct {
	store InviteCodeStore
	ttl   time.Duration
	now   func() time.Time
}

// IssuerOption configures an InviteCodeIssuer.
type IssuerOption func(*InviteCodeIssuer)

// WithIssuerClock overrides the time source, for tests.
func WithIssuerClock(fn func() time.Time) IssuerOption {
	return func(i *InviteCodeIssuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewInviteCodeIssuer builds an issuer with the given code lifetime.
func NewInviteCodeIssuer(store InviteCodeStore, ttl time.Duration, opts ...IssuerOption) *InviteCodeIssuer {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	iss := &InviteCodeIssuer{store: store, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(iss)
	}
	return iss
}

// Issue creates a fresh single-use code bound to the organization and role.
// Only admin and user invites exist; ownership is transferred, never invited.
func (i *InviteCodeIssuer) Issue(ctx context.Context, organizationID string, role Role, createdBy string) (*InviteCode, error) {
	organizationID = strings.TrimSpace(organizationID)
	createdBy = strings.TrimSpace(createdBy)
	if organizationID == "" || createdBy == "" {
		return nil, fmt.Errorf("%w: organization_id and created_by are required", ErrInvalidInput)
	}
	if role != RoleAdmin && role != RoleUser {
		return nil, fmt.Errorf("%w: invite role must be admin or user", ErrInvalidInput)
	}

	now := i.now().UTC()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := &InviteCode{
			ID:             ids.New(),
			Code:           randomCode(),
			OrganizationID: organizationID,
			Role:           role,
			ExpiresAt:      now.Add(i.ttl),
			CreatedBy:      createdBy,
			CreatedAt:      now,
		}
		err := i.store.Create(ctx, code)
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return code, nil
	}
	return nil, errors.New("auth: could not generate a unique invite code")
}

// Redeem consumes the code atomically and returns the organization and role
// it grants. Every failure surfaces as ErrInviteCodeInvalid; the internal
// cause is preserved for audit logging only.
func (i *InviteCodeIssuer) Redeem(ctx context.Context, code, usedBy string) (InviteGrant, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != codeLength {
		return InviteGrant{}, &InviteDeniedError{Cause: "unknown"}
	}
	return i.store.Redeem(ctx, code, usedBy, i.now().UTC())
}

func randomCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out)
}
