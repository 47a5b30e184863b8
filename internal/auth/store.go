package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// All mutation happens through narrow atomic statements (conditional update,
// unique-constrained insert) so the package stays lock-free.
type Store interface {
	Organizations() OrganizationStore
	Users() UserStore
	InviteCodes() InviteCodeStore
	RefreshTokens() RefreshTokenStore
	Audit() AuditStore
}

// OrganizationStore manages tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
}

// UserStore manages users. Email uniqueness is enforced by the store, not by
// application-level pre-checks; Create and CreateWithOrganization return
// ErrDuplicateEmail when the unique constraint fires.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	// CreateWithOrganization persists a new organization and its first user
	// in one transaction. Either both rows exist afterwards or neither does.
	CreateWithOrganization(ctx context.Context, org *Organization, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByOrg(ctx context.Context, orgID string) ([]*User, error)
	RecordLogin(ctx context.Context, userID string, at time.Time) error
	UpdateRole(ctx context.Context, userID string, role Role) error
	// TransferOwnership demotes the organization's current owner to admin and
	// promotes newOwnerID to owner in a single transaction, so the
	// single-owner invariant holds at every commit point.
	TransferOwnership(ctx context.Context, orgID, newOwnerID string) error
	Deactivate(ctx context.Context, userID string) error
}

// InviteCodeStore manages invite codes. Create returns ErrAlreadyExists on a
// code collision so the issuer can retry with a fresh code.
type InviteCodeStore interface {
	Create(ctx context.Context, code *InviteCode) error
	ListByOrg(ctx context.Context, orgID string) ([]*InviteCode, error)
	// Redeem marks the code used if and only if it is currently unused and
	// unexpired, as one conditional update. Two concurrent redemptions of the
	// same code can therefore never both succeed. Failures carry an
	// InviteDeniedError wrapping ErrInviteCodeInvalid.
	Redeem(ctx context.Context, code, usedBy string, now time.Time) (InviteGrant, error)
}

// RefreshTokenStore manages persisted refresh tokens.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	// Revoke sets revoked_at if it is not already set. Revoking an
	// already-revoked token is not an error.
	Revoke(ctx context.Context, id string, at time.Time) error
}

// AuditStore appends immutable entries and serves the portal's activity view.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*AuditEntry, error)
}
