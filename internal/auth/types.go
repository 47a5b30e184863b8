package auth

import (
	"context"
	"time"
)

// Role is the ordered permission level a user holds inside an organization.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

var roleRank = map[Role]int{
	RoleUser:  1,
	RoleAdmin: 2,
	RoleOwner: 3,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r sits at or above required in the hierarchy
// owner > admin > user.
func (r Role) AtLeast(required Role) bool {
	return roleRank[r] >= roleRank[required]
}

// Organization is a tenant. Its identity is immutable; is_active is toggled
// by out-of-band admin tooling, never by this core.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a member of exactly one organization. Users are deactivated rather
// than deleted.
type User struct {
	ID              string     `json:"id"`
	OrganizationID  string     `json:"organization_id"`
	FullName        string     `json:"full_name"`
	Email           string     `json:"email"`
	JobTitle        string     `json:"job_title"`
	PasswordHash    string     `json:"-"`
	Role            Role       `json:"role"`
	IsActive        bool       `json:"is_active"`
	IsEmailVerified bool       `json:"is_email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// InviteCode is a single-use, time-boxed credential binding a future
// registrant to an organization and role. A used code never becomes
// active again; expiry is derived from expires_at and never written back.
type InviteCode struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	OrganizationID string     `json:"organization_id"`
	Role           Role       `json:"role"`
	IsUsed         bool       `json:"is_used"`
	UsedBy         *string    `json:"used_by,omitempty"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
}

// InviteGrant is what a successful redemption yields: the organization and
// role the new user will be created with.
type InviteGrant struct {
	OrganizationID string
	Role           Role
}

// RefreshToken is the persisted half of a refresh credential. Only the
// SHA-256 hash of the secret is stored.
type RefreshToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// AuditEntry is one append-only row in the audit log.
type AuditEntry struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Action         string         `json:"action"`
	Resource       string         `json:"resource,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AuditEvent is what flows hand to a Recorder. The recorder enriches it with
// request metadata and persists it best-effort.
type AuditEvent struct {
	Action         string
	Resource       string
	UserID         string
	OrganizationID string
	Details        map[string]any
}

// Recorder receives security-relevant events. Implementations must never
// propagate failures to the calling flow.
type Recorder interface {
	Record(ctx context.Context, e AuditEvent)
}

// Principal is the resolved identity of an authenticated caller.
type Principal struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           Role   `json:"role"`
}
