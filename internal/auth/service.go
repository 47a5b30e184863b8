package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/ids"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/obs"
)

// Service orchestrates the account lifecycle flows: admin signup, invited
// signup, login, token refresh, and logout. It owns the ordering of checks in
// each flow so that error responses never reveal more than the caller is
// entitled to learn.
type Service struct {
	store     Store
	passwords *PasswordPolicy
	invites   *InviteCodeIssuer
	tokens    *TokenService
	recorder  Recorder
	lockouts  *LockoutTracker
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the flow controller from its collaborators.
func NewService(store Store, passwords *PasswordPolicy, invites *InviteCodeIssuer, tokens *TokenService, recorder Recorder, lockouts *LockoutTracker, opts ...ServiceOption) (*Service, error) {
	if store == nil || passwords == nil || invites == nil || tokens == nil {
		return nil, errors.New("auth: store, password policy, invite issuer, and token service are required")
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if lockouts == nil {
		lockouts = NewLockoutTracker()
	}
	svc := &Service{
		store:     store,
		passwords: passwords,
		invites:   invites,
		tokens:    tokens,
		recorder:  recorder,
		lockouts:  lockouts,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, AuditEvent) {}

// Session is the result of a successful signup, login, or refresh.
type Session struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SignupAdminInput creates a new organization with its first account.
type SignupAdminInput struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FullName         string `json:"full_name"`
	JobTitle         string `json:"job_title"`
	OrganizationName string `json:"organization_name"`
}

// SignupUserInput joins an existing organization via an invite code.
type SignupUserInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
	JobTitle   string `json:"job_title"`
	InviteCode string `json:"invite_code"`
}

// SignupAdmin provisions an organization together with its first user, who
// becomes the owner. The organization and user are created atomically: a
// duplicate email leaves no orphaned organization behind.
func (s *Service) SignupAdmin(ctx context.Context, in SignupAdminInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full_name is required", ErrInvalidInput)
	}
	orgName := strings.TrimSpace(in.OrganizationName)
	if len(orgName) < 2 {
		return nil, fmt.Errorf("%w: organization_name must be at least 2 characters", ErrInvalidInput)
	}
	if err := s.passwords.Validate(in.Password); err != nil {
		return nil, err
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	org := &Organization{
		ID:        ids.New(),
		Name:      orgName,
		IsActive:  true,
		CreatedAt: now,
	}
	user := &User{
		ID:             ids.New(),
		OrganizationID: org.ID,
		Email:          email,
		PasswordHash:   hash,
		FullName:       fullName,
		JobTitle:       strings.TrimSpace(in.JobTitle),
		Role:           RoleOwner,
		IsActive:       true,
		CreatedAt:      now,
	}
	if err := s.store.Users().CreateWithOrganization(ctx, org, user); err != nil {
		obs.SignupsTotal.WithLabelValues("admin_failed").Inc()
		return nil, err
	}
	obs.SignupsTotal.WithLabelValues("admin").Inc()
	s.recorder.Record(ctx, AuditEvent{
		Action:         "signup.admin",
		Resource:       "user:" + user.ID,
		UserID:         user.ID,
		OrganizationID: org.ID,
		Details:        map[string]any{"organization_name": org.Name},
	})
	return s.openSession(ctx, user)
}

// SignupUser creates an account in an existing organization. The invite code
// is redeemed before the account exists; redemption is the single atomic
// gate, so two concurrent signups on the same code cannot both succeed.
func (s *Service) SignupUser(ctx context.Context, in SignupUserInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full_name is required", ErrInvalidInput)
	}
	if err := s.passwords.Validate(in.Password); err != nil {
		return nil, err
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	// Check the email before spending the invite code so a duplicate signup
	// does not burn a valid code. The store's unique constraint remains the
	// authoritative guard against the check-then-create race.
	if _, err := s.store.Users().FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	userID := ids.New()
	grant, err := s.invites.Redeem(ctx, in.InviteCode, userID)
	if err != nil {
		obs.InviteRedemptionsTotal.WithLabelValues("denied").Inc()
		s.recorder.Record(ctx, AuditEvent{
			Action:   "signup.user.denied",
			Resource: "invite_code",
			Details:  map[string]any{"cause": InviteDenialCause(err)},
		})
		return nil, err
	}
	obs.InviteRedemptionsTotal.WithLabelValues("redeemed").Inc()

	now := s.now().UTC()
	user := &User{
		ID:             userID,
		OrganizationID: grant.OrganizationID,
		Email:          email,
		PasswordHash:   hash,
		FullName:       fullName,
		JobTitle:       strings.TrimSpace(in.JobTitle),
		Role:           grant.Role,
		IsActive:       true,
		CreatedAt:      now,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		obs.SignupsTotal.WithLabelValues("user_failed").Inc()
		return nil, err
	}
	obs.SignupsTotal.WithLabelValues("user").Inc()
	s.recorder.Record(ctx, AuditEvent{
		Action:         "signup.user",
		Resource:       "user:" + user.ID,
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Details:        map[string]any{"role": string(user.Role)},
	})
	return s.openSession(ctx, user)
}

// Login authenticates an email and password. Unknown email and wrong password
// produce the same error; deactivation is only disclosed once the password
// has been verified, so the flag cannot be probed.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if s.lockouts.Locked(email) {
		obs.LoginsTotal.WithLabelValues("locked").Inc()
		return nil, ErrAccountLocked
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.lockouts.RecordFailure(email)
		obs.LoginsTotal.WithLabelValues("failed").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.passwords.Verify(password, user.PasswordHash) {
		locked := s.lockouts.RecordFailure(email)
		obs.LoginsTotal.WithLabelValues("failed").Inc()
		s.recorder.Record(ctx, AuditEvent{
			Action:         "login.failed",
			Resource:       "user:" + user.ID,
			UserID:         user.ID,
			OrganizationID: user.OrganizationID,
			Details:        map[string]any{"locked": locked},
		})
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		obs.LoginsTotal.WithLabelValues("deactivated").Inc()
		return nil, ErrAccountDeactivated
	}
	s.lockouts.Reset(email)

	now := s.now().UTC()
	if err := s.store.Users().RecordLogin(ctx, user.ID, now); err != nil {
		obs.Log("warn", "record_login_failed", map[string]any{"user_id": user.ID, "error": err.Error()})
	}
	user.LastLoginAt = &now

	obs.LoginsTotal.WithLabelValues("success").Inc()
	s.recorder.Record(ctx, AuditEvent{
		Action:         "login",
		Resource:       "user:" + user.ID,
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
	})
	return s.openSession(ctx, user)
}

// Refresh exchanges a valid refresh token for a new access token. The refresh
// token itself is not rotated and stays valid until its own expiry or
// revocation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	userID, err := s.tokens.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		obs.TokenRefreshTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	user, err := s.store.Users().Find(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		obs.TokenRefreshTotal.WithLabelValues("failed").Inc()
		return nil, ErrTokenRevoked
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		obs.TokenRefreshTotal.WithLabelValues("deactivated").Inc()
		return nil, ErrAccountDeactivated
	}
	access, _, err := s.tokens.IssueAccessToken(Principal{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
	})
	if err != nil {
		return nil, err
	}
	obs.TokenRefreshTotal.WithLabelValues("success").Inc()
	s.recorder.Record(ctx, AuditEvent{
		Action:         "token.refresh",
		Resource:       "user:" + user.ID,
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
	})
	return &Session{
		User:        user,
		AccessToken: access,
		ExpiresIn:   int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Logout revokes the presented refresh token. It never fails: a malformed or
// unknown token is treated as already logged out. The audit entry is
// attributed to the token's own user, since logout carries no bearer
// credential.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	userID, err := s.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		if !errors.Is(err, ErrTokenMalformed) {
			obs.Log("warn", "logout_revoke_failed", map[string]any{"error": err.Error()})
		}
		return nil
	}
	ev := AuditEvent{
		Action:   "logout",
		Resource: "user:" + userID,
		UserID:   userID,
	}
	if user, err := s.store.Users().Find(ctx, userID); err == nil {
		ev.OrganizationID = user.OrganizationID
	}
	s.recorder.Record(ctx, ev)
	return nil
}

// Store exposes the backing store for handlers that read or mutate team
// membership directly.
func (s *Service) Store() Store { return s.store }

// Invites exposes the invite code issuer.
func (s *Service) Invites() *InviteCodeIssuer { return s.invites }

// Recorder exposes the audit recorder.
func (s *Service) Recorder() Recorder { return s.recorder }

func (s *Service) openSession(ctx context.Context, user *User) (*Session, error) {
	access, _, err := s.tokens.IssueAccessToken(Principal{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
	})
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return email, nil
}
