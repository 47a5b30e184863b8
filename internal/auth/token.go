package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/ids"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	tokenTypeAccess = "access"
)

// AccessClaims is the payload of a signed access token.
type AccessClaims struct {
	OrganizationID string `json:"org"`
	Role           Role   `json:"role"`
	TokenType      string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService mints and validates the two credential kinds: a stateless
// HS256-signed access token whose validity is fully determined by signature
// and expiry, and a stateful opaque refresh token persisted with a 7-day TTL
// and checked against the store on every use. The split keeps per-request
// validation free of store round-trips while leaving revocation meaningful
// where it matters.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RefreshTokenStore
	now        func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if iss := strings.TrimSpace(issuer); iss != "" {
			s.issuer = iss
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService. The signing secret is required.
func NewTokenService(secret string, store RefreshTokenStore, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if store == nil {
		return nil, errors.New("auth: refresh token store is required")
	}
	svc := &TokenService{
		secret:     []byte(secret),
		issuer:     "zomi-portal",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		store:      store,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// IssueAccessToken signs a short-lived token carrying the principal. Nothing
// is persisted.
func (s *TokenService) IssueAccessToken(p Principal) (string, time.Time, error) {
	if p.UserID == "" || p.OrganizationID == "" || !p.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: incomplete principal", ErrInvalidInput)
	}
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	claims := AccessClaims{
		OrganizationID: p.OrganizationID,
		Role:           p.Role,
		TokenType:      tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// ValidateAccessToken verifies signature and claims and returns the embedded
// principal. Expiry is exclusive of the boundary instant: a token checked at
// exactly its exp is rejected.
func (s *TokenService) ValidateAccessToken(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrTokenMalformed
	}
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenMalformed
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, ErrTokenMalformed
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrTokenMalformed
	}
	if claims.TokenType != tokenTypeAccess {
		return Principal{}, ErrTokenMalformed
	}
	p := Principal{
		UserID:         strings.TrimSpace(claims.Subject),
		OrganizationID: strings.TrimSpace(claims.OrganizationID),
		Role:           claims.Role,
	}
	if p.UserID == "" || p.OrganizationID == "" || !p.Role.Valid() {
		return Principal{}, ErrTokenMalformed
	}
	return p, nil
}

// IssueRefreshToken generates an opaque "<id>.<secret>" credential and
// persists its record. Issuing a new token never invalidates the user's other
// refresh tokens; multi-device sessions stay independent.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID string) (string, *RefreshToken, error) {
	if strings.TrimSpace(userID) == "" {
		return "", nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	now := s.now().UTC()
	rec := &RefreshToken{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: hashTokenSecret(secret),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return "", nil, err
	}
	return rec.ID + "." + secret, rec, nil
}

// ValidateRefreshToken resolves the credential to its user. Revocation wins
// over expiry when both apply.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	id, secret, err := splitRefreshToken(token)
	if err != nil {
		return "", ErrTokenMalformed
	}
	rec, err := s.store.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", ErrTokenMalformed
	}
	if err != nil {
		return "", err
	}
	if !compareTokenHash(rec.TokenHash, secret) {
		// A valid id with the wrong secret suggests tampering; burn the token.
		_ = s.store.Revoke(ctx, rec.ID, s.now().UTC())
		return "", ErrTokenMalformed
	}
	if rec.RevokedAt != nil {
		return "", ErrTokenRevoked
	}
	if !s.now().UTC().Before(rec.ExpiresAt) {
		return "", ErrTokenExpired
	}
	return rec.UserID, nil
}

// Revoke marks the refresh token revoked and returns the user it belonged
// to, so callers can attribute the revocation without a separate credential.
// It is idempotent: revoking an already-revoked token succeeds.
func (s *TokenService) Revoke(ctx context.Context, token string) (string, error) {
	id, secret, err := splitRefreshToken(token)
	if err != nil {
		return "", ErrTokenMalformed
	}
	rec, err := s.store.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", ErrTokenMalformed
	}
	if err != nil {
		return "", err
	}
	if !compareTokenHash(rec.TokenHash, secret) {
		return "", ErrTokenMalformed
	}
	if err := s.store.Revoke(ctx, rec.ID, s.now().UTC()); err != nil {
		return "", err
	}
	return rec.UserID, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func hashTokenSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func compareTokenHash(expected, secret string) bool {
	actual := hashTokenSecret(secret)
	if len(expected) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
