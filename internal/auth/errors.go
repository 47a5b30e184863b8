package auth

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")

	ErrDuplicateEmail     = errors.New("auth: email already registered")
	ErrInviteCodeInvalid  = errors.New("auth: invite code is invalid")
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrAccountDeactivated = errors.New("auth: account is deactivated")
	ErrAccountLocked      = errors.New("auth: account temporarily locked")

	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenRevoked   = errors.New("auth: token revoked")
	ErrTokenMalformed = errors.New("auth: token malformed")

	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
)

// WeakPasswordError lists every policy rule the candidate password failed.
// It is a normal validation result, not a fault.
type WeakPasswordError struct {
	Reasons []string
}

func (e *WeakPasswordError) Error() string {
	return "auth: weak password: " + strings.Join(e.Reasons, "; ")
}

// InviteDeniedError distinguishes why a redemption failed for audit logging.
// Callers outside the audit path must surface only the wrapped
// ErrInviteCodeInvalid so the API never acts as a code-enumeration oracle.
type InviteDeniedError struct {
	Cause string // "unknown", "used" or "expired"
}

func (e *InviteDeniedError) Error() string {
	return ErrInviteCodeInvalid.Error()
}

func (e *InviteDeniedError) Unwrap() error {
	return ErrInviteCodeInvalid
}

// InviteDenialCause extracts the internal denial cause, defaulting to
// "unknown" when the error carries none.
func InviteDenialCause(err error) string {
	var denied *InviteDeniedError
	if errors.As(err, &denied) && denied.Cause != "" {
		return denied.Cause
	}
	return "unknown"
}
