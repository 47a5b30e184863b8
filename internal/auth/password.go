package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/config"
)

const specialChars = `!@#$%^&*()-_=+[]{};:'",.<>/?\|~` + "`"

// PasswordPolicy validates password strength against a configurable rule set
// and performs bcrypt hashing and verification. All methods are pure over
// their inputs and safe for concurrent use.
type PasswordPolicy struct {
	rules config.PasswordRules
}

// NewPasswordPolicy builds a policy from the given rules. A non-positive
// minimum length falls back to the default.
func NewPasswordPolicy(rules config.PasswordRules) *PasswordPolicy {
	if rules.MinLength <= 0 {
		rules.MinLength = config.DefaultPasswordRules().MinLength
	}
	return &PasswordPolicy{rules: rules}
}

// Validate checks the password against every enabled rule. The returned
// *WeakPasswordError names each failed rule; a nil result means the password
// is acceptable.
func (p *PasswordPolicy) Validate(password string) error {
	var reasons []string
	if len(password) < p.rules.MinLength {
		reasons = append(reasons, fmt.Sprintf("must be at least %d characters", p.rules.MinLength))
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}
	if p.rules.RequireUpper && !hasUpper {
		reasons = append(reasons, "must contain an uppercase letter")
	}
	if p.rules.RequireLower && !hasLower {
		reasons = append(reasons, "must contain a lowercase letter")
	}
	if p.rules.RequireDigit && !hasDigit {
		reasons = append(reasons, "must contain a digit")
	}
	if p.rules.RequireSpecial && !hasSpecial {
		reasons = append(reasons, "must contain a special character")
	}
	if len(reasons) > 0 {
		return &WeakPasswordError{Reasons: reasons}
	}
	return nil
}

// Hash produces a salted bcrypt hash at the default cost.
func (p *PasswordPolicy) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("auth: password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches the stored hash. The comparison is
// constant-time inside bcrypt.
func (p *PasswordPolicy) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
