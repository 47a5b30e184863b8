package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "ZOMI_"

// PasswordRules controls which password strength checks are enforced.
// Each rule can be toggled independently via the environment.
type PasswordRules struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPasswordRules returns the rule set applied when nothing is configured.
func DefaultPasswordRules() PasswordRules {
	return PasswordRules{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// Config carries every runtime setting of the service. It is loaded once at
// startup and passed into constructors; nothing reads the environment after
// Load returns.
type Config struct {
	Addr     string
	GRPCAddr string
	DSN      string

	SigningSecret string
	Issuer        string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	InviteCodeTTL   time.Duration

	Password PasswordRules

	RateLimitPerSecond int
	RateLimitBurst     int
}

// Load reads configuration from ZOMI_* environment variables, applying
// defaults for everything except the signing secret, which has no safe
// default.
func Load() (Config, error) {
	cfg := Config{
		Addr:               getEnv("ADDR", ":8080"),
		GRPCAddr:           getEnv("GRPC_ADDR", ""),
		DSN:                getEnv("PG_DSN", ""),
		SigningSecret:      getEnv("AUTH_SECRET", ""),
		Issuer:             getEnv("ISSUER", "zomi-portal"),
		Password:           DefaultPasswordRules(),
		RateLimitPerSecond: 10,
		RateLimitBurst:     20,
	}
	if cfg.SigningSecret == "" {
		return Config{}, errors.New("config: " + envPrefix + "AUTH_SECRET is required")
	}

	var err error
	if cfg.AccessTokenTTL, err = getDuration("ACCESS_TTL", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = getDuration("REFRESH_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.InviteCodeTTL, err = getDuration("INVITE_TTL", 2*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Password.MinLength, err = getInt("PASSWORD_MIN_LENGTH", cfg.Password.MinLength); err != nil {
		return Config{}, err
	}
	if cfg.Password.RequireUpper, err = getBool("PASSWORD_REQUIRE_UPPER", cfg.Password.RequireUpper); err != nil {
		return Config{}, err
	}
	if cfg.Password.RequireLower, err = getBool("PASSWORD_REQUIRE_LOWER", cfg.Password.RequireLower); err != nil {
		return Config{}, err
	}
	if cfg.Password.RequireDigit, err = getBool("PASSWORD_REQUIRE_DIGIT", cfg.Password.RequireDigit); err != nil {
		return Config{}, err
	}
	if cfg.Password.RequireSpecial, err = getBool("PASSWORD_REQUIRE_SPECIAL", cfg.Password.RequireSpecial); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerSecond, err = getInt("RATE_LIMIT_PER_SECOND", cfg.RateLimitPerSecond); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s%s: %w", envPrefix, key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s%s must be positive", envPrefix, key)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: parse %s%s: %w", envPrefix, key, err)
	}
	return b, nil
}
